// Package main provides the entry point for the repotool CLI.
package main

import (
	"errors"
	"os"
)

// Exit codes.
const (
	exitClean     = 0
	exitDifferent = 1
	exitFailure   = 2
)

func main() {
	os.Exit(exitCode(Execute()))
}

// exitCode maps the outcome of a command to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitClean
	case errors.Is(err, errDifferences):
		return exitDifferent
	default:
		printError("%v", err)
		return exitFailure
	}
}
