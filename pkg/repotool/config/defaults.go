package config

import "github.com/jamesainslie/repotool/pkg/repotool/manifest"

// Default values for configuration options.
const (
	// DefaultManifestName is the manifest file kept at each repository root.
	DefaultManifestName = manifest.DefaultFileName

	// DefaultHashMethod is the algorithm recorded in new manifests.
	DefaultHashMethod = "MD5"

	// DefaultWorkers of zero sizes the I/O pool from host resources.
	DefaultWorkers = 0

	// DefaultOutput is the report format.
	DefaultOutput = "plain"

	// DefaultRetentionDays is how long run history is kept.
	DefaultRetentionDays = 90
)

// defaultComponents are the per-component log levels written to new configs.
var defaultComponents = map[string]string{
	"engine":  "info",
	"history": "warn",
	"cli":     "info",
}
