package engine

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/text/unicode/norm"

	"github.com/jamesainslie/repotool/pkg/repotool/manifest"
)

// CountFiles counts the regular files under root that a pass would
// reconcile, so progress can be shown as n/total. Ignored directories are
// not descended into and unreadable directories are skipped silently.
func CountFiles(ctx context.Context, root string, ignore *manifest.IgnoreMatcher) (int64, error) {
	root = filepath.Clean(root)
	conf := fastwalk.Config{Follow: false}

	var total atomic.Int64
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil || path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		canonical := manifest.JoinPath(manifest.RootName, norm.NFC.String(filepath.ToSlash(rel)))

		switch {
		case d.IsDir():
			if ignore.Match(canonical + manifest.Delimiter) {
				return fastwalk.SkipDir
			}
		case d.Type().IsRegular():
			if !ignore.Match(canonical) {
				total.Add(1)
			}
		}
		return nil
	})
	if err != nil {
		return total.Load(), err
	}
	return total.Load(), nil
}
