package engine

import "github.com/jamesainslie/repotool/pkg/repotool/manifest"

// DetectDuplicates groups every file under root by content hash and returns
// the groups with more than one member, ordered by first encounter in a
// sorted depth-first walk. The tree is not modified.
func DetectDuplicates(root *manifest.Directory) []*DuplicateGroup {
	groups := make(map[string]*DuplicateGroup)
	var order []string

	root.Walk(func(f *manifest.File) {
		key := f.HashKey()
		if key == "" {
			return
		}
		g, ok := groups[key]
		if !ok {
			g = &DuplicateGroup{HashKey: key}
			groups[key] = g
			order = append(order, key)
		}
		g.Files = append(g.Files, f)
	})

	var dups []*DuplicateGroup
	for _, key := range order {
		if g := groups[key]; len(g.Files) > 1 {
			dups = append(dups, g)
		}
	}
	return dups
}
