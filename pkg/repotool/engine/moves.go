package engine

import "github.com/jamesainslie/repotool/pkg/repotool/manifest"

// DetectMoves pairs missing and new files that share a content hash.
//
// Every hash present on both sides yields exactly one group holding all
// missing and all new files with that hash; no one-to-one matching is
// attempted. Groups are ordered by the first missing file carrying their
// hash. Claimed files are removed from the returned missing and new slices.
// Files without a recorded hash never take part.
func DetectMoves(missing, added []*manifest.File) (moves []*MoveGroup, remainingMissing, remainingNew []*manifest.File) {
	addedByHash := indexByHash(added)
	missingByHash := indexByHash(missing)

	claimed := make(map[string]bool)
	for _, f := range missing {
		key := f.HashKey()
		if key == "" || claimed[key] {
			continue
		}
		to, ok := addedByHash[key]
		if !ok {
			continue
		}
		claimed[key] = true
		moves = append(moves, &MoveGroup{
			HashKey: key,
			From:    missingByHash[key],
			To:      to,
		})
	}

	return moves, unclaimed(missing, claimed), unclaimed(added, claimed)
}

func indexByHash(files []*manifest.File) map[string][]*manifest.File {
	idx := make(map[string][]*manifest.File)
	for _, f := range files {
		if key := f.HashKey(); key != "" {
			idx[key] = append(idx[key], f)
		}
	}
	return idx
}

func unclaimed(files []*manifest.File, claimed map[string]bool) []*manifest.File {
	if len(claimed) == 0 {
		return files
	}
	out := make([]*manifest.File, 0, len(files))
	for _, f := range files {
		if !claimed[f.HashKey()] {
			out = append(out, f)
		}
	}
	return out
}
