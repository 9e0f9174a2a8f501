// Package sync computes and applies the minimal store mutations that bring
// the question/explanation store in line with a manifest revision.
package sync

import (
	"sort"

	"github.com/starford/ansuz/internal/manifest"
)

// Pair holds the old and new manifest entry for a path present in both
// revisions.
type Pair struct {
	Old manifest.Entry
	New manifest.Entry

	// ContentChanged is true when the path's on-disk bytes differ between
	// the two revisions, independent of the entry itself.
	ContentChanged bool
}

// Classification partitions the union of two manifest revisions' paths.
// Every path lands in exactly one bucket.
type Classification struct {
	Removed       []manifest.Entry // in old, absent from new
	Added         []manifest.Entry // in new, absent from old
	LinksModified []Pair           // kept, linked-question set differs
	ContentOnly   []manifest.Entry // kept, links equal, content changed
	Unchanged     []manifest.Entry // kept, nothing to do
}

// Classify compares two manifest revisions. changedPaths is the set of
// content paths whose bytes differ between the revisions. ordered selects
// order-sensitive comparison of linked-question lists.
//
// An entry that is both newly added and content-changed is just added:
// content is fetched fresh for added entries regardless.
func Classify(old, new []manifest.Entry, changedPaths map[string]struct{}, ordered bool) Classification {
	oldByPath := make(map[string]manifest.Entry, len(old))
	for _, e := range old {
		oldByPath[e.Path] = e
	}
	newByPath := make(map[string]manifest.Entry, len(new))
	for _, e := range new {
		newByPath[e.Path] = e
	}

	union := make([]string, 0, len(oldByPath)+len(newByPath))
	for p := range oldByPath {
		union = append(union, p)
	}
	for p := range newByPath {
		if _, inOld := oldByPath[p]; !inOld {
			union = append(union, p)
		}
	}
	sort.Strings(union)

	var c Classification
	for _, p := range union {
		oldEntry, inOld := oldByPath[p]
		newEntry, inNew := newByPath[p]

		switch {
		case !inNew:
			c.Removed = append(c.Removed, oldEntry)
		case !inOld:
			c.Added = append(c.Added, newEntry)
		default:
			_, contentChanged := changedPaths[p]
			if !sameQuestions(oldEntry.Questions, newEntry.Questions, ordered) {
				c.LinksModified = append(c.LinksModified, Pair{
					Old:            oldEntry,
					New:            newEntry,
					ContentChanged: contentChanged,
				})
			} else if contentChanged {
				c.ContentOnly = append(c.ContentOnly, newEntry)
			} else {
				c.Unchanged = append(c.Unchanged, newEntry)
			}
		}
	}
	return c
}

// sameQuestions compares two question lists, order-insensitively for the
// single-link variant and order-sensitively for the ordered variant.
func sameQuestions(a, b []string, ordered bool) bool {
	if len(a) != len(b) {
		return false
	}
	if ordered {
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
	counts := make(map[string]int, len(a))
	for _, q := range a {
		counts[q]++
	}
	for _, q := range b {
		counts[q]--
		if counts[q] < 0 {
			return false
		}
	}
	return true
}
