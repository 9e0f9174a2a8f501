package sync

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/ansuz/internal/manifest"
)

func entry(path string, questions ...string) manifest.Entry {
	return manifest.Entry{Path: path, Questions: questions}
}

func changedSet(paths ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		out[p] = struct{}{}
	}
	return out
}

func TestClassify_RemovedAndAdded(t *testing.T) {
	c := Classify(
		[]manifest.Entry{entry("a.md", "Q1", "Q2")},
		[]manifest.Entry{entry("b.md", "Q3")},
		changedSet("b.md"), false)

	if diff := cmp.Diff([]manifest.Entry{entry("a.md", "Q1", "Q2")}, c.Removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]manifest.Entry{entry("b.md", "Q3")}, c.Added); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}
	if len(c.LinksModified)+len(c.ContentOnly)+len(c.Unchanged) != 0 {
		t.Errorf("unexpected kept entries: %+v", c)
	}
}

func TestClassify_AddedWinsOverContentChanged(t *testing.T) {
	// A path that is new AND content-changed is just "added".
	c := Classify(nil, []manifest.Entry{entry("b.md", "Q3")}, changedSet("b.md"), false)
	if len(c.Added) != 1 || len(c.ContentOnly) != 0 {
		t.Errorf("added=%d contentOnly=%d, want 1/0", len(c.Added), len(c.ContentOnly))
	}
}

func TestClassify_LinksModified(t *testing.T) {
	c := Classify(
		[]manifest.Entry{entry("c.md", "Q1")},
		[]manifest.Entry{entry("c.md", "Q1", "Q2")},
		nil, false)

	if len(c.LinksModified) != 1 {
		t.Fatalf("linksModified = %d, want 1", len(c.LinksModified))
	}
	pair := c.LinksModified[0]
	if pair.ContentChanged {
		t.Error("content should not be flagged changed")
	}
	if diff := cmp.Diff(entry("c.md", "Q1", "Q2"), pair.New); diff != "" {
		t.Errorf("pair.New mismatch:\n%s", diff)
	}
}

func TestClassify_LinksModifiedWinsOverContentOnly(t *testing.T) {
	c := Classify(
		[]manifest.Entry{entry("c.md", "Q1")},
		[]manifest.Entry{entry("c.md", "Q2")},
		changedSet("c.md"), false)

	if len(c.LinksModified) != 1 || len(c.ContentOnly) != 0 {
		t.Fatalf("entry must land in linksModified only: %+v", c)
	}
	if !c.LinksModified[0].ContentChanged {
		t.Error("pair should carry the content change")
	}
}

func TestClassify_ContentOnly(t *testing.T) {
	c := Classify(
		[]manifest.Entry{entry("d.md", "Q1")},
		[]manifest.Entry{entry("d.md", "Q1")},
		changedSet("d.md"), false)

	if len(c.ContentOnly) != 1 {
		t.Fatalf("contentOnly = %d, want 1", len(c.ContentOnly))
	}
}

func TestClassify_Unchanged(t *testing.T) {
	c := Classify(
		[]manifest.Entry{entry("e.md", "Q1", "Q2")},
		[]manifest.Entry{entry("e.md", "Q2", "Q1")},
		nil, false)

	// Single-link variant compares question sets order-insensitively.
	if len(c.Unchanged) != 1 {
		t.Fatalf("reordered questions should be unchanged, got %+v", c)
	}
}

func TestClassify_OrderedVariantIsOrderSensitive(t *testing.T) {
	c := Classify(
		[]manifest.Entry{entry("e.md", "Q1", "Q2")},
		[]manifest.Entry{entry("e.md", "Q2", "Q1")},
		nil, true)

	if len(c.LinksModified) != 1 {
		t.Fatalf("reordered questions should be linksModified in ordered mode, got %+v", c)
	}
}

func TestClassify_DuplicateCountsDiffer(t *testing.T) {
	c := Classify(
		[]manifest.Entry{entry("e.md", "Q1", "Q1")},
		[]manifest.Entry{entry("e.md", "Q1", "Q2")},
		nil, false)
	if len(c.LinksModified) != 1 {
		t.Fatalf("multiset comparison should flag this, got %+v", c)
	}
}

// TestClassify_PartitionCompleteness checks that the five buckets cover the
// path union exactly once.
func TestClassify_PartitionCompleteness(t *testing.T) {
	old := []manifest.Entry{
		entry("removed.md", "Q1"),
		entry("links.md", "Q1"),
		entry("content.md", "Q2"),
		entry("same.md", "Q3"),
	}
	new := []manifest.Entry{
		entry("links.md", "Q1", "Q9"),
		entry("content.md", "Q2"),
		entry("same.md", "Q3"),
		entry("added.md", "Q4"),
	}
	c := Classify(old, new, changedSet("content.md", "added.md"), false)

	seen := map[string]int{}
	for _, e := range c.Removed {
		seen[e.Path]++
	}
	for _, e := range c.Added {
		seen[e.Path]++
	}
	for _, p := range c.LinksModified {
		seen[p.New.Path]++
	}
	for _, e := range c.ContentOnly {
		seen[e.Path]++
	}
	for _, e := range c.Unchanged {
		seen[e.Path]++
	}

	union := map[string]struct{}{}
	for _, e := range old {
		union[e.Path] = struct{}{}
	}
	for _, e := range new {
		union[e.Path] = struct{}{}
	}

	if len(seen) != len(union) {
		t.Fatalf("partition covers %d paths, union has %d", len(seen), len(union))
	}
	for p, n := range seen {
		if n != 1 {
			t.Errorf("path %s classified %d times", p, n)
		}
		if _, ok := union[p]; !ok {
			t.Errorf("path %s not in union", p)
		}
	}
}
