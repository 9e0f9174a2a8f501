package sync

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/ansuz/internal/identity"
	"github.com/starford/ansuz/internal/manifest"
)

// Scenario A: removing an entry unlinks its questions (scoped) and deletes
// the explanation row.
func TestBuildPlan_Removed(t *testing.T) {
	c := Classify([]manifest.Entry{entry("a.md", "Q1", "Q2")}, nil, nil, false)
	plan := BuildPlan(c, &manifest.Snapshot{})

	id := identity.Derive("a.md")
	want := []Op{
		{Kind: OpUnlink, Path: "a.md", ExplanationID: id, Question: "Q1"},
		{Kind: OpUnlink, Path: "a.md", ExplanationID: id, Question: "Q2"},
		{Kind: OpDeleteExplanation, Path: "a.md", ExplanationID: id},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

// Scenario B: an added entry upserts fresh content and links its questions.
func TestBuildPlan_Added(t *testing.T) {
	c := Classify(nil, []manifest.Entry{entry("b.md", "Q3")}, changedSet("b.md"), false)
	plan := BuildPlan(c, &manifest.Snapshot{})

	id := identity.Derive("b.md")
	want := []Op{
		{Kind: OpUpsertExplanation, Path: "b.md", ExplanationID: id},
		{Kind: OpLink, Path: "b.md", ExplanationID: id, Question: "Q3"},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

// Scenario C: a grown question set links only the new question; the
// existing link is left untouched and never unlinked.
func TestBuildPlan_LinksModified_GrowsSet(t *testing.T) {
	c := Classify(
		[]manifest.Entry{entry("c.md", "Q1")},
		[]manifest.Entry{entry("c.md", "Q1", "Q2")},
		nil, false)
	plan := BuildPlan(c, &manifest.Snapshot{})

	id := identity.Derive("c.md")
	want := []Op{
		{Kind: OpLink, Path: "c.md", ExplanationID: id, Question: "Q2"},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlan_LinksModified_ShrinksSetWithContentChange(t *testing.T) {
	c := Classify(
		[]manifest.Entry{entry("c.md", "Q1", "Q2")},
		[]manifest.Entry{entry("c.md", "Q1")},
		changedSet("c.md"), false)
	plan := BuildPlan(c, &manifest.Snapshot{})

	id := identity.Derive("c.md")
	want := []Op{
		{Kind: OpUpsertExplanation, Path: "c.md", ExplanationID: id},
		{Kind: OpUnlink, Path: "c.md", ExplanationID: id, Question: "Q2"},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

// Scenario D: content-only change upserts exactly once with zero link ops.
func TestBuildPlan_ContentOnly(t *testing.T) {
	c := Classify(
		[]manifest.Entry{entry("d.md", "Q1")},
		[]manifest.Entry{entry("d.md", "Q1")},
		changedSet("d.md"), false)
	plan := BuildPlan(c, &manifest.Snapshot{})

	want := []Op{
		{Kind: OpUpsertExplanation, Path: "d.md", ExplanationID: identity.Derive("d.md")},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

// Removals are planned before additions, so a remove-and-re-add of related
// paths cannot race against itself.
func TestBuildPlan_RemovalsFirst(t *testing.T) {
	c := Classify(
		[]manifest.Entry{entry("old.md", "Q1")},
		[]manifest.Entry{entry("new.md", "Q1")},
		changedSet("new.md"), false)
	plan := BuildPlan(c, &manifest.Snapshot{})

	if len(plan) == 0 || plan[len(plan)-1].Kind == OpDeleteExplanation {
		t.Fatalf("delete must precede additions: %+v", plan)
	}
	sawDelete := false
	for _, op := range plan {
		if op.Kind == OpDeleteExplanation {
			sawDelete = true
		}
		if op.Kind == OpUpsertExplanation && !sawDelete {
			t.Fatalf("upsert before delete in plan: %+v", plan)
		}
	}
}

func TestBuildPlan_UnchangedProducesNothing(t *testing.T) {
	c := Classify(
		[]manifest.Entry{entry("e.md", "Q1")},
		[]manifest.Entry{entry("e.md", "Q1")},
		nil, false)
	if plan := BuildPlan(c, &manifest.Snapshot{}); len(plan) != 0 {
		t.Errorf("unchanged entry produced ops: %+v", plan)
	}
}

func TestBuildPlan_Ordered(t *testing.T) {
	snap, err := manifest.Parse([]byte(`
questions:
  Q1:
    - a.md
    - b.md
  Q2:
    - b.md
`))
	if err != nil {
		t.Fatal(err)
	}

	// Previous revision: Q1 -> [a.md], so b.md is added and both questions
	// get their ordered lists replaced.
	old := []manifest.Entry{entry("a.md", "Q1")}
	c := Classify(old, snap.Entries, changedSet("b.md"), true)
	plan := BuildPlan(c, snap)

	want := []Op{
		{Kind: OpUpsertExplanation, Path: "b.md", ExplanationID: identity.Derive("b.md")},
		{Kind: OpReplaceLinks, Question: "Q1", OrderedIDs: []string{identity.Derive("a.md"), identity.Derive("b.md")}},
		{Kind: OpReplaceLinks, Question: "Q2", OrderedIDs: []string{identity.Derive("b.md")}},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlan_OrderedRemovalClearsQuestion(t *testing.T) {
	// New manifest drops Q1 entirely: its replace_links payload is empty.
	snap, err := manifest.Parse([]byte("questions:\n  Q2: [b.md]\n"))
	if err != nil {
		t.Fatal(err)
	}
	old := []manifest.Entry{entry("a.md", "Q1"), entry("b.md", "Q2")}
	c := Classify(old, snap.Entries, nil, true)
	plan := BuildPlan(c, snap)

	want := []Op{
		{Kind: OpDeleteExplanation, Path: "a.md", ExplanationID: identity.Derive("a.md")},
		{Kind: OpReplaceLinks, Question: "Q1", OrderedIDs: []string{}},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestFullPlan(t *testing.T) {
	snap, err := manifest.Parse([]byte(`
entries:
  - path: a.md
    questions: [Q1]
  - path: b.md
    questions: [Q2, Q3]
`))
	if err != nil {
		t.Fatal(err)
	}
	plan := FullPlan(snap)

	upserts, links, other := 0, 0, 0
	for _, op := range plan {
		switch op.Kind {
		case OpUpsertExplanation:
			upserts++
		case OpLink:
			links++
		default:
			other++
		}
	}
	if upserts != 2 || links != 3 || other != 0 {
		t.Errorf("plan = %d upserts, %d links, %d other; want 2/3/0", upserts, links, other)
	}
}
