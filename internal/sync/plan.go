package sync

import (
	"sort"

	"github.com/starford/ansuz/internal/identity"
	"github.com/starford/ansuz/internal/manifest"
)

// Op kinds, in the rough order they appear in a plan.
const (
	OpUnlink            = "unlink"             // scoped: clears Question's link only if it points at ExplanationID
	OpDeleteExplanation = "delete_explanation" // best-effort delete by ExplanationID
	OpUpsertExplanation = "upsert_explanation" // content read fresh at apply time
	OpLink              = "link"               // point Question's single link at ExplanationID
	OpReplaceLinks      = "replace_links"      // replace Question's ordered list with OrderedIDs
)

// Op is a single store operation to execute.
type Op struct {
	Kind          string
	Path          string
	ExplanationID string
	Question      string
	OrderedIDs    []string
}

// BuildPlan turns a classification into an ordered operation list. Removals
// are planned before additions and modifications, so a path removed and
// re-added in one run cannot race against itself. next is the new snapshot;
// in the ordered variant its QuestionPaths drive replace_links payloads.
func BuildPlan(c Classification, next *manifest.Snapshot) []Op {
	if next != nil && next.Ordered {
		return buildOrderedPlan(c, next)
	}
	return buildSingleLinkPlan(c)
}

func buildSingleLinkPlan(c Classification) []Op {
	var plan []Op

	for _, e := range c.Removed {
		id := identity.Derive(e.Path)
		for _, q := range e.Questions {
			plan = append(plan, Op{Kind: OpUnlink, Path: e.Path, ExplanationID: id, Question: q})
		}
		plan = append(plan, Op{Kind: OpDeleteExplanation, Path: e.Path, ExplanationID: id})
	}

	for _, e := range c.Added {
		id := identity.Derive(e.Path)
		plan = append(plan, Op{Kind: OpUpsertExplanation, Path: e.Path, ExplanationID: id})
		for _, q := range e.Questions {
			plan = append(plan, Op{Kind: OpLink, Path: e.Path, ExplanationID: id, Question: q})
		}
	}

	for _, pair := range c.LinksModified {
		id := identity.Derive(pair.New.Path)
		if pair.ContentChanged {
			plan = append(plan, Op{Kind: OpUpsertExplanation, Path: pair.New.Path, ExplanationID: id})
		}
		// Only the question-set delta is touched: questions linked in both
		// revisions keep their row untouched.
		for _, q := range subtract(pair.New.Questions, pair.Old.Questions) {
			plan = append(plan, Op{Kind: OpLink, Path: pair.New.Path, ExplanationID: id, Question: q})
		}
		for _, q := range subtract(pair.Old.Questions, pair.New.Questions) {
			plan = append(plan, Op{Kind: OpUnlink, Path: pair.New.Path, ExplanationID: id, Question: q})
		}
	}

	for _, e := range c.ContentOnly {
		plan = append(plan, Op{Kind: OpUpsertExplanation, Path: e.Path, ExplanationID: identity.Derive(e.Path)})
	}

	return plan
}

// buildOrderedPlan plans the ordered-link variant: row mutations first, then
// one replace_links per affected question, derived from the new snapshot's
// per-question path order. Replacement is a whole-list write, so it runs
// after every row it references has been upserted.
func buildOrderedPlan(c Classification, next *manifest.Snapshot) []Op {
	var plan []Op
	affected := make(map[string]struct{})

	touch := func(questions []string) {
		for _, q := range questions {
			affected[q] = struct{}{}
		}
	}

	for _, e := range c.Removed {
		touch(e.Questions)
		plan = append(plan, Op{Kind: OpDeleteExplanation, Path: e.Path, ExplanationID: identity.Derive(e.Path)})
	}
	for _, e := range c.Added {
		touch(e.Questions)
		plan = append(plan, Op{Kind: OpUpsertExplanation, Path: e.Path, ExplanationID: identity.Derive(e.Path)})
	}
	for _, pair := range c.LinksModified {
		touch(pair.Old.Questions)
		touch(pair.New.Questions)
		if pair.ContentChanged {
			plan = append(plan, Op{Kind: OpUpsertExplanation, Path: pair.New.Path, ExplanationID: identity.Derive(pair.New.Path)})
		}
	}
	for _, e := range c.ContentOnly {
		plan = append(plan, Op{Kind: OpUpsertExplanation, Path: e.Path, ExplanationID: identity.Derive(e.Path)})
	}

	questions := make([]string, 0, len(affected))
	for q := range affected {
		questions = append(questions, q)
	}
	sort.Strings(questions)

	for _, q := range questions {
		paths := next.QuestionPaths[q]
		ids := make([]string, 0, len(paths))
		for _, p := range paths {
			ids = append(ids, identity.Derive(p))
		}
		plan = append(plan, Op{Kind: OpReplaceLinks, Question: q, OrderedIDs: ids})
	}

	return plan
}

// FullPlan replays every manifest entry as an upsert plus its links, used by
// the full-rebuild mode. It never removes anything.
func FullPlan(snap *manifest.Snapshot) []Op {
	c := Classification{Added: snap.Entries}
	return BuildPlan(c, snap)
}

// subtract returns the elements of a that are not in b, preserving a's order.
func subtract(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, q := range b {
		in[q] = struct{}{}
	}
	var out []string
	for _, q := range a {
		if _, ok := in[q]; !ok {
			out = append(out, q)
		}
	}
	return out
}
