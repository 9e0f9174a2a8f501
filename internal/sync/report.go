package sync

import (
	"fmt"
	"strings"
	"time"
)

// Report aggregates what one reconciliation run did. It is a terminal
// summary for operators and never influences remaining work.
type Report struct {
	ExplanationsUpserted int `json:"explanations_upserted"`
	ExplanationsDeleted  int `json:"explanations_deleted"`
	LinksCreated         int `json:"links_created"`
	LinksRemoved         int `json:"links_removed"`
	Unchanged            int `json:"unchanged"`

	// UnresolvedQuestions lists declared question ids that could not be
	// found in the store.
	UnresolvedQuestions []string `json:"unresolved_questions,omitempty"`

	// MissingPaths lists manifest-declared content paths that could not be
	// read from disk.
	MissingPaths []string `json:"missing_paths,omitempty"`

	FinishedAt time.Time `json:"finished_at"`
}

// Summary renders a one-line human-readable account of the run.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "explanations: %d upserted, %d deleted; links: %d created, %d removed; %d unchanged",
		r.ExplanationsUpserted, r.ExplanationsDeleted, r.LinksCreated, r.LinksRemoved, r.Unchanged)
	if len(r.UnresolvedQuestions) > 0 {
		fmt.Fprintf(&b, "; unresolved questions: %s", strings.Join(r.UnresolvedQuestions, ", "))
	}
	if len(r.MissingPaths) > 0 {
		fmt.Fprintf(&b, "; missing files: %s", strings.Join(r.MissingPaths, ", "))
	}
	return b.String()
}
