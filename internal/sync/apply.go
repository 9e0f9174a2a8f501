package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/content"
	"github.com/starford/ansuz/internal/store"
)

// Applier executes plans against the store, one operation at a time.
//
// Two failure classes are tolerated per operation: a content file missing on
// disk skips that upsert, and an unresolvable question id skips that link
// operation. Both are logged, recorded in the report, and never abort the
// run. Any other store failure aborts the remaining plan; the already
// applied prefix stays in place and a later run converges (upserts are
// idempotent, unlinks are scoped).
type Applier struct {
	store   store.Store
	content content.Provider
	logger  *slog.Logger
}

// NewApplier creates an applier over the given store and content provider.
func NewApplier(st store.Store, cp content.Provider, logger *slog.Logger) *Applier {
	return &Applier{store: st, content: cp, logger: logger}
}

// Apply executes the plan sequentially. The returned report covers the
// applied prefix even when an error cuts the run short.
func (a *Applier) Apply(plan []Op) (*Report, error) {
	report := &Report{}

	for _, op := range plan {
		if err := a.applyOne(op, report); err != nil {
			report.FinishedAt = time.Now().UTC()
			return report, fmt.Errorf("sync: apply %s %s: %w", op.Kind, op.Path, err)
		}
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}

func (a *Applier) applyOne(op Op, report *Report) error {
	switch op.Kind {
	case OpUpsertExplanation:
		data, err := a.content.Read(op.Path)
		if err != nil {
			a.logger.Warn("sync: content read failed, skipping upsert",
				slog.String("path", op.Path), slog.String("error", err.Error()))
			report.MissingPaths = append(report.MissingPaths, op.Path)
			return nil
		}
		if err := a.store.UpsertExplanation(op.ExplanationID, op.Path, string(data)); err != nil {
			return err
		}
		report.ExplanationsUpserted++

	case OpDeleteExplanation:
		if err := a.store.DeleteExplanation(op.ExplanationID); err != nil {
			return err
		}
		report.ExplanationsDeleted++

	case OpLink:
		q, ok, err := a.resolve(op.Question, report)
		if err != nil || !ok {
			return err
		}
		if err := a.store.SetQuestionLink(q, op.ExplanationID); err != nil {
			return err
		}
		report.LinksCreated++

	case OpUnlink:
		q, ok, err := a.resolve(op.Question, report)
		if err != nil || !ok {
			return err
		}
		if err := a.store.UnlinkIfMatches(q, op.ExplanationID); err != nil {
			return err
		}
		report.LinksRemoved++

	case OpReplaceLinks:
		q, ok, err := a.resolve(op.Question, report)
		if err != nil || !ok {
			return err
		}
		if err := a.store.ReplaceOrderedLinks(q, op.OrderedIDs); err != nil {
			return err
		}
		report.LinksCreated += len(op.OrderedIDs)

	default:
		return fmt.Errorf("unknown op kind %q", op.Kind)
	}
	return nil
}

// resolve looks up a question, recording unresolved ids instead of failing.
func (a *Applier) resolve(externalID string, report *Report) (store.QuestionRef, bool, error) {
	q, err := a.store.FindQuestion(externalID)
	if errors.Is(err, apperr.ErrNotFound) {
		a.logger.Warn("sync: question not found, skipping link op",
			slog.String("question", externalID))
		if !contains(report.UnresolvedQuestions, externalID) {
			report.UnresolvedQuestions = append(report.UnresolvedQuestions, externalID)
		}
		return store.QuestionRef{}, false, nil
	}
	if err != nil {
		return store.QuestionRef{}, false, err
	}
	return q, true, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
