package store

// QuestionRef identifies a resolved question row.
type QuestionRef struct {
	ID         int64
	ExternalID string
}

// Store is the persistence interface the reconciler requires. Consumers
// should depend on this interface rather than the concrete *DB type so the
// planner and applier stay testable without a live database.
type Store interface {
	// UpsertExplanation inserts or updates an explanation row by id.
	// Always safe to repeat.
	UpsertExplanation(id, path, content string) error

	// DeleteExplanation removes an explanation row and its ordered link
	// rows. Absence of the row is not an error.
	DeleteExplanation(id string) error

	// FindQuestion resolves an external question identifier. Returns
	// apperr.ErrNotFound when the question does not exist.
	FindQuestion(externalID string) (QuestionRef, error)

	// SetQuestionLink points the question's single link at explanationID.
	SetQuestionLink(q QuestionRef, explanationID string) error

	// UnlinkIfMatches clears the question's single link only if it still
	// points at expected. A mismatch is a no-op, so a stale removal never
	// clobbers a link established by a later run.
	UnlinkIfMatches(q QuestionRef, expected string) error

	// ReplaceOrderedLinks replaces the question's ordered explanation list
	// so stored positions exactly match ids, with no gaps or duplicates.
	ReplaceOrderedLinks(q QuestionRef, ids []string) error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
