// Package store provides the SQLite-backed question/explanation store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/ansuz/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS explanations (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS questions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id    TEXT NOT NULL UNIQUE,
	explanation_id TEXT
);

CREATE TABLE IF NOT EXISTS question_explanations (
	question_id    INTEGER NOT NULL,
	explanation_id TEXT NOT NULL,
	position       INTEGER NOT NULL,
	UNIQUE(question_id, position)
);

CREATE INDEX IF NOT EXISTS idx_qe_question ON question_explanations(question_id);
CREATE INDEX IF NOT EXISTS idx_qe_explanation ON question_explanations(explanation_id);
`

// ExplanationRow represents a row in the explanations table.
type ExplanationRow struct {
	ID        string
	Path      string
	Content   string
	UpdatedAt time.Time
}

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// UpsertExplanation inserts or replaces an explanation keyed by id.
func (db *DB) UpsertExplanation(id, path, content string) error {
	_, err := db.conn.Exec(`
		INSERT INTO explanations (id, path, content, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path       = excluded.path,
			content    = excluded.content,
			updated_at = excluded.updated_at
	`, id, path, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: upsert explanation: %w", err)
	}
	return nil
}

// DeleteExplanation removes an explanation and its ordered link rows.
// Questions' single-link fields are untouched: clearing those is the scoped
// unlink's job.
func (db *DB) DeleteExplanation(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, _ = tx.Exec(`DELETE FROM question_explanations WHERE explanation_id = ?`, id)
	_, _ = tx.Exec(`DELETE FROM explanations WHERE id = ?`, id)

	return tx.Commit()
}

// FindQuestion resolves an external question identifier.
func (db *DB) FindQuestion(externalID string) (QuestionRef, error) {
	var id int64
	err := db.conn.QueryRow(`SELECT id FROM questions WHERE external_id = ?`, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return QuestionRef{}, fmt.Errorf("store: question %q: %w", externalID, apperr.ErrNotFound)
	}
	if err != nil {
		return QuestionRef{}, fmt.Errorf("store: find question: %w", err)
	}
	return QuestionRef{ID: id, ExternalID: externalID}, nil
}

// SetQuestionLink points the question's single link at explanationID.
func (db *DB) SetQuestionLink(q QuestionRef, explanationID string) error {
	_, err := db.conn.Exec(`UPDATE questions SET explanation_id = ? WHERE id = ?`, explanationID, q.ID)
	if err != nil {
		return fmt.Errorf("store: set link: %w", err)
	}
	return nil
}

// UnlinkIfMatches clears the single link only when it still points at expected.
func (db *DB) UnlinkIfMatches(q QuestionRef, expected string) error {
	_, err := db.conn.Exec(`UPDATE questions SET explanation_id = NULL WHERE id = ? AND explanation_id = ?`, q.ID, expected)
	if err != nil {
		return fmt.Errorf("store: scoped unlink: %w", err)
	}
	return nil
}

// ReplaceOrderedLinks replaces the ordered explanation list: delete old then
// bulk insert with contiguous positions.
func (db *DB) ReplaceOrderedLinks(q QuestionRef, ids []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM question_explanations WHERE question_id = ?`, q.ID); err != nil {
		return fmt.Errorf("store: clear ordered links: %w", err)
	}
	if len(ids) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO question_explanations (question_id, explanation_id, position) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare ordered insert: %w", err)
		}
		defer stmt.Close()
		for i, id := range ids {
			if _, err := stmt.Exec(q.ID, id, i); err != nil {
				return fmt.Errorf("store: insert ordered link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// InsertQuestion registers a question row. Question records are owned by the
// surrounding quiz system; this exists for seeding and tests.
func (db *DB) InsertQuestion(externalID string) (QuestionRef, error) {
	res, err := db.conn.Exec(`INSERT INTO questions (external_id) VALUES (?)`, externalID)
	if err != nil {
		return QuestionRef{}, fmt.Errorf("store: insert question: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return QuestionRef{}, fmt.Errorf("store: insert question id: %w", err)
	}
	return QuestionRef{ID: id, ExternalID: externalID}, nil
}

// GetExplanation returns the explanation row for id, or apperr.ErrNotFound.
func (db *DB) GetExplanation(id string) (*ExplanationRow, error) {
	var row ExplanationRow
	err := db.conn.QueryRow(`SELECT id, path, content, updated_at FROM explanations WHERE id = ?`, id).
		Scan(&row.ID, &row.Path, &row.Content, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get explanation: %w", err)
	}
	return &row, nil
}

// QuestionLink returns the single-link explanation id for a question, or
// empty string when unlinked.
func (db *DB) QuestionLink(externalID string) (string, error) {
	var link sql.NullString
	err := db.conn.QueryRow(`SELECT explanation_id FROM questions WHERE external_id = ?`, externalID).Scan(&link)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: question link: %w", err)
	}
	return link.String, nil
}

// OrderedLinks returns a question's ordered explanation ids.
func (db *DB) OrderedLinks(externalID string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT qe.explanation_id
		FROM question_explanations qe
		JOIN questions q ON q.id = qe.question_id
		WHERE q.external_id = ?
		ORDER BY qe.position
	`, externalID)
	if err != nil {
		return nil, fmt.Errorf("store: ordered links: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CountExplanations returns the number of explanation rows.
func (db *DB) CountExplanations() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM explanations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count explanations: %w", err)
	}
	return n, nil
}
