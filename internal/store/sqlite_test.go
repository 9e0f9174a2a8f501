package store

import (
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/ansuz/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM explanations`).Scan(&count); err != nil {
		t.Fatalf("explanations table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM questions`).Scan(&count); err != nil {
		t.Fatalf("questions table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM question_explanations`).Scan(&count); err != nil {
		t.Fatalf("question_explanations table missing: %v", err)
	}
}

func TestUpsertExplanation_InsertThenUpdate(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertExplanation("id1", "a.md", "old"); err != nil {
		t.Fatalf("UpsertExplanation: %v", err)
	}
	if err := db.UpsertExplanation("id1", "a.md", "new"); err != nil {
		t.Fatalf("UpsertExplanation update: %v", err)
	}

	row, err := db.GetExplanation("id1")
	if err != nil {
		t.Fatalf("GetExplanation: %v", err)
	}
	if row.Content != "new" {
		t.Errorf("content = %q, want new", row.Content)
	}
	n, _ := db.CountExplanations()
	if n != 1 {
		t.Errorf("row count = %d, want 1 (upsert must not duplicate)", n)
	}
}

func TestDeleteExplanation_AbsentRowIsNoError(t *testing.T) {
	db := testDB(t)
	if err := db.DeleteExplanation("never-existed"); err != nil {
		t.Fatalf("delete of absent row should be a no-op, got %v", err)
	}
}

func TestDeleteExplanation_RemovesOrderedLinks(t *testing.T) {
	db := testDB(t)
	q, err := db.InsertQuestion("Q1")
	if err != nil {
		t.Fatal(err)
	}
	_ = db.UpsertExplanation("e1", "a.md", "x")
	if err := db.ReplaceOrderedLinks(q, []string{"e1"}); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteExplanation("e1"); err != nil {
		t.Fatalf("DeleteExplanation: %v", err)
	}
	ids, err := db.OrderedLinks("Q1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("ordered links survived delete: %v", ids)
	}
}

func TestFindQuestion(t *testing.T) {
	db := testDB(t)
	want, err := db.InsertQuestion("Q42")
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.FindQuestion("Q42")
	if err != nil {
		t.Fatalf("FindQuestion: %v", err)
	}
	if got != want {
		t.Errorf("ref = %+v, want %+v", got, want)
	}

	_, err = db.FindQuestion("missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetAndClearQuestionLink(t *testing.T) {
	db := testDB(t)
	q, _ := db.InsertQuestion("Q1")

	if err := db.SetQuestionLink(q, "e1"); err != nil {
		t.Fatalf("SetQuestionLink: %v", err)
	}
	link, err := db.QuestionLink("Q1")
	if err != nil {
		t.Fatal(err)
	}
	if link != "e1" {
		t.Errorf("link = %q, want e1", link)
	}

	if err := db.UnlinkIfMatches(q, "e1"); err != nil {
		t.Fatalf("UnlinkIfMatches: %v", err)
	}
	link, _ = db.QuestionLink("Q1")
	if link != "" {
		t.Errorf("link = %q, want cleared", link)
	}
}

func TestUnlinkIfMatches_ScopedToExpected(t *testing.T) {
	db := testDB(t)
	q, _ := db.InsertQuestion("Q1")
	_ = db.SetQuestionLink(q, "newer")

	// A stale unlink aimed at the old target must not clear the newer link.
	if err := db.UnlinkIfMatches(q, "older"); err != nil {
		t.Fatalf("UnlinkIfMatches: %v", err)
	}
	link, _ := db.QuestionLink("Q1")
	if link != "newer" {
		t.Errorf("link = %q, scoped unlink clobbered a newer link", link)
	}
}

func TestReplaceOrderedLinks(t *testing.T) {
	db := testDB(t)
	q, _ := db.InsertQuestion("Q1")

	if err := db.ReplaceOrderedLinks(q, []string{"e1", "e2", "e3"}); err != nil {
		t.Fatalf("ReplaceOrderedLinks: %v", err)
	}
	if err := db.ReplaceOrderedLinks(q, []string{"e3", "e1"}); err != nil {
		t.Fatalf("ReplaceOrderedLinks replace: %v", err)
	}

	ids, err := db.OrderedLinks("Q1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"e3", "e1"}, ids); diff != "" {
		t.Errorf("ordered links mismatch (-want +got):\n%s", diff)
	}
}

func TestReplaceOrderedLinks_EmptyClears(t *testing.T) {
	db := testDB(t)
	q, _ := db.InsertQuestion("Q1")
	_ = db.ReplaceOrderedLinks(q, []string{"e1"})

	if err := db.ReplaceOrderedLinks(q, nil); err != nil {
		t.Fatalf("ReplaceOrderedLinks(nil): %v", err)
	}
	ids, _ := db.OrderedLinks("Q1")
	if len(ids) != 0 {
		t.Errorf("links = %v, want empty", ids)
	}
}
