package audit

import (
	"sync"
	"testing"
)

func TestJournalLifecycle(t *testing.T) {
	journal, err := NewJournal(t.TempDir())
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}

	snapshot := map[string]any{
		"id":     "cs_1",
		"status": "pending",
		"title":  "Leaking faucet",
	}
	commit, err := journal.RecordTransition("concern_slips", "cs_1", snapshot, "Maria Santos", "concern cs_1: submitted")
	if err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if commit.Author != "Maria Santos" {
		t.Errorf("unexpected author %q", commit.Author)
	}

	snapshot["status"] = "approved"
	second, err := journal.RecordTransition("concern_slips", "cs_1", snapshot, "Admin", "concern cs_1: pending -> approved")
	if err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}

	history, err := journal.History("concern_slips", "cs_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Hash != second.Hash {
		t.Errorf("history should be newest first: %+v", history)
	}

	old, err := journal.SnapshotAt("concern_slips", "cs_1", commit.Hash)
	if err != nil {
		t.Fatalf("SnapshotAt() error = %v", err)
	}
	if old["status"] != "pending" {
		t.Errorf("expected snapshot at first commit to be pending, got %v", old["status"])
	}
}

func TestJournalHistoryScopedToEntity(t *testing.T) {
	journal, err := NewJournal(t.TempDir())
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}

	if _, err := journal.RecordTransition("concern_slips", "cs_1", map[string]any{"id": "cs_1"}, "a", "one"); err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}
	if _, err := journal.RecordTransition("job_services", "js_1", map[string]any{"id": "js_1"}, "b", "two"); err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}

	history, err := journal.History("concern_slips", "cs_1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 entry for cs_1, got %d", len(history))
	}
	if history[0].Message != "one" {
		t.Errorf("unexpected message %q", history[0].Message)
	}
}

func TestJournalReopensExistingRepo(t *testing.T) {
	dir := t.TempDir()
	first, err := NewJournal(dir)
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}
	if _, err := first.RecordTransition("concern_slips", "cs_1", map[string]any{"id": "cs_1"}, "a", "one"); err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}

	second, err := NewJournal(dir)
	if err != nil {
		t.Fatalf("NewJournal() reopen error = %v", err)
	}
	history, err := second.History("concern_slips", "cs_1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected history to survive reopen, got %d entries", len(history))
	}
}

func TestJournalConcurrentCommits(t *testing.T) {
	journal, err := NewJournal(t.TempDir())
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := []string{"cs_a", "cs_b", "cs_c", "cs_d"}[n]
			if _, err := journal.RecordTransition("concern_slips", id, map[string]any{"id": id}, "actor", "commit "+id); err != nil {
				t.Errorf("RecordTransition(%s) error = %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	for _, id := range []string{"cs_a", "cs_b", "cs_c", "cs_d"} {
		history, err := journal.History("concern_slips", id, 0)
		if err != nil {
			t.Fatalf("History(%s) error = %v", id, err)
		}
		if len(history) != 1 {
			t.Errorf("expected 1 entry for %s, got %d", id, len(history))
		}
	}
}
