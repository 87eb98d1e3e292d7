package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "history.json")
	log := NewLog(path, nil)

	first := Entry{
		AskedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Question:  "how do refunds work?",
		Answer:    "Refunds are issued within five days.",
		Citations: []string{"abc:0"},
		Grounded:  true,
	}
	if err := log.Append(first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Append(Entry{Question: "second", Answer: "answer"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := log.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Question != first.Question || !entries[0].Grounded {
		t.Errorf("first entry mismatch: %+v", entries[0])
	}
	if entries[1].Question != "second" {
		t.Errorf("entries out of order: %+v", entries[1])
	}
}

func TestList_MissingFile(t *testing.T) {
	log := NewLog(filepath.Join(t.TempDir(), "history.json"), nil)
	entries, err := log.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want 0", len(entries))
	}
}

func TestAppend_CorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	log := NewLog(path, nil)
	if err := log.Append(Entry{Question: "q", Answer: "a"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := log.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Question != "q" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
