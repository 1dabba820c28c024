package server

import (
	"path/filepath"
	"testing"
	"time"
)

func TestHistoryStore_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	h, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	created := time.Unix(1700000000, 42)
	if err := h.Record(bg(), "s1", &HistoryEntry{
		Source:    "1 + 1",
		Result:    "2",
		Success:   true,
		Engine:    "vm",
		CreatedAt: created,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	h, err = OpenHistory(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer h.Close()

	entries, err := h.List(bg(), "s1", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Source != "1 + 1" || e.Result != "2" || !e.Success || e.Engine != "vm" {
		t.Errorf("entry = %+v", e)
	}
	if !e.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", e.CreatedAt, created)
	}
}

func TestHistoryStore_ListIsPerSessionNewestFirst(t *testing.T) {
	h, err := OpenHistory(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	for i, src := range []string{"a", "b", "c"} {
		session := "s1"
		if i == 1 {
			session = "s2"
		}
		if err := h.Record(bg(), session, &HistoryEntry{Source: src, Engine: "eval", CreatedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := h.List(bg(), "s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Source != "c" || entries[1].Source != "a" {
		t.Errorf("s1 entries = %+v, want c, a", entries)
	}

	entries, err = h.List(bg(), "nobody", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("unknown session has %d entries", len(entries))
	}
}
