package stats

import (
	"errors"
	"testing"
)

func TestCollector_Apply(t *testing.T) {
	c := NewCollector()
	boom := errors.New("boom")

	events := []Event{
		{Type: EventTypeScanned, Folder: "Inbox"},
		{Type: EventTypeNormalized, Folder: "Inbox"},
		{Type: EventTypeScanned, Folder: "Inbox"},
		{Type: EventTypeSkipped, Folder: "Inbox", Err: boom},
		{Type: EventTypeScanned, Folder: "Inbox/Archive"},
		{Type: EventTypeNormalized, Folder: "Inbox/Archive"},
		{Type: EventTypeAttachmentSkipped},
		{Type: EventTypeFolderError, Folder: "Inbox/Broken", Err: boom},
	}
	for _, evt := range events {
		c.Apply(evt)
	}

	s := c.Snapshot()
	if s.Scanned != 3 || s.Normalized != 2 || s.Skipped != 1 {
		t.Errorf("Unexpected counters: %+v", s)
	}
	if s.AttachmentsSkipped != 1 || s.FolderErrors != 1 {
		t.Errorf("Unexpected error counters: %+v", s)
	}
	if !errors.Is(s.LastError, boom) {
		t.Errorf("LastError = %v, want boom", s.LastError)
	}
	if s.Folders["Inbox"] != 1 || s.Folders["Inbox/Archive"] != 1 {
		t.Errorf("Folders = %v", s.Folders)
	}

	// The snapshot must not alias the collector's map.
	s.Folders["Inbox"] = 42
	if c.Snapshot().Folders["Inbox"] != 1 {
		t.Error("Snapshot() shares its folder map with the collector")
	}
}

func TestFanout(t *testing.T) {
	var a, b int
	h := Fanout(func(Event) { a++ }, nil, func(Event) { b++ })
	h(Event{Type: EventTypeScanned})
	h(Event{Type: EventTypeScanned})
	if a != 2 || b != 2 {
		t.Errorf("Fanout delivered a=%d b=%d, want 2 and 2", a, b)
	}
}

func TestSummary_LogAttrs(t *testing.T) {
	s := Summary{Scanned: 1, LastError: errors.New("x"), Folders: map[string]int{"a": 1}}
	attrs := s.LogAttrs()
	if len(attrs)%2 != 0 {
		t.Fatalf("LogAttrs() returned an odd number of values: %d", len(attrs))
	}
	if attrs[len(attrs)-2] != "lastError" || attrs[len(attrs)-1] != "x" {
		t.Errorf("LogAttrs() tail = %v", attrs[len(attrs)-2:])
	}
}
