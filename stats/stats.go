package stats

import (
	"fmt"
	"sort"
	"sync"
)

type Stage string

const (
	StageReader  Stage = "reader"
	StageService Stage = "service"
)

type EventType string

const (
	EventTypeScanned           EventType = "scanned"
	EventTypeNormalized        EventType = "normalized"
	EventTypeSkipped           EventType = "skipped"
	EventTypeAttachmentSkipped EventType = "attachment_skipped"
	EventTypeFolderError       EventType = "folder_error"
)

type Event struct {
	Stage     Stage
	Type      EventType
	Folder    string
	MessageID string
	Err       error
}

type Summary struct {
	Scanned            int
	Normalized         int
	Skipped            int
	AttachmentsSkipped int
	FolderErrors       int
	LastError          error
	// Folders counts normalized messages per folder path.
	Folders map[string]int
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"normalized", s.Normalized,
		"skipped", s.Skipped,
		"attachmentsSkipped", s.AttachmentsSkipped,
		"folderErrors", s.FolderErrors,
		"folders", len(s.Folders),
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector aggregates events into a Summary. It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{summary: Summary{Folders: make(map[string]int)}}
}

// Apply records one event. Its signature matches reader.Options.OnEvent.
func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeNormalized:
		c.summary.Normalized++
		c.summary.Folders[evt.Folder]++
	case EventTypeSkipped:
		c.summary.Skipped++
		c.summary.LastError = evt.Err
	case EventTypeAttachmentSkipped:
		c.summary.AttachmentsSkipped++
	case EventTypeFolderError:
		c.summary.FolderErrors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	summary := c.summary
	summary.Folders = make(map[string]int, len(c.summary.Folders))
	for k, v := range c.summary.Folders {
		summary.Folders[k] = v
	}
	return summary
}

// Fanout returns an event handler that forwards every event to all handlers.
// Nil handlers are ignored.
func Fanout(handlers ...func(Event)) func(Event) {
	return func(evt Event) {
		for _, h := range handlers {
			if h != nil {
				h(evt)
			}
		}
	}
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(m map[string]int, limit int) {
	type pair struct {
		Key   string
		Value int
	}

	var pairs []pair
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	for i := 0; i < limit && i < len(pairs); i++ {
		fmt.Printf("%d. %s (%d)\n", i+1, pairs[i].Key, pairs[i].Value)
	}
}
