package progress

import (
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/varunsharma6956/ost-mail-searcher/stats"
)

// Bar manages a progress bar for tracking message normalization.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	mu      sync.Mutex
	enabled bool
}

// New creates a progress bar for total messages. It stays silent unless
// logLevel is "info" and total is known.
func New(total int, logLevel string) *Bar {
	bar := &Bar{
		total:   total,
		enabled: logLevel == "info" && total > 0,
	}

	if bar.enabled {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Reading messages").
			Start()
		bar.pb = pb

		pterm.Info.Printf("Messages in archive: %d\n", total)
		pterm.Println()
	}

	return bar
}

// Update advances the bar for each scanned message. Its signature matches
// reader.Options.OnEvent.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		if b.pb.Current < b.total {
			b.pb.Increment()
		}
		if evt.Folder != "" {
			b.pb.UpdateTitle("Reading: " + truncate(evt.Folder, 40))
		}
	case stats.EventTypeFolderError:
		if evt.Err != nil {
			pterm.Error.Printf("Folder %s: %v\n", evt.Folder, evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}

	_, _ = b.pb.Stop()
	pterm.Success.Println("Reading complete!")
}

// PrintSummary renders the ingestion summary and the busiest folders.
func PrintSummary(summary stats.Summary, matched int, duration time.Duration) {
	pterm.Println()
	pterm.DefaultSection.Println("Summary Statistics")
	pterm.Info.Printf("Duration: %v\n", duration)
	pterm.Info.Printf("Scanned: %d\n", summary.Scanned)
	pterm.Info.Printf("Normalized: %d\n", summary.Normalized)
	pterm.Info.Printf("Skipped: %d\n", summary.Skipped)
	pterm.Info.Printf("Attachment names skipped: %d\n", summary.AttachmentsSkipped)
	pterm.Info.Printf("Folder errors: %d\n", summary.FolderErrors)
	pterm.Info.Printf("Matching date range: %d\n", matched)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}

	if len(summary.Folders) > 0 {
		pterm.Println()
		pterm.DefaultSection.Println("Top folders")
		stats.PrettyPrintTop(summary.Folders, 10)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
