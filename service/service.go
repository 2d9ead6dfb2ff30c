// Package service ingests archive files into the record cache and answers
// date-range searches over it.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/varunsharma6956/ost-mail-searcher/archive"
	"github.com/varunsharma6956/ost-mail-searcher/filter"
	"github.com/varunsharma6956/ost-mail-searcher/model"
	"github.com/varunsharma6956/ost-mail-searcher/reader"
	"github.com/varunsharma6956/ost-mail-searcher/sample"
	"github.com/varunsharma6956/ost-mail-searcher/state"
	"github.com/varunsharma6956/ost-mail-searcher/stats"
)

// DefaultExtensions are the archive extensions accepted when none are configured.
var DefaultExtensions = []string{".ost", ".mbox"}

type Options struct {
	Registry *archive.Registry
	Store    *state.Store
	// Extensions is the accept list checked before any capability is consulted.
	Extensions []string
	// UploadDir receives spooled uploads. Empty means the system temp dir.
	UploadDir string
	Logger    *slog.Logger
	// OnEvent additionally receives every reader event, e.g. for a progress bar.
	OnEvent func(stats.Event)
}

type Service struct {
	registry   *archive.Registry
	store      *state.Store
	extensions []string
	uploadDir  string
	logger     *slog.Logger
	onEvent    func(stats.Event)
}

// Result describes a successful ingestion.
type Result struct {
	Snapshot *state.Snapshot
	Summary  stats.Summary
	Duration time.Duration
}

// SearchResult is the outcome of a search. Loaded is false when no records
// have been ingested yet; Records is then empty.
type SearchResult struct {
	Loaded  bool
	Records []model.EmailRecord
}

// Status describes the cache and the configured capabilities.
type Status struct {
	Loaded       bool            `json:"loaded"`
	SnapshotID   string          `json:"snapshot_id,omitempty"`
	Source       string          `json:"source,omitempty"`
	LoadedAt     *time.Time      `json:"loaded_at,omitempty"`
	EmailCount   int             `json:"email_count"`
	Extensions   []string        `json:"extensions"`
	Capabilities map[string]bool `json:"capabilities"`
}

func New(opts Options) (*Service, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("archive registry is required")
	}
	if opts.Store == nil {
		opts.Store = state.NewStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	normalized := make([]string, 0, len(exts))
	for _, ext := range exts {
		if ext = archive.NormalizeExt(ext); ext != "" && !slices.Contains(normalized, ext) {
			normalized = append(normalized, ext)
		}
	}
	if len(normalized) == 0 {
		return nil, fmt.Errorf("no archive extensions configured")
	}

	return &Service{
		registry:   opts.Registry,
		store:      opts.Store,
		extensions: normalized,
		uploadDir:  opts.UploadDir,
		logger:     logger,
		onEvent:    opts.OnEvent,
	}, nil
}

// Extensions returns the accepted archive extensions.
func (s *Service) Extensions() []string {
	return slices.Clone(s.extensions)
}

// Accepts reports whether the name carries an accepted extension.
func (s *Service) Accepts(name string) bool {
	return slices.Contains(s.extensions, archive.NormalizeExt(filepath.Ext(name)))
}

// IngestPath parses an archive on the local filesystem and replaces the
// cache with its records. The checks run in this order: existence,
// extension, capability.
func (s *Service) IngestPath(ctx context.Context, path string) (*Result, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrFileNotFound
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrFileNotFound)
		}
		return nil, &ParseError{Path: path, Err: err}
	}

	capability, err := s.capabilityFor(path)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, capability, path, path)
}

// IngestUpload spools an uploaded archive to a temporary file, parses it and
// replaces the cache with its records. The temporary file is always removed.
func (s *Service) IngestUpload(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	name := filepath.Base(filename)
	capability, err := s.capabilityFor(name)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.uploadDir, "upload-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove upload file", "path", tmpPath, "err", err)
		}
	}()

	written, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	s.logger.Debug("upload spooled", "file", name, "path", tmpPath, "bytes", written)

	return s.ingest(ctx, capability, tmpPath, name)
}

func (s *Service) capabilityFor(name string) (archive.Capability, error) {
	if !s.Accepts(name) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(name), ErrInvalidExtension)
	}
	capability := s.registry.Lookup(name)
	if !capability.Available() {
		return nil, fmt.Errorf("%s: %w", capability.Name(), archive.ErrCapabilityUnavailable)
	}
	return capability, nil
}

func (s *Service) ingest(ctx context.Context, capability archive.Capability, path, source string) (*Result, error) {
	started := time.Now()
	logger := s.logger.With("source", source, "capability", capability.Name())
	logger.Info("parsing archive", "path", path)

	a, err := capability.Open(path)
	if err != nil {
		if errors.Is(err, archive.ErrCapabilityUnavailable) {
			return nil, err
		}
		return nil, &ParseError{Path: source, Err: err}
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close archive", "err", err)
		}
	}()

	root, err := a.Root()
	if err != nil {
		return nil, &ParseError{Path: source, Err: fmt.Errorf("root folder: %w", err)}
	}

	collector := stats.NewCollector()
	rd := reader.New(reader.Options{
		Logger:  logger,
		OnEvent: stats.Fanout(collector.Apply, s.onEvent),
	})
	records := reader.Records(rd.Read(root))
	summary := collector.Snapshot()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(records) == 0 {
		if summary.FolderErrors > 0 && summary.LastError != nil {
			return nil, &ParseError{Path: source, Err: summary.LastError}
		}
		logger.Warn("archive contains no readable messages", summary.LogAttrs()...)
		return nil, fmt.Errorf("%s: %w", source, ErrNoRecords)
	}

	snap := s.store.Replace(source, records)
	duration := time.Since(started)
	logger.Info("archive parsed", append([]any{"snapshot", snap.ID.String(), "duration", duration}, summary.LogAttrs()...)...)

	return &Result{Snapshot: snap, Summary: summary, Duration: duration}, nil
}

// Search filters the cached records by an inclusive date range. Empty bounds
// leave that side open; malformed bounds are ignored.
func (s *Service) Search(start, end string) SearchResult {
	snap := s.store.Current()
	if snap.Count() == 0 {
		return SearchResult{Records: []model.EmailRecord{}}
	}

	records := filter.New(filter.Options{Start: start, End: end}, s.logger).Apply(snap.Records)
	s.logger.Info("search completed", "start", start, "end", end, "total", snap.Count(), "matched", len(records))
	return SearchResult{Loaded: true, Records: records}
}

// LoadSample replaces the cache with the built-in sample records.
func (s *Service) LoadSample() *state.Snapshot {
	snap := s.store.Replace(sample.Source, sample.Records())
	s.logger.Info("sample data loaded", "snapshot", snap.ID.String(), "count", snap.Count())
	return snap
}

// Status reports the current cache contents and which extensions can be parsed.
func (s *Service) Status() Status {
	status := Status{
		Extensions:   s.Extensions(),
		Capabilities: make(map[string]bool, len(s.extensions)),
	}
	for _, ext := range s.extensions {
		status.Capabilities[ext] = s.registry.Lookup("archive" + ext).Available()
	}

	if snap := s.store.Current(); snap != nil {
		loadedAt := snap.LoadedAt
		status.Loaded = snap.Count() > 0
		status.SnapshotID = snap.ID.String()
		status.Source = snap.Source
		status.LoadedAt = &loadedAt
		status.EmailCount = snap.Count()
	}
	return status
}
