// Package archive defines the boundary between the mail searcher and the
// libraries that decode archive files into folders and messages.
package archive

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// ErrCapabilityUnavailable is returned when no working parser exists for an
// archive format. Callers must surface it distinctly from parse failures.
var ErrCapabilityUnavailable = errors.New("archive parsing capability is not available")

// Header holds the optional header fields of a message. An empty string
// means the archive did not provide the field.
type Header struct {
	Subject     string
	SenderName  string
	SenderEmail string
	DisplayTo   string
	// SubmitTime is the archive's native rendering of the submit time.
	SubmitTime string
}

// Body holds the optional body payloads of a message.
type Body struct {
	PlainText []byte
	HTML      []byte
	RTF       []byte
}

// Message is a handle to one message inside a folder.
type Message interface {
	Header() (Header, error)
	Body() (Body, error)
	AttachmentCount() (int, error)
	AttachmentName(index int) (string, error)
}

// Folder is a handle to one folder of an archive. Both listings are ordered
// the way the archive enumerates them.
type Folder interface {
	Name() string
	SubFolders() ([]Folder, error)
	Messages() ([]Message, error)
}

// Archive is an opened archive file.
type Archive interface {
	Root() (Folder, error)
	Close() error
}

// Capability opens archive files of one format.
type Capability interface {
	Name() string
	// Available reports whether Open can work at all, without touching a file.
	Available() bool
	Open(path string) (Archive, error)
}

// Counter is implemented by capabilities that can count the messages of an
// archive cheaply before it is read.
type Counter interface {
	CountMessages(path string) (int, error)
}

// Unavailable returns a capability placeholder for a format whose parser is
// not linked into this build.
func Unavailable(name string) Capability {
	return unavailable(name)
}

type unavailable string

func (u unavailable) Name() string    { return string(u) }
func (u unavailable) Available() bool { return false }

func (u unavailable) Open(string) (Archive, error) {
	return nil, fmt.Errorf("%s: %w", u, ErrCapabilityUnavailable)
}

// Registry maps file extensions to capabilities.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Capability)}
}

// Register binds a capability to an extension such as ".mbox". Matching is
// case-insensitive.
func (r *Registry) Register(ext string, capability Capability) {
	r.mu.Lock()
	r.byExt[NormalizeExt(ext)] = capability
	r.mu.Unlock()
}

// Lookup returns the capability registered for the extension of path. When
// none is registered an unavailable placeholder is returned, never nil.
func (r *Registry) Lookup(path string) Capability {
	ext := NormalizeExt(filepath.Ext(path))

	r.mu.RLock()
	capability, ok := r.byExt[ext]
	r.mu.RUnlock()
	if ok && capability != nil {
		return capability
	}
	return Unavailable(strings.TrimPrefix(ext, "."))
}

// Extensions lists the registered extensions.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}

// NormalizeExt lower-cases an extension and makes sure it starts with a dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
