package mbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/varunsharma6956/ost-mail-searcher/archive"
)

// SubmitTimeLayout is how message dates are rendered into archive.Header.SubmitTime.
const SubmitTimeLayout = "2006-01-02 15:04:05"

// subFolderSuffix names the directory Thunderbird keeps next to an mbox file
// to hold its sub-folders.
const subFolderSuffix = ".sbd"

var errAttachmentIndex = errors.New("attachment index out of range")

type Options struct {
	// Location is the zone submit times are rendered in. Defaults to time.Local.
	Location *time.Location
	Logger   *slog.Logger
}

// Capability opens mbox files, including the .sbd sub-folder trees written
// by Thunderbird.
type Capability struct {
	loc    *time.Location
	logger *slog.Logger
}

func New(opts Options) *Capability {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Capability{loc: loc, logger: opts.Logger}
}

func (c *Capability) Name() string    { return "mbox" }
func (c *Capability) Available() bool { return true }

func (c *Capability) Open(path string) (archive.Archive, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open mbox: %s is a directory", path)
	}
	return &fileArchive{root: c.folder(path)}, nil
}

// CountMessages counts the messages of an mbox file and all of its sub-folders.
func (c *Capability) CountMessages(path string) (int, error) {
	total, err := countFile(path)
	if err != nil {
		return 0, err
	}
	for _, sub := range subFolderPaths(path) {
		n, err := c.CountMessages(sub)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (c *Capability) folder(path string) *folder {
	return &folder{path: path, capability: c}
}

type fileArchive struct {
	root *folder
}

func (a *fileArchive) Root() (archive.Folder, error) {
	return a.root, nil
}

func (a *fileArchive) Close() error {
	return nil
}

type folder struct {
	path       string
	capability *Capability
}

func (f *folder) Name() string {
	base := filepath.Base(f.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (f *folder) SubFolders() ([]archive.Folder, error) {
	var folders []archive.Folder
	for _, path := range subFolderPaths(f.path) {
		folders = append(folders, f.capability.folder(path))
	}
	return folders, nil
}

// Messages returns the messages of the folder. When the file is truncated or
// corrupt, the messages read before the failure are returned with the error.
func (f *folder) Messages() ([]archive.Message, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	var messages []archive.Message
	reader := mboxlib.NewReader(file)
	for idx := 0; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return messages, nil
			}
			return messages, f.fail(fmt.Errorf("message %d: %w", idx, err))
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return messages, f.fail(fmt.Errorf("message %d read: %w", idx, err))
		}

		messages = append(messages, &mboxMessage{raw: raw, loc: f.capability.loc})
	}
}

func (f *folder) fail(err error) error {
	if logger := f.capability.logger; logger != nil {
		logger.Error("mbox stream error", "path", f.path, "err", err)
	}
	return err
}

// subFolderPaths lists the mbox files stored in the .sbd directory belonging
// to path, in name order. Thunderbird index files (.msf) are ignored.
func subFolderPaths(path string) []string {
	candidates := []string{path + subFolderSuffix}
	if ext := filepath.Ext(path); ext != "" {
		candidates = append(candidates, strings.TrimSuffix(path, ext)+subFolderSuffix)
	}

	for _, dir := range candidates {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		var paths []string
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, ".") || strings.EqualFold(filepath.Ext(name), ".msf") {
				continue
			}
			paths = append(paths, filepath.Join(dir, name))
		}
		return paths
	}
	return nil
}

func countFile(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, err
		}

		// Just consume the message without parsing
		if _, err := io.Copy(io.Discard, msgReader); err != nil {
			count++
			continue
		}
		count++
	}
}

type attachment struct {
	name string
	err  error
}

type parsedMessage struct {
	header      archive.Header
	body        archive.Body
	attachments []attachment
}

// mboxMessage parses its raw bytes on first access.
type mboxMessage struct {
	raw []byte
	loc *time.Location

	once   sync.Once
	parsed *parsedMessage
	err    error
}

func (m *mboxMessage) Header() (archive.Header, error) {
	p, err := m.parse()
	if err != nil {
		return archive.Header{}, err
	}
	return p.header, nil
}

func (m *mboxMessage) Body() (archive.Body, error) {
	p, err := m.parse()
	if err != nil {
		return archive.Body{}, err
	}
	return p.body, nil
}

func (m *mboxMessage) AttachmentCount() (int, error) {
	p, err := m.parse()
	if err != nil {
		return 0, err
	}
	return len(p.attachments), nil
}

func (m *mboxMessage) AttachmentName(index int) (string, error) {
	p, err := m.parse()
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(p.attachments) {
		return "", fmt.Errorf("attachment %d: %w", index, errAttachmentIndex)
	}
	a := p.attachments[index]
	if a.err != nil {
		return "", fmt.Errorf("attachment %d name: %w", index, a.err)
	}
	return a.name, nil
}

func (m *mboxMessage) parse() (*parsedMessage, error) {
	m.once.Do(func() {
		m.parsed, m.err = parseMail(m.raw, m.loc)
	})
	return m.parsed, m.err
}

func parseMail(raw []byte, loc *time.Location) (*parsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	p := &parsedMessage{header: parseHeader(mr.Header, loc)}

	for {
		part, err := mr.NextPart()
		if err != nil {
			// A broken MIME tree keeps whatever parts were read before it.
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, err := h.ContentType()
			if err != nil || ct == "" {
				ct = "text/plain"
			}
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch strings.ToLower(ct) {
			case "text/plain":
				if p.body.PlainText == nil {
					p.body.PlainText = data
				}
			case "text/html":
				if p.body.HTML == nil {
					p.body.HTML = data
				}
			case "text/rtf", "application/rtf":
				if p.body.RTF == nil {
					p.body.RTF = data
				}
			}
		case *mail.AttachmentHeader:
			name, err := h.Filename()
			p.attachments = append(p.attachments, attachment{name: name, err: err})
		}
	}

	return p, nil
}

func parseHeader(h mail.Header, loc *time.Location) archive.Header {
	var header archive.Header

	if subject, err := h.Subject(); err == nil {
		header.Subject = strings.TrimSpace(subject)
	} else {
		header.Subject = strings.TrimSpace(h.Get("Subject"))
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		header.SenderName = strings.TrimSpace(from[0].Name)
		header.SenderEmail = strings.TrimSpace(from[0].Address)
	}

	if to, err := h.AddressList("To"); err == nil {
		header.DisplayTo = displayNames(to)
	} else {
		header.DisplayTo = strings.TrimSpace(h.Get("To"))
	}

	if date, err := h.Date(); err == nil && !date.IsZero() {
		header.SubmitTime = date.In(loc).Format(SubmitTimeLayout)
	}

	return header
}

// displayNames renders recipients the way Outlook fills its display-to
// property: names where known, addresses otherwise, separated by "; ".
func displayNames(addrs []*mail.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		if name := strings.TrimSpace(a.Name); name != "" {
			parts = append(parts, name)
			continue
		}
		if a.Address != "" {
			parts = append(parts, a.Address)
		}
	}
	return strings.Join(parts, "; ")
}
