// Package reader walks an opened archive and normalizes every message into a
// model.EmailRecord.
package reader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"

	"github.com/varunsharma6956/ost-mail-searcher/archive"
	"github.com/varunsharma6956/ost-mail-searcher/model"
	"github.com/varunsharma6956/ost-mail-searcher/stats"
)

// RTFPlaceholder replaces bodies that only exist as rich text.
const RTFPlaceholder = "[RTF content - preview not available]"

// Options configures a Reader.
type Options struct {
	Logger *slog.Logger
	// OnEvent receives one event per scanned message, skip and folder failure.
	OnEvent func(stats.Event)
}

// Reader normalizes the messages of an archive folder tree.
type Reader struct {
	logger  *slog.Logger
	onEvent func(stats.Event)
}

func New(opts Options) *Reader {
	return &Reader{logger: opts.Logger, onEvent: opts.OnEvent}
}

// Read reads root with a Reader that neither logs nor reports events.
func Read(root archive.Folder) []model.Envelope {
	return New(Options{}).Read(root)
}

// Read visits root depth-first, sub-folders before the folder's own messages,
// and returns one envelope per message found. A failing message yields an
// envelope with Err set; a failing folder stops only its own remaining work.
func (r *Reader) Read(root archive.Folder) []model.Envelope {
	if root == nil {
		return nil
	}
	return r.readFolder(root, root.Name(), nil)
}

func (r *Reader) readFolder(folder archive.Folder, folderPath string, out []model.Envelope) []model.Envelope {
	subs, err := folder.SubFolders()
	if err != nil {
		r.folderFailed(folderPath, fmt.Errorf("list sub-folders: %w", err))
		return out
	}
	for _, sub := range subs {
		out = r.readFolder(sub, path.Join(folderPath, sub.Name()), out)
	}

	messages, err := folder.Messages()
	for _, msg := range messages {
		out = append(out, r.readMessage(msg, folderPath))
	}
	if err != nil {
		r.folderFailed(folderPath, fmt.Errorf("list messages: %w", err))
	}
	return out
}

func (r *Reader) readMessage(msg archive.Message, folderPath string) model.Envelope {
	r.emit(stats.Event{Stage: stats.StageReader, Type: stats.EventTypeScanned, Folder: folderPath})

	record, err := r.Normalize(msg)
	if err != nil {
		r.debug("skipping message", "folder", folderPath, "err", err)
		r.emit(stats.Event{Stage: stats.StageReader, Type: stats.EventTypeSkipped, Folder: folderPath, Err: err})
		return model.Envelope{Folder: folderPath, Err: err}
	}

	r.emit(stats.Event{Stage: stats.StageReader, Type: stats.EventTypeNormalized, Folder: folderPath, MessageID: record.ID})
	return model.Envelope{Record: record, Folder: folderPath}
}

// Normalize builds the record for a single message. Failures reading the
// header or the body fail the whole message; attachment failures never do.
func (r *Reader) Normalize(msg archive.Message) (model.EmailRecord, error) {
	header, err := msg.Header()
	if err != nil {
		return model.EmailRecord{}, fmt.Errorf("read header: %w", err)
	}
	body, err := msg.Body()
	if err != nil {
		return model.EmailRecord{}, fmt.Errorf("read body: %w", err)
	}

	count, names := r.attachments(msg)

	return model.EmailRecord{
		ID:              RecordID(header.Subject, header.SubmitTime),
		Subject:         orDefault(header.Subject, model.DefaultSubject),
		SenderName:      orDefault(header.SenderName, model.DefaultSenderName),
		SenderEmail:     header.SenderEmail,
		Recipients:      header.DisplayTo,
		Timestamp:       header.SubmitTime,
		Body:            BodyText(body),
		HasAttachments:  count > 0,
		AttachmentCount: count,
		AttachmentNames: names,
	}, nil
}

// attachments returns the attachment count and the names that could be
// resolved, in index order. An unreadable count counts as zero.
func (r *Reader) attachments(msg archive.Message) (int, []string) {
	names := []string{}

	count, err := msg.AttachmentCount()
	if err != nil || count < 0 {
		r.debug("attachment count unavailable", "err", err)
		return 0, names
	}

	for i := 0; i < count; i++ {
		name, err := msg.AttachmentName(i)
		if err != nil {
			r.debug("skipping attachment name", "index", i, "err", err)
			r.emit(stats.Event{Stage: stats.StageReader, Type: stats.EventTypeAttachmentSkipped, Err: err})
			continue
		}
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return count, names
}

// BodyText picks the first usable representation: plain text, then HTML
// converted to text, then the RTF placeholder.
func BodyText(body archive.Body) string {
	switch {
	case len(body.PlainText) > 0:
		return decodeUTF8(body.PlainText)
	case len(body.HTML) > 0:
		return HTMLToText(body.HTML)
	case len(body.RTF) > 0:
		return RTFPlaceholder
	default:
		return ""
	}
}

// RecordID derives a stable identifier from the subject and the raw submit time.
func RecordID(subject, submitTime string) string {
	sum := sha256.Sum256([]byte(subject + "_" + submitTime))
	return hex.EncodeToString(sum[:16])
}

// Records collects the records of all envelopes that were not skipped.
func Records(envelopes []model.Envelope) []model.EmailRecord {
	records := make([]model.EmailRecord, 0, len(envelopes))
	for _, env := range envelopes {
		if env.Skipped() {
			continue
		}
		records = append(records, env.Record)
	}
	return records
}

func (r *Reader) folderFailed(folderPath string, err error) {
	if r.logger != nil {
		r.logger.Error("error reading folder", "folder", folderPath, "err", err)
	}
	r.emit(stats.Event{Stage: stats.StageReader, Type: stats.EventTypeFolderError, Folder: folderPath, Err: err})
}

func (r *Reader) emit(evt stats.Event) {
	if r.onEvent != nil {
		r.onEvent(evt)
	}
}

func (r *Reader) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
