package model

// Default values substituted for fields an archive message does not carry.
const (
	DefaultSubject    = "(No Subject)"
	DefaultSenderName = "Unknown"
)

// EmailRecord is the normalized snapshot of one message read from an archive.
// Records are never modified after construction.
type EmailRecord struct {
	ID              string   `json:"email_id"`
	Subject         string   `json:"subject"`
	SenderName      string   `json:"sender_name"`
	SenderEmail     string   `json:"sender_email"`
	Recipients      string   `json:"recipients"`
	Timestamp       string   `json:"date"`
	Body            string   `json:"body"`
	HasAttachments  bool     `json:"has_attachments"`
	AttachmentCount int      `json:"attachment_count"`
	AttachmentNames []string `json:"attachment_names"`
}

// Envelope wraps a normalized record alongside an optional error encountered
// while building it. An envelope with Err set carries no usable record.
type Envelope struct {
	Record EmailRecord
	Folder string
	Err    error
}

// Skipped reports whether the message behind the envelope was dropped.
func (e Envelope) Skipped() bool {
	return e.Err != nil
}
