package reader

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/varunsharma6956/ost-mail-searcher/archive"
	"github.com/varunsharma6956/ost-mail-searcher/stats"
)

type fakeMessage struct {
	header    archive.Header
	headerErr error
	body      archive.Body
	bodyErr   error
	count     int
	countErr  error
	names     []string
	nameErrs  map[int]error
}

func (m *fakeMessage) Header() (archive.Header, error) { return m.header, m.headerErr }
func (m *fakeMessage) Body() (archive.Body, error)     { return m.body, m.bodyErr }
func (m *fakeMessage) AttachmentCount() (int, error)   { return m.count, m.countErr }

func (m *fakeMessage) AttachmentName(i int) (string, error) {
	if err := m.nameErrs[i]; err != nil {
		return "", err
	}
	if i >= len(m.names) {
		return "", errors.New("out of range")
	}
	return m.names[i], nil
}

type fakeFolder struct {
	name        string
	subs        []archive.Folder
	subsErr     error
	messages    []archive.Message
	messagesErr error
}

func (f *fakeFolder) Name() string                          { return f.name }
func (f *fakeFolder) SubFolders() ([]archive.Folder, error) { return f.subs, f.subsErr }
func (f *fakeFolder) Messages() ([]archive.Message, error)  { return f.messages, f.messagesErr }

func msg(subject string) *fakeMessage {
	return &fakeMessage{header: archive.Header{Subject: subject, SubmitTime: "2025-01-15 09:30:00"}}
}

func TestRead_Order(t *testing.T) {
	root := &fakeFolder{
		name: "Root",
		subs: []archive.Folder{
			&fakeFolder{
				name:     "Inbox",
				subs:     []archive.Folder{&fakeFolder{name: "Projects", messages: []archive.Message{msg("p1")}}},
				messages: []archive.Message{msg("i1"), msg("i2")},
			},
			&fakeFolder{name: "Sent", messages: []archive.Message{msg("s1")}},
		},
		messages: []archive.Message{msg("r1")},
	}

	envelopes := Read(root)

	var got []string
	for _, env := range envelopes {
		got = append(got, env.Folder+":"+env.Record.Subject)
	}
	want := []string{
		"Root/Inbox/Projects:p1",
		"Root/Inbox:i1",
		"Root/Inbox:i2",
		"Root/Sent:s1",
		"Root:r1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Read() order = %v, want %v", got, want)
	}
}

func TestRead_FailuresAreScoped(t *testing.T) {
	boom := errors.New("boom")
	root := &fakeFolder{
		name: "Root",
		subs: []archive.Folder{
			&fakeFolder{name: "Broken", subsErr: boom, messages: []archive.Message{msg("never")}},
			&fakeFolder{name: "Partial", messages: []archive.Message{msg("kept")}, messagesErr: boom},
			&fakeFolder{name: "Mixed", messages: []archive.Message{
				msg("ok"),
				&fakeMessage{headerErr: boom},
				&fakeMessage{bodyErr: boom},
			}},
		},
	}

	collector := stats.NewCollector()
	envelopes := New(Options{OnEvent: collector.Apply}).Read(root)

	records := Records(envelopes)
	var got []string
	for _, r := range records {
		got = append(got, r.Subject)
	}
	if want := []string{"kept", "ok"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Records() subjects = %v, want %v", got, want)
	}

	skipped := 0
	for _, env := range envelopes {
		if env.Skipped() {
			skipped++
			if !errors.Is(env.Err, boom) {
				t.Errorf("Envelope error = %v, want wrapped boom", env.Err)
			}
		}
	}
	if skipped != 2 {
		t.Errorf("Expected 2 skipped envelopes, got %d", skipped)
	}

	s := collector.Snapshot()
	if s.Scanned != 4 || s.Normalized != 2 || s.Skipped != 2 || s.FolderErrors != 2 {
		t.Errorf("Unexpected summary: %+v", s)
	}
}

func TestRead_NilRoot(t *testing.T) {
	if got := Read(nil); got != nil {
		t.Errorf("Read(nil) = %v, want nil", got)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	record, err := New(Options{}).Normalize(&fakeMessage{})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if record.Subject != "(No Subject)" {
		t.Errorf("Subject = %q", record.Subject)
	}
	if record.SenderName != "Unknown" {
		t.Errorf("SenderName = %q", record.SenderName)
	}
	if record.SenderEmail != "" || record.Recipients != "" || record.Timestamp != "" || record.Body != "" {
		t.Errorf("Expected empty optional fields, got %+v", record)
	}
	if record.HasAttachments || record.AttachmentCount != 0 {
		t.Errorf("Expected no attachments, got %+v", record)
	}
	if record.AttachmentNames == nil || len(record.AttachmentNames) != 0 {
		t.Errorf("AttachmentNames = %#v, want empty non-nil slice", record.AttachmentNames)
	}
	if record.ID != RecordID("", "") {
		t.Errorf("ID = %q, want hash of the raw empty fields", record.ID)
	}
}

func TestNormalize_Attachments(t *testing.T) {
	tests := []struct {
		name      string
		msg       *fakeMessage
		wantCount int
		wantNames []string
	}{
		{
			name:      "all names",
			msg:       &fakeMessage{count: 2, names: []string{"a.pdf", "b.xls"}},
			wantCount: 2,
			wantNames: []string{"a.pdf", "b.xls"},
		},
		{
			name:      "failing name is skipped",
			msg:       &fakeMessage{count: 3, names: []string{"a", "", "c"}, nameErrs: map[int]error{1: errors.New("bad")}},
			wantCount: 3,
			wantNames: []string{"a", "c"},
		},
		{
			name:      "empty name is skipped",
			msg:       &fakeMessage{count: 2, names: []string{"", "b"}},
			wantCount: 2,
			wantNames: []string{"b"},
		},
		{
			name:      "unreadable count",
			msg:       &fakeMessage{count: 5, countErr: errors.New("bad"), names: []string{"x"}},
			wantCount: 0,
			wantNames: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := New(Options{}).Normalize(tt.msg)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if record.AttachmentCount != tt.wantCount {
				t.Errorf("AttachmentCount = %d, want %d", record.AttachmentCount, tt.wantCount)
			}
			if record.HasAttachments != (tt.wantCount > 0) {
				t.Errorf("HasAttachments = %v", record.HasAttachments)
			}
			if !reflect.DeepEqual(record.AttachmentNames, tt.wantNames) {
				t.Errorf("AttachmentNames = %#v, want %#v", record.AttachmentNames, tt.wantNames)
			}
		})
	}
}

func TestNormalize_AttachmentSkipEvent(t *testing.T) {
	var events []stats.Event
	r := New(Options{OnEvent: func(evt stats.Event) { events = append(events, evt) }})
	m := &fakeMessage{count: 2, names: []string{"a", "b"}, nameErrs: map[int]error{0: errors.New("bad")}}

	if _, err := r.Normalize(m); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(events) != 1 || events[0].Type != stats.EventTypeAttachmentSkipped {
		t.Errorf("Expected one attachment skip event, got %+v", events)
	}
}

func TestBodyText(t *testing.T) {
	tests := []struct {
		name string
		body archive.Body
		want string
	}{
		{"plain wins", archive.Body{PlainText: []byte("plain"), HTML: []byte("<b>html</b>"), RTF: []byte("{\\rtf1}")}, "plain"},
		{"html fallback", archive.Body{HTML: []byte("<b>html</b>"), RTF: []byte("{\\rtf1}")}, "html"},
		{"rtf placeholder", archive.Body{RTF: []byte("{\\rtf1}")}, RTFPlaceholder},
		{"empty", archive.Body{}, ""},
		{"plain kept verbatim", archive.Body{PlainText: []byte("  line one\n\n line two ")}, "  line one\n\n line two "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BodyText(tt.body); got != tt.want {
				t.Errorf("BodyText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBodyText_InvalidUTF8(t *testing.T) {
	got := BodyText(archive.Body{PlainText: []byte("caf\xe9 ok")})
	if !utf8.ValidString(got) {
		t.Fatalf("BodyText() returned invalid UTF-8: %q", got)
	}
	if !strings.ContainsRune(got, utf8.RuneError) || !strings.HasSuffix(got, " ok") {
		t.Errorf("BodyText() = %q, want replacement character and the rest kept", got)
	}
}

func TestRecordID(t *testing.T) {
	a := RecordID("Q4 Financial Report", "2025-01-15 09:30:00")
	b := RecordID("Q4 Financial Report", "2025-01-15 09:30:00")
	c := RecordID("Q4 Financial Report", "2025-01-15 09:30:01")

	if a != b {
		t.Errorf("RecordID() is not deterministic: %q != %q", a, b)
	}
	if a == c {
		t.Error("RecordID() collides for different submit times")
	}
	if len(a) != 32 {
		t.Errorf("len(RecordID()) = %d, want 32", len(a))
	}
}
