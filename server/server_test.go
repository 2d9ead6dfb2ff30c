package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/varunsharma6956/ost-mail-searcher/archive"
	"github.com/varunsharma6956/ost-mail-searcher/mbox"
	"github.com/varunsharma6956/ost-mail-searcher/service"
)

const mboxFixture = `From a@example.com Wed Jan 15 09:30:00 2025
From: Alice <a@example.com>
To: Bob <b@example.com>
Subject: Hello
Date: Wed, 15 Jan 2025 09:30:00 +0000
Content-Type: text/plain

hello there
`

type response struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	EmailCount int    `json:"email_count"`
	Detail     string `json:"detail"`
	Emails     []struct {
		ID      string `json:"email_id"`
		Subject string `json:"subject"`
		Date    string `json:"date"`
	} `json:"emails"`
}

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	registry := archive.NewRegistry()
	registry.Register(".ost", archive.Unavailable("pff"))
	registry.Register(".mbox", mbox.New(mbox.Options{Location: time.UTC}))

	svc, err := service.New(service.Options{Registry: registry, UploadDir: t.TempDir()})
	if err != nil {
		t.Fatalf("service.New() error = %v", err)
	}
	if opts.CORSOrigins == nil {
		opts.CORSOrigins = []string{"*"}
	}
	return New(svc, opts).Routes()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("note", "ignored"); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload-ost", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestRootAndHealth(t *testing.T) {
	h := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/ status = %d", rec.Code)
	}
	var root map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &root); err != nil {
		t.Fatal(err)
	}
	if root["message"] != "OST Email Search API" || root["status"] != "active" {
		t.Errorf("GET /api/ = %v", root)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestSearch_SampleData(t *testing.T) {
	h := newTestServer(t, Options{})

	rec, body := do(t, h, jsonRequest(http.MethodPost, "/api/search-emails", `{"start_date":"2025-02-01"}`))
	if rec.Code != http.StatusOK || !body.Success || body.EmailCount != 0 || len(body.Emails) != 0 {
		t.Fatalf("search before load = %d %+v", rec.Code, body)
	}
	if body.Message != "No emails loaded. Please upload or browse an OST file first." {
		t.Errorf("Message = %q", body.Message)
	}

	rec, body = do(t, h, httptest.NewRequest(http.MethodGet, "/api/load-sample-data", nil))
	if rec.Code != http.StatusOK || body.EmailCount != 8 || body.Message != "Loaded 8 sample emails" {
		t.Fatalf("load sample = %d %+v", rec.Code, body)
	}

	rec, body = do(t, h, jsonRequest(http.MethodPost, "/api/search-emails", `{"start_date":"2025-02-01","end_date":"2025-03-01"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	if body.EmailCount != 3 || body.Message != "Found 3 emails matching criteria" {
		t.Errorf("search = %+v", body)
	}
	wantDates := []string{"2025-02-01 10:15:00", "2025-02-10 08:00:00", "2025-02-15 09:00:00"}
	for i, e := range body.Emails {
		if e.Date != wantDates[i] || e.ID == "" {
			t.Errorf("Email %d = %+v, want date %s", i, e, wantDates[i])
		}
	}

	rec, body = do(t, h, jsonRequest(http.MethodPost, "/api/search-emails", `{"start_date":"garbage","end_date":""}`))
	if rec.Code != http.StatusOK || body.EmailCount != 8 {
		t.Errorf("search with malformed bound = %d %+v", rec.Code, body)
	}

	rec, body = do(t, h, jsonRequest(http.MethodPost, "/api/search-emails", `{"start_date":`))
	if rec.Code != http.StatusUnprocessableEntity || body.Detail == "" {
		t.Errorf("search with broken JSON = %d %+v", rec.Code, body)
	}
}

func TestBrowseFile(t *testing.T) {
	h := newTestServer(t, Options{})
	dir := t.TempDir()

	good := filepath.Join(dir, "Inbox.mbox")
	ost := filepath.Join(dir, "Outlook.ost")
	txt := filepath.Join(dir, "notes.txt")
	empty := filepath.Join(dir, "empty.mbox")
	for path, content := range map[string]string{good: mboxFixture, ost: "!BDN", txt: "x", empty: ""} {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantDetail string
	}{
		{"not found", filepath.Join(dir, "missing.txt"), http.StatusNotFound, "File not found at specified path"},
		{"wrong extension", txt, http.StatusBadRequest, "Only OST, MBOX files are supported"},
		{"capability unavailable", ost, http.StatusNotImplemented, "Load Sample Data"},
		{"no records", empty, http.StatusBadRequest, "No emails found in the file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, _ := json.Marshal(map[string]string{"file_path": tt.path})
			rec, body := do(t, h, jsonRequest(http.MethodPost, "/api/browse-file", string(payload)))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%+v)", rec.Code, tt.wantStatus, body)
			}
			if !strings.Contains(body.Detail, tt.wantDetail) {
				t.Errorf("detail = %q, want containing %q", body.Detail, tt.wantDetail)
			}
		})
	}

	payload, _ := json.Marshal(map[string]string{"file_path": good})
	rec, body := do(t, h, jsonRequest(http.MethodPost, "/api/browse-file", string(payload)))
	if rec.Code != http.StatusOK || body.EmailCount != 1 || body.Message != "Successfully parsed 1 emails from your file" {
		t.Fatalf("browse = %d %+v", rec.Code, body)
	}
	if body.Emails[0].Subject != "Hello" || body.Emails[0].Date != "2025-01-15 09:30:00" {
		t.Errorf("Email = %+v", body.Emails[0])
	}
}

func TestUpload(t *testing.T) {
	h := newTestServer(t, Options{MaxUploadBytes: 1 << 20})

	rec, body := do(t, h, uploadRequest(t, "Inbox.mbox", []byte(mboxFixture)))
	if rec.Code != http.StatusOK || body.EmailCount != 1 {
		t.Fatalf("upload = %d %+v", rec.Code, body)
	}

	rec, body = do(t, h, uploadRequest(t, "Outlook.ost", []byte("!BDN")))
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("upload .ost = %d %+v", rec.Code, body)
	}

	rec, body = do(t, h, uploadRequest(t, "archive.zip", []byte("PK")))
	if rec.Code != http.StatusBadRequest || body.Detail != "Only OST, MBOX files are supported" {
		t.Errorf("upload .zip = %d %+v", rec.Code, body)
	}

	big := bytes.Repeat([]byte("x"), 2<<20)
	rec, body = do(t, h, uploadRequest(t, "big.mbox", big))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("upload too large = %d %+v", rec.Code, body)
	}

	req := jsonRequest(http.MethodPost, "/api/upload-ost", `{}`)
	rec, _ = do(t, h, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("upload without multipart = %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := newTestServer(t, Options{})
	do(t, h, httptest.NewRequest(http.MethodGet, "/api/load-sample-data", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var status service.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status.Loaded || status.EmailCount != 8 || status.Source != "sample-data" {
		t.Errorf("status = %+v", status)
	}
	if status.Capabilities[".ost"] || !status.Capabilities[".mbox"] {
		t.Errorf("capabilities = %v", status.Capabilities)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, Options{RateLimit: 0.001, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := jsonRequest(http.MethodPost, "/api/browse-file", `{"file_path":"/nonexistent/file.ost"}`)
		req.RemoteAddr = "203.0.113.7:4242"
		rec, _ := do(t, h, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNotFound || codes[1] != http.StatusNotFound || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [404 404 429]", codes)
	}

	req := jsonRequest(http.MethodPost, "/api/browse-file", `{"file_path":"/nonexistent/file.ost"}`)
	req.RemoteAddr = "198.51.100.1:1234"
	if rec, _ := do(t, h, req); rec.Code != http.StatusNotFound {
		t.Errorf("other client status = %d, want 404", rec.Code)
	}

	// Searches are not rate limited.
	for i := 0; i < 5; i++ {
		req := jsonRequest(http.MethodPost, "/api/search-emails", `{}`)
		req.RemoteAddr = "203.0.113.7:4242"
		if rec, _ := do(t, h, req); rec.Code != http.StatusOK {
			t.Fatalf("search status = %d", rec.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, Options{CORSOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/search-emails", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
