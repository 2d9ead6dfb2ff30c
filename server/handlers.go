package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/varunsharma6956/ost-mail-searcher/archive"
	"github.com/varunsharma6956/ost-mail-searcher/model"
	"github.com/varunsharma6956/ost-mail-searcher/service"
)

const (
	detailFileNotFound = "File not found at specified path"
	detailNoRecords    = "No emails found in the file. The file may be empty, corrupted, or encrypted."
	detailUnavailable  = "The parsing library for this file type is not installed. Please use the 'Load Sample Data' button to test the application, or install the parsing library to read real archive files."
	messageNotLoaded   = "No emails loaded. Please upload or browse an OST file first."
)

type emailsResponse struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message"`
	EmailCount int                 `json:"email_count"`
	Emails     []model.EmailRecord `json:"emails"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type browseRequest struct {
	FilePath string `json:"file_path"`
}

type searchRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "OST Email Search API", "status": "active"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

func (s *Server) handleLoadSample(w http.ResponseWriter, _ *http.Request) {
	snap := s.svc.LoadSample()
	writeJSON(w, http.StatusOK, emailsResponse{
		Success:    true,
		Message:    fmt.Sprintf("Loaded %d sample emails", snap.Count()),
		EmailCount: snap.Count(),
		Emails:     snap.Records,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res := s.svc.Search(req.StartDate, req.EndDate)
	if !res.Loaded {
		writeJSON(w, http.StatusOK, emailsResponse{
			Success: true,
			Message: messageNotLoaded,
			Emails:  []model.EmailRecord{},
		})
		return
	}

	writeJSON(w, http.StatusOK, emailsResponse{
		Success:    true,
		Message:    fmt.Sprintf("Found %d emails matching criteria", len(res.Records)),
		EmailCount: len(res.Records),
		Emails:     res.Records,
	})
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	var req browseRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, err := s.svc.IngestPath(r.Context(), req.FilePath)
	if err != nil {
		s.ingestFailed(w, err)
		return
	}
	s.ingested(w, res)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Expected a multipart/form-data upload with a 'file' field")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusUnprocessableEntity, "Missing 'file' field in upload")
			return
		}
		if err != nil {
			s.ingestFailed(w, fmt.Errorf("read upload: %w", err))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		filename := part.FileName()
		res, err := s.svc.IngestUpload(r.Context(), filename, part)
		_ = part.Close()
		if err != nil {
			s.ingestFailed(w, err)
			return
		}
		s.ingested(w, res)
		return
	}
}

func (s *Server) ingested(w http.ResponseWriter, res *service.Result) {
	snap := res.Snapshot
	writeJSON(w, http.StatusOK, emailsResponse{
		Success:    true,
		Message:    fmt.Sprintf("Successfully parsed %d emails from your file", snap.Count()),
		EmailCount: snap.Count(),
		Emails:     snap.Records,
	})
}

func (s *Server) ingestFailed(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	var parseErr *service.ParseError

	switch {
	case errors.Is(err, service.ErrFileNotFound):
		writeError(w, http.StatusNotFound, detailFileNotFound)
	case errors.Is(err, service.ErrInvalidExtension):
		writeError(w, http.StatusBadRequest, s.extensionDetail())
	case errors.Is(err, service.ErrNoRecords):
		writeError(w, http.StatusBadRequest, detailNoRecords)
	case errors.Is(err, archive.ErrCapabilityUnavailable):
		writeError(w, http.StatusNotImplemented, detailUnavailable)
	case errors.As(err, &maxBytesErr):
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the maximum upload size of %d MB", maxBytesErr.Limit>>20))
	case errors.As(err, &parseErr):
		s.logger.Error("failed to parse archive", "path", parseErr.Path, "err", parseErr.Err)
		writeError(w, http.StatusInternalServerError, "Error processing file: "+parseErr.Err.Error())
	default:
		s.logger.Error("failed to ingest archive", "err", err)
		writeError(w, http.StatusInternalServerError, "Error processing file: "+err.Error())
	}
}

// extensionDetail renders e.g. "Only OST, MBOX files are supported".
func (s *Server) extensionDetail() string {
	exts := s.svc.Extensions()
	names := make([]string, 0, len(exts))
	for _, ext := range exts {
		names = append(names, strings.ToUpper(strings.TrimPrefix(ext, ".")))
	}
	return fmt.Sprintf("Only %s files are supported", strings.Join(names, ", "))
}

func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil && mediaType != "application/json" {
			return errors.New("content type must be application/json")
		}
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
