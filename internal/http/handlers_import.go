package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"tally/internal/log"
	"tally/internal/services"
)

// multipartOverhead leaves room for boundaries and part headers around the file.
const multipartOverhead = 64 << 10

// handleImport accepts either a multipart form with a "file" field or the
// CSV as the raw request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, ownerID int64) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)

	body, err := s.uploadReader(r)
	if err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.importer.Import(r.Context(), ownerID, body)
	switch {
	case err == nil:
	case isTooLarge(err):
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	default:
		writeServiceError(w, r, log.OpImport, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) uploadReader(r *http.Request) (io.Reader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errors.New(`multipart upload has no "file" field`)
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.Is(err, services.ErrUploadTooLarge) || errors.As(err, &maxErr)
}

// importKey buckets import requests by caller. Requests without a user id
// share one bucket per remote address and are rejected by withUser anyway.
func (s *Server) importKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(s.userHeader)); id != "" {
		return "user:" + id
	}
	return "addr:" + r.RemoteAddr
}

func (s *Server) onImportLimited(w http.ResponseWriter, r *http.Request, retryAfter int) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Import rate limit exceeded", "retry_after", retryAfter)
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":      "too many imports, try again later",
		"retryAfter": retryAfter,
	})
}
