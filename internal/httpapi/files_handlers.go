package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/JPaulGrayson/QuackQuack/internal/blobstore"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func (s *server) registerFileRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/files", s.requirePermission(types.PermWrite, s.handleUploadFile))
	mux.HandleFunc("GET /api/files/{id}", s.requirePermission(types.PermRead, s.handleGetFile))
	mux.HandleFunc("GET /api/files/{id}/meta", s.requirePermission(types.PermRead, s.handleGetFileMeta))
}

type uploadFileRequestBody struct {
	Name     string         `json:"name"`
	Content  string         `json:"content"`
	Type     types.BlobType `json:"type"`
	MIMEType string         `json:"mimeType,omitempty"`
}

func (s *server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	var body uploadFileRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name == "" || body.Content == "" {
		writeError(w, http.StatusBadRequest, "name and content are required")
		return
	}
	payload, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, "content must be base64-encoded")
		return
	}

	meta, err := s.blobs.Upload(r.Context(), body.Name, payload, body.Type, body.MIMEType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	blob, err := s.blobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeBlobError(w, err)
		return
	}
	if blob.MIME != "" {
		w.Header().Set("Content-Type", blob.MIME)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Payload)
}

func (s *server) handleGetFileMeta(w http.ResponseWriter, r *http.Request) {
	meta, err := s.blobs.GetMeta(r.Context(), r.PathValue("id"))
	if err != nil {
		writeBlobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func writeBlobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, blobstore.ErrNotFound), errors.Is(err, blobstore.ErrExpired):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
