package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/imgdrop/internal/common"
	"github.com/dmitrijs2005/imgdrop/internal/server/models"
	"github.com/dmitrijs2005/imgdrop/internal/server/services"
)

const (
	filesPrefix     = "/v1/files/"
	multipartMemory = 8 << 20
	formOverhead    = 1 << 20
)

type errorResponse struct {
	Error string `json:"error"`
}

type deleteRequest struct {
	PublicID string `json:"publicId"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

type usageResponse struct {
	Bytes int64 `json:"bytes"`
	Limit int64 `json:"limit"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorMissingFile), errors.Is(err, common.ErrorNotAnImage):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorTooLarge), errors.Is(err, common.ErrorQuotaExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) baseURL(r *http.Request) string {
	if s.publicURL != "" {
		return strings.TrimRight(s.publicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

func (s *Server) describe(r *http.Request, a *models.Asset) models.Descriptor {
	url := s.baseURL(r) + filesPrefix + a.Key
	secure := url
	if rest, ok := strings.CutPrefix(url, "http://"); ok {
		secure = "https://" + rest
	}
	return models.Descriptor{
		PublicID:  a.PublicID,
		URL:       url,
		SecureURL: secure,
		Width:     a.Width,
		Height:    a.Height,
		Format:    a.Format,
		Bytes:     a.Bytes,
	}
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, err error, reason string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, common.ErrorInternal.Error())
		return
	}
	if reason != "" {
		s.metrics.rejections.WithLabelValues(reason).Inc()
	}
	s.logger.Debug(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	writeError(w, status, rejectionMessage(err))
}

func rejectionMessage(err error) string {
	for _, known := range []error{common.ErrorQuotaExceeded, common.ErrorTooLarge, common.ErrorMissingFile, common.ErrorNotFound} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, common.ErrorQuotaExceeded):
		return "quota"
	case errors.Is(err, common.ErrorTooLarge):
		return "too_large"
	case errors.Is(err, common.ErrorNotAnImage):
		return "not_image"
	case errors.Is(err, common.ErrorMissingFile):
		return "missing_file"
	}
	return ""
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.reject(w, r, common.ErrorTooLarge, "too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(common.FieldFile)
	if err != nil {
		s.reject(w, r, common.ErrorMissingFile, "missing_file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		s.reject(w, r, err, "")
		return
	}

	var tags []string
	for _, t := range strings.Split(r.FormValue(common.FieldTags), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	asset, err := s.assets.Upload(r.Context(), services.UploadRequest{
		OwnerID:  owner,
		FileName: header.Filename,
		Folder:   strings.Trim(r.FormValue(common.FieldFolder), "/"),
		Tags:     tags,
		Data:     data,
	})
	if err != nil {
		s.reject(w, r, err, rejectionReason(err))
		return
	}

	s.metrics.uploadedBytes.Add(float64(asset.Bytes))
	writeJSON(w, http.StatusCreated, s.describe(r, asset))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())

	var req deleteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil || req.PublicID == "" {
		writeError(w, http.StatusBadRequest, "publicId is required")
		return
	}

	err := s.assets.Delete(r.Context(), owner, req.PublicID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, deleteResponse{Success: true})
	case errors.Is(err, common.ErrorNotFound):
		writeJSON(w, http.StatusOK, deleteResponse{Success: false})
	default:
		s.reject(w, r, err, "")
	}
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFromContext(r.Context())
	used, limit, err := s.assets.Usage(r.Context(), owner)
	if err != nil {
		s.reject(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{Bytes: used, Limit: limit})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	obj, err := s.assets.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			http.NotFound(w, r)
			return
		}
		s.reject(w, r, err, "")
		return
	}
	defer obj.Body.Close()

	if obj.ETag != "" {
		w.Header().Set("ETag", obj.ETag)
		if r.Header.Get("If-None-Match") == obj.ETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, obj.Body); err != nil {
		s.logger.Debug(r.Context(), "serving file", "key", key, "error", err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
