package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/api/middleware"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/logger"
	"github.com/cloo-solutions/docqa/internal/service"
	"go.uber.org/zap"
)

// FileField is the multipart field carrying the upload.
const FileField = "file"

// multipartMemory is how much of a form ParseMultipartForm keeps in memory
// before spilling file parts to disk.
const multipartMemory = 8 << 20

var errInvalidForm = domain.NewDomainError(domain.ErrCodeValidation, "invalid multipart form")

type IngestService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error)
}

type IngestHandler struct {
	svc            IngestService
	maxUploadBytes int64
}

func NewIngestHandler(svc IngestService, maxUploadBytes int64) *IngestHandler {
	return &IngestHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

type IngestResponse struct {
	OK     bool   `json:"ok"`
	Chunks int    `json:"chunks"`
	Key    string `json:"key"`
}

func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ns := middleware.GetNamespace(r.Context())

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		api.HandleError(w, formError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(FileField)
	if err != nil {
		api.HandleError(w, domain.ErrMissingFile)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		api.HandleError(w, formError(err))
		return
	}
	if int64(len(content)) > h.maxUploadBytes {
		api.HandleError(w, domain.ErrUploadTooLarge)
		return
	}

	result, err := h.svc.Ingest(r.Context(), service.IngestInput{
		Namespace:   ns,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		logger.FromContext(r.Context()).Warn("ingest failed",
			zap.String("namespace", ns.String()),
			zap.String("filename", header.Filename),
			zap.Error(err))
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, IngestResponse{OK: true, Chunks: result.Chunks, Key: result.Key})
}

func formError(err error) error {
	var maxErr *http.MaxBytesError
	// Some multipart paths flatten the cause into the message.
	if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
		return domain.ErrUploadTooLarge
	}
	return errInvalidForm
}
