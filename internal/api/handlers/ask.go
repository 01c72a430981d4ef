package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/api/middleware"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/logger"
	"github.com/cloo-solutions/docqa/internal/service"
	"go.uber.org/zap"
)

var errInvalidBody = domain.NewDomainError(domain.ErrCodeValidation, "invalid request body")

type AskService interface {
	Ask(ctx context.Context, input service.AskInput) (*service.AskResult, error)
}

type AskHandler struct {
	svc AskService
}

func NewAskHandler(svc AskService) *AskHandler {
	return &AskHandler{svc: svc}
}

// AskRequest is the /ask body. TopK is a pointer so an explicit 0 can be told
// apart from an absent field.
type AskRequest struct {
	Question  string `json:"question"`
	TopK      *int   `json:"top_k,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type AskResponse struct {
	Answer  string                 `json:"answer"`
	Sources []domain.ChunkMetadata `json:"sources"`
	K       int                    `json:"k"`
}

func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.HandleError(w, domain.ErrUploadTooLarge)
			return
		}
		api.HandleError(w, errInvalidBody)
		return
	}

	topK := service.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	ns := middleware.GetNamespace(r.Context())
	result, err := h.svc.Ask(r.Context(), service.AskInput{
		Namespace: ns,
		Question:  req.Question,
		TopK:      topK,
		SessionID: req.SessionID,
	})
	if err != nil {
		logger.FromContext(r.Context()).Warn("ask failed",
			zap.String("namespace", ns.String()),
			zap.Error(err))
		api.HandleError(w, err)
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []domain.ChunkMetadata{}
	}
	api.JSON(w, http.StatusOK, AskResponse{Answer: result.Answer, Sources: sources, K: result.K})
}
