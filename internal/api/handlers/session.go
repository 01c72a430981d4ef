package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/api/middleware"
	"github.com/cloo-solutions/docqa/internal/cache"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type SessionReader interface {
	History(ctx context.Context, namespace, sessionID string) ([]cache.SessionTurn, error)
}

// SessionHandler serves the recorded turns of a session. A nil reader means
// the server runs without Redis.
type SessionHandler struct {
	reader SessionReader
}

func NewSessionHandler(reader SessionReader) *SessionHandler {
	return &SessionHandler{reader: reader}
}

type SessionResponse struct {
	SessionID string              `json:"session_id"`
	Turns     []cache.SessionTurn `json:"turns"`
}

func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		api.Error(w, http.StatusServiceUnavailable, "session log unavailable")
		return
	}

	// chi matches on RawPath when the path carries escapes such as %2F.
	sessionID := chi.URLParam(r, "session_id")
	if r.URL.RawPath != "" {
		if id, err := url.PathUnescape(sessionID); err == nil {
			sessionID = id
		}
	}
	ns := middleware.GetNamespace(r.Context())
	turns, err := h.reader.History(r.Context(), ns.String(), sessionID)
	if err != nil {
		logger.FromContext(r.Context()).Warn("read session failed",
			zap.String("namespace", ns.String()),
			zap.String("session_id", sessionID),
			zap.Error(err))
		api.HandleError(w, domain.Upstream("read session", err))
		return
	}

	if turns == nil {
		turns = []cache.SessionTurn{}
	}
	api.JSON(w, http.StatusOK, SessionResponse{SessionID: sessionID, Turns: turns})
}
