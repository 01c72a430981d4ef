package handlers

import (
	"net/http"

	"github.com/cloo-solutions/docqa/internal/api"
)

// Health reports liveness only; dependencies are not checked.
func Health(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, api.OKResponse{OK: true})
}
