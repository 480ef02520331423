package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/baharkarakas/travel-credits/internal/api/httpx"
	"github.com/baharkarakas/travel-credits/internal/repository"
)

type HealthHandler struct {
	store repository.Pinger
}

func NewHealthHandler(p repository.Pinger) *HealthHandler {
	return &HealthHandler{store: p}
}

type healthResponse struct {
	Status string `json:"status"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "store_unreachable"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
