package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/travel-credits/internal/api/httpx"
	"github.com/baharkarakas/travel-credits/internal/repository"
	"github.com/baharkarakas/travel-credits/internal/services"
)

type LedgerHandler struct {
	svc *services.LedgerService
}

func NewLedgerHandler(svc *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{svc: svc}
}

func (h *LedgerHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Account(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *LedgerHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Payment(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *LedgerHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accountID := q.Get("account_id")
	if accountID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "account_id required", nil)
		return
	}

	limit, offset := 0, 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	recs, err := h.svc.Payments(r.Context(), accountID, limit, offset)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "failed to load payments", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, recs)
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found", nil)
		return
	}
	httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "lookup failed", nil)
}
