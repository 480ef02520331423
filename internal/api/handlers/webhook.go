package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/baharkarakas/travel-credits/internal/api/httpx"
	"github.com/baharkarakas/travel-credits/internal/metrics"
	"github.com/baharkarakas/travel-credits/internal/middleware"
	"github.com/baharkarakas/travel-credits/internal/payments"
	"github.com/baharkarakas/travel-credits/internal/services"
)

const (
	maxWebhookBody    = 64 << 10
	signatureHeader   = "Stripe-Signature"
	processingTimeout = 15 * time.Second
)

type EventParser interface {
	Parse(payload []byte, header string) (payments.Event, error)
}

type CreditApplier interface {
	Apply(ctx context.Context, g services.CreditGrant) (services.GrantResult, error)
}

type WebhookHandler struct {
	parser EventParser
	rec    CreditApplier
	log    *slog.Logger
}

func NewWebhookHandler(p EventParser, rec CreditApplier, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{parser: p, rec: rec, log: log}
}

type webhookAck struct {
	Received bool `json:"received"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With("request_id", middleware.RequestIDFrom(r.Context()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Warn("webhook body unreadable", "err", err)
		h.reject(w, "unknown", "Invalid webhook payload", err)
		return
	}

	evt, err := h.parser.Parse(body, r.Header.Get(signatureHeader))
	if err != nil {
		log.Warn("webhook rejected", "err", err)
		msg := "Invalid webhook payload"
		if errors.Is(err, payments.ErrSignature) {
			msg = "Webhook signature verification failed"
		}
		h.reject(w, "unknown", msg, err)
		return
	}
	log = log.With("event_id", evt.EventID(), "event_type", evt.EventType())

	switch e := evt.(type) {
	case payments.CheckoutCompleted:
		h.checkoutCompleted(w, r, log, e)
	default:
		log.Debug("webhook event ignored")
		metrics.WebhookEventsTotal.WithLabelValues(evt.EventType(), "ignored").Inc()
		httpx.WriteJSON(w, http.StatusOK, webhookAck{Received: true})
	}
}

func (h *WebhookHandler) checkoutCompleted(w http.ResponseWriter, r *http.Request, log *slog.Logger, e payments.CheckoutCompleted) {
	p, err := e.Purchase()
	if err != nil {
		log.Warn("checkout metadata rejected", "session_id", e.Session.ID, "err", err)
		h.reject(w, e.EventType(), "Invalid checkout metadata", err)
		return
	}

	// A started grant runs to completion even if the gateway hangs up.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), processingTimeout)
	defer cancel()

	res, err := h.rec.Apply(ctx, services.CreditGrant{
		EventID:     p.EventID,
		SessionID:   p.SessionID,
		AccountID:   p.AccountID,
		PackageID:   p.PackageID,
		Credits:     p.Credits,
		AmountTotal: p.AmountTotal,
	})
	switch {
	case errors.Is(err, services.ErrMalformedEvent):
		h.reject(w, e.EventType(), "Invalid checkout metadata", err)
		return
	case err != nil:
		log.Error("webhook processing failed", "session_id", p.SessionID, "account_id", p.AccountID, "err", err)
		metrics.WebhookEventsTotal.WithLabelValues(e.EventType(), "failed").Inc()
		httpx.WriteError(w, http.StatusInternalServerError, "", "Webhook processing failed", err)
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues(e.EventType(), string(res.Outcome)).Inc()
	httpx.WriteJSON(w, http.StatusOK, webhookAck{Received: true})
}

func (h *WebhookHandler) reject(w http.ResponseWriter, eventType, msg string, err error) {
	metrics.WebhookEventsTotal.WithLabelValues(eventType, "rejected").Inc()
	httpx.WriteError(w, http.StatusBadRequest, "", msg, err)
}
