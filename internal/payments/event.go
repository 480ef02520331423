// Package payments verifies inbound payment gateway webhooks and decodes
// them into typed events.
package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// TypeCheckoutCompleted is the only event type that grants credits.
const TypeCheckoutCompleted = string(stripe.EventTypeCheckoutSessionCompleted)

// MaxCredits bounds a single purchase so balance arithmetic cannot overflow.
const MaxCredits = 1_000_000_000

var (
	// ErrSignature is returned when the signature header is missing or does
	// not match the payload.
	ErrSignature = errors.New("webhook signature verification failed")
	// ErrPayload is returned when a verified payload cannot be decoded.
	ErrPayload = errors.New("invalid webhook payload")
	// ErrMetadata is returned when a checkout session lacks usable metadata.
	ErrMetadata = errors.New("invalid checkout metadata")
)

// Event is one of CheckoutCompleted or Unknown.
type Event interface {
	EventID() string
	EventType() string
}

type CheckoutSession struct {
	ID            string            `json:"id"`
	AmountTotal   *int64            `json:"amount_total"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

type CheckoutCompleted struct {
	ID      string
	Session CheckoutSession
}

func (e CheckoutCompleted) EventID() string   { return e.ID }
func (e CheckoutCompleted) EventType() string { return TypeCheckoutCompleted }

// Unknown is any event type this service does not act on.
type Unknown struct {
	ID   string
	Type string
}

func (e Unknown) EventID() string   { return e.ID }
func (e Unknown) EventType() string { return e.Type }

// Purchase is the credit purchase a checkout session describes.
type Purchase struct {
	EventID     string
	SessionID   string
	AccountID   string
	PackageID   string
	Credits     int64
	AmountTotal int64
}

// Purchase extracts the metadata the credit grant needs. Errors wrap
// ErrMetadata.
func (e CheckoutCompleted) Purchase() (Purchase, error) {
	md := e.Session.Metadata
	p := Purchase{
		EventID:   e.ID,
		SessionID: e.Session.ID,
		AccountID: strings.TrimSpace(md["accountId"]),
		PackageID: md["packageId"],
	}
	if p.AccountID == "" {
		return p, fmt.Errorf("%w: accountId is required", ErrMetadata)
	}
	raw := strings.TrimSpace(md["credits"])
	if raw == "" {
		return p, fmt.Errorf("%w: credits is required", ErrMetadata)
	}
	credits, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return p, fmt.Errorf("%w: credits %q is not an integer", ErrMetadata, raw)
	}
	if credits <= 0 {
		return p, fmt.Errorf("%w: credits must be positive", ErrMetadata)
	}
	if credits > MaxCredits {
		return p, fmt.Errorf("%w: credits must be at most %d", ErrMetadata, MaxCredits)
	}
	p.Credits = credits
	if e.Session.AmountTotal != nil {
		p.AmountTotal = *e.Session.AmountTotal
	}
	if p.AmountTotal < 0 {
		return p, fmt.Errorf("%w: amount_total must not be negative", ErrMetadata)
	}
	if p.SessionID == "" {
		return p, fmt.Errorf("%w: session id is required", ErrMetadata)
	}
	return p, nil
}

// Verifier checks gateway signatures with the endpoint's shared secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// Parse verifies header against payload and decodes the event. It has no
// side effects.
func (v *Verifier) Parse(payload []byte, header string) (Event, error) {
	if v.secret == "" || header == "" {
		return nil, ErrSignature
	}
	evt, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) || errors.Is(err, webhook.ErrTooOld) {
			return nil, fmt.Errorf("%w: %v", ErrSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	return Decode(evt)
}

// Decode converts an already-verified gateway event into the tagged union.
func Decode(evt stripe.Event) (Event, error) {
	if string(evt.Type) != TypeCheckoutCompleted {
		return Unknown{ID: evt.ID, Type: string(evt.Type)}, nil
	}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: missing data.object", ErrPayload)
	}
	var s CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	return CheckoutCompleted{ID: evt.ID, Session: s}, nil
}

// DecodeUnverified parses a raw event body without checking a signature.
// It exists for operator replays of events exported from the gateway.
func DecodeUnverified(payload []byte) (Event, error) {
	var evt stripe.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	if evt.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrPayload)
	}
	return Decode(evt)
}
