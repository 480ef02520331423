package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	require.NotPanics(t, Init)
	require.NotPanics(t, Init)
}

func TestExposition(t *testing.T) {
	Init()
	WebhookEventsTotal.WithLabelValues("checkout.session.completed", "applied").Inc()
	CreditsGrantedTotal.Add(600)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `webhook_events_total{outcome="applied",type="checkout.session.completed"}`)
	assert.Contains(t, rr.Body.String(), "credits_granted_total")
	assert.GreaterOrEqual(t, testutil.ToFloat64(CreditsGrantedTotal), 600.0)
}
