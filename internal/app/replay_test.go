package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/travel-credits/internal/config"
	"github.com/baharkarakas/travel-credits/internal/idempotency"
	"github.com/baharkarakas/travel-credits/internal/models"
	"github.com/baharkarakas/travel-credits/internal/repository/memory"
	"github.com/baharkarakas/travel-credits/internal/services"
)

func event(t *testing.T, typ, session, account, credits string) map[string]any {
	t.Helper()
	return map[string]any{
		"id":     "evt_" + session,
		"object": "event",
		"type":   typ,
		"data": map[string]any{"object": map[string]any{
			"id":           session,
			"amount_total": 1000,
			"metadata":     map[string]string{"accountId": account, "credits": credits},
		}},
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "a.json"), event(t, "checkout.session.completed", "sess_1", "u1", "500"))
	writeJSON(t, filepath.Join(dir, "b.json"), []any{
		event(t, "checkout.session.completed", "sess_1", "u1", "500"),
		event(t, "checkout.session.completed", "sess_2", "u1", "50"),
		event(t, "checkout.session.completed", "sess_3", "u1", "zero"),
		event(t, "invoice.paid", "in_1", "u1", "5"),
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o600))

	accounts, pays := memory.NewAccounts(), memory.NewPayments()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := services.NewCreditReconciler(accounts, pays, idempotency.NewMemoryGuard(0, 0), nil, quiet,
		services.ReconcilerOptions{WelcomeBonus: 100})

	rep, err := Replay(context.Background(), rec, quiet, dir)
	require.NoError(t, err)
	assert.Equal(t, ReplayReport{Applied: 2, Duplicate: 1, Ignored: 1, Rejected: 1}, rep)

	acc, err := accounts.FindByIdentity(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(650), acc.Credits)
	assert.Equal(t, 2, pays.Len())

	// replaying the same export again changes nothing
	rep, err = Replay(context.Background(), rec, quiet, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Duplicate)
	assert.Equal(t, 0, rep.Applied)
}

func TestReplay_MissingPath(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := Replay(context.Background(), nil, quiet, filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestOpenStores_Memory(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := OpenStores(context.Background(), configFor("memory"), quiet, false)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Pinger.Ping(context.Background()))
	assert.IsType(t, &idempotency.MemoryGuard{}, s.Guard)
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := OpenStores(context.Background(), configFor("sqlite"), quiet, false)
	assert.ErrorContains(t, err, "sqlite")
}

func configFor(driver string) config.Config {
	return config.Config{StoreDriver: driver}
}

func TestCheckReplayGuard(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		err  error
	}{
		{"postgres without redis", config.Config{StoreDriver: config.DriverPostgres}, ErrNoSharedGuard},
		{"mongo without redis", config.Config{StoreDriver: config.DriverMongo}, ErrNoSharedGuard},
		{"postgres with redis", config.Config{StoreDriver: config.DriverPostgres, RedisAddr: "localhost:6379"}, nil},
		{"memory", config.Config{StoreDriver: config.DriverMemory}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, CheckReplayGuard(tt.cfg), tt.err)
		})
	}
}

// A session whose record was lost is only known to the server's guard. A
// replay with its own guard would grant it again, which CheckReplayGuard
// prevents for every shared store.
func TestReplay_LostRecordNeedsSharedGuard(t *testing.T) {
	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts, pays := memory.NewAccounts(), memory.NewPayments()
	shared := idempotency.NewMemoryGuard(0, 0)

	server := services.NewCreditReconciler(accounts, lossyPayments{pays}, shared, nil, quiet,
		services.ReconcilerOptions{WelcomeBonus: 100})
	_, err := server.Apply(ctx, services.CreditGrant{SessionID: "sess_1", AccountID: "u1", Credits: 500})
	require.NoError(t, err)
	require.Equal(t, 0, pays.Len())

	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "a.json"), event(t, "checkout.session.completed", "sess_1", "u1", "500"))

	replayer := services.NewCreditReconciler(accounts, pays, shared, nil, quiet,
		services.ReconcilerOptions{WelcomeBonus: 100})
	rep, err := Replay(ctx, replayer, quiet, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Duplicate)

	acc, err := accounts.FindByIdentity(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(600), acc.Credits)

	assert.ErrorIs(t, CheckReplayGuard(config.Config{StoreDriver: config.DriverPostgres}), ErrNoSharedGuard)
}

type lossyPayments struct{ *memory.Payments }

func (lossyPayments) Append(context.Context, models.PaymentRecord) (bool, error) {
	return false, errors.New("write timeout")
}
