package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/baharkarakas/travel-credits/internal/config"
	"github.com/baharkarakas/travel-credits/internal/payments"
	"github.com/baharkarakas/travel-credits/internal/services"
)

// ErrNoSharedGuard is returned by CheckReplayGuard when replay would run
// without seeing the server's session claims.
var ErrNoSharedGuard = errors.New("replay needs REDIS_ADDR so it shares session claims with the server")

// CheckReplayGuard reports whether cfg lets a separate replay process see
// which sessions the server already applied. A session whose payment record
// was lost is only marked in the guard, so a process-local guard would
// grant it again.
func CheckReplayGuard(cfg config.Config) error {
	if cfg.RedisAddr == "" && cfg.StoreDriver != config.DriverMemory {
		return ErrNoSharedGuard
	}
	return nil
}

type Applier interface {
	Apply(ctx context.Context, g services.CreditGrant) (services.GrantResult, error)
}

// ReplayReport counts what a replay did with each event it read.
type ReplayReport struct {
	Applied   int
	Duplicate int
	Ignored   int
	Rejected  int
	Failed    int
}

func (r ReplayReport) String() string {
	return fmt.Sprintf("applied=%d duplicate=%d ignored=%d rejected=%d failed=%d",
		r.Applied, r.Duplicate, r.Ignored, r.Rejected, r.Failed)
}

// Replay feeds exported gateway events through rec. Each path is a JSON
// file holding one event or an array of events, or a directory of such
// files. Signatures are not checked. Per-event failures are counted and
// logged; the returned error is reserved for unreadable input.
func Replay(ctx context.Context, rec Applier, log *slog.Logger, paths ...string) (ReplayReport, error) {
	var rep ReplayReport
	files, err := expand(paths)
	if err != nil {
		return rep, err
	}
	for _, f := range files {
		raws, err := readEvents(f)
		if err != nil {
			return rep, err
		}
		for _, raw := range raws {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			replayOne(ctx, rec, log.With("file", f), raw, &rep)
		}
	}
	return rep, nil
}

func replayOne(ctx context.Context, rec Applier, log *slog.Logger, raw []byte, rep *ReplayReport) {
	evt, err := payments.DecodeUnverified(raw)
	if err != nil {
		rep.Rejected++
		log.Warn("replay: undecodable event", "err", err)
		return
	}
	cc, ok := evt.(payments.CheckoutCompleted)
	if !ok {
		rep.Ignored++
		return
	}
	p, err := cc.Purchase()
	if err != nil {
		rep.Rejected++
		log.Warn("replay: bad metadata", "event_id", cc.ID, "err", err)
		return
	}

	res, err := rec.Apply(ctx, services.CreditGrant{
		EventID:     p.EventID,
		SessionID:   p.SessionID,
		AccountID:   p.AccountID,
		PackageID:   p.PackageID,
		Credits:     p.Credits,
		AmountTotal: p.AmountTotal,
	})
	switch {
	case errors.Is(err, services.ErrMalformedEvent):
		rep.Rejected++
		log.Warn("replay: grant rejected", "event_id", cc.ID, "err", err)
	case err != nil:
		rep.Failed++
		log.Error("replay: grant failed", "event_id", cc.ID, "session_id", p.SessionID, "err", err)
	case res.Outcome == services.OutcomeDuplicate:
		rep.Duplicate++
	default:
		rep.Applied++
	}
}

func expand(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			out = append(out, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.json"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

func readEvents(path string) ([]json.RawMessage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if !bytes.HasPrefix(b, []byte("[")) {
		return []json.RawMessage{b}, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}
