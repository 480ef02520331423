package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/baharkarakas/travel-credits/internal/app"
	"github.com/baharkarakas/travel-credits/internal/config"
	"github.com/baharkarakas/travel-credits/internal/logger"
	"github.com/baharkarakas/travel-credits/internal/services"
	"github.com/baharkarakas/travel-credits/internal/worker"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tools for the travel credit ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(accountCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env loads configuration the same way the server does, without
// requiring the webhook secret.
func env() (config.Config, *slog.Logger) {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)
	return cfg, log
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env()
			if cfg.StoreDriver != config.DriverPostgres {
				return fmt.Errorf("migrate needs STORE_DRIVER=%s, got %q", config.DriverPostgres, cfg.StoreDriver)
			}
			s, err := app.OpenStores(cmd.Context(), cfg, log, true)
			if err != nil {
				return err
			}
			s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <file|dir>...",
		Short: "Re-apply exported checkout events",
		Long: `Replay feeds exported gateway events through the credit reconciler.

Each argument is a JSON file with one event or an array of events, or a
directory of *.json files. Signatures are not verified. Sessions that were
already recorded are skipped, so replaying an export twice is safe.

REDIS_ADDR must point at the same Redis the server uses. A session whose
payment record failed to write is only marked applied there, and replay
refuses to run without it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env()
			if err := app.CheckReplayGuard(cfg); err != nil {
				return err
			}
			s, err := app.OpenStores(cmd.Context(), cfg, log, false)
			if err != nil {
				return err
			}
			defer s.Close()

			wp := worker.NewPool(1, 64)
			defer wp.Stop()

			rep, err := app.Replay(cmd.Context(), app.NewReconciler(s, cfg, wp, log), log, args...)
			fmt.Fprintln(cmd.OutOrStdout(), rep)
			if err != nil {
				return err
			}
			if rep.Failed > 0 {
				return fmt.Errorf("%d events failed, rerun to retry them", rep.Failed)
			}
			return nil
		},
	}
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account <identity>",
		Short: "Show an account balance and its recent payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env()
			s, err := app.OpenStores(cmd.Context(), cfg, log, false)
			if err != nil {
				return err
			}
			defer s.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			svc := services.NewLedgerService(s.Accounts, s.Payments)
			acc, err := svc.Account(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("account %s: %w", args[0], err)
			}
			recs, err := svc.Payments(cmd.Context(), args[0], limit, 0)
			if err != nil {
				return fmt.Errorf("payments %s: %w", args[0], err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"account": acc, "payments": recs})
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum payments to list")
	return cmd
}
