package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/evcraddock/front-desk/internal/config"
	"github.com/evcraddock/front-desk/internal/db"
	"github.com/evcraddock/front-desk/internal/docstore"
	"github.com/evcraddock/front-desk/internal/email"
	"github.com/evcraddock/front-desk/internal/logging"
	"github.com/evcraddock/front-desk/internal/metrics"
	"github.com/evcraddock/front-desk/internal/web"
)

const (
	shutdownTimeout       = 10 * time.Second
	sessionCleanupPeriod  = time.Hour
	serverReadHeaderLimit = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	var (
		port   int
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI and API",
		Long: `Start the HTTP server: the public registration form, the staff dashboard,
the JSON API and the live visit stream.

Settings come from --config (YAML) and FD_* environment variables.
FD_ADMIN_EMAIL is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Port = port
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	logging.Setup(cfg.DevMode)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeDB(database)

	store := docstore.NewSQLiteStore(database)
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing document store", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := web.NewServer(database, store, cfg,
		web.WithMetrics(metrics.New(reg), reg),
		web.WithNotifier(email.NewHostNotifier(cfg.SMTP, cfg.BaseURL, cfg.DevMode)),
	)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: serverReadHeaderLimit,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server starting", "addr", httpSrv.Addr, "base_url", cfg.BaseURL, "dev_mode", cfg.DevMode)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return cleanupSessions(ctx, srv, sessionCleanupPeriod)
	})

	return g.Wait()
}

// cleanupSessions deletes expired sessions every period until ctx ends.
func cleanupSessions(ctx context.Context, srv *web.Server, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := srv.Sessions().Cleanup()
			if err != nil {
				slog.Warn("cleaning up sessions", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
