package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/kiranshivaraju/retrainer/internal/api"
	"github.com/kiranshivaraju/retrainer/internal/api/handler"
	mw "github.com/kiranshivaraju/retrainer/internal/api/middleware"
	"github.com/kiranshivaraju/retrainer/internal/api/response"
	"github.com/kiranshivaraju/retrainer/internal/blobstore"
	"github.com/kiranshivaraju/retrainer/internal/cache"
	"github.com/kiranshivaraju/retrainer/internal/results"
	"github.com/kiranshivaraju/retrainer/internal/store"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func registerServeCommand(root *cobra.Command) {
	var requestsPerMin int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			})))

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.cfg.Server.APIKeyHash == "" {
					return errors.New("RETRAINER_API_KEY_HASH is required for serve")
				}
				slog.Info("config loaded",
					"env", a.cfg.Server.Env,
					"storage", a.cfg.Storage.Backend,
					"ledger", a.store != nil,
				)
				return serve(ctx, a, requestsPerMin)
			})
		},
	}
	cmd.Flags().IntVar(&requestsPerMin, "rate-limit", 60, "Requests per minute allowed per API key")

	root.AddCommand(cmd)
}

func newRouter(a *app, requestsPerMin int) http.Handler {
	svc := a.service()

	eps := handler.Endpoints{Primary: a.cfg.PrimaryEndpoint()}
	if ep, ok := a.cfg.SecondaryEndpoint(); ok {
		eps.Secondary = &ep
	}

	deps := api.Dependencies{
		Auth:      mw.NewAuth(a.cfg.Server.APIKeyHash),
		RateLimit: mw.NewRateLimit(a.cache, requestsPerMin),

		HealthHandler:  healthHandler(a.store, a.cache, a.bucket),
		MetricsHandler: a.metrics.Handler(),

		TriggerRun:    handler.NewTriggerRunHandler(svc, eps),
		GetRun:        handler.NewGetRunHandler(a.store, svc),
		LatestResults: handler.NewLatestResultsHandler(a.results),
	}
	if a.store != nil {
		deps.ListRuns = handler.NewListRunsHandler(a.store)
	}

	return api.NewRouter(deps)
}

func serve(ctx context.Context, a *app, requestsPerMin int) error {
	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(a, requestsPerMin),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks ledger, cache and storage connectivity.
// A deployment without a ledger reports it as disabled, not degraded.
func healthHandler(s store.Store, c cache.Cache, b blobstore.Bucket) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"storage":  "ok",
		}

		if s == nil {
			checks["database"] = "disabled"
		} else if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if _, err := b.Exists(r.Context(), results.QueryBlobName); err != nil {
			checks["storage"] = "degraded"
		}

		for _, v := range checks {
			if v == "degraded" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
