package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/soaringjerry/pia-workflow/internal/api"
	"github.com/soaringjerry/pia-workflow/internal/config"
	"github.com/soaringjerry/pia-workflow/internal/middleware"
	"github.com/soaringjerry/pia-workflow/internal/services"
	"github.com/soaringjerry/pia-workflow/internal/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "pia-server:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("pia-server", pflag.ContinueOnError)
	configPath := flags.String("config", utils.SafeEnv("PIA_CONFIG", ""), "path to YAML config file")
	addr := flags.String("addr", "", "listen address (overrides config)")
	dbPath := flags.String("db", "", "SQLite database path (overrides config)")
	migrateOnly := flags.Bool("migrate-only", false, "apply migrations and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.Log)
	if cfg.UsesDevSecret() {
		logger.Warn("using the built-in development JWT secret; set PIA_JWT_SECRET in production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			logger.Warn("close database", "error", cerr)
		}
	}()
	if *migrateOnly {
		return nil
	}

	issuer, err := middleware.NewTokenIssuer(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	authSvc := services.NewAuthService(store, issuer.Sign, issuer.Verify, cfg.Auth.TokenTTL.Std())
	router := api.NewRouter(authSvc, services.NewAssessmentService(store), services.NewThreadService(store), logger)

	commit := utils.SafeEnv("PIA_COMMIT", "dev")
	buildTime := utils.SafeEnv("PIA_BUILD_TIME", "")

	mux := http.NewServeMux()
	router.Register(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := conn.PingContext(r.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"ok": code == http.StatusOK, "name": "PIA Workflow API", "status": status, "commit": commit})
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"commit": commit, "build_time": buildTime})
	})
	if cfg.HTTP.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.HTTP.StaticDir)))
	}

	handler := middleware.Chain(mux,
		middleware.RequestID,
		middleware.AccessLog(logger),
		middleware.SecureHeaders,
		middleware.CORS(cfg.HTTP.CORSOrigins),
		middleware.NoStore,
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("PIA server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
