// Package main is the entry point for the portal API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/onnwee/portal/internal/api"
	"github.com/onnwee/portal/internal/archive"
	"github.com/onnwee/portal/internal/audit"
	"github.com/onnwee/portal/internal/config"
	"github.com/onnwee/portal/internal/middleware"
	"github.com/onnwee/portal/internal/tracing"
)

const serviceName = "portal-api"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Portal API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			slog.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	tp, err := tracing.NewProvider(cfg.TracingConfig(serviceName, version))
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}
	audit.SetDefault(a.auditLogger)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "archive_mode", a.archive.Mode())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownBudget(cfg))
	defer cancel()

	code := 0
	if err := shutdown(ctx, server, a.archive, tp); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		code = 1
	}

	logger.Info("server stopped")
	os.Exit(code)
}

// serverGrace bounds how long in-flight HTTP requests may run on shutdown.
const serverGrace = 10 * time.Second

// shutdownBudget covers the server grace period plus one full archive
// upload timeout, so records dispatched by the last requests can still
// reach the store.
func shutdownBudget(cfg *config.Config) time.Duration {
	return serverGrace + time.Duration(cfg.ArchiveTimeoutSeconds)*time.Second + 2*time.Second
}

// app holds the wired server components.
type app struct {
	handler     http.Handler
	archive     *archive.Client
	auditLogger *audit.Logger
	registry    *prometheus.Registry
}

// newApp wires the archive client, audit logger, metrics and routes.
// archiveOpts are applied after the defaults derived from cfg.
func newApp(cfg *config.Config, logger *slog.Logger, archiveOpts ...archive.Option) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(reg); err != nil {
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}
	archiveMetrics := archive.NewMetrics()
	if err := archiveMetrics.Register(reg); err != nil {
		return nil, fmt.Errorf("failed to register archive metrics: %w", err)
	}

	opts := append([]archive.Option{
		archive.WithSigner(cfg.Signer()),
		archive.WithLogger(logger),
		archive.WithMetrics(archiveMetrics),
	}, archiveOpts...)
	client, err := archive.NewClient(cfg.ArchiveConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client: %w", err)
	}
	auditLogger := audit.NewLogger(client)

	health := api.NewHealthHandlers(api.HealthHandlersConfig{
		Archive:        client,
		MetricsEnabled: true,
	})
	admin := api.NewArchiveHandlers(api.ArchiveHandlersConfig{
		Archive:  client,
		Settings: archiveSettings(cfg),
		Logger:   auditLogger,
	})
	accessLog := audit.Middleware(auditLogger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", root)
	mux.HandleFunc("GET /health", health.Health)
	mux.HandleFunc("GET /ready", health.Ready)
	mux.Handle("GET /metrics", middleware.InternalAuth(cfg.InternalToken)(middleware.MetricsHandler(reg)))
	mux.Handle("GET /admin/archive/status", accessLog(http.HandlerFunc(admin.Status)))
	mux.Handle("POST /admin/archive/test", accessLog(http.HandlerFunc(admin.Test)))

	// RequestID -> Tracing -> ActorHeaders -> Logging -> HTTPMetrics -> mux
	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.ActorHeaders(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.RequestID(handler)

	return &app{
		handler:     handler,
		archive:     client,
		auditLogger: auditLogger,
		registry:    reg,
	}, nil
}

func root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	body := fmt.Sprintf(`{"service":%q,"version":%q}`, serviceName, version)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}

// archiveSettings is the masked archive configuration shown by the status
// endpoint.
func archiveSettings(cfg *config.Config) map[string]string {
	settings := make(map[string]string)
	for k, v := range cfg.LogSummary() {
		if strings.HasPrefix(k, "archive_") {
			settings[k] = v
		}
	}
	return settings
}

// shutdown stops accepting requests, then drains dispatched archive uploads,
// then flushes spans. Uploads still running when ctx expires are written to
// the fallback sink.
func shutdown(ctx context.Context, server *http.Server, client *archive.Client, tp *tracing.Provider) error {
	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}

	if err := client.Drain(ctx); err != nil {
		errs = append(errs, err)
	}

	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
