package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/grounded-qa/internal/adapters/http"
	"github.com/kirillkom/grounded-qa/internal/bootstrap"
	"github.com/kirillkom/grounded-qa/internal/config"
	"github.com/kirillkom/grounded-qa/internal/core/ports"
	"github.com/kirillkom/grounded-qa/internal/observability/logging"
	"github.com/kirillkom/grounded-qa/internal/observability/metrics"
)

const serviceName = "api"

// observedReloader records every corpus rebuild, whichever path triggered it.
type observedReloader struct {
	next    ports.CorpusReloader
	metrics *metrics.HTTPServerMetrics
}

func (r observedReloader) Reload(ctx context.Context) (int, error) {
	n, err := r.next.Reload(ctx)
	r.metrics.RecordCorpusReload(serviceName, n, err)
	return n, err
}

func main() {
	cfg, err := config.LoadWithProfiles()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	reloader := observedReloader{next: app.CorpusUC, metrics: httpMetrics}

	chunks, err := app.ReloadCorpus(ctx, 5, 2*time.Second)
	httpMetrics.RecordCorpusReload(serviceName, chunks, err)
	if err != nil {
		logger.Error("corpus_initial_load_failed", "error", err)
	}

	go func() {
		err := app.Queue.SubscribeCorpusUpdated(ctx, func(handlerCtx context.Context, documentID string) error {
			reloadCtx, cancel := context.WithTimeout(handlerCtx, time.Minute)
			defer cancel()
			n, err := reloader.Reload(reloadCtx)
			if err != nil {
				return err
			}
			logger.Info("corpus_reloaded", "trigger_document_id", documentID, "chunks", n)
			return nil
		})
		if err != nil {
			logger.Error("corpus_subscribe_failed", "error", err)
			stop()
		}
	}()

	router := httpadapter.NewRouter(cfg, app.IngestUC, app.AnswerUC, app.Docs).
		WithCorpus(reloader).
		WithMetrics(httpMetrics).
		WithLogger(logger).
		WithHealth(func() httpadapter.Health {
			health := httpadapter.Health{
				Status:       "ok",
				CorpusChunks: app.CorpusSize(),
				OpenCircuits: app.OpenCircuits(),
			}
			if len(health.OpenCircuits) > 0 {
				health.Status = "degraded"
			}
			return health
		}).
		Handler()

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		logger.Error("api_listen_failed", "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      config.Millis(cfg.GenerateTimeoutMS)*time.Duration(cfg.Engine("").MaxRetries+1) + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "max_connections", cfg.APIMaxConnections)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
