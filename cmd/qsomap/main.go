package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/qso-map-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/qso-map-service/internal/adapter/kafka"
	"github.com/couchcryptid/qso-map-service/internal/adapter/qrz"
	"github.com/couchcryptid/qso-map-service/internal/adapter/udp"
	"github.com/couchcryptid/qso-map-service/internal/adapter/websocket"
	"github.com/couchcryptid/qso-map-service/internal/config"
	"github.com/couchcryptid/qso-map-service/internal/domain"
	"github.com/couchcryptid/qso-map-service/internal/hub"
	"github.com/couchcryptid/qso-map-service/internal/observability"
	"github.com/couchcryptid/qso-map-service/internal/pipeline"
	"github.com/couchcryptid/qso-map-service/internal/queue"
	"github.com/couchcryptid/qso-map-service/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var lookup domain.Lookup = qrz.NewClient(cfg.QRZUser, cfg.QRZPassword, cfg.QRZURL,
		cfg.LookupTimeout, cfg.LookupRateLimit, logger, metrics)
	if cfg.LookupCacheSize > 0 {
		lookup = qrz.NewCachedLookup(lookup, cfg.LookupCacheSize, metrics)
		logger.Info("lookup cache enabled", "cache_size", cfg.LookupCacheSize)
	}

	contacts := queue.New[domain.ContactRecord]()
	contacts.ObserveDepth(metrics.QueueDepth)
	broadcast := hub.New(cfg.HubCapacity, logger, metrics)

	listener := udp.NewListener(cfg.BindAddr, contacts, logger, metrics)
	enricher := pipeline.New(lookup, broadcast, cfg.LookupTimeout, logger, metrics)

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:      cfg.HTTPAddr,
		Home:      cfg.Home,
		AssetsDir: cfg.AssetsDir,
	}, websocket.NewHandler(broadcast, logger), httpadapter.Readiness{listener, enricher}, logger)

	tree := supervisor.NewTree(logger, supervisor.TreeConfig{ShutdownTimeout: cfg.ShutdownTimeout})
	tree.AddPipelineService(supervisor.NewListenerService(listener))
	tree.AddPipelineService(supervisor.NewEnricherService(enricher, contacts, broadcast))
	tree.AddAPIService(supervisor.NewHTTPService(srv, cfg.ShutdownTimeout))

	var mirror *kafkaadapter.Mirror
	if cfg.KafkaEnabled {
		mirror = kafkaadapter.NewMirror(cfg, broadcast, logger, metrics)
		tree.AddPipelineService(supervisor.NewMirrorService(mirror))
		logger.Info("kafka mirror enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("qso map starting",
		"bind_addr", cfg.BindAddr,
		"http_addr", cfg.HTTPAddr,
		"home", cfg.Home,
	)
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("supervisor error", "error", err)
	}
	logger.Info("shutting down")

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logger.Warn("service did not stop in time", "service", svc.Name)
		}
	}
	if mirror != nil {
		if err := mirror.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
