package service

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/ethereum-optimism/infra/op-treerunner/metrics"
	"github.com/ethereum/go-ethereum/log"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = 8080
)

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	healthzAddr    string
	metricsAddr    string
	metricsEnabled bool
	log            log.Logger
}

// Config selects where the service listens
type Config struct {
	HealthzAddr    string // defaults to 0.0.0.0:8080
	MetricsEnabled bool
	MetricsAddr    string
}

func New(cfg Config, logger log.Logger) *Service {
	if logger == nil {
		logger = log.New()
	}
	if cfg.HealthzAddr == "" {
		cfg.HealthzAddr = net.JoinHostPort(HealthzHost, strconv.Itoa(HealthzPort))
	}
	s := &Service{
		Healthz:        NewHealthzServer(logger),
		Metrics:        NewMetricsServer(nil, logger),
		healthzAddr:    cfg.HealthzAddr,
		metricsAddr:    cfg.MetricsAddr,
		metricsEnabled: cfg.MetricsEnabled,
		log:            logger,
	}
	return s
}

// Start binds the healthz server, and the metrics server when enabled. Both
// are listening when Start returns without error.
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("service starting")

	s.log.Info("starting healthz server", "addr", s.healthzAddr)
	if err := s.Healthz.Start(ctx, s.healthzAddr); err != nil {
		metrics.RecordErrorDetails("error starting healthz server", err)
		return fmt.Errorf("failed to start healthz server: %w", err)
	}

	if s.metricsEnabled {
		s.log.Info("starting metrics server", "addr", s.metricsAddr)
		if err := s.Metrics.Start(ctx, s.metricsAddr); err != nil {
			metrics.RecordErrorDetails("error starting metrics server", err)
			_ = s.Healthz.Shutdown()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.log.Info("service started")
	return nil
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")

	if err := s.Healthz.Shutdown(); err != nil {
		s.log.Warn("error stopping healthz server", "err", err)
	}
	s.log.Info("healthz stopped")

	if err := s.Metrics.Shutdown(); err != nil {
		s.log.Warn("error stopping metrics server", "err", err)
	}
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
}
