package service

import (
	"context"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// MetricsServer exposes the default Prometheus registry on /metrics
type MetricsServer struct {
	srv      httpServer
	gatherer prometheus.Gatherer
}

func NewMetricsServer(gatherer prometheus.Gatherer, logger log.Logger) *MetricsServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = log.New()
	}
	return &MetricsServer{
		srv:      httpServer{name: "metrics", log: logger},
		gatherer: gatherer,
	}
}

func (m *MetricsServer) Handler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(hdlr)
}

// Start binds addr and serves in the background
func (m *MetricsServer) Start(ctx context.Context, addr string) error {
	return m.srv.start(ctx, addr, m.Handler())
}

// Addr returns the bound address, nil when not running
func (m *MetricsServer) Addr() net.Addr {
	return m.srv.listenAddr()
}

func (m *MetricsServer) Shutdown() error {
	return m.srv.shutdown()
}
