package service

import (
	"context"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

type HealthzServer struct {
	srv httpServer
	log log.Logger
}

func NewHealthzServer(logger log.Logger) *HealthzServer {
	if logger == nil {
		logger = log.New()
	}
	return &HealthzServer{
		srv: httpServer{name: "healthz", log: logger},
		log: logger,
	}
}

func (h *HealthzServer) Handler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(hdlr)
}

// Start binds addr and serves in the background
func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	return h.srv.start(ctx, addr, h.Handler())
}

// Addr returns the bound address, nil when not running
func (h *HealthzServer) Addr() net.Addr {
	return h.srv.listenAddr()
}

func (h *HealthzServer) Shutdown() error {
	return h.srv.shutdown()
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}
