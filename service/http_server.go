package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-treerunner/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// shutdownTimeout bounds how long in-flight requests are drained on Shutdown
const shutdownTimeout = 5 * time.Second

// httpServer binds its listener synchronously so Shutdown always sees a
// server that Start returned for.
type httpServer struct {
	name string
	log  log.Logger

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

func (s *httpServer) start(ctx context.Context, addr string, handler http.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New(s.name + " server already started")
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.server = srv
	s.addr = l.Addr()

	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error serving "+s.name, "err", err)
			metrics.RecordErrorDetails("error serving "+s.name, err)
		}
	}()
	return nil
}

func (s *httpServer) listenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *httpServer) shutdown() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.addr = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
