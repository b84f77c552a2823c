package service

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-treerunner/metrics"
	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthzHandler(t *testing.T) {
	srv := httptest.NewServer(NewHealthzServer(log.NewLogger(log.DiscardHandler())).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsHandler(t *testing.T) {
	metrics.RecordRun(types.StatusPassed, 1, 0, 0, 0)

	srv := httptest.NewServer(NewMetricsServer(nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "treerunner_runs_total")
}

func TestNewDefaults(t *testing.T) {
	s := New(Config{}, nil)
	assert.Equal(t, "0.0.0.0:8080", s.healthzAddr)
	assert.False(t, s.metricsEnabled)

	// servers that never started shut down cleanly
	s.Shutdown()
}

func newLocalService(t *testing.T) *Service {
	t.Helper()
	return New(Config{
		HealthzAddr:    "127.0.0.1:0",
		MetricsEnabled: true,
		MetricsAddr:    "127.0.0.1:0",
	}, log.NewLogger(log.DiscardHandler()))
}

func TestServiceServesAfterStart(t *testing.T) {
	s := newLocalService(t)
	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown()

	resp, err := http.Get("http://" + s.Healthz.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + s.Metrics.Addr().String() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestShutdownRightAfterStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newLocalService(t)
	require.NoError(t, s.Start(ctx))

	healthzAddr := s.Healthz.Addr().String()
	metricsAddr := s.Metrics.Addr().String()

	// a cancelled start context must not prevent a clean shutdown
	cancel()
	s.Shutdown()
	assert.Nil(t, s.Healthz.Addr())
	assert.Nil(t, s.Metrics.Addr())

	for _, addr := range []string{healthzAddr, metricsAddr} {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			conn.Close()
		}
		assert.Error(t, err, "server at %s still listening after Shutdown", addr)
	}
}

func TestStartFailsOnBusyAddress(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	s := New(Config{HealthzAddr: l.Addr().String()}, log.NewLogger(log.DiscardHandler()))
	err = s.Start(context.Background())
	require.ErrorContains(t, err, "failed to start healthz server")
	assert.Nil(t, s.Healthz.Addr())
}

func TestServerStartTwice(t *testing.T) {
	h := NewHealthzServer(log.NewLogger(log.DiscardHandler()))
	require.NoError(t, h.Start(context.Background(), "127.0.0.1:0"))
	defer h.Shutdown() //nolint:errcheck

	require.ErrorContains(t, h.Start(context.Background(), "127.0.0.1:0"), "already started")
}
