package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCollector_HeadendMetrics(t *testing.T) {
	c := NewCollector()

	c.RequestSent("TOTALS_GET", 14)
	c.ReplyReceived("TOTALS_GET", "OK", 16, 3*time.Millisecond)
	c.ReplyReceived("DATA_GET", "BUSY", 12, time.Millisecond)
	c.CallFailed("busy")
	c.SessionOpened()
	c.LoginAttempt("ok")

	body := scrape(t, c.Handler())
	assert.Contains(t, body, `ca_headend_requests_total{command="TOTALS_GET"} 1`)
	assert.Contains(t, body, `ca_headend_replies_total{command="DATA_GET",status="BUSY"} 1`)
	assert.Contains(t, body, `ca_headend_errors_total{kind="busy"} 1`)
	assert.Contains(t, body, "ca_headend_bytes_sent_total 14")
	assert.Contains(t, body, "ca_headend_bytes_received_total 28")
	assert.Contains(t, body, "ca_headend_sessions_open 1")
	assert.Contains(t, body, `ca_headend_logins_total{result="ok"} 1`)
	assert.Contains(t, body, "ca_headend_request_duration_seconds_bucket")

	c.SessionClosed()
	assert.Contains(t, scrape(t, c.Handler()), "ca_headend_sessions_open 0")
}

func TestCollector_SyncMetrics(t *testing.T) {
	c := NewCollector()
	at := time.Unix(1760000000, 0)

	c.SyncFinished("ok", 2*time.Second, at)
	c.SyncFinished("error", time.Second, at.Add(time.Hour))
	c.EntityProcessed("ok")
	c.EntityProcessed("ok")
	c.CardWritten()

	body := scrape(t, c.Handler())
	assert.Contains(t, body, `ca_sync_runs_total{result="ok"} 1`)
	assert.Contains(t, body, `ca_sync_runs_total{result="error"} 1`)
	assert.Contains(t, body, "ca_sync_last_success_timestamp_seconds 1.76e+09")
	assert.Contains(t, body, `ca_sync_entities_total{result="ok"} 2`)
	assert.Contains(t, body, "ca_sync_cards_written_total 1")
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RequestSent("LOGOUT", 12)
		c.ReplyReceived("LOGOUT", "OK", 12, 0)
		c.CallFailed("transport")
		c.SessionOpened()
		c.SessionClosed()
		c.LoginAttempt("ok")
		c.SyncFinished("ok", 0, time.Now())
		c.EntityProcessed("ok")
		c.CardWritten()
	})
}

func TestPrometheusServer(t *testing.T) {
	collector := NewCollector()
	collector.CardWritten()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := NewPrometheusServer(PrometheusConfig{Enabled: true, Host: "127.0.0.1", Port: 0}, collector, nil)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(ctx)
	}()

	resp, err := http.Get("http://" + server.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "ca_sync_cards_written_total 1")

	cancel()
	select {
	case err := <-errChan:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Server did not stop in time")
	}
}

func TestPrometheusServer_Disabled(t *testing.T) {
	server := NewPrometheusServer(PrometheusConfig{Enabled: false}, NewCollector(), nil)
	assert.NoError(t, server.Start(context.Background()))
}

func TestPrometheusServer_BindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	srv := NewPrometheusServer(PrometheusConfig{Enabled: true, Host: "127.0.0.1", Port: port}, NewCollector(), nil)
	require.Error(t, srv.Start(context.Background()))

	addr := make(chan string, 1)
	go func() { addr <- srv.Addr() }()
	select {
	case a := <-addr:
		assert.Empty(t, a)
	case <-time.After(time.Second):
		t.Fatal("Addr blocked after a failed bind")
	}
}
