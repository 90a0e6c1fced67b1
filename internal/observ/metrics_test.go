package observ

import (
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("/v1/channels/:id/messages", "POST", 201, 12*time.Millisecond)
	m.ObserveEvent("message.created", "hub", nil)
	m.ObserveEvent("message.created", "search", errors.New("down"))
	m.ConnectionOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`huddle_http_requests_total{method="POST",route="/v1/channels/:id/messages",status="201"} 1`,
		`huddle_events_published_total{kind="message.created",outcome="error",publisher="search"} 1`,
		`huddle_websocket_connections 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("/x", "GET", 200, time.Millisecond)
	m.ObserveEvent("k", "p", nil)
	m.ConnectionOpened()
	m.ConnectionClosed()
}

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	path := t.TempDir() + "/huddle.log"
	logger, err := NewLogger("production", "debug", FileOptions{Path: path, MaxAgeDays: 1})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()

	files, _ := filepath.Glob(path + ".*")
	if len(files) == 0 {
		t.Fatal("no rotated log file written")
	}
}
