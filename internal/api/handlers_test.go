package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/config"
	"github.com/sentrymon/engine/internal/engine"
	"github.com/sentrymon/engine/internal/state"
	"github.com/sentrymon/engine/internal/store"
)

// noopAlertSink satisfies state.AlertSink without touching the alert
// pipeline — these tests exercise the HTTP layer, not alerting.
type noopAlertSink struct{}

func (noopAlertSink) Open(context.Context, *store.Monitor, string, *store.MonitorState, *check.Result) error {
	return nil
}
func (noopAlertSink) Upgrade(context.Context, *store.Monitor, *store.MonitorState, *check.Result) error {
	return nil
}
func (noopAlertSink) Recover(context.Context, *store.Monitor, int64) error { return nil }

func testServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "sentrymon-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	st, err := store.NewSQLiteStore(tmpFile.Name(), 2)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.Defaults()

	stateMgr := state.NewManager(st, noopAlertSink{}, logger)
	executor := engine.NewExecutor(st, nil, stateMgr, logger)
	scheduler := engine.NewScheduler(executor, cfg.Monitor.Workers, logger)

	return NewServer(context.Background(), cfg, st, executor, scheduler, logger, "test")
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", resp["status"])
	}
}

func TestListMonitorsEmpty(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest("GET", "/api/monitors", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func validMonitorPayload() map[string]interface{} {
	return map[string]interface{}{
		"name":            "Example URL",
		"type":            "url",
		"target":          "https://example.com",
		"period_minutes":  5,
		"timeout_seconds": 10,
	}
}

func TestMonitorCRUD(t *testing.T) {
	srv := testServer(t)

	body, _ := json.Marshal(validMonitorPayload())
	req := httptest.NewRequest("POST", "/api/monitors", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created store.Monitor
	json.NewDecoder(w.Body).Decode(&created)
	if created.ID == 0 {
		t.Fatal("expected non-zero ID")
	}

	req = httptest.NewRequest("GET", "/api/monitors/1", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	updatePayload := validMonitorPayload()
	updatePayload["name"] = "Renamed"
	body, _ = json.Marshal(updatePayload)
	req = httptest.NewRequest("PUT", "/api/monitors/1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest("DELETE", "/api/monitors/1", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest("GET", "/api/monitors/1", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", w.Code)
	}
}

func TestCreateMonitorRejectsInvalidType(t *testing.T) {
	srv := testServer(t)

	payload := validMonitorPayload()
	payload["type"] = "carrier-pigeon"
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest("POST", "/api/monitors", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSchedulerLifecycleEndpoints(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest("POST", "/api/scheduler/start", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest("GET", "/api/scheduler/status", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest("POST", "/api/scheduler/stop", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestExecuteRejectsInvalidPeriod(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest("GET", "/api/monitors/execute?period=sometimes", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSecureHeaders(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	expected := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'",
	}

	for k, v := range expected {
		if got := w.Header().Get(k); got != v {
			t.Fatalf("header %s: expected %q, got %q", k, v, got)
		}
	}
}

func TestRequestID(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if id := w.Header().Get("X-Request-ID"); id == "" {
		t.Fatal("expected X-Request-ID header")
	}
}
