package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"optioncore/internal/events"
	"optioncore/internal/monitor"
	"optioncore/pkg/license"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	const schema = `
	CREATE TABLE monitor_signal_snapshot (
		variant TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (variant, instance_id)
	);
	CREATE TABLE monitor_signal_event (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		idempotency_key TEXT NOT NULL UNIQUE,
		variant TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		vt_symbol TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

const testLicenseSecret = "test-license-secret"
const testJWTSecret = "test-jwt-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := monitor.NewRepository(openTestDB(t))
	metrics := monitor.NewMetrics(monitor.DefaultConfig())
	pushBus := events.NewBus()
	licenseMgr := license.NewManager(testLicenseSecret)

	server := NewServer(repo, metrics, pushBus, nil, "inst-1", testJWTSecret, licenseMgr)
	httpServer := httptest.NewServer(server.Router)
	t.Cleanup(httpServer.Close)
	return httpServer
}

func validLicenseToken(t *testing.T) string {
	t.Helper()
	mid, err := license.MachineID()
	if err != nil {
		t.Fatalf("MachineID: %v", err)
	}
	token, err := license.CreateToken(testLicenseSecret, mid, time.Hour)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	return token
}

func authedRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	token, err := GenerateOperatorToken(testJWTSecret, "op-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("GenerateOperatorToken: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-License-Token", validLicenseToken(t))
	return req
}

func TestHealthIsUnauthenticated(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMonitorSnapshotRejectsMissingAuth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/monitor/snapshot/vol-15m")
	if err != nil {
		t.Fatalf("GET /monitor/snapshot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 (missing license before auth runs), got %d", resp.StatusCode)
	}
}

func TestMonitorSnapshotRejectsMissingLicense(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/monitor/snapshot/vol-15m", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	token, err := GenerateOperatorToken(testJWTSecret, "op-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("GenerateOperatorToken: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestMonitorSnapshotNotFoundWhenNeverWritten(t *testing.T) {
	srv := newTestServer(t)
	req := authedRequest(t, http.MethodGet, srv.URL+"/monitor/snapshot/vol-15m")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMonitorEventsReturnsEmptyListWhenNoneRecorded(t *testing.T) {
	srv := newTestServer(t)
	req := authedRequest(t, http.MethodGet, srv.URL+"/monitor/events/vol-15m")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Variant string `json:"variant"`
		Events  []any  `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Variant != "vol-15m" || len(body.Events) != 0 {
		t.Fatalf("expected empty event list for vol-15m, got %+v", body)
	}
}

func TestFlattenPositionWithoutEngineReturns503(t *testing.T) {
	srv := newTestServer(t)
	req := authedRequest(t, http.MethodPost, srv.URL+"/positions/rb2410C4000.SHFE/flatten")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with no engine wired, got %d", resp.StatusCode)
	}
}
