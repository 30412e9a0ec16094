package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/afroash/hydro-monitor/internal/storage"
)

func newTestAPI(t *testing.T, history HistoryStore) (*testRig, *httptest.Server) {
	t.Helper()
	rig := newTestRig(t)
	mux := http.NewServeMux()
	NewAPIHandler(rig.dashboard, rig.live, history, zerolog.Nop()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return rig, srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestAPI_IngestAndList(t *testing.T) {
	_, srv := newTestAPI(t, nil)

	resp := do(t, http.MethodPost, srv.URL+"/api/sensor-data?device_id=hydro-01",
		`{"temperature": 31, "humidity": "55", "status": "wet"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d", resp.StatusCode)
	}
	ingest := decode[IngestResponse](t, resp)
	if !ingest.NewAlert || len(ingest.Raised) != 1 || ingest.Raised[0] != "temperature_critical" {
		t.Errorf("ingest = %+v", ingest)
	}
	if ingest.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 for the unknown status key", ingest.Skipped)
	}

	view := decode[models.NotificationsMessage](t, do(t, http.MethodGet, srv.URL+"/api/notifications", ""))
	if len(view.Notifications) != 1 || view.Unread != 1 {
		t.Errorf("view = %+v", view)
	}
	n := view.Notifications[0]
	if n.Title != "TEMPERATURE HIGH" || n.Range != "20 - 30°C" || n.Value != "31.0°C" {
		t.Errorf("notification = %+v", n)
	}
}

func TestAPI_IngestRejectsNonObject(t *testing.T) {
	_, srv := newTestAPI(t, nil)

	for _, body := range []string{`[1,2]`, `null`, `{"temperature":`} {
		resp := do(t, http.MethodPost, srv.URL+"/api/sensor-data", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestAPI_NotificationOperations(t *testing.T) {
	rig, srv := newTestAPI(t, nil)
	rig.dashboard.Ingest(context.Background(), "test", "hydro-01", models.Batch{"temperature": 31.0, "ph": 7.0})

	resp := do(t, http.MethodDelete, srv.URL+"/api/notifications/unknown_critical", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("dismiss unknown: status = %d, want 404", resp.StatusCode)
	}

	resp = do(t, http.MethodDelete, srv.URL+"/api/notifications/ph_critical", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dismiss: status = %d", resp.StatusCode)
	}
	if view := decode[models.NotificationsMessage](t, resp); len(view.Notifications) != 1 {
		t.Errorf("after dismiss: %+v", view.Notifications)
	}

	view := decode[models.NotificationsMessage](t, do(t, http.MethodPost, srv.URL+"/api/notifications/read", ""))
	if view.Unread != 0 {
		t.Errorf("after mark read: unread = %d", view.Unread)
	}

	view = decode[models.NotificationsMessage](t, do(t, http.MethodDelete, srv.URL+"/api/notifications", ""))
	if len(view.Notifications) != 0 {
		t.Errorf("after clear: %+v", view.Notifications)
	}

	resp = do(t, http.MethodPut, srv.URL+"/api/notifications", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("PUT status = %d, want 405", resp.StatusCode)
	}
}

func TestAPI_LiveReadings(t *testing.T) {
	rig, srv := newTestAPI(t, nil)

	resp := do(t, http.MethodGet, srv.URL+"/api/current", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("current with no data: status = %d, want 404", resp.StatusCode)
	}

	for i := 0; i < 3; i++ {
		rig.dashboard.Ingest(context.Background(), "test", "hydro-01", models.Batch{"temperature": 22.0 + float64(i)})
	}

	current := decode[models.Reading](t, do(t, http.MethodGet, srv.URL+"/api/current", ""))
	if current.DeviceID != "hydro-01" || current.Values["temperature"] != 24.0 {
		t.Errorf("current = %+v", current)
	}

	history := decode[[]models.Reading](t, do(t, http.MethodGet, srv.URL+"/api/history?limit=2", ""))
	if len(history) != 2 || history[0].Values["temperature"] != 24.0 {
		t.Errorf("history = %+v", history)
	}

	flat := decode[map[string]float64](t, do(t, http.MethodGet, srv.URL+"/api/sensor-data", ""))
	if flat["temperature"] != 24.0 {
		t.Errorf("sensor-data = %v", flat)
	}

	devices := decode[[]string](t, do(t, http.MethodGet, srv.URL+"/api/devices", ""))
	if len(devices) != 1 || devices[0] != "hydro-01" {
		t.Errorf("devices = %v", devices)
	}

	stats := decode[StoreStats](t, do(t, http.MethodGet, srv.URL+"/api/stats", ""))
	if stats.TotalReadings != 3 {
		t.Errorf("TotalReadings = %d, want 3", stats.TotalReadings)
	}

	data := decode[DashboardData](t, do(t, http.MethodGet, srv.URL+"/api/dashboard-data", ""))
	if data.CurrentReading == nil || len(data.Ranges) != len(testCatalog) {
		t.Errorf("dashboard data = %+v", data)
	}
}

func TestAPI_Ranges(t *testing.T) {
	_, srv := newTestAPI(t, nil)

	ranges := decode[models.RangeCatalog](t, do(t, http.MethodGet, srv.URL+"/api/ranges", ""))
	if r, ok := ranges.Lookup("humidity"); !ok || r.Min != 40 || r.Max != 70 {
		t.Errorf("humidity range = %+v, %v", r, ok)
	}
}

func TestAPI_HistoryDisabled(t *testing.T) {
	_, srv := newTestAPI(t, nil)

	for _, path := range []string{"/api/metrics", "/api/metrics/history?metric=ph", "/api/daily/stats?metric=ph", "/api/storage/stats"} {
		resp := do(t, http.MethodGet, srv.URL+path, "")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, resp.StatusCode)
		}
	}
}

func TestAPI_HistoryEndpoints(t *testing.T) {
	db, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 4; i++ {
		db.InsertReading(&models.Reading{
			DeviceID:  "hydro-01",
			Timestamp: now.Add(-time.Duration(i)*time.Hour - 10*time.Minute),
			Values:    map[string]float64{"ph": 6.0 + float64(i)*0.1, "tds": 900},
		})
	}

	_, srv := newTestAPI(t, db)

	metrics := decode[[]string](t, do(t, http.MethodGet, srv.URL+"/api/metrics", ""))
	if len(metrics) != 2 {
		t.Errorf("metrics = %v", metrics)
	}

	resp := do(t, http.MethodGet, srv.URL+"/api/metrics/history", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("history without metric: status = %d, want 400", resp.StatusCode)
	}

	points := decode[[]storage.MetricPoint](t, do(t, http.MethodGet, srv.URL+"/api/metrics/history?metric=ph&hours=2", ""))
	if len(points) != 2 {
		t.Errorf("last 2h of ph = %d points, want 2", len(points))
	}

	before := now.Add(-90 * time.Minute).Format(time.RFC3339)
	points = decode[[]storage.MetricPoint](t, do(t, http.MethodGet, srv.URL+"/api/metrics/history?metric=ph&before="+before, ""))
	if len(points) != 2 {
		t.Errorf("ph before %s = %d points, want 2", before, len(points))
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/metrics/history?metric=ph&before=yesterday", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad before: status = %d, want 400", resp.StatusCode)
	}

	stats := decode[storage.StorageStats](t, do(t, http.MethodGet, srv.URL+"/api/storage/stats", ""))
	if stats.TotalPoints != 8 {
		t.Errorf("TotalPoints = %d, want 8", stats.TotalPoints)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/daily/stats?metric=tds&days=2", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("daily stats status = %d", resp.StatusCode)
	}
}
