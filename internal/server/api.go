package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/afroash/hydro-monitor/internal/storage"
)

// maxIngestBytes caps a posted reading batch
const maxIngestBytes = 1 << 20

// APIHandler handles HTTP API requests for the dashboard
type APIHandler struct {
	dashboard *Dashboard
	live      ReadingStore
	history   HistoryStore // nil when the database is disabled
	logger    zerolog.Logger
}

// NewAPIHandler creates a new API handler. history may be nil.
func NewAPIHandler(dashboard *Dashboard, live ReadingStore, history HistoryStore, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		dashboard: dashboard,
		live:      live,
		history:   history,
		logger:    logger,
	}
}

// Register adds every API route to mux
func (api *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/notifications", api.HandleNotifications)
	mux.HandleFunc("DELETE /api/notifications", api.HandleClearAll)
	mux.HandleFunc("POST /api/notifications/read", api.HandleMarkAllRead)
	mux.HandleFunc("DELETE /api/notifications/{id}", api.HandleDismiss)

	mux.HandleFunc("GET /api/sensor-data", api.HandleLatestBatch)
	mux.HandleFunc("POST /api/sensor-data", api.HandleIngest)
	mux.HandleFunc("GET /api/ranges", api.HandleRanges)

	mux.HandleFunc("GET /api/current", api.HandleCurrent)
	mux.HandleFunc("GET /api/history", api.HandleHistory)
	mux.HandleFunc("GET /api/stats", api.HandleStats)
	mux.HandleFunc("GET /api/devices", api.HandleDevices)
	mux.HandleFunc("GET /api/dashboard-data", api.HandleDashboardData)

	mux.HandleFunc("GET /api/metrics", api.HandleMetrics)
	mux.HandleFunc("GET /api/metrics/history", api.HandleMetricHistory)
	mux.HandleFunc("GET /api/daily/stats", api.HandleDailyStats)
	mux.HandleFunc("GET /api/storage/stats", api.HandleStorageStats)
}

// HandleNotifications returns the notification list with badge and icons
func (api *APIHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.dashboard.View())
}

// HandleMarkAllRead marks every notification read
func (api *APIHandler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	api.dashboard.MarkAllRead()
	writeJSON(w, http.StatusOK, api.dashboard.View())
}

// HandleClearAll removes every notification
func (api *APIHandler) HandleClearAll(w http.ResponseWriter, r *http.Request) {
	api.dashboard.ClearAll()
	writeJSON(w, http.StatusOK, api.dashboard.View())
}

// HandleDismiss removes one notification by id
func (api *APIHandler) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.dashboard.Dismiss(id) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, api.dashboard.View())
}

// IngestResponse summarizes what a posted batch did
type IngestResponse struct {
	DeviceID string   `json:"device_id"`
	NewAlert bool     `json:"new_alert"`
	Raised   []string `json:"raised"`
	Cleared  []string `json:"cleared"`
	Skipped  int      `json:"skipped"`
	Unread   int      `json:"unread"`
}

// HandleIngest accepts a raw batch of metric values
func (api *APIHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		deviceID = "api"
	}

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxIngestBytes))
	decoder.UseNumber()

	var batch models.Batch
	if err := decoder.Decode(&batch); err != nil || batch == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object of metric values")
		return
	}

	result := api.dashboard.Ingest(r.Context(), "api", deviceID, batch)

	resp := IngestResponse{
		DeviceID: deviceID,
		NewAlert: result.AnyNew,
		Raised:   make([]string, 0, len(result.Raised)),
		Cleared:  result.Cleared,
		Skipped:  result.Skipped,
		Unread:   result.Unread,
	}
	if resp.Cleared == nil {
		resp.Cleared = []string{}
	}
	for _, n := range result.Raised {
		resp.Raised = append(resp.Raised, n.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleLatestBatch returns a device's latest values as a flat object, the
// same shape HandleIngest accepts
func (api *APIHandler) HandleLatestBatch(w http.ResponseWriter, r *http.Request) {
	reading := api.currentReading(r)
	if reading == nil {
		writeError(w, http.StatusNotFound, "no readings available")
		return
	}
	writeJSON(w, http.StatusOK, reading.Values)
}

// HandleRanges returns the ideal range catalog
func (api *APIHandler) HandleRanges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.dashboard.Catalog())
}

// HandleCurrent returns the current reading for a device
func (api *APIHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	reading := api.currentReading(r)
	if reading == nil {
		writeError(w, http.StatusNotFound, "no readings available")
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// HandleHistory returns recent live readings for charting
func (api *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := api.deviceID(r)
	if deviceID == "" {
		writeJSON(w, http.StatusOK, []*models.Reading{})
		return
	}

	readings := api.live.GetLatest(deviceID, queryInt(r, "limit", 50))
	if readings == nil {
		readings = []*models.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

// HandleStats returns live store statistics
func (api *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.live.Stats())
}

// HandleDevices returns the ids of devices that have reported
func (api *APIHandler) HandleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.live.GetDeviceIDs())
}

// DashboardData contains everything the dashboard renders in one request
type DashboardData struct {
	CurrentReading *models.Reading             `json:"current_reading"`
	Notifications  models.NotificationsMessage `json:"notifications"`
	Ranges         models.RangeCatalog         `json:"ranges"`
	Stats          StoreStats                  `json:"stats"`
	DeviceIDs      []string                    `json:"device_ids"`
	LastUpdate     time.Time                   `json:"last_update"`
}

// HandleDashboardData returns combined data for the dashboard
func (api *APIHandler) HandleDashboardData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DashboardData{
		CurrentReading: api.currentReading(r),
		Notifications:  api.dashboard.View(),
		Ranges:         api.dashboard.Catalog(),
		Stats:          api.live.Stats(),
		DeviceIDs:      api.live.GetDeviceIDs(),
		LastUpdate:     time.Now(),
	})
}

// HandleMetrics lists the metrics present in history
func (api *APIHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if !api.requireHistory(w) {
		return
	}
	metrics, err := api.history.GetMetrics()
	if err != nil {
		api.internalError(w, err, "Failed to list metrics")
		return
	}
	if metrics == nil {
		metrics = []string{}
	}
	writeJSON(w, http.StatusOK, metrics)
}

// HandleMetricHistory returns stored values of one metric. With before=
// (RFC 3339) it pages back from that instant; otherwise it covers the last
// hours= hours.
func (api *APIHandler) HandleMetricHistory(w http.ResponseWriter, r *http.Request) {
	if !api.requireHistory(w) {
		return
	}

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		writeError(w, http.StatusBadRequest, "metric is required")
		return
	}
	limit := queryInt(r, "limit", 500)

	var (
		points []storage.MetricPoint
		err    error
	)
	if before := r.URL.Query().Get("before"); before != "" {
		ts, perr := time.Parse(time.RFC3339, before)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		points, err = api.history.GetMetricHistoryBefore(metric, ts, limit)
	} else {
		end := time.Now()
		start := end.Add(-time.Duration(queryInt(r, "hours", 24)) * time.Hour)
		points, err = api.history.GetMetricHistory(metric, start, end, limit)
	}
	if err != nil {
		api.internalError(w, err, "Failed to query metric history")
		return
	}
	if points == nil {
		points = []storage.MetricPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

// HandleDailyStats returns per-day min/max/avg of one metric
func (api *APIHandler) HandleDailyStats(w http.ResponseWriter, r *http.Request) {
	if !api.requireHistory(w) {
		return
	}

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		writeError(w, http.StatusBadRequest, "metric is required")
		return
	}

	end := time.Now()
	start := end.AddDate(0, 0, -queryInt(r, "days", 7))
	stats, err := api.history.GetDailyStats(metric, start, end)
	if err != nil {
		api.internalError(w, err, "Failed to query daily stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleStorageStats returns database statistics
func (api *APIHandler) HandleStorageStats(w http.ResponseWriter, r *http.Request) {
	if !api.requireHistory(w) {
		return
	}
	stats, err := api.history.GetStorageStats()
	if err != nil {
		api.internalError(w, err, "Failed to query storage stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// deviceID returns the requested device, or the first known one
func (api *APIHandler) deviceID(r *http.Request) string {
	if id := r.URL.Query().Get("device_id"); id != "" {
		return id
	}
	ids := api.live.GetDeviceIDs()
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func (api *APIHandler) currentReading(r *http.Request) *models.Reading {
	deviceID := api.deviceID(r)
	if deviceID == "" {
		return nil
	}
	return api.live.GetCurrentReading(deviceID)
}

func (api *APIHandler) requireHistory(w http.ResponseWriter) bool {
	if api.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history storage is disabled")
		return false
	}
	return true
}

func (api *APIHandler) internalError(w http.ResponseWriter, err error, msg string) {
	api.logger.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, msg)
}

// queryInt reads a positive integer query parameter
func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
