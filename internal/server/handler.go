package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/models"
)

// Constants for WebSocket timeouts
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Handler manages WebSocket connections from devices pushing readings
type Handler struct {
	upgrader       websocket.Upgrader
	authToken      string
	ingester       Ingester
	logger         zerolog.Logger
	activeDevices  map[string]*DeviceConnection
	allowedOrigins []string
	mutex          sync.RWMutex
}

// DeviceConnection represents an active device connection
type DeviceConnection struct {
	DeviceID    string    `json:"device_id"`
	RemoteAddr  string    `json:"remote_addr"`
	LastSeen    time.Time `json:"last_seen"`
	ConnectedAt time.Time `json:"connected_at"`
}

// NewHandler creates a new device stream handler
func NewHandler(authToken string, ingester Ingester, logger zerolog.Logger, allowedOrigins ...string) *Handler {
	h := &Handler{
		authToken:      authToken,
		ingester:       ingester,
		logger:         logger,
		activeDevices:  make(map[string]*DeviceConnection),
		allowedOrigins: allowedOrigins,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins, logger),
	}

	return h
}

// originChecker validates the request Origin against an allowlist. A
// missing Origin header means a same-origin or non-browser client.
func originChecker(allowed []string, logger zerolog.Logger) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if origin == a {
				return true
			}
		}
		logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
		return false
	}
}

// ServeHTTP handles WebSocket connection requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected format: "Bearer <token>"
	if !h.validateToken(r.Header.Get("Authorization")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	h.handleConnection(r.Context(), conn)
}

// validateToken checks if the auth token is valid
func (h *Handler) validateToken(authHeader string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return strings.TrimPrefix(authHeader, "Bearer ") == h.authToken
}

// handleConnection manages a single WebSocket connection
func (h *Handler) handleConnection(ctx context.Context, conn *websocket.Conn) {
	connKey := conn.RemoteAddr().String()
	now := time.Now()

	h.mutex.Lock()
	h.activeDevices[connKey] = &DeviceConnection{
		DeviceID:    connKey, // replaced once the device identifies itself
		RemoteAddr:  connKey,
		LastSeen:    now,
		ConnectedAt: now,
	}
	h.mutex.Unlock()

	defer conn.Close()
	defer h.removeDevice(connKey)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleMessage(ctx, conn, connKey, &msg)
	}
}

// handleMessage processes a single message from a device
func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, connKey string, msg *models.Message) {
	h.logger.Debug().Str("type", string(msg.Type)).Msg("Received message")

	var err error
	switch msg.Type {
	case models.MessageTypeReading:
		err = h.handleReading(ctx, connKey, msg)
	case models.MessageTypeHeartbeat:
		err = h.handleHeartbeat(connKey, msg)
	default:
		h.logger.Warn().Str("type", string(msg.Type)).Msg("Unknown message type")
		h.sendError(conn, "unknown_type", "unsupported message type "+string(msg.Type))
		return
	}

	if err != nil {
		h.sendError(conn, "bad_payload", err.Error())
		return
	}
	h.sendAck(conn)
}

// handleReading runs a pushed batch through the dashboard
func (h *Handler) handleReading(ctx context.Context, connKey string, msg *models.Message) error {
	var readingMsg models.ReadingMessage
	if err := msg.UnmarshalPayload(&readingMsg); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal reading")
		return err
	}

	deviceID := readingMsg.DeviceID
	if deviceID == "" {
		deviceID = h.deviceID(connKey)
	} else {
		h.identify(connKey, deviceID)
	}
	h.touch(connKey)

	result := h.ingester.Ingest(ctx, "stream", deviceID, readingMsg.Values)
	h.logger.Info().
		Str("device_id", deviceID).
		Int("keys", len(readingMsg.Values)).
		Int("raised", len(result.Raised)).
		Msg("Reading ingested")
	return nil
}

// handleHeartbeat processes a heartbeat message
func (h *Handler) handleHeartbeat(connKey string, msg *models.Message) error {
	var heartbeat models.HeartbeatMessage
	if err := msg.UnmarshalPayload(&heartbeat); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal heartbeat")
		return err
	}

	if heartbeat.DeviceID != "" {
		h.identify(connKey, heartbeat.DeviceID)
	}
	h.touch(connKey)
	h.logger.Debug().Str("device_id", heartbeat.DeviceID).Int64("uptime", heartbeat.Uptime).Msg("Heartbeat received")
	return nil
}

// sendAck acknowledges the last message with a fresh message id
func (h *Handler) sendAck(conn *websocket.Conn) {
	h.send(conn, models.MessageTypeAck, models.AckMessage{
		MessageID: uuid.NewString(),
		Status:    "ok",
	})
}

func (h *Handler) sendError(conn *websocket.Conn, code, message string) {
	h.send(conn, models.MessageTypeError, models.ErrorMessage{Code: code, Message: message})
}

func (h *Handler) send(conn *websocket.Conn, msgType models.MessageType, payload any) {
	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(msgType)).Msg("Failed to create message")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn().Err(err).Str("type", string(msgType)).Msg("Failed to send message")
	}
}

func (h *Handler) identify(connKey, deviceID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if device, ok := h.activeDevices[connKey]; ok {
		device.DeviceID = deviceID
	}
}

func (h *Handler) deviceID(connKey string) string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if device, ok := h.activeDevices[connKey]; ok {
		return device.DeviceID
	}
	return connKey
}

func (h *Handler) touch(connKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if device, ok := h.activeDevices[connKey]; ok {
		device.LastSeen = time.Now()
	}
}

// removeDevice removes a device from the active map
func (h *Handler) removeDevice(connKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	deviceID := connKey
	if device, ok := h.activeDevices[connKey]; ok {
		deviceID = device.DeviceID
	}
	delete(h.activeDevices, connKey)
	h.logger.Info().Str("device_id", deviceID).Msg("Device disconnected")
}

// GetActiveDevices returns the currently connected devices
func (h *Handler) GetActiveDevices() []DeviceConnection {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	devices := make([]DeviceConnection, 0, len(h.activeDevices))
	for _, device := range h.activeDevices {
		devices = append(devices, *device)
	}
	return devices
}
