package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/metrics"
	"github.com/afroash/hydro-monitor/internal/models"
)

// clientBuffer is how many views may queue for a slow dashboard before it
// is disconnected.
const clientBuffer = 8

// Hub pushes the notification view to every connected dashboard
type Hub struct {
	upgrader websocket.Upgrader
	snapshot func() models.NotificationsMessage
	logger   zerolog.Logger

	mutex   sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *hubClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a presenter hub. snapshot supplies the view sent to a
// dashboard as soon as it connects.
func NewHub(snapshot func() models.NotificationsMessage, logger zerolog.Logger, allowedOrigins ...string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins, logger),
		},
		snapshot: snapshot,
		logger:   logger,
		clients:  make(map[*hubClient]struct{}),
	}
}

// ServeHTTP upgrades a dashboard connection and streams views to it
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade dashboard connection")
		return
	}

	client := &hubClient{conn: conn, send: make(chan []byte, clientBuffer)}
	if data, err := encodeView(h.snapshot()); err == nil {
		client.send <- data
	}

	h.mutex.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mutex.Unlock()
	metrics.StreamClients.Set(float64(count))
	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Int("clients", count).Msg("Dashboard connected")

	go h.writePump(client)
	h.readPump(client)
}

// Broadcast queues view for every dashboard. Clients whose queue is full
// are dropped rather than allowed to stall the caller.
func (h *Hub) Broadcast(view models.NotificationsMessage) {
	data, err := encodeView(view)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode notification view")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.logger.Warn().Str("remote", client.conn.RemoteAddr().String()).Msg("Dashboard too slow, disconnecting")
			delete(h.clients, client)
			client.close()
		}
	}
	metrics.StreamClients.Set(float64(len(h.clients)))
}

// ClientCount returns the number of connected dashboards
func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// readPump discards inbound frames and notices when the dashboard leaves
func (h *Hub) readPump(client *hubClient) {
	defer h.unregister(client)

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregister(client *hubClient) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.close()
	}
	count := len(h.clients)
	h.mutex.Unlock()

	metrics.StreamClients.Set(float64(count))
	h.logger.Info().Int("clients", count).Msg("Dashboard disconnected")
}

func encodeView(view models.NotificationsMessage) ([]byte, error) {
	msg, err := models.NewMessage(models.MessageTypeNotifications, view)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}
