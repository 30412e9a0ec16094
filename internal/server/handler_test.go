package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/models"
)

const testToken = "test-token-12345"

func newStreamServer(t *testing.T, rig *testRig, origins ...string) (*Handler, string) {
	t.Helper()
	h := NewHandler(testToken, rig.dashboard, zerolog.Nop(), origins...)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialStream(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Dial failed (status %d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func authHeader() http.Header {
	return http.Header{"Authorization": []string{"Bearer " + testToken}}
}

func sendAndRead(t *testing.T, conn *websocket.Conn, msgType models.MessageType, payload any) models.Message {
	t.Helper()
	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply models.Message
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return reply
}

func TestHandler_RejectsBadToken(t *testing.T) {
	_, url := newStreamServer(t, newTestRig(t))

	for _, header := range []http.Header{
		nil,
		{"Authorization": []string{"Bearer wrong"}},
		{"Authorization": []string{testToken}},
	} {
		_, resp, err := websocket.DefaultDialer.Dial(url, header)
		if err == nil {
			t.Fatal("Dial should fail without a valid token")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %v, want 401", resp)
		}
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	_, url := newStreamServer(t, newTestRig(t), "http://dashboard.local")

	header := authHeader()
	header.Set("Origin", "http://evil.example")
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("Dial should fail for an origin outside the allowlist")
	}

	header.Set("Origin", "http://dashboard.local")
	dialStream(t, url, header)
}

func TestHandler_ReadingIsIngestedAndAcked(t *testing.T) {
	rig := newTestRig(t)
	_, url := newStreamServer(t, rig)
	conn := dialStream(t, url, authHeader())

	reply := sendAndRead(t, conn, models.MessageTypeReading, models.ReadingMessage{
		DeviceID:  "hydro-01",
		Timestamp: time.Now(),
		Values:    models.Batch{"temperature": 18.0, "humidity": "50"},
	})

	if reply.Type != models.MessageTypeAck {
		t.Fatalf("reply type = %s, want ack", reply.Type)
	}
	var ack models.AckMessage
	if err := reply.UnmarshalPayload(&ack); err != nil {
		t.Fatalf("bad ack payload: %v", err)
	}
	if ack.Status != "ok" {
		t.Errorf("ack status = %q", ack.Status)
	}
	if _, err := uuid.Parse(ack.MessageID); err != nil {
		t.Errorf("ack message id %q is not a uuid: %v", ack.MessageID, err)
	}

	view := rig.dashboard.View()
	if len(view.Notifications) != 1 || view.Notifications[0].ID != "temperature_critical" {
		t.Errorf("notifications = %+v", view.Notifications)
	}
	if current := rig.live.GetCurrentReading("hydro-01"); current == nil || current.Values["humidity"] != 50 {
		t.Errorf("live reading = %+v", current)
	}
}

func TestHandler_HeartbeatNamesDevice(t *testing.T) {
	rig := newTestRig(t)
	h, url := newStreamServer(t, rig)
	conn := dialStream(t, url, authHeader())

	reply := sendAndRead(t, conn, models.MessageTypeHeartbeat, models.HeartbeatMessage{DeviceID: "hydro-02", Uptime: 42})
	if reply.Type != models.MessageTypeAck {
		t.Fatalf("reply type = %s, want ack", reply.Type)
	}

	devices := h.GetActiveDevices()
	if len(devices) != 1 || devices[0].DeviceID != "hydro-02" {
		t.Errorf("active devices = %+v", devices)
	}

	// A reading without a device id is attributed to the heartbeat's device
	sendAndRead(t, conn, models.MessageTypeReading, models.ReadingMessage{Values: models.Batch{"ph": 6.0}})
	if rig.live.GetCurrentReading("hydro-02") == nil {
		t.Error("reading was not attributed to hydro-02")
	}
}

func TestHandler_UnknownTypeGetsError(t *testing.T) {
	_, url := newStreamServer(t, newTestRig(t))
	conn := dialStream(t, url, authHeader())

	reply := sendAndRead(t, conn, models.MessageType("batch"), map[string]int{"count": 1})
	if reply.Type != models.MessageTypeError {
		t.Fatalf("reply type = %s, want error", reply.Type)
	}
	var e models.ErrorMessage
	reply.UnmarshalPayload(&e)
	if e.Code != "unknown_type" {
		t.Errorf("error code = %q", e.Code)
	}
}

func TestHandler_DisconnectRemovesDevice(t *testing.T) {
	h, url := newStreamServer(t, newTestRig(t))
	conn := dialStream(t, url, authHeader())
	sendAndRead(t, conn, models.MessageTypeHeartbeat, models.HeartbeatMessage{DeviceID: "hydro-03"})

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for len(h.GetActiveDevices()) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := len(h.GetActiveDevices()); n != 0 {
		t.Errorf("%d devices still active after close", n)
	}
}
