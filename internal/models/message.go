package models

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeReading       MessageType = "reading"
	MessageTypeHeartbeat     MessageType = "heartbeat"
	MessageTypeAck           MessageType = "ack"
	MessageTypeError         MessageType = "error"
	MessageTypeNotifications MessageType = "notifications"
)

// Message is the envelope for all WebSocket communications
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}, nil
}

// ReadingMessage is the payload for MessageTypeReading.
// Values keeps the raw batch so numeric strings survive the wire.
type ReadingMessage struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Values    Batch     `json:"values"`
}

// HeartbeatMessage is the payload for MessageTypeHeartbeat
type HeartbeatMessage struct {
	DeviceID string `json:"device_id"`
	Uptime   int64  `json:"uptime"`
}

// AckMessage is the payload for MessageTypeAck
type AckMessage struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// ErrorMessage is the payload for MessageTypeError
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NotificationView is one list entry as shown to the dashboard
type NotificationView struct {
	Notification
	Icon string `json:"icon"`
}

// NotificationsMessage is the payload for MessageTypeNotifications.
// NewAlert asks the dashboard for its one-shot attention effect.
type NotificationsMessage struct {
	Notifications []NotificationView `json:"notifications"`
	Unread        int                `json:"unread"`
	Badge         string             `json:"badge"`
	NewAlert      bool               `json:"new_alert"`
}

// UnmarshalPayload unmarshals the message payload into the provided struct
func (m *Message) UnmarshalPayload(v interface{}) error {
	err := json.Unmarshal(m.Payload, v)
	if err != nil {
		return err
	}
	return nil
}
