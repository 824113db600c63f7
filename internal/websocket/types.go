package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/raaihank/chrono-sentinel/internal/datetime"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeDetection represents a completed detection
	EventTypeDetection EventType = "detection"
	// EventTypeRequestLog represents a request logging event
	EventTypeRequestLog EventType = "request_log"
	// EventTypeRulesReload represents a rule set reload
	EventTypeRulesReload EventType = "rules_reload"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// DetectionEvent represents one detection call. The text itself is never
// broadcast.
type DetectionEvent struct {
	RequestID    string           `json:"request_id"`
	Locale       string           `json:"locale"`
	Generation   uint64           `json:"generation"`
	TextLength   int              `json:"text_length"`
	Matches      []datetime.Match `json:"matches"`
	TotalMatches int              `json:"total_matches"`
	Cached       bool             `json:"cached"`
	ProcessingMS float64          `json:"processing_ms"`
}

// RequestLogEvent represents a request logging event
type RequestLogEvent struct {
	RequestID    string            `json:"request_id"`
	Method       string            `json:"method"`
	Path         string            `json:"path"`
	StatusCode   int               `json:"status_code"`
	ClientIP     string            `json:"client_ip"`
	UserAgent    string            `json:"user_agent,omitempty"`
	Duration     time.Duration     `json:"duration"`
	RequestSize  int64             `json:"request_size"`
	ResponseSize int64             `json:"response_size"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// RulesReloadEvent reports a reset of the compiled rule sets
type RulesReloadEvent struct {
	Generation uint64   `json:"generation"`
	Documents  []string `json:"documents,omitempty"`
	Reason     string   `json:"reason"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string   `json:"status"`
	Uptime           string   `json:"uptime"`
	TotalRequests    int64    `json:"total_requests"`
	TotalDetections  int64    `json:"total_detections"`
	Generation       uint64   `json:"generation"`
	Locales          []string `json:"locales"`
	ConnectedClients int      `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter represents filtering options for events
type EventFilter struct {
	Locales       []string `json:"locales,omitempty"`
	MinMatches    int      `json:"min_matches,omitempty"`
	ExcludeHealth bool     `json:"exclude_health,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
