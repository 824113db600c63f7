package websocket

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T, cfg *HubConfig) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(cfg, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event map[string]interface{}
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestHubBroadcastsDetection(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{BroadcastDetections: true})
	conn := dial(t, hub, srv, nil)

	hub.BroadcastEvent(Event{
		Type: EventTypeDetection,
		Data: DetectionEvent{RequestID: "req-1", Locale: "en", TotalMatches: 2},
	})

	event := readEvent(t, conn)
	assert.Equal(t, "detection", event["type"])
	data := event["data"].(map[string]interface{})
	assert.Equal(t, "en", data["locale"])
	assert.Equal(t, float64(2), data["total_matches"])

	stats := hub.GetStats()
	assert.Equal(t, int64(1), stats.ActiveConnections)
	assert.Equal(t, int64(1), stats.TotalConnections)
}

func TestHubPing(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{})
	conn := dial(t, hub, srv, nil)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))

	event := readEvent(t, conn)
	assert.Equal(t, "pong", event["type"])
}

func TestHubBasicAuth(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{Username: "admin", Password: "s3cret"})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:wrong")))
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:s3cret")))
	dial(t, hub, srv, header)
}

func TestHubMaxConnections(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{MaxConnections: 1})
	dial(t, hub, srv, nil)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestShouldBroadcastEvent(t *testing.T) {
	hub := NewHub(&HubConfig{BroadcastDetections: true, BroadcastSystem: true}, zap.NewNop())

	assert.True(t, hub.shouldBroadcastEvent(EventTypeDetection))
	assert.True(t, hub.shouldBroadcastEvent(EventTypeRulesReload))
	assert.True(t, hub.shouldBroadcastEvent(EventTypeSystemStatus))
	assert.False(t, hub.shouldBroadcastEvent(EventTypeRequestLog))
	assert.False(t, hub.shouldBroadcastEvent(EventTypeConnection))
	assert.False(t, hub.shouldBroadcastEvent(EventTypePong))
}

func TestShouldSendToClient(t *testing.T) {
	hub := NewHub(&HubConfig{}, zap.NewNop())
	detection := Event{Type: EventTypeDetection, Data: DetectionEvent{Locale: "de", TotalMatches: 1}}
	health := Event{Type: EventTypeRequestLog, Data: RequestLogEvent{Path: "/health"}}

	assert.True(t, hub.shouldSendToClient(&Client{}, detection))

	onlyRequests := &Client{Subscription: &SubscriptionRequest{Events: []EventType{EventTypeRequestLog}}}
	assert.False(t, hub.shouldSendToClient(onlyRequests, detection))
	assert.True(t, hub.shouldSendToClient(onlyRequests, health))

	filtered := &Client{Subscription: &SubscriptionRequest{
		Events: []EventType{EventTypeDetection, EventTypeRequestLog},
		Filter: &EventFilter{Locales: []string{"en"}, ExcludeHealth: true},
	}}
	assert.False(t, hub.shouldSendToClient(filtered, detection))
	assert.False(t, hub.shouldSendToClient(filtered, health))
	assert.True(t, hub.shouldSendToClient(filtered, Event{Type: EventTypeDetection, Data: DetectionEvent{Locale: "en"}}))
}

func TestApplyEventFilterMinMatches(t *testing.T) {
	filter := &EventFilter{MinMatches: 2}
	assert.False(t, applyEventFilter(filter, Event{Data: DetectionEvent{TotalMatches: 1}}))
	assert.True(t, applyEventFilter(filter, Event{Data: DetectionEvent{TotalMatches: 2}}))
	assert.True(t, applyEventFilter(filter, Event{Data: RulesReloadEvent{Generation: 1}}))
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(&HubConfig{AllowedOrigins: []string{"https://dash.example.com"}}, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, hub.checkOrigin(r))

	r.Header.Set("Origin", "https://dash.example.com")
	assert.True(t, hub.checkOrigin(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, hub.checkOrigin(r))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5123"
	assert.Equal(t, "10.0.0.7", ClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.8")
	assert.Equal(t, "10.0.0.8", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.4, 10.0.0.1")
	assert.Equal(t, "203.0.113.4", ClientIP(r))
}
