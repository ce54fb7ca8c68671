package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"device-push/src/auth"
	"device-push/src/logger"
	"device-push/src/models"
	"device-push/src/server"
	"device-push/src/storage"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

func newTestServer(t *testing.T) (*server.PushServer, *httptest.Server) {
	t.Helper()

	cfg := &models.MConfig{
		Name:        "device-push-test",
		Environment: "dev",
		Auth: models.MAuthConfig{
			DevToken:  "dev-secret",
			DevUserID: 1,
			Tokens: []models.MTokenConfig{
				{Token: "user-42-token", UserID: 42, Username: "operator"},
			},
		},
		WebSocket: models.MWebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			SendQueueSize:   32,
			PongWaitSeconds: 60,
			MaxMessageSize:  4096,
		},
	}

	log := logger.NewTestLogger()
	s := server.NewPushServer(cfg, log, auth.NewStaticVerifier(cfg, log), storage.NewNoopDB())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func wsURL(ts *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token
}

func dial(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

// -----------------------------------------------------------------------------
// Authentication
// -----------------------------------------------------------------------------

func TestWebSocketRejectsBadToken(t *testing.T) {
	_, ts := newTestServer(t)

	// The upgrade itself succeeds; the server then closes with a policy
	// violation before any session state exists.
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "bogus"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "expected close 1008, got: %v", err)
}

// -----------------------------------------------------------------------------

func TestWebSocketDevTokenConnects(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts, "dev-secret")

	frame := readFrame(t, conn)
	assert.Equal(t, "connection", frame["type"])
	assert.Equal(t, "connected", frame["status"])
	assert.Equal(t, float64(1), frame["user_id"])

	assert.Eventually(t, func() bool {
		return s.Registry.IsConnected(1)
	}, 2*time.Second, 10*time.Millisecond)
}

// -----------------------------------------------------------------------------
// Wire-level control frames
// -----------------------------------------------------------------------------

func TestWireSubscribeFlow(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts, "user-42-token")
	readFrame(t, conn) // connection envelope

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action":    "subscribe",
		"asset_ids": []int64{5, 6},
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, "subscribe_response", frame["type"])
	assert.Equal(t, true, frame["success"])
	assert.Equal(t, "asset_data", frame["subscription_type"])
	assert.ElementsMatch(t, []interface{}{float64(5), float64(6)}, frame["subscribed_assets"])

	assert.True(t, s.Index.IsSubscribed(42, 5, models.SubTypeAssetData))
}

// -----------------------------------------------------------------------------

func TestWireMalformedFrameThenPing(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts, "dev-secret")
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not-json")))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "invalid JSON format", frame["message"])

	// The connection survived the malformed frame
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "ping"}))
	frame = readFrame(t, conn)
	assert.Equal(t, "pong", frame["type"])
}

// -----------------------------------------------------------------------------
// Producer ingest to wire delivery
// -----------------------------------------------------------------------------

func TestIngestAssetDataReachesSubscriber(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts, "user-42-token")
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action":    "subscribe",
		"asset_ids": 7,
	}))
	readFrame(t, conn) // subscribe_response

	resp, body := postJSON(t, ts, "/api/internal/asset-data", map[string]interface{}{
		"asset_id": 7,
		"data":     map[string]interface{}{"temperature": 71.4},
	})
	assert.Equal(t, 202, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["delivered"])

	frame := readFrame(t, conn)
	assert.Equal(t, "asset_data", frame["type"])
	assert.Equal(t, float64(7), frame["asset_id"])
	assert.Equal(t, "good", frame["quality"])
	data, ok := frame["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 71.4, data["temperature"])
}

// -----------------------------------------------------------------------------

func TestIngestAlertIsUserTargeted(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts, "user-42-token")
	readFrame(t, conn)

	// No subscription needed for alerts
	resp, body := postJSON(t, ts, "/api/internal/alerts", map[string]interface{}{
		"user_id": 42,
		"alert":   map[string]interface{}{"level": "critical", "asset_id": 7},
	})
	assert.Equal(t, 202, resp.StatusCode)
	assert.Equal(t, true, body["delivered"])

	frame := readFrame(t, conn)
	assert.Equal(t, "alert", frame["type"])
	alert, ok := frame["alert"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "critical", alert["level"])
}

// -----------------------------------------------------------------------------

func TestIngestValidation(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := postJSON(t, ts, "/api/internal/asset-data", map[string]interface{}{
		"asset_id": 0,
	})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, body["error"], "required")

	resp, body = postJSON(t, ts, "/api/internal/predictions", map[string]interface{}{
		"asset_id": 7,
	})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, body["error"], "required")
}

// -----------------------------------------------------------------------------
// Supersede over the wire
// -----------------------------------------------------------------------------

func TestReconnectSupersedesOverTheWire(t *testing.T) {
	s, ts := newTestServer(t)

	first := dial(t, ts, "user-42-token")
	readFrame(t, first)

	second := dial(t, ts, "user-42-token")
	readFrame(t, second)

	// The first connection receives close 1008 and nothing else
	_, _, err := first.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "expected close 1008, got: %v", err)

	// The second connection stays live
	require.NoError(t, second.WriteJSON(map[string]interface{}{"action": "ping"}))
	frame := readFrame(t, second)
	assert.Equal(t, "pong", frame["type"])
	assert.True(t, s.Registry.IsConnected(42))
}

// -----------------------------------------------------------------------------
// Ops endpoints
// -----------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts, "dev-secret")
	readFrame(t, conn)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["connections"])
}
