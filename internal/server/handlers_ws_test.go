package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	ws "github.com/CodeNoob53/funding-calculator-server/internal/websocket"
)

func startTestServer(t *testing.T, env *testEnv) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, query url.Values) string {
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func dial(t *testing.T, target string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(target, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func readEnvelope(t *testing.T, conn *websocket.Conn) ws.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env ws.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWebSocket_TokenHandshakeReceivesInitialData(t *testing.T) {
	env := newTestEnv(t)
	env.store.Set(context.Background(), sampleSnapshot())
	ts := startTestServer(t, env)

	conn, _, err := dial(t, wsURL(ts, url.Values{"token": {validToken(t)}}), nil)
	require.NoError(t, err)

	initial := readEnvelope(t, conn)
	assert.Equal(t, domain.EventInitialData, initial.Event)

	var snapshot domain.Snapshot
	require.NoError(t, json.Unmarshal(initial.Data, &snapshot))
	assert.Equal(t, "BTC", snapshot.Entries[0].Symbol)
}

func TestWebSocket_SubscribeThenReceiveUpdates(t *testing.T) {
	env := newTestEnv(t)
	ts := startTestServer(t, env)

	header := http.Header{}
	header.Set(apiKeyHeader, "socket-key")
	conn, _, err := dial(t, wsURL(ts, nil), header)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": domain.EventSubscribe}))
	ack := readEnvelope(t, conn)
	assert.Equal(t, domain.EventSubscribed, ack.Event)
	assert.JSONEq(t, `{"group":"funding-updates"}`, string(ack.Data))
	require.Equal(t, 1, env.registry.Len())

	delivered := env.broadcaster.Broadcast(&domain.Changeset{Code: "0", Message: "success", Entries: []domain.Entry{{Symbol: "ETH"}}})
	assert.Equal(t, 1, delivered)

	update := readEnvelope(t, conn)
	assert.Equal(t, domain.EventFundingUpdate, update.Event)
	assert.JSONEq(t, `{"code":"0","msg":"success","data":[{"symbol":"ETH"}]}`, string(update.Data))
}

func TestWebSocket_DisconnectCleansUp(t *testing.T) {
	env := newTestEnv(t)
	ts := startTestServer(t, env)

	conn, _, err := dial(t, wsURL(ts, url.Values{"apiKey": {"socket-key"}}), nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]any{"event": domain.EventSubscribe}))
	readEnvelope(t, conn)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return env.registry.Len() == 0 && env.supervisor.SnapshotAll().Summary.TotalConnections == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return env.srv.connLimiter.Current() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_HandshakeRejections(t *testing.T) {
	tests := []struct {
		name       string
		query      url.Values
		wantStatus int
	}{
		{"no credentials", nil, http.StatusUnauthorized},
		{"wrong api key", url.Values{"apiKey": {"nope"}}, http.StatusForbidden},
		{"bad token", url.Values{"token": {"not-a-jwt"}}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ts := startTestServer(t, env)

			_, resp, err := dial(t, wsURL(ts, tt.query), nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Zero(t, env.supervisor.SnapshotAll().Summary.TotalConnections)
		})
	}
}

func TestWebSocket_ConnectionLimit(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) { cfg.MaxConnections = 1 }))
	ts := startTestServer(t, env)
	target := wsURL(ts, url.Values{"apiKey": {"socket-key"}})

	_, _, err := dial(t, target, nil)
	require.NoError(t, err)

	_, resp, err := dial(t, target, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	ts := startTestServer(t, env)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := dial(t, wsURL(ts, url.Values{"apiKey": {"socket-key"}}), header)

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://localhost:5173/", true},
		{"http://localhost:3000", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, env.srv.checkOrigin(req), "origin %q", tt.origin)
	}
}
