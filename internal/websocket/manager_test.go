package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/charoster/internal/logging"
	"github.com/conneroisu/charoster/internal/types"
)

func newTestServer(t *testing.T, validator OriginValidator) (*Manager, string) {
	m := NewManager(validator, logging.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(m.HandleWebSocket))
	t.Cleanup(func() {
		m.Shutdown()
		srv.Close()
	})
	return m, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestManager_BroadcastsEvents(t *testing.T) {
	m, url := newTestServer(t, nil)
	ctx := testContext(t)

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return m.ConnectedClients() == 1 }, 2*time.Second, 10*time.Millisecond)

	events := make(chan types.Event, 1)
	go m.Forward(ctx, events)
	events <- types.Event{Type: types.EventTypePackReady, Payload: "demo", Timestamp: time.Now()}

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var received map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &received))
	assert.Equal(t, "pack-ready", received["type"])
	assert.Equal(t, "demo", received["payload"])
}

func TestManager_OriginValidation(t *testing.T) {
	allowed := OriginFunc(func(origin string) bool { return origin == "http://localhost:3000" })
	m, url := newTestServer(t, allowed)
	ctx := testContext(t)

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{name: "no origin", ok: true},
		{name: "allowed origin", origin: "http://localhost:3000", ok: true},
		{name: "foreign origin", origin: "http://evil.example", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
			if !tt.ok {
				require.Error(t, err)
				require.NotNil(t, resp)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
				return
			}
			require.NoError(t, err)
			conn.Close(websocket.StatusNormalClosure, "")
		})
	}

	assert.Eventually(t, func() bool { return m.ConnectedClients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestManager_Shutdown(t *testing.T) {
	m, url := newTestServer(t, nil)
	ctx := testContext(t)

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.ConnectedClients() == 1 }, 2*time.Second, 10*time.Millisecond)

	m.Shutdown()
	assert.Zero(t, m.ConnectedClients())

	_, _, err = conn.Read(ctx)
	assert.Error(t, err)

	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
