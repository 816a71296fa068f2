package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlos-grullon/classnet-ws-server/auth"
	"github.com/carlos-grullon/classnet-ws-server/registry"
)

type mockConn struct {
	id      string
	userID  string
	sent    [][]byte
	sendErr error
	mu      sync.Mutex
}

func (m *mockConn) ID() string     { return m.id }
func (m *mockConn) UserID() string { return m.userID }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockConn) Close() error { return nil }

func (m *mockConn) getSent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

func newTestRouter(reg *registry.Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	bridge := New(auth.New("secret", reg), reg)
	router := gin.New()
	router.POST("/emit", bridge.Emit)
	router.GET("/health", bridge.Health)
	return router
}

func doEmit(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/emit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("x-internal-key", key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestEmit_Delivered(t *testing.T) {
	reg := registry.New()
	conn := &mockConn{id: "c1", userID: "u1"}
	reg.Put(conn)
	router := newTestRouter(reg)

	w := doEmit(router, "secret", `{"userId":"u1","eventType":"ping","payload":{"n":1}}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp emitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Delivered)
	assert.Equal(t, "ping", resp.Event)
	assert.NotZero(t, resp.Timestamp)

	sent := conn.getSent()
	require.Len(t, sent, 1)

	var env struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(sent[0], &env))
	assert.Equal(t, "ping", env.Event)
	assert.JSONEq(t, `{"n":1}`, string(env.Payload))
}

func TestEmit_TargetOffline(t *testing.T) {
	reg := registry.New()
	router := newTestRouter(reg)

	w := doEmit(router, "secret", `{"userId":"ghost","eventType":"ping","payload":{}}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp emitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.False(t, resp.Delivered)
	assert.Equal(t, 0, reg.Size())
}

func TestEmit_WrongKey(t *testing.T) {
	reg := registry.New()
	conn := &mockConn{id: "c1", userID: "u1"}
	reg.Put(conn)
	router := newTestRouter(reg)

	tests := []struct {
		name string
		key  string
	}{
		{name: "wrong key", key: "nope"},
		{name: "missing key", key: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doEmit(router, tt.key, `{"userId":"u1","eventType":"ping","payload":{}}`)

			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Empty(t, conn.getSent())
			assert.Equal(t, 1, reg.Size())
		})
	}
}

func TestEmit_BadRequest(t *testing.T) {
	reg := registry.New()
	conn := &mockConn{id: "c1", userID: "u1"}
	reg.Put(conn)
	router := newTestRouter(reg)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing userId", body: `{"eventType":"ping","payload":{}}`},
		{name: "missing eventType", body: `{"userId":"u1","payload":{}}`},
		{name: "missing payload", body: `{"userId":"u1","eventType":"ping"}`},
		{name: "not json", body: `nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doEmit(router, "secret", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, conn.getSent())
		})
	}
}

func TestEmit_SendFailureReportsUndelivered(t *testing.T) {
	reg := registry.New()
	conn := &mockConn{id: "c1", userID: "u1", sendErr: assert.AnError}
	reg.Put(conn)
	router := newTestRouter(reg)

	w := doEmit(router, "secret", `{"userId":"u1","eventType":"ping","payload":{}}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp emitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.False(t, resp.Delivered)
}

func TestHealth(t *testing.T) {
	reg := registry.New()
	reg.Put(&mockConn{id: "c1", userID: "u1"})
	reg.Put(&mockConn{id: "c2", userID: "u2"})
	router := newTestRouter(reg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status      string `json:"status"`
		Timestamp   int64  `json:"timestamp"`
		Connections int    `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Connections)
	assert.NotZero(t, resp.Timestamp)
}
