package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/todosync/internal/server"
	"github.com/aretw0/todosync/pkg/core"
)

type fakeComponent struct {
	kind  string
	state any
}

func (f fakeComponent) State() any { return f.state }
func (f fakeComponent) ComponentType() string { return f.kind }

func TestServer_Health(t *testing.T) {
	s := server.New(nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_State(t *testing.T) {
	s := server.New(nil)
	s.Register("router", core.NewRouter())
	s.Register("todo", fakeComponent{kind: "store", state: map[string]int{"lines": 3}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]struct {
		Type  string          `json:"type"`
		State json.RawMessage `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "router", body["router"].Type)
	assert.Equal(t, "store", body["todo"].Type)
	assert.JSONEq(t, `{"lines": 3}`, string(body["todo"].State))
}

func TestServer_ComponentState(t *testing.T) {
	s := server.New(nil)
	s.Register("todo", fakeComponent{kind: "store", state: "fine"})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state/todo", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type": "store", "state": "fine"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := server.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx, "127.0.0.1:0"))
	require.NotNil(t, s.Addr())
	url := fmt.Sprintf("http://%s/healthz", s.Addr())

	resp, err := http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
		}
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServer_StartBadAddr(t *testing.T) {
	s := server.New(nil)
	assert.Error(t, s.Start(context.Background(), "not-an-addr"))
}
