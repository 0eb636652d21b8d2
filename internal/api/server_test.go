package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smcopilot/copilot-core/internal/cache"
	"github.com/smcopilot/copilot-core/internal/gameapi"
	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/infrastructure/config"
	"github.com/smcopilot/copilot-core/internal/locks"
	"github.com/smcopilot/copilot-core/internal/logbook"
	"github.com/smcopilot/copilot-core/internal/pilot"
	"github.com/smcopilot/copilot-core/internal/scheduler"
	"github.com/smcopilot/copilot-core/internal/session"
)

const testAccount = "acct-1"

type apiRig struct {
	srv   *httptest.Server
	book  *logbook.Store
	locks *locks.Coordinator
	sess  *session.Registry
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/fleet/index.php":
			fmt.Fprint(w, `{"vessels": []}`)
		case "/api/maintenance/index.php":
			fmt.Fprint(w, `{"items": []}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{}
	cfg.Account.ID = testAccount
	cfg.Account.SessionCookie = "cookie"
	cfg.Storage.DataDir = t.TempDir()
	cfg.Logbook.FlushInterval = 3600
	cfg.Upstream.BaseURL = upstream.URL
	cfg.Upstream.Timeout = 5
	cfg.WebSocket.PingInterval = 30
	cfg.WebSocket.PongTimeout = 10
	cfg.Scheduler.TickInterval = 3600
	cfg.Scheduler.SlotMargin = 2

	h := hub.New(cfg.WebSocket, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	coord := locks.New(h)
	sessions := session.NewRegistry(cfg, nil)
	store := cache.New(nil, h)
	client := gameapi.New(cfg, nil)
	store.RegisterLoader(cache.KindVessels, func(ctx context.Context, account string) (any, error) {
		return client.FetchVessels(ctx)
	})
	book := logbook.New(cfg, nil, h)
	runner := pilot.NewRunner(cfg, nil, sessions, coord, store, client, h, book, nil)
	sched := scheduler.New(cfg, nil, runner)

	server := New(cfg, nil, h, coord, book, sessions, runner, sched, "test")
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &apiRig{srv: srv, book: book, locks: coord, sess: sessions}
}

func (r *apiRig) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(r.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
		body, _ = decoded.(map[string]any)
	}
	return resp, body
}

func (r *apiRig) send(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, r.srv.URL+path, &body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (r *apiRig) dialWS(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHealth(t *testing.T) {
	rig := newAPIRig(t)
	resp, body := rig.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, testAccount, body["account"])
}

func TestState_Snapshot(t *testing.T) {
	rig := newAPIRig(t)
	rig.locks.TryAcquire(testAccount, locks.CategoryRepair, locks.OwnerManual)
	rig.sess.Get(testAccount).SetPaused(true)

	resp, body := rig.get(t, "/api/state")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["paused"])

	flags, ok := body["locks"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, flags["repair"])
	assert.Equal(t, false, flags["depart"])
}

func TestLogbook_QueryAndDelete(t *testing.T) {
	rig := newAPIRig(t)
	rig.book.Append(testAccount, logbook.Entry{Task: "fuel", Status: logbook.StatusSuccess, Summary: "bought"})
	rig.book.Append(testAccount, logbook.Entry{Task: "depart", Status: logbook.StatusError, Summary: "timeout"})

	_, body := rig.get(t, "/api/logbook")
	assert.Len(t, body["entries"], 2)

	_, body = rig.get(t, "/api/logbook?status=ERROR")
	assert.Len(t, body["entries"], 1)

	_, body = rig.get(t, "/api/logbook?search=bought")
	assert.Len(t, body["entries"], 1)

	resp := rig.send(t, http.MethodDelete, "/api/logbook", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = rig.get(t, "/api/logbook")
	assert.Empty(t, body["entries"])
}

func TestLogbook_BadFilterRejected(t *testing.T) {
	rig := newAPIRig(t)
	resp, _ := rig.get(t, "/api/logbook?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = rig.get(t, "/api/logbook?range=banana")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogbook_Export(t *testing.T) {
	rig := newAPIRig(t)
	rig.book.Append(testAccount, logbook.Entry{Task: "fuel", Summary: "bought 500t"})

	tests := []struct {
		format      string
		contentType string
	}{
		{"json", "application/json"},
		{"csv", "text/csv"},
		{"text", "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			resp, _ := rig.get(t, "/api/logbook/export?format="+tt.format)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), tt.contentType)
			assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
		})
	}

	resp, _ := rig.get(t, "/api/logbook/export?format=pdf")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSettings_RoundTrip(t *testing.T) {
	rig := newAPIRig(t)

	resp := rig.send(t, http.MethodPut, "/api/settings", map[string]any{
		"fuel_max_price":     420,
		"fuel_target_tonnes": 1500,
		"automations":        map[string]bool{"fuel_purchase": true},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, body := rig.get(t, "/api/settings")
	assert.EqualValues(t, 420, body["fuel_max_price"])
	assert.EqualValues(t, 1500, body["fuel_target_tonnes"])
}

func TestPause_BroadcastsStateChange(t *testing.T) {
	rig := newAPIRig(t)
	conn := rig.dialWS(t)

	resp := rig.send(t, http.MethodPost, "/api/pause", map[string]bool{"paused": true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event hub.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, hub.EventPauseState, event.Type)

	assert.True(t, rig.sess.Get(testAccount).Paused())
}

func TestManualAction_ConflictWhenLockHeld(t *testing.T) {
	rig := newAPIRig(t)
	require.True(t, rig.locks.TryAcquire(testAccount, locks.CategoryRepair, locks.OwnerAutomated))

	resp := rig.send(t, http.MethodPost, "/api/actions/repair", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestManualAction_DepartWithEmptyFleet(t *testing.T) {
	rig := newAPIRig(t)

	resp := rig.send(t, http.MethodPost, "/api/actions/depart", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, rig.locks.IsHeld(testAccount, locks.CategoryDepart), "lock released after the action")
}

func TestManualAction_BulkBuyRequiresBody(t *testing.T) {
	rig := newAPIRig(t)
	resp := rig.send(t, http.MethodPost, "/api/actions/bulkbuy", "not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
