package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"santorini.ai/internal/persistence/indexdb"
	"santorini.ai/internal/sim/game"
)

func newTestMux(t *testing.T, withIndex bool) (*game.Game, *http.ServeMux) {
	t.Helper()
	g, err := game.New(game.Config{ID: "srv", TickRateHz: 50, ClickDedupeTTLTicks: 10})
	require.NoError(t, err)

	var idx runtimeIndex
	if withIndex {
		sq, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "idx.sqlite"), "srv")
		require.NoError(t, err)
		t.Cleanup(func() { _ = sq.Close() })
		idx = sq
		g.SetAuditLogger(multiAuditLogger{b: idx})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = g.Run(ctx) }()
	t.Cleanup(cancel)

	mux := buildMux(muxOptions{
		Game:        g,
		Index:       idx,
		MaxQueue:    8,
		Started:     time.Now(),
		Logger:      log.New(io.Discard, "", 0),
		EnableAdmin: true,
	})
	return g, mux
}

func serve(mux *http.ServeMux, method, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAdmin_LoopbackOnly(t *testing.T) {
	_, mux := newTestMux(t, false)
	rec := serve(mux, http.MethodGet, "/admin/v1/state", "8.8.8.8:1234")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(mux, http.MethodPost, "/admin/v1/pause", "8.8.8.8:1234")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(mux, http.MethodGet, "/admin/v1/state", "127.0.0.1:1234")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		GameID string `json:"game_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "srv", body.GameID)
}

func TestAdmin_PauseResume(t *testing.T) {
	g, mux := newTestMux(t, false)

	rec := serve(mux, http.MethodGet, "/admin/v1/pause", "127.0.0.1:1")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(mux, http.MethodPost, "/admin/v1/pause", "127.0.0.1:1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Eventually(t, func() bool { return g.Metrics().Paused }, 2*time.Second, 10*time.Millisecond)

	rec = serve(mux, http.MethodPost, "/admin/v1/pause", "127.0.0.1:1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(mux, http.MethodPost, "/admin/v1/resume", "[::1]:1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdmin_AuditsNeedIndex(t *testing.T) {
	_, mux := newTestMux(t, false)
	rec := serve(mux, http.MethodGet, "/admin/v1/audits", "127.0.0.1:1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, mux = newTestMux(t, true)
	rec = serve(mux, http.MethodGet, "/admin/v1/audits?limit=0", "127.0.0.1:1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(mux, http.MethodGet, "/admin/v1/audits?limit=5", "127.0.0.1:1")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics_Exposition(t *testing.T) {
	g, mux := newTestMux(t, true)
	require.Eventually(t, func() bool { return g.Metrics().Tick > 0 }, 2*time.Second, 10*time.Millisecond)

	rec := serve(mux, http.MethodGet, "/metrics", "8.8.8.8:1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `santorini_game_tick{game="srv"}`))
	assert.True(t, strings.Contains(body, `santorini_game_total{game="srv",counter="clicks"} 0`))
	assert.True(t, strings.Contains(body, "santorini_index_queue_capacity"))
}

func TestIsLoopbackRemote(t *testing.T) {
	assert.True(t, isLoopbackRemote("127.0.0.1:80"))
	assert.True(t, isLoopbackRemote("[::1]:80"))
	assert.False(t, isLoopbackRemote("10.0.0.1:80"))
	assert.False(t, isLoopbackRemote("garbage"))
}
