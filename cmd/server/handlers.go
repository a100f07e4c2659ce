package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"santorini.ai/internal/protocol"
	"santorini.ai/internal/sim/game"
	"santorini.ai/internal/transport/ws"
)

type muxOptions struct {
	Game      *game.Game
	Index     runtimeIndex
	Validator *protocol.Validator
	MaxQueue  int
	Started   time.Time
	Logger    *log.Logger

	EnableAdmin bool
	EnablePprof bool
}

func buildMux(o muxOptions) *http.ServeMux {
	g := o.Game
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, g, o.Index)
	})

	if o.EnableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				GameID  string            `json:"game_id"`
				Tick    uint64            `json:"tick"`
				Started string            `json:"started"`
				Metrics game.Metrics      `json:"metrics"`
				State   protocol.StateMsg `json:"state"`
			}{
				GameID:  g.ID(),
				Tick:    g.CurrentTick(),
				Started: humanize.Time(o.Started),
				Metrics: g.Metrics(),
				State:   g.LastState(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/audits", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if o.Index == nil {
				http.Error(rw, "index disabled", http.StatusServiceUnavailable)
				return
			}
			limit := 50
			if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 || n > 1000 {
					http.Error(rw, "bad limit", http.StatusBadRequest)
					return
				}
				limit = n
			}
			audits, err := o.Index.RecentAudits(r.Context(), limit)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"game_id": g.ID(), "audits": audits})
		})
		for path, op := range map[string]game.ControlOp{
			"/admin/v1/snapshot": game.ControlSnapshot,
			"/admin/v1/pause":    game.ControlPause,
			"/admin/v1/resume":   game.ControlResume,
			"/admin/v1/restart":  game.ControlRestart,
		} {
			mux.HandleFunc(path, controlHandler(g, op))
		}
	} else {
		o.Logger.Printf("admin endpoints disabled (SANTORINI_ENABLE_ADMIN_HTTP=false)")
	}
	if o.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(g, o.Validator, o.MaxQueue, o.Logger).Handler())
	return mux
}

func controlHandler(g *game.Game, op game.ControlOp) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		tick, err := g.RequestControl(ctx, op)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "op": op, "tick": tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "op": op, "tick": tick})
	}
}

// writeMetrics renders the Prometheus text exposition format.
func writeMetrics(rw http.ResponseWriter, g *game.Game, idx runtimeIndex) {
	m := g.Metrics()
	id := g.ID()
	tick := g.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	fmt.Fprintf(rw, "# HELP santorini_game_tick Current game tick.\n")
	fmt.Fprintf(rw, "# TYPE santorini_game_tick gauge\n")
	fmt.Fprintf(rw, "santorini_game_tick{game=%q} %d\n", id, tick)

	fmt.Fprintf(rw, "# HELP santorini_game_seats Claimed seats.\n")
	fmt.Fprintf(rw, "# TYPE santorini_game_seats gauge\n")
	fmt.Fprintf(rw, "santorini_game_seats{game=%q} %d\n", id, m.SeatsClaimed)

	fmt.Fprintf(rw, "# HELP santorini_game_clients Current number of connected clients.\n")
	fmt.Fprintf(rw, "# TYPE santorini_game_clients gauge\n")
	fmt.Fprintf(rw, "santorini_game_clients{game=%q} %d\n", id, m.Clients)

	fmt.Fprintf(rw, "# HELP santorini_game_paused Whether the game is paused.\n")
	fmt.Fprintf(rw, "# TYPE santorini_game_paused gauge\n")
	fmt.Fprintf(rw, "santorini_game_paused{game=%q} %d\n", id, boolInt(m.Paused))

	fmt.Fprintf(rw, "# HELP santorini_game_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE santorini_game_queue_depth gauge\n")
	fmt.Fprintf(rw, "santorini_game_queue_depth{game=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "santorini_game_queue_depth{game=%q,queue=%q} %d\n", id, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "santorini_game_queue_depth{game=%q,queue=%q} %d\n", id, "leave", m.QueueDepths.Leave)
	fmt.Fprintf(rw, "santorini_game_queue_depth{game=%q,queue=%q} %d\n", id, "control", m.QueueDepths.Control)

	fmt.Fprintf(rw, "# HELP santorini_game_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE santorini_game_step_ms gauge\n")
	fmt.Fprintf(rw, "santorini_game_step_ms{game=%q} %.3f\n", id, m.StepMS)

	fmt.Fprintf(rw, "# HELP santorini_game_total Lifetime counters.\n")
	fmt.Fprintf(rw, "# TYPE santorini_game_total counter\n")
	fmt.Fprintf(rw, "santorini_game_total{game=%q,counter=%q} %d\n", id, "clicks", m.Clicks)
	fmt.Fprintf(rw, "santorini_game_total{game=%q,counter=%q} %d\n", id, "commits", m.Commits)
	fmt.Fprintf(rw, "santorini_game_total{game=%q,counter=%q} %d\n", id, "restarts", m.Restarts)
	fmt.Fprintf(rw, "santorini_game_total{game=%q,counter=%q} %d\n", id, "games_done", m.GamesDone)

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP santorini_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(rw, "# TYPE santorini_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "santorini_index_queue_depth %d\n", s.QueueDepth)
	fmt.Fprintf(rw, "# HELP santorini_index_queue_capacity Index writer queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE santorini_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "santorini_index_queue_capacity %d\n", s.QueueCapacity)
	fmt.Fprintf(rw, "# HELP santorini_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE santorini_index_dropped_total counter\n")
	fmt.Fprintf(rw, "santorini_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "santorini_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
	fmt.Fprintf(rw, "santorini_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
