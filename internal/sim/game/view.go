package game

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"santorini.ai/internal/protocol"
	"santorini.ai/internal/sim/board"
	"santorini.ai/internal/sim/controller"
)

// View renders the game as seen by seat p. NoPlayer gets the spectator
// view: no selection, and the phase of the player to move.
func (g *Game) View(p board.Player, nowTick uint64) protocol.StateMsg {
	st := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		GameID:          g.cfg.ID,
		Turn:            g.board.Turn().String(),
		Outcome:         g.board.Outcome().String(),
		Paused:          g.paused,
		Selectable:      [][3]int{},
	}
	for _, pc := range g.board.Pieces() {
		v := protocol.PieceView{Kind: pc.Piece.Kind.String(), Pos: pc.Pos.Array()}
		if pc.Piece.Kind == board.Worker {
			v.Player = pc.Piece.Player.String()
		}
		st.Pieces = append(st.Pieces, v)
	}

	m := g.machines[p]
	if m == nil {
		if mm := g.machines[g.board.Turn()]; mm != nil {
			st.Phase = string(mm.State().Phase())
		}
	} else {
		st.Seat = p.String()
		st.Phase = string(m.State().Phase())
		for _, pos := range m.Selectable() {
			st.Selectable = append(st.Selectable, pos.Array())
		}
		if r, ok := m.Raised(); ok {
			a := r.Array()
			st.Raised = &a
		}
	}
	if len(g.events) > 0 {
		st.Events = append([]protocol.Event(nil), g.events...)
	}
	return st
}

func marshalState(st protocol.StateMsg) ([]byte, error) { return json.Marshal(st) }

// LastState is the spectator view published at the end of the last tick.
// Safe to call from any goroutine.
func (g *Game) LastState() protocol.StateMsg {
	v, _ := g.spectator.Load().(protocol.StateMsg)
	return v
}

// stateDigest covers everything replay must reproduce: the board, each
// machine's phase and selection, and the pause flag.
func (g *Game) stateDigest() string {
	h := sha256.New()
	h.Write([]byte(g.board.Digest()))
	for _, p := range Players {
		m := g.machines[p]
		h.Write([]byte{byte(p)})
		h.Write([]byte(m.State().Phase()))
		if sel, ok := controller.Selected(m.State()); ok {
			writePos(h, sel)
		}
		for _, pos := range m.Selectable() {
			writePos(h, pos)
		}
		if r, ok := m.Raised(); ok {
			h.Write([]byte{'R'})
			writePos(h, r)
		}
	}
	if g.paused {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writePos(h interface{ Write([]byte) (int, error) }, p board.Pos) {
	_, _ = h.Write([]byte{byte(p.Row), byte(p.Column), byte(p.Height)})
}

// Metrics is a thread-safe read-only view of key game runtime signals.
// It is updated from the game loop goroutine and read from HTTP handlers/tests.
type Metrics struct {
	Tick    uint64 `json:"tick"`
	GameID  string `json:"game_id"`
	Turn    string `json:"turn"`
	Outcome string `json:"outcome"`
	Paused  bool   `json:"paused"`

	SeatsClaimed int `json:"seats_claimed"`
	Clients      int `json:"clients"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Clicks    uint64 `json:"clicks"`
	Commits   uint64 `json:"commits"`
	Restarts  uint64 `json:"restarts"`
	GamesDone uint64 `json:"games_done"`
}

type QueueDepths struct {
	Inbox   int `json:"inbox"`
	Join    int `json:"join"`
	Leave   int `json:"leave"`
	Control int `json:"control"`
}

func (g *Game) Metrics() Metrics {
	if g == nil {
		return Metrics{}
	}
	m, _ := g.metrics.Load().(Metrics)
	return m
}

func (g *Game) publish(nowTick uint64, stepDur time.Duration) {
	m := Metrics{
		Tick:    nowTick,
		GameID:  g.cfg.ID,
		Turn:    g.board.Turn().String(),
		Outcome: g.board.Outcome().String(),
		Paused:  g.paused,
		QueueDepths: QueueDepths{
			Inbox:   len(g.inbox),
			Join:    len(g.join),
			Leave:   len(g.leave),
			Control: len(g.control),
		},
		StepMS:    float64(stepDur.Microseconds()) / 1000.0,
		Clicks:    g.counters.Clicks,
		Commits:   g.counters.Commits,
		Restarts:  g.counters.Restarts,
		GamesDone: g.counters.GamesDone,
	}
	for _, p := range Players {
		st := g.seats[p]
		if st.claimed() {
			m.SeatsClaimed++
		}
		if st.Out != nil {
			m.Clients++
		}
	}
	g.metrics.Store(m)
	g.spectator.Store(g.View(board.NoPlayer, nowTick))
}
