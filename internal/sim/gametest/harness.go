package gametest

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"santorini.ai/internal/protocol"
	"santorini.ai/internal/sim/board"
	"santorini.ai/internal/sim/controller"
	"santorini.ai/internal/sim/game"
)

// Harness is a small black-box test helper for driving a game via exported APIs:
// - Join() claims a seat via StepOnce()
// - Click()/Miss() queue one click and advance one tick
// - Per-seat Out channels carry STATE JSON
//
// It intentionally avoids touching game internals so tests can live outside the game package.
type Harness struct {
	T *testing.T
	G *game.Game

	sessions map[board.Player]*session
	idPrefix string
	nextID   int
}

type session struct {
	Seat      board.Player
	Token     string
	Out       chan []byte
	lastState protocol.StateMsg
}

func DefaultConfig() game.Config {
	return game.Config{ID: "test", TickRateHz: 20, ClickDedupeTTLTicks: 100}
}

// NewHarness builds a game and seats both players.
func NewHarness(t *testing.T, cfg game.Config) *Harness {
	t.Helper()
	g, err := game.New(cfg)
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}
	return NewHarnessWithGame(t, g)
}

// NewHarnessWithGame seats both players on an existing game.
func NewHarnessWithGame(t *testing.T, g *game.Game) *Harness {
	t.Helper()
	h := &Harness{T: t, G: g, sessions: map[board.Player]*session{}, idPrefix: uuid.NewString()[:8]}
	h.Join(board.Player1, "p1")
	h.Join(board.Player2, "p2")
	return h
}

// NewHarnessResumed reattaches both seats of a restored game by resume token.
func NewHarnessResumed(t *testing.T, g *game.Game, tokens map[board.Player]string) *Harness {
	t.Helper()
	h := &Harness{T: t, G: g, sessions: map[board.Player]*session{}, idPrefix: uuid.NewString()[:8]}
	for _, p := range game.Players {
		h.join(game.JoinRequest{Seat: p, ResumeToken: tokens[p]})
	}
	return h
}

func (h *Harness) Join(p board.Player, name string) protocol.WelcomeMsg {
	h.T.Helper()
	return h.join(game.JoinRequest{Name: name, Seat: p})
}

// Token returns the current resume token of seat p.
func (h *Harness) Token(p board.Player) string { return h.sessions[p].Token }

func (h *Harness) join(req game.JoinRequest) protocol.WelcomeMsg {
	h.T.Helper()
	p := req.Seat
	out := make(chan []byte, 16)
	resp := make(chan game.JoinResponse, 1)
	req.Out, req.Resp = out, resp
	_, _ = h.G.StepOnce([]game.JoinRequest{req}, nil, nil, nil)
	jr := <-resp
	if jr.Code != "" {
		h.T.Fatalf("join %s: %s %s", p, jr.Code, jr.Message)
	}
	h.sessions[p] = &session{Seat: p, Token: jr.Welcome.ResumeToken, Out: out}
	h.drainAll()
	return jr.Welcome
}

func (h *Harness) State(p board.Player) protocol.StateMsg {
	h.T.Helper()
	s := h.sessions[p]
	if s == nil {
		h.T.Fatalf("no session for %s", p)
	}
	return s.lastState
}

// Top returns the top occupied height of a column as seen in p's last STATE.
func (h *Harness) Top(p board.Player, row, col int) int {
	top := 0
	for _, pc := range h.State(p).Pieces {
		if pc.Pos[0] == row && pc.Pos[1] == col && pc.Pos[2] > top {
			top = pc.Pos[2]
		}
	}
	return top
}

// Click presses the top of column (row, col) for seat p and advances one tick.
func (h *Harness) Click(p board.Player, row, col int) protocol.AckMsg {
	h.T.Helper()
	return h.ClickPos(p, board.P(row, col, h.Top(p, row, col)))
}

func (h *Harness) ClickPos(p board.Player, pos board.Pos) protocol.AckMsg {
	h.T.Helper()
	acks := h.Tick(h.Envelope(p, controller.ClickAt(pos)))
	return acks[0]
}

func (h *Harness) Miss(p board.Player) protocol.AckMsg {
	h.T.Helper()
	acks := h.Tick(h.Envelope(p, controller.Miss))
	return acks[0]
}

// Envelope builds a click with a fresh click_id and a reply channel.
// Ids are unique per harness so a resumed game never sees them as retries.
func (h *Harness) Envelope(p board.Player, c controller.Click) game.ClickEnvelope {
	h.nextID++
	return game.ClickEnvelope{
		Seat:    p,
		ClickID: fmt.Sprintf("%s-%d", h.idPrefix, h.nextID),
		Click:   c,
		Resp:    make(chan protocol.AckMsg, 1),
	}
}

// Tick advances one tick with the given clicks and returns their ACKs in order.
func (h *Harness) Tick(clicks ...game.ClickEnvelope) []protocol.AckMsg {
	h.T.Helper()
	_, _ = h.G.StepOnce(nil, nil, nil, clicks)
	acks := make([]protocol.AckMsg, 0, len(clicks))
	for _, c := range clicks {
		select {
		case a := <-c.Resp:
			acks = append(acks, a)
		default:
			h.T.Fatalf("no ACK for click %s", c.ClickID)
		}
	}
	h.drainAll()
	return acks
}

func (h *Harness) Control(op game.ControlOp) game.ControlResponse {
	h.T.Helper()
	resp := make(chan game.ControlResponse, 1)
	_, _ = h.G.StepOnce(nil, nil, []game.ControlRequest{{Op: op, Resp: resp}}, nil)
	h.drainAll()
	return <-resp
}

// PlaceWorkers runs the placement phase: P1 then P2, two workers each.
func (h *Harness) PlaceWorkers(p1a, p1b, p2a, p2b board.Cell) {
	h.T.Helper()
	for _, step := range []struct {
		p board.Player
		c board.Cell
	}{{board.Player1, p1a}, {board.Player1, p1b}, {board.Player2, p2a}, {board.Player2, p2b}} {
		if ack := h.Click(step.p, step.c.Row, step.c.Column); !ack.Accepted {
			h.T.Fatalf("place %s at %v: %s %s", step.p, step.c, ack.Code, ack.Message)
		}
	}
}

func (h *Harness) drainAll() {
	for _, s := range h.sessions {
		for {
			select {
			case b := <-s.Out:
				var st protocol.StateMsg
				if err := json.Unmarshal(b, &st); err != nil {
					h.T.Fatalf("unmarshal state: %v", err)
				}
				s.lastState = st
				continue
			default:
			}
			break
		}
	}
}
