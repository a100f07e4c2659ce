package game

import (
	"santorini.ai/internal/protocol"
	"santorini.ai/internal/sim/board"
)

type clickDedupeKey struct {
	Seat    board.Player
	ClickID string
}

type pendingAck struct {
	resp chan protocol.AckMsg
	ack  protocol.AckMsg
}

// admit picks the single click handled this tick: the first queued click
// from the seat whose turn it is. Everything else is answered with a reject.
func (g *Game) admit(nowTick uint64, clicks []ClickEnvelope) (*ClickEnvelope, []pendingAck) {
	g.expireDedupe(nowTick)

	var admitted *ClickEnvelope
	var acks []pendingAck
	reject := func(env ClickEnvelope, code, msg string) {
		acks = append(acks, pendingAck{resp: env.Resp, ack: protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          env.ClickID,
			Accepted:        false,
			Code:            code,
			Message:         msg,
			ServerTick:      nowTick,
		}})
	}

	for i := range clicks {
		env := clicks[i]
		g.counters.Clicks++
		if env.ClickID != "" {
			key := clickDedupeKey{Seat: env.Seat, ClickID: env.ClickID}
			if _, seen := g.dedupe[key]; seen {
				reject(env, protocol.ErrDuplicate, "click_id already seen")
				continue
			}
			g.dedupe[key] = nowTick + uint64(g.cfg.ClickDedupeTTLTicks)
		}
		switch {
		case !env.Seat.Valid():
			reject(env, protocol.ErrNotSeated, "no seat")
		case g.paused:
			reject(env, protocol.ErrPaused, "game is paused")
		case g.board.Outcome().Terminal():
			reject(env, protocol.ErrGameOver, "game is over")
		case env.Seat != g.board.Turn():
			reject(env, protocol.ErrNotYourTurn, "not your turn")
		case g.lock.Locked():
			reject(env, protocol.ErrLocked, "turn in progress")
		case admitted != nil:
			reject(env, protocol.ErrDropped, "one click per tick")
		default:
			admitted = &clicks[i]
		}
	}
	return admitted, acks
}

func (g *Game) expireDedupe(nowTick uint64) {
	for k, expires := range g.dedupe {
		if nowTick >= expires {
			delete(g.dedupe, k)
		}
	}
}
