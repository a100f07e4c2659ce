package game

import (
	"strings"

	"github.com/google/uuid"

	"santorini.ai/internal/protocol"
	"santorini.ai/internal/sim/board"
)

func (g *Game) handleJoin(req JoinRequest) JoinResponse {
	if token := strings.TrimSpace(req.ResumeToken); token != "" {
		if p, ok := g.seatByToken(token); ok && (req.Seat == board.NoPlayer || req.Seat == p) {
			return g.attach(p, req.Out)
		}
		return JoinResponse{Code: protocol.ErrNotSeated, Message: "unknown resume token"}
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "player"
	}

	seatFor := req.Seat
	if seatFor == board.NoPlayer {
		for _, p := range Players {
			if !g.seats[p].claimed() {
				seatFor = p
				break
			}
		}
		if seatFor == board.NoPlayer {
			return JoinResponse{Code: protocol.ErrGameBusy, Message: "both seats are taken"}
		}
	}
	if !seatFor.Valid() {
		return JoinResponse{Code: protocol.ErrProtoBadRequest, Message: "bad seat"}
	}
	if g.seats[seatFor].claimed() {
		return JoinResponse{Code: protocol.ErrSeatTaken, Message: "seat " + seatFor.String() + " is taken"}
	}

	g.seats[seatFor].Name = name
	g.logger.Printf("seat %s claimed by %q", seatFor, name)
	return g.attach(seatFor, req.Out)
}

// attach binds a connection to a claimed seat and rotates its resume token.
func (g *Game) attach(p board.Player, out chan []byte) JoinResponse {
	st := g.seats[p]
	st.Out = out
	st.ResumeToken = uuid.NewString()
	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		GameID:          g.cfg.ID,
		Seat:            p.String(),
		ResumeToken:     st.ResumeToken,
		Params: protocol.GameParams{
			TickRateHz: g.cfg.TickRateHz,
			BoardSize:  board.Size,
			MaxHeight:  board.MaxHeight,
		},
	}}
}

func (g *Game) seatByToken(token string) (board.Player, bool) {
	for _, p := range Players {
		if st := g.seats[p]; st.claimed() && st.ResumeToken == token {
			return p, true
		}
	}
	return board.NoPlayer, false
}

// handleLeave detaches the connection; the seat stays claimed for resume.
func (g *Game) handleLeave(req LeaveRequest) bool {
	st, ok := g.seats[req.Seat]
	if !ok || st.Out == nil {
		return false
	}
	if req.Out != nil && st.Out != req.Out {
		return false
	}
	st.Out = nil
	return true
}
