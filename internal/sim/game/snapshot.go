package game

import (
	"fmt"
	"sort"

	"santorini.ai/internal/persistence/snapshot"
	"santorini.ai/internal/sim/board"
	"santorini.ai/internal/sim/controller"
)

func (g *Game) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	st := g.board.Export()
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			GameID:  g.cfg.ID,
			Tick:    nowTick,
		},
		TickRate:            g.cfg.TickRateHz,
		SnapshotEveryTicks:  g.cfg.SnapshotEveryTicks,
		ClickDedupeTTLTicks: g.cfg.ClickDedupeTTLTicks,
		Turn:                st.Turn.String(),
		Outcome:             st.Outcome.String(),
		Paused:              g.paused,
		Counters:            g.counters,
	}
	for _, pc := range st.Pieces {
		v := snapshot.PieceV1{Kind: pc.Piece.Kind.String(), Pos: pc.Pos.Array()}
		if pc.Piece.Kind == board.Worker {
			v.Player = pc.Piece.Player.String()
		}
		s.Pieces = append(s.Pieces, v)
	}
	for _, p := range Players {
		m := g.machines[p]
		c := snapshot.ControllerV1{
			Player: p.String(),
			Kind:   string(m.Kind()),
			Phase:  string(m.State().Phase()),
		}
		if sel, ok := controller.Selected(m.State()); ok {
			a := sel.Array()
			c.Selected = &a
		}
		for _, pos := range m.Selectable() {
			c.Selectable = append(c.Selectable, pos.Array())
		}
		if r, ok := m.Raised(); ok {
			a := r.Array()
			c.Raised = &a
		}
		s.Controllers = append(s.Controllers, c)

		if seat := g.seats[p]; seat.claimed() {
			s.Seats = append(s.Seats, snapshot.SeatV1{Player: p.String(), Name: seat.Name, ResumeToken: seat.ResumeToken})
		}
	}
	for k, expires := range g.dedupe {
		s.Dedupe = append(s.Dedupe, snapshot.DedupeV1{Seat: k.Seat.String(), ClickID: k.ClickID, Expires: expires})
	}
	sort.Slice(s.Dedupe, func(i, j int) bool {
		if s.Dedupe[i].Seat != s.Dedupe[j].Seat {
			return s.Dedupe[i].Seat < s.Dedupe[j].Seat
		}
		return s.Dedupe[i].ClickID < s.Dedupe[j].ClickID
	})
	return s
}

// ImportSnapshot replaces the game state with s. The next step runs at
// s.Header.Tick+1. Connections are not restored; seats wait for resume.
func (g *Game) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	turn, ok := board.ParsePlayer(s.Turn)
	if !ok {
		return fmt.Errorf("snapshot turn %q: %w", s.Turn, board.ErrInvalidState)
	}
	outcome, err := board.ParseOutcome(s.Outcome)
	if err != nil {
		return err
	}
	bs := board.State{Turn: turn, Outcome: outcome}
	for _, pv := range s.Pieces {
		kind, err := board.ParseKind(pv.Kind)
		if err != nil {
			return err
		}
		pc := board.Piece{Kind: kind}
		if kind == board.Worker {
			owner, ok := board.ParsePlayer(pv.Player)
			if !ok {
				return fmt.Errorf("worker at %v has no owner: %w", pv.Pos, board.ErrInvalidState)
			}
			pc.Player = owner
		}
		bs.Pieces = append(bs.Pieces, board.Placed{Piece: pc, Pos: board.PosFromArray(pv.Pos)})
	}
	b, err := board.Restore(bs)
	if err != nil {
		return fmt.Errorf("restore board: %w", err)
	}

	machines := map[board.Player]*controller.Machine{}
	for _, c := range s.Controllers {
		p, ok := board.ParsePlayer(c.Player)
		if !ok {
			return fmt.Errorf("controller player %q: %w", c.Player, board.ErrInvalidState)
		}
		kind, err := controller.ParseKind(c.Kind)
		if err != nil {
			return err
		}
		var selected board.Pos
		if c.Selected != nil {
			selected = board.PosFromArray(*c.Selected)
		}
		state, err := controller.StateOf(controller.Phase(c.Phase), selected)
		if err != nil {
			return err
		}
		selectable := make([]board.Pos, 0, len(c.Selectable))
		for _, a := range c.Selectable {
			selectable = append(selectable, board.PosFromArray(a))
		}
		var raised *board.Pos
		if c.Raised != nil {
			r := board.PosFromArray(*c.Raised)
			raised = &r
		}
		machines[p] = controller.Resume(p, kind, state, selectable, raised)
	}
	for _, p := range Players {
		if machines[p] == nil {
			machines[p] = controller.NewMachine(p, g.cfg.Controllers[p])
		}
	}

	seats := map[board.Player]*seat{board.Player1: {}, board.Player2: {}}
	for _, sv := range s.Seats {
		p, ok := board.ParsePlayer(sv.Player)
		if !ok {
			continue
		}
		seats[p] = &seat{Name: sv.Name, ResumeToken: sv.ResumeToken}
	}

	dedupe := map[clickDedupeKey]uint64{}
	for _, d := range s.Dedupe {
		p, ok := board.ParsePlayer(d.Seat)
		if !ok {
			continue
		}
		dedupe[clickDedupeKey{Seat: p, ClickID: d.ClickID}] = d.Expires
	}

	g.cfg.ID = s.Header.GameID
	if s.TickRate > 0 {
		g.cfg.TickRateHz = s.TickRate
	}
	g.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	if s.ClickDedupeTTLTicks > 0 {
		g.cfg.ClickDedupeTTLTicks = s.ClickDedupeTTLTicks
	}
	g.board = b
	g.machines = machines
	g.seats = seats
	g.dedupe = dedupe
	g.paused = s.Paused
	g.counters = s.Counters
	g.lock.Release()
	g.dirtySinceSnapshot = false
	g.tick.Store(s.Header.Tick + 1)
	g.publish(s.Header.Tick, 0)
	return nil
}
