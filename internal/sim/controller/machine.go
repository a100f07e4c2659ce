package controller

import (
	"errors"
	"fmt"
	"sort"

	"santorini.ai/internal/sim/board"
)

var ErrTurnLocked = errors.New("turn lock held")

// Click is one resolved primary-button press. Hit is false when the press
// landed on nothing pickable.
type Click struct {
	Target board.Pos
	Hit    bool
}

func ClickAt(p board.Pos) Click { return Click{Target: p, Hit: true} }

// Miss is a press with no target.
var Miss = Click{}

type Action string

const (
	ActionPlaceWorker Action = "PLACE_WORKER"
	ActionMoveWorker  Action = "MOVE_WORKER"
	ActionBuild       Action = "BUILD"
)

// Result describes what a Step did with its click.
type Result struct {
	// Consumed is set when the click matched something in the current state,
	// including selection changes that do not touch the board.
	Consumed bool

	// Committed is set when the board was mutated. From is only meaningful for moves.
	Committed bool
	Action    Action
	From      board.Pos
	To        board.Pos

	// TurnEnded is set when the machine handed the turn to the other player.
	TurnEnded bool
}

// Machine is the per-player interaction state machine. It translates clicks
// into rule engine calls, at most one per Step.
type Machine struct {
	player board.Player
	kind   Kind
	state  State

	selectable map[board.Pos]struct{}
	raised     *board.Pos
}

func NewMachine(player board.Player, kind Kind) *Machine {
	return &Machine{
		player:     player,
		kind:       kind,
		state:      PrepPlaceWorker{},
		selectable: map[board.Pos]struct{}{},
	}
}

// Resume rebuilds a machine from snapshot data.
func Resume(player board.Player, kind Kind, state State, selectable []board.Pos, raised *board.Pos) *Machine {
	m := NewMachine(player, kind)
	m.state = state
	for _, p := range selectable {
		m.selectable[p] = struct{}{}
	}
	if raised != nil {
		r := *raised
		m.raised = &r
	}
	return m
}

func (m *Machine) Player() board.Player { return m.player }
func (m *Machine) Kind() Kind           { return m.kind }
func (m *Machine) State() State         { return m.state }

// Selectable returns the interactable positions, sorted.
func (m *Machine) Selectable() []board.Pos {
	out := make([]board.Pos, 0, len(m.selectable))
	for p := range m.selectable {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.Height < b.Height
	})
	return out
}

func (m *Machine) IsSelectable(p board.Pos) bool {
	_, ok := m.selectable[p]
	return ok
}

// Raised returns the worker currently picked up, if any.
func (m *Machine) Raised() (board.Pos, bool) {
	if m.raised == nil {
		return board.Pos{}, false
	}
	return *m.raised, true
}

func (m *Machine) clearSelection() {
	for p := range m.selectable {
		delete(m.selectable, p)
	}
	m.raised = nil
}

func (m *Machine) selectAll(ps []board.Pos) {
	for _, p := range ps {
		m.selectable[p] = struct{}{}
	}
}

// Step advances the machine by one tick. Preparation states run immediately;
// then at most one click is handled. A nil click means no input this tick.
// Clicks are ignored while lock is held or when it is not this player's turn.
func (m *Machine) Step(b *board.Board, lock *TurnLock, click *Click) (Result, error) {
	if b.Outcome().Terminal() || b.Turn() != m.player {
		return Result{}, nil
	}
	m.prepare(b)
	if click == nil || lock.Locked() {
		return Result{}, nil
	}

	switch s := m.state.(type) {
	case PlaceWorker1, PlaceWorker2:
		if !click.Hit || !m.IsSelectable(click.Target) {
			return Result{}, nil
		}
		to, err := click.Target.Above()
		if err != nil {
			return Result{}, err
		}
		if !lock.Acquire() {
			return Result{}, ErrTurnLocked
		}
		if err := b.PlaceWorker(to, m.player); err != nil {
			return Result{}, fmt.Errorf("place worker: %w", err)
		}
		res := Result{Consumed: true, Committed: true, Action: ActionPlaceWorker, To: to}
		if _, first := s.(PlaceWorker1); first {
			delete(m.selectable, click.Target)
			m.state = PlaceWorker2{}
			return res, nil
		}
		m.clearSelection()
		b.NextTurn()
		m.state = PrepMovement{}
		res.TurnEnded = true
		return res, nil

	case Movement1:
		if !click.Hit || !m.IsSelectable(click.Target) {
			return Result{}, nil
		}
		m.pickUp(b, click.Target)
		return Result{Consumed: true}, nil

	case Movement2:
		if !click.Hit || click.Target == s.Selected {
			m.putDown(b)
			return Result{Consumed: true}, nil
		}
		if !m.IsSelectable(click.Target) {
			return Result{}, nil
		}
		if pc, _ := b.Piece(click.Target); pc.IsWorker() {
			m.pickUp(b, click.Target)
			return Result{Consumed: true}, nil
		}
		to, err := click.Target.Above()
		if err != nil {
			return Result{}, err
		}
		if !lock.Acquire() {
			return Result{}, ErrTurnLocked
		}
		if err := b.MoveWorker(s.Selected, to, m.player); err != nil {
			return Result{}, fmt.Errorf("move worker: %w", err)
		}
		m.clearSelection()
		m.state = PrepBuild{Selected: to}
		return Result{Consumed: true, Committed: true, Action: ActionMoveWorker, From: s.Selected, To: to}, nil

	case Build:
		if !click.Hit || !m.IsSelectable(click.Target) {
			return Result{}, nil
		}
		at, err := click.Target.Above()
		if err != nil {
			return Result{}, err
		}
		if !lock.Acquire() {
			return Result{}, ErrTurnLocked
		}
		if err := b.Build(at); err != nil {
			return Result{}, fmt.Errorf("build: %w", err)
		}
		m.clearSelection()
		b.NextTurn()
		m.state = PrepMovement{}
		return Result{Consumed: true, Committed: true, Action: ActionBuild, To: at, TurnEnded: true}, nil
	}
	return Result{}, nil
}

// prepare runs the preparation states, which compute a selection set and
// advance without consuming input.
func (m *Machine) prepare(b *board.Board) {
	for {
		switch s := m.state.(type) {
		case PrepPlaceWorker:
			m.clearSelection()
			for r := 0; r < board.Size; r++ {
				for c := 0; c < board.Size; c++ {
					if b.Top(r, c) == 0 {
						m.selectable[board.P(r, c, 0)] = struct{}{}
					}
				}
			}
			m.state = PlaceWorker1{}
		case PrepMovement:
			m.clearSelection()
			m.selectAll(b.Workers(m.player))
			m.state = Movement1{}
		case PrepBuild:
			m.clearSelection()
			m.selectAll(b.BuildTargets(s.Selected))
			m.state = Build{}
		default:
			return
		}
	}
}

// pickUp raises the worker at w and offers its move targets plus the
// player's other workers for re-selection.
func (m *Machine) pickUp(b *board.Board, w board.Pos) {
	m.clearSelection()
	m.selectAll(b.MoveTargets(w))
	for _, other := range b.Workers(m.player) {
		if other != w {
			m.selectable[other] = struct{}{}
		}
	}
	r := w
	m.raised = &r
	m.state = Movement2{Selected: w}
}

// putDown cancels a pick-up and offers the player's workers again.
func (m *Machine) putDown(b *board.Board) {
	m.clearSelection()
	m.selectAll(b.Workers(m.player))
	m.state = Movement1{}
}
