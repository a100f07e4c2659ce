package controller

import (
	"fmt"

	"santorini.ai/internal/sim/board"
)

// Phase names a State variant. It is the wire and snapshot form of the state.
type Phase string

const (
	PhasePrepPlaceWorker Phase = "PREP_PLACE_WORKER"
	PhasePlaceWorker1    Phase = "PLACE_WORKER_1"
	PhasePlaceWorker2    Phase = "PLACE_WORKER_2"
	PhasePrepMovement    Phase = "PREP_MOVEMENT"
	PhaseMovement1       Phase = "MOVEMENT_1"
	PhaseMovement2       Phase = "MOVEMENT_2"
	PhasePrepBuild       Phase = "PREP_BUILD"
	PhaseBuild           Phase = "BUILD"
)

// State is one phase of a player's turn cycle. The set of implementations is closed.
type State interface {
	Phase() Phase
}

type (
	PrepPlaceWorker struct{}
	PlaceWorker1    struct{}
	PlaceWorker2    struct{}
	PrepMovement    struct{}
	Movement1       struct{}

	// Movement2 holds the picked-up worker waiting for a destination.
	Movement2 struct{ Selected board.Pos }

	// PrepBuild holds the worker's position after it moved.
	PrepBuild struct{ Selected board.Pos }

	Build struct{}
)

func (PrepPlaceWorker) Phase() Phase { return PhasePrepPlaceWorker }
func (PlaceWorker1) Phase() Phase    { return PhasePlaceWorker1 }
func (PlaceWorker2) Phase() Phase    { return PhasePlaceWorker2 }
func (PrepMovement) Phase() Phase    { return PhasePrepMovement }
func (Movement1) Phase() Phase       { return PhaseMovement1 }
func (Movement2) Phase() Phase       { return PhaseMovement2 }
func (PrepBuild) Phase() Phase       { return PhasePrepBuild }
func (Build) Phase() Phase           { return PhaseBuild }

// Selected returns the payload position of states that carry one.
func Selected(s State) (board.Pos, bool) {
	switch v := s.(type) {
	case Movement2:
		return v.Selected, true
	case PrepBuild:
		return v.Selected, true
	default:
		return board.Pos{}, false
	}
}

// StateOf rebuilds a State from its phase and payload.
func StateOf(p Phase, selected board.Pos) (State, error) {
	switch p {
	case PhasePrepPlaceWorker:
		return PrepPlaceWorker{}, nil
	case PhasePlaceWorker1:
		return PlaceWorker1{}, nil
	case PhasePlaceWorker2:
		return PlaceWorker2{}, nil
	case PhasePrepMovement:
		return PrepMovement{}, nil
	case PhaseMovement1:
		return Movement1{}, nil
	case PhaseMovement2:
		return Movement2{Selected: selected}, nil
	case PhasePrepBuild:
		return PrepBuild{Selected: selected}, nil
	case PhaseBuild:
		return Build{}, nil
	default:
		return nil, fmt.Errorf("unknown phase %q", p)
	}
}

// Kind is who drives a seat. Only human control exists.
type Kind string

const Human Kind = "human"

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Human:
		return Human, nil
	case "":
		return Human, nil
	default:
		return "", fmt.Errorf("unknown controller kind %q", s)
	}
}
