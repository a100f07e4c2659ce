package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"santorini.ai/internal/sim/board"
)

type rig struct {
	t    *testing.T
	b    *board.Board
	lock *TurnLock
	m    map[board.Player]*Machine
}

func newRig(t *testing.T) *rig {
	return &rig{
		t:    t,
		b:    board.New(),
		lock: &TurnLock{},
		m: map[board.Player]*Machine{
			board.Player1: NewMachine(board.Player1, Human),
			board.Player2: NewMachine(board.Player2, Human),
		},
	}
}

// tick runs one game tick: only the live machine sees the click, then the lock is released.
func (r *rig) tick(c *Click) Result {
	r.t.Helper()
	live := r.m[r.b.Turn()]
	res, err := live.Step(r.b, r.lock, c)
	require.NoError(r.t, err)
	r.lock.Release()
	return res
}

func (r *rig) click(p board.Pos) Result {
	r.t.Helper()
	c := ClickAt(p)
	return r.tick(&c)
}

func (r *rig) placeAll() {
	r.t.Helper()
	r.click(board.P(0, 0, 0))
	r.click(board.P(4, 4, 0))
	r.click(board.P(0, 4, 0))
	r.click(board.P(4, 0, 0))
	r.tick(nil)
}

func TestMachine_PrepPlaceWorkerSelectsGround(t *testing.T) {
	r := newRig(t)
	res := r.tick(nil)
	assert.False(t, res.Consumed)

	m := r.m[board.Player1]
	assert.Equal(t, PhasePlaceWorker1, m.State().Phase())
	assert.Len(t, m.Selectable(), board.Size*board.Size)
	for _, p := range m.Selectable() {
		assert.Equal(t, 0, p.Height)
	}
}

func TestMachine_PlacementHandsOverTurn(t *testing.T) {
	r := newRig(t)
	res := r.click(board.P(0, 0, 0))
	require.True(t, res.Committed)
	assert.Equal(t, ActionPlaceWorker, res.Action)
	assert.Equal(t, board.P(0, 0, 1), res.To)
	assert.False(t, res.TurnEnded)

	m1 := r.m[board.Player1]
	assert.Equal(t, PhasePlaceWorker2, m1.State().Phase())
	assert.False(t, m1.IsSelectable(board.P(0, 0, 0)))

	res = r.click(board.P(1, 1, 0))
	require.True(t, res.TurnEnded)
	assert.Equal(t, PhasePrepMovement, m1.State().Phase())
	assert.Empty(t, m1.Selectable())
	assert.Equal(t, board.Player2, r.b.Turn())

	r.tick(nil)
	m2 := r.m[board.Player2]
	assert.Equal(t, PhasePlaceWorker1, m2.State().Phase())
	assert.Len(t, m2.Selectable(), board.Size*board.Size-2)
}

func TestMachine_UnselectableClickIgnored(t *testing.T) {
	r := newRig(t)
	r.click(board.P(0, 0, 0))
	res := r.click(board.P(0, 0, 0))
	assert.False(t, res.Consumed)
	res = r.tick(&Miss)
	assert.False(t, res.Consumed)
	assert.Equal(t, 1, r.b.WorkerCount())
	assert.Equal(t, PhasePlaceWorker2, r.m[board.Player1].State().Phase())
}

func TestMachine_MovementSelectsOwnWorkers(t *testing.T) {
	r := newRig(t)
	r.placeAll()

	m1 := r.m[board.Player1]
	assert.Equal(t, PhaseMovement1, m1.State().Phase())
	assert.ElementsMatch(t, []board.Pos{board.P(0, 0, 1), board.P(4, 4, 1)}, m1.Selectable())

	res := r.click(board.P(0, 4, 1))
	assert.False(t, res.Consumed, "opponent worker is not selectable")
}

func TestMachine_PickUpReselectAndCancel(t *testing.T) {
	r := newRig(t)
	r.placeAll()
	m1 := r.m[board.Player1]

	r.click(board.P(0, 0, 1))
	require.Equal(t, Movement2{Selected: board.P(0, 0, 1)}, m1.State())
	raised, ok := m1.Raised()
	require.True(t, ok)
	assert.Equal(t, board.P(0, 0, 1), raised)
	assert.ElementsMatch(t, []board.Pos{
		board.P(0, 1, 0), board.P(1, 0, 0), board.P(1, 1, 0), board.P(4, 4, 1),
	}, m1.Selectable())

	r.click(board.P(4, 4, 1))
	assert.Equal(t, Movement2{Selected: board.P(4, 4, 1)}, m1.State())
	assert.True(t, m1.IsSelectable(board.P(0, 0, 1)))

	res := r.tick(&Miss)
	assert.True(t, res.Consumed)
	assert.False(t, res.Committed)
	assert.Equal(t, PhaseMovement1, m1.State().Phase())
	_, ok = m1.Raised()
	assert.False(t, ok)

	r.click(board.P(0, 0, 1))
	r.click(board.P(0, 0, 1))
	assert.Equal(t, PhaseMovement1, m1.State().Phase(), "clicking the raised worker puts it down")
}

func TestMachine_FullTurn(t *testing.T) {
	r := newRig(t)
	r.placeAll()
	m1 := r.m[board.Player1]

	r.click(board.P(0, 0, 1))
	res := r.click(board.P(1, 1, 0))
	require.True(t, res.Committed)
	assert.Equal(t, ActionMoveWorker, res.Action)
	assert.Equal(t, board.P(0, 0, 1), res.From)
	assert.Equal(t, board.P(1, 1, 1), res.To)
	assert.Equal(t, PrepBuild{Selected: board.P(1, 1, 1)}, m1.State())
	assert.Equal(t, board.Player1, r.b.Turn())

	r.tick(nil)
	assert.Equal(t, PhaseBuild, m1.State().Phase())
	assert.Len(t, m1.Selectable(), 8)
	assert.True(t, m1.IsSelectable(board.P(0, 0, 0)))

	res = r.click(board.P(0, 0, 0))
	require.True(t, res.Committed)
	assert.True(t, res.TurnEnded)
	assert.Equal(t, ActionBuild, res.Action)
	assert.Equal(t, board.P(0, 0, 1), res.To)
	pc, _ := r.b.Piece(board.P(0, 0, 1))
	assert.Equal(t, board.Block, pc.Kind)
	assert.Equal(t, board.Player2, r.b.Turn())
	assert.Equal(t, PhasePrepMovement, m1.State().Phase())
}

func TestMachine_LockedIgnoresInput(t *testing.T) {
	r := newRig(t)
	require.True(t, r.lock.Acquire())
	c := ClickAt(board.P(2, 2, 0))
	res, err := r.m[board.Player1].Step(r.b, r.lock, &c)
	require.NoError(t, err)
	assert.False(t, res.Consumed)
	assert.Equal(t, 0, r.b.WorkerCount())
	assert.Equal(t, PhasePlaceWorker1, r.m[board.Player1].State().Phase())
}

func TestMachine_IdleWhenNotPlayersTurn(t *testing.T) {
	r := newRig(t)
	c := ClickAt(board.P(2, 2, 0))
	res, err := r.m[board.Player2].Step(r.b, r.lock, &c)
	require.NoError(t, err)
	assert.False(t, res.Consumed)
	assert.Equal(t, PhasePrepPlaceWorker, r.m[board.Player2].State().Phase())
}

func TestMachine_WinningMoveStopsMachine(t *testing.T) {
	r := newRig(t)
	for _, h := range []int{1, 2, 3} {
		require.NoError(t, r.b.Build(board.P(2, 2, h)))
	}
	for _, h := range []int{1, 2} {
		require.NoError(t, r.b.Build(board.P(2, 3, h)))
	}
	require.NoError(t, r.b.PlaceWorker(board.P(2, 3, 3), board.Player1))
	require.NoError(t, r.b.PlaceWorker(board.P(0, 0, 1), board.Player1))
	r.b.NextTurn()
	require.NoError(t, r.b.PlaceWorker(board.P(4, 4, 1), board.Player2))
	require.NoError(t, r.b.PlaceWorker(board.P(4, 0, 1), board.Player2))
	r.b.NextTurn()
	r.m[board.Player1] = Resume(board.Player1, Human, PrepMovement{}, nil, nil)
	r.m[board.Player2] = Resume(board.Player2, Human, PrepMovement{}, nil, nil)

	r.click(board.P(2, 3, 3))
	assert.True(t, r.m[board.Player1].IsSelectable(board.P(2, 2, 3)))
	res := r.click(board.P(2, 2, 3))
	require.True(t, res.Committed)
	assert.Equal(t, board.Player1Wins, r.b.Outcome())

	res = r.tick(nil)
	assert.False(t, res.Consumed)
	assert.Equal(t, PhasePrepBuild, r.m[board.Player1].State().Phase())
}

func TestStateOf_RoundTrip(t *testing.T) {
	sel := board.P(1, 2, 1)
	for _, s := range []State{
		PrepPlaceWorker{}, PlaceWorker1{}, PlaceWorker2{}, PrepMovement{},
		Movement1{}, Movement2{Selected: sel}, PrepBuild{Selected: sel}, Build{},
	} {
		p, _ := Selected(s)
		got, err := StateOf(s.Phase(), p)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := StateOf("NOPE", board.Pos{})
	assert.Error(t, err)
}

func TestTurnLock(t *testing.T) {
	var l TurnLock
	assert.False(t, l.Locked())
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire())
	assert.True(t, l.Locked())
	l.Release()
	assert.False(t, l.Locked())
}
