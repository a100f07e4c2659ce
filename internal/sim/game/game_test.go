package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"santorini.ai/internal/persistence/snapshot"
	"santorini.ai/internal/protocol"
	"santorini.ai/internal/sim/board"
	"santorini.ai/internal/sim/controller"
	"santorini.ai/internal/sim/tuning"
)

type memTickLog struct{ entries []TickLogEntry }

func (m *memTickLog) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type memAuditLog struct{ entries []AuditEntry }

func (m *memAuditLog) WriteAudit(e AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func newTestGame(t *testing.T) *Game {
	t.Helper()
	cfg, err := ConfigFromTuning("g-test", tuning.Defaults())
	require.NoError(t, err)
	g, err := New(cfg)
	require.NoError(t, err)
	return g
}

func join(g *Game, req JoinRequest) JoinResponse {
	resp := make(chan JoinResponse, 1)
	req.Resp = resp
	g.StepOnce([]JoinRequest{req}, nil, nil, nil)
	return <-resp
}

func click(g *Game, seat board.Player, id string, c controller.Click) protocol.AckMsg {
	resp := make(chan protocol.AckMsg, 1)
	g.StepOnce(nil, nil, nil, []ClickEnvelope{{Seat: seat, ClickID: id, Click: c, Resp: resp}})
	return <-resp
}

// winningPosition has P1 on a two-block stack next to a three-block column.
func winningPosition(t *testing.T) *board.Board {
	t.Helper()
	b := board.New()
	require.NoError(t, b.Build(board.P(1, 1, 1)))
	require.NoError(t, b.Build(board.P(1, 1, 2)))
	require.NoError(t, b.PlaceWorker(board.P(1, 1, 3), board.Player1))
	require.NoError(t, b.PlaceWorker(board.P(0, 4, 1), board.Player1))
	b.NextTurn()
	require.NoError(t, b.PlaceWorker(board.P(4, 4, 1), board.Player2))
	require.NoError(t, b.PlaceWorker(board.P(4, 3, 1), board.Player2))
	b.NextTurn()
	for h := 1; h <= 3; h++ {
		require.NoError(t, b.Build(board.P(2, 2, h)))
	}
	require.Equal(t, board.Ongoing, b.Outcome())
	return b
}

func TestConfigFromTuning(t *testing.T) {
	tu := tuning.Defaults()
	cfg, err := ConfigFromTuning("", tu)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.ID)
	assert.Equal(t, controller.Human, cfg.Controllers[board.Player2])

	tu.TickRateHz = 0
	_, err = ConfigFromTuning("x", tu)
	assert.Error(t, err)
}

func TestJoin_SeatsAndResume(t *testing.T) {
	g := newTestGame(t)

	out1 := make(chan []byte, 4)
	r1 := join(g, JoinRequest{Name: "ana", Out: out1})
	require.Empty(t, r1.Code)
	assert.Equal(t, "P1", r1.Welcome.Seat)
	assert.Equal(t, "g-test", r1.Welcome.GameID)
	assert.Equal(t, board.Size, r1.Welcome.Params.BoardSize)
	assert.NotEmpty(t, r1.Welcome.ResumeToken)

	r := join(g, JoinRequest{Name: "eve", Seat: board.Player1})
	assert.Equal(t, protocol.ErrSeatTaken, r.Code)

	r2 := join(g, JoinRequest{Name: "bo", Out: make(chan []byte, 4)})
	require.Empty(t, r2.Code)
	assert.Equal(t, "P2", r2.Welcome.Seat)

	r = join(g, JoinRequest{Name: "cy"})
	assert.Equal(t, protocol.ErrGameBusy, r.Code)

	// A stale connection cannot detach the seat.
	g.StepOnce(nil, []LeaveRequest{{Seat: board.Player1, Out: make(chan []byte)}}, nil, nil)
	assert.Equal(t, 2, g.Metrics().Clients)

	g.StepOnce(nil, []LeaveRequest{{Seat: board.Player1, Out: out1}}, nil, nil)
	assert.Equal(t, 1, g.Metrics().Clients)
	assert.Equal(t, 2, g.Metrics().SeatsClaimed)

	r = join(g, JoinRequest{ResumeToken: "nope"})
	assert.Equal(t, protocol.ErrNotSeated, r.Code)

	rr := join(g, JoinRequest{ResumeToken: r1.Welcome.ResumeToken, Out: make(chan []byte, 4)})
	require.Empty(t, rr.Code)
	assert.Equal(t, "P1", rr.Welcome.Seat)
	assert.NotEqual(t, r1.Welcome.ResumeToken, rr.Welcome.ResumeToken, "token rotates on resume")
}

func TestStep_TickLogOnlyWhenSomethingHappened(t *testing.T) {
	g := newTestGame(t)
	tl := &memTickLog{}
	g.SetTickLogger(tl)

	g.StepOnce(nil, nil, nil, nil)
	assert.Empty(t, tl.entries)

	join(g, JoinRequest{Name: "ana", Seat: board.Player1})
	require.Len(t, tl.entries, 1)
	assert.Equal(t, []RecordedJoin{{Seat: "P1", Name: "ana"}}, tl.entries[0].Joins)

	ack := click(g, board.Player1, "c1", controller.ClickAt(board.P(2, 2, 0)))
	require.True(t, ack.Accepted)
	require.Len(t, tl.entries, 2)
	e := tl.entries[1]
	require.Len(t, e.Clicks, 1)
	assert.Equal(t, RecordedClick{Seat: "P1", ClickID: "c1", Target: &[3]int{2, 2, 0}}, e.Clicks[0])
	assert.Equal(t, g.stateDigest(), e.Digest)

	// Rejected clicks are not logged.
	ack = click(g, board.Player2, "c2", controller.Miss)
	assert.Equal(t, protocol.ErrNotYourTurn, ack.Code)
	assert.Len(t, tl.entries, 2)
}

func TestStep_WinningMoveEndsGame(t *testing.T) {
	g := newTestGame(t)
	al := &memAuditLog{}
	g.SetAuditLogger(al)
	sink := make(chan snapshot.SnapshotV1, 4)
	g.SetSnapshotSink(sink)

	g.board = winningPosition(t)
	for _, p := range Players {
		g.machines[p] = controller.Resume(p, controller.Human, controller.PrepMovement{}, nil, nil)
	}

	require.True(t, click(g, board.Player1, "a", controller.ClickAt(board.P(1, 1, 3))).Accepted)
	ack := click(g, board.Player1, "b", controller.ClickAt(board.P(2, 2, 3)))
	require.True(t, ack.Accepted)

	assert.Equal(t, board.Player1Wins, g.board.Outcome())
	require.Len(t, al.entries, 2)
	assert.Equal(t, "MOVE_WORKER", al.entries[0].Action)
	assert.Equal(t, &[3]int{2, 2, 4}, al.entries[0].To)
	assert.Equal(t, "OUTCOME", al.entries[1].Action)
	assert.Equal(t, "P1_WINS", al.entries[1].Result)
	assert.Equal(t, "g-test", al.entries[1].GameID)

	select {
	case snap := <-sink:
		assert.Equal(t, "P1_WINS", snap.Outcome)
	default:
		t.Fatalf("expected snapshot on game end")
	}
	assert.Equal(t, uint64(1), g.Metrics().GamesDone)

	ack = click(g, board.Player2, "c", controller.ClickAt(board.P(4, 4, 1)))
	assert.Equal(t, protocol.ErrGameOver, ack.Code)

	st := g.LastState()
	assert.Equal(t, "P1_WINS", st.Outcome)
	assert.Empty(t, st.Selectable)
}

func TestDedupe_Expires(t *testing.T) {
	g := newTestGame(t)
	g.cfg.ClickDedupeTTLTicks = 2

	require.True(t, click(g, board.Player1, "same", controller.Miss).Accepted)
	assert.Equal(t, protocol.ErrDuplicate, click(g, board.Player1, "same", controller.Miss).Code)
	g.StepOnce(nil, nil, nil, nil)
	assert.True(t, click(g, board.Player1, "same", controller.Miss).Accepted)

	// The same id from the other seat is a different key.
	assert.Equal(t, protocol.ErrNotYourTurn, click(g, board.Player2, "same", controller.Miss).Code)
}

func TestClick_UnmatchedIsAcknowledgedButIgnored(t *testing.T) {
	g := newTestGame(t)
	tl := &memTickLog{}
	g.SetTickLogger(tl)
	g.StepOnce(nil, nil, nil, nil)
	before := g.stateDigest()

	ack := click(g, board.Player1, "m", controller.Miss)
	assert.True(t, ack.Accepted)
	assert.Empty(t, ack.Code)
	assert.Equal(t, before, g.stateDigest())
	assert.Equal(t, uint64(0), g.Metrics().Commits)
	assert.Equal(t, string(controller.PhasePlaceWorker1), g.View(board.Player1, 0).Phase)

	// Admitted clicks are logged even when they match nothing, so replay sees them.
	require.Len(t, tl.entries, 1)
	assert.Nil(t, tl.entries[0].Clicks[0].Target)
}

func TestView_SeatAndSpectator(t *testing.T) {
	g := newTestGame(t)
	g.StepOnce(nil, nil, nil, nil)

	p1 := g.View(board.Player1, 0)
	assert.Equal(t, "P1", p1.Seat)
	assert.Len(t, p1.Selectable, 25)

	p2 := g.View(board.Player2, 0)
	assert.Empty(t, p2.Selectable)
	assert.Equal(t, string(controller.PhasePrepPlaceWorker), p2.Phase)

	watcher := g.View(board.NoPlayer, 0)
	assert.Empty(t, watcher.Seat)
	assert.Empty(t, watcher.Selectable)
	assert.Equal(t, string(controller.PhasePlaceWorker1), watcher.Phase)
}

func TestClickFromTarget(t *testing.T) {
	c, err := ClickFromTarget(nil)
	require.NoError(t, err)
	assert.False(t, c.Hit)

	c, err = ClickFromTarget(&[3]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, controller.ClickAt(board.P(1, 2, 3)), c)

	_, err = ClickFromTarget(&[3]int{5, 0, 0})
	assert.Error(t, err)
}

func TestRun_ControlRoundTrip(t *testing.T) {
	g := newTestGame(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	_, err := g.RequestControl(rctx, ControlPause)
	require.NoError(t, err)
	_, err = g.RequestControl(rctx, ControlSnapshot)
	assert.Error(t, err, "no sink configured")

	require.Eventually(t, func() bool { return g.Metrics().Paused }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
}
