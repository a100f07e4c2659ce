package game

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"santorini.ai/internal/persistence/snapshot"
	"santorini.ai/internal/protocol"
	"santorini.ai/internal/sim/board"
	"santorini.ai/internal/sim/controller"
	"santorini.ai/internal/sim/tuning"
)

// Players lists the seats in their fixed processing order.
var Players = [...]board.Player{board.Player1, board.Player2}

type Config struct {
	ID                  string
	TickRateHz          int
	SnapshotEveryTicks  int
	ClickDedupeTTLTicks int
	Controllers         map[board.Player]controller.Kind
}

// ConfigFromTuning builds a game config. An empty id gets a fresh uuid.
func ConfigFromTuning(id string, t tuning.Tuning) (Config, error) {
	if err := t.Validate(); err != nil {
		return Config{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	k1, _ := controller.ParseKind(t.Controllers.P1)
	k2, _ := controller.ParseKind(t.Controllers.P2)
	return Config{
		ID:                  id,
		TickRateHz:          t.TickRateHz,
		SnapshotEveryTicks:  t.SnapshotEveryTicks,
		ClickDedupeTTLTicks: t.ClickDedupeTTLTicks,
		Controllers:         map[board.Player]controller.Kind{board.Player1: k1, board.Player2: k2},
	}, nil
}

type JoinRequest struct {
	Name string
	// Seat is the requested seat; NoPlayer takes any free one.
	Seat        board.Player
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	// Code is set when the join was refused.
	Code    string
	Message string
}

type LeaveRequest struct {
	Seat board.Player
	// Out identifies the connection; a stale connection cannot detach a resumed one.
	Out chan []byte
}

type ClickEnvelope struct {
	Seat    board.Player
	ClickID string
	Click   controller.Click
	// Resp receives the ACK; optional.
	Resp chan protocol.AckMsg
}

type RecordedJoin struct {
	Seat string `json:"seat"`
	Name string `json:"name"`
}

type RecordedClick struct {
	Seat    string  `json:"seat"`
	ClickID string  `json:"click_id,omitempty"`
	Target  *[3]int `json:"target"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick     uint64          `json:"tick"`
	Joins    []RecordedJoin  `json:"joins,omitempty"`
	Leaves   []string        `json:"leaves,omitempty"`
	Controls []string        `json:"controls,omitempty"`
	Clicks   []RecordedClick `json:"clicks,omitempty"`
	Digest   string          `json:"digest"`
}

type AuditEntry struct {
	Tick   uint64  `json:"tick"`
	GameID string  `json:"game_id"`
	Actor  string  `json:"actor"`
	Action string  `json:"action"` // PLACE_WORKER, MOVE_WORKER, BUILD, OUTCOME
	From   *[3]int `json:"from,omitempty"`
	To     *[3]int `json:"to,omitempty"`
	Turn   string  `json:"turn"`
	Result string  `json:"outcome"`
}

type seat struct {
	Name        string
	ResumeToken string
	Out         chan []byte
}

func (s *seat) claimed() bool { return s != nil && s.Name != "" }

// Game is a single-threaded authoritative match between two seats.
// All state must be accessed only from the game loop goroutine.
type Game struct {
	cfg Config

	tick atomic.Uint64

	board    *board.Board
	lock     controller.TurnLock
	machines map[board.Player]*controller.Machine
	seats    map[board.Player]*seat
	paused   bool

	dedupe map[clickDedupeKey]uint64

	inbox   chan ClickEnvelope
	join    chan JoinRequest
	leave   chan LeaveRequest
	control chan ControlRequest
	stop    chan struct{}

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger
	logger      *log.Logger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink       chan<- snapshot.SnapshotV1
	dirtySinceSnapshot bool

	counters snapshot.CountersV1
	events   []protocol.Event

	metrics   atomic.Value // Metrics
	spectator atomic.Value // protocol.StateMsg
}

func New(cfg Config) (*Game, error) {
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("tick rate must be > 0")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.ClickDedupeTTLTicks <= 0 {
		cfg.ClickDedupeTTLTicks = tuning.Defaults().ClickDedupeTTLTicks
	}
	if cfg.Controllers == nil {
		cfg.Controllers = map[board.Player]controller.Kind{}
	}
	for _, p := range Players {
		if cfg.Controllers[p] == "" {
			cfg.Controllers[p] = controller.Human
		}
	}
	g := &Game{
		cfg:     cfg,
		board:   board.New(),
		seats:   map[board.Player]*seat{board.Player1: {}, board.Player2: {}},
		dedupe:  map[clickDedupeKey]uint64{},
		inbox:   make(chan ClickEnvelope, 256),
		join:    make(chan JoinRequest, 16),
		leave:   make(chan LeaveRequest, 16),
		control: make(chan ControlRequest, 16),
		stop:    make(chan struct{}),
		logger:  log.New(io.Discard, "", 0),
	}
	g.resetMachines()
	g.publish(0, 0)
	return g, nil
}

func (g *Game) resetMachines() {
	g.machines = map[board.Player]*controller.Machine{}
	for _, p := range Players {
		g.machines[p] = controller.NewMachine(p, g.cfg.Controllers[p])
	}
}

func (g *Game) SetTickLogger(l TickLogger)                    { g.tickLogger = l }
func (g *Game) SetAuditLogger(l AuditLogger)                  { g.auditLogger = l }
func (g *Game) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { g.snapshotSink = ch }

func (g *Game) SetLogger(l *log.Logger) {
	if l == nil {
		l = log.New(io.Discard, "", 0)
	}
	g.logger = l
}

func (g *Game) Inbox() chan<- ClickEnvelope { return g.inbox }
func (g *Game) Join() chan<- JoinRequest    { return g.join }
func (g *Game) Leave() chan<- LeaveRequest  { return g.leave }

func (g *Game) ID() string          { return g.cfg.ID }
func (g *Game) Config() Config      { return g.cfg }
func (g *Game) CurrentTick() uint64 { return g.tick.Load() }

func (g *Game) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(g.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingClicks []ClickEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []LeaveRequest
	var pendingControls []ControlRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.stop:
			return nil
		case req := <-g.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-g.leave:
			pendingLeaves = append(pendingLeaves, req)
		case req := <-g.control:
			pendingControls = append(pendingControls, req)
		case env := <-g.inbox:
			pendingClicks = append(pendingClicks, env)
		case <-ticker.C:
			g.step(pendingJoins, pendingLeaves, pendingControls, pendingClicks)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingControls = pendingControls[:0]
			pendingClicks = pendingClicks[:0]
		}
	}
}

func (g *Game) Stop() { close(g.stop) }

func (g *Game) step(joins []JoinRequest, leaves []LeaveRequest, controls []ControlRequest, clicks []ClickEnvelope) {
	start := time.Now()
	nowTick := g.tick.Load()
	g.events = g.events[:0]

	// Seat changes and controls apply at the tick boundary, before input.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, req := range leaves {
		if g.handleLeave(req) {
			recordedLeaves = append(recordedLeaves, req.Seat.String())
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := g.handleJoin(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		if resp.Code == "" {
			recordedJoins = append(recordedJoins, RecordedJoin{Seat: resp.Welcome.Seat, Name: req.Name})
		}
	}
	recordedControls, snapReqs := g.applyControls(nowTick, controls)

	before := g.board.Outcome()
	admitted, acks := g.admit(nowTick, clicks)

	var recordedClicks []RecordedClick
	for _, p := range Players {
		var click *controller.Click
		if admitted != nil && admitted.Seat == p {
			click = &admitted.Click
		}
		res, err := g.machines[p].Step(g.board, &g.lock, click)
		if click == nil {
			continue
		}
		recordedClicks = append(recordedClicks, recordClick(*admitted))
		ack := protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          admitted.ClickID,
			Accepted:        err == nil,
			ServerTick:      nowTick,
		}
		if err != nil {
			ack.Code = protocol.CodeForError(err)
			ack.Message = err.Error()
			g.logger.Printf("tick=%d seat=%s click rejected: %v", nowTick, p, err)
			g.emit(nowTick, protocol.Event{Code: ack.Code, Player: p.String(), Message: err.Error()})
		} else if res.Committed {
			g.onCommit(nowTick, p, res)
		}
		acks = append(acks, pendingAck{resp: admitted.Resp, ack: ack})
	}

	// A turn handed over this tick prepares the next machine right away.
	for _, p := range Players {
		_, _ = g.machines[p].Step(g.board, &g.lock, nil)
	}

	if after := g.board.Outcome(); after != before && after.Terminal() {
		g.onOutcome(nowTick, after)
	}

	// The lock guards a single tick's mutation.
	g.lock.Release()

	for _, a := range acks {
		if a.resp == nil {
			continue
		}
		select {
		case a.resp <- a.ack:
		default:
		}
	}

	for _, p := range Players {
		st := g.seats[p]
		if st.Out == nil {
			continue
		}
		if b, err := marshalState(g.View(p, nowTick)); err == nil {
			sendLatest(st.Out, b)
		}
	}

	digest := g.stateDigest()
	if g.tickLogger != nil && (len(recordedJoins) > 0 || len(recordedLeaves) > 0 || len(recordedControls) > 0 || len(recordedClicks) > 0) {
		if err := g.tickLogger.WriteTick(TickLogEntry{
			Tick:     nowTick,
			Joins:    recordedJoins,
			Leaves:   recordedLeaves,
			Controls: recordedControls,
			Clicks:   recordedClicks,
			Digest:   digest,
		}); err != nil {
			g.logger.Printf("tick log: %v", err)
		}
	}

	if g.cfg.SnapshotEveryTicks > 0 && nowTick != 0 && nowTick%uint64(g.cfg.SnapshotEveryTicks) == 0 && g.dirtySinceSnapshot {
		g.offerSnapshot(nowTick)
	}
	g.answerSnapshotRequests(nowTick, snapReqs)

	g.publish(nowTick, time.Since(start))
	g.tick.Add(1)
}

// StepOnce advances the game by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (g *Game) StepOnce(joins []JoinRequest, leaves []LeaveRequest, controls []ControlRequest, clicks []ClickEnvelope) (tick uint64, digest string) {
	tick = g.tick.Load()
	g.step(joins, leaves, controls, clicks)
	return tick, g.stateDigest()
}

func (g *Game) onCommit(nowTick uint64, p board.Player, res controller.Result) {
	g.counters.Commits++
	g.dirtySinceSnapshot = true
	e := protocol.Event{Player: p.String(), Action: string(res.Action)}
	to := res.To.Array()
	e.To = &to
	if res.Action == controller.ActionMoveWorker {
		from := res.From.Array()
		e.From = &from
	}
	g.emit(nowTick, e)
	g.audit(AuditEntry{Tick: nowTick, Actor: p.String(), Action: string(res.Action), From: e.From, To: e.To})
}

func (g *Game) onOutcome(nowTick uint64, o board.Outcome) {
	g.counters.GamesDone++
	winner := o.Winner()
	g.logger.Printf("tick=%d game=%s over: %s", nowTick, g.cfg.ID, o)
	g.emit(nowTick, protocol.Event{Player: winner.String(), Action: "OUTCOME", Message: o.String()})
	g.audit(AuditEntry{Tick: nowTick, Actor: winner.String(), Action: "OUTCOME"})
	g.offerSnapshot(nowTick)
}

func (g *Game) audit(e AuditEntry) {
	if g.auditLogger == nil {
		return
	}
	e.GameID = g.cfg.ID
	e.Turn = g.board.Turn().String()
	e.Result = g.board.Outcome().String()
	if err := g.auditLogger.WriteAudit(e); err != nil {
		g.logger.Printf("audit log: %v", err)
	}
}

func (g *Game) emit(nowTick uint64, e protocol.Event) {
	e.Tick = nowTick
	g.events = append(g.events, e)
}

func (g *Game) offerSnapshot(nowTick uint64) bool {
	if g.snapshotSink == nil {
		return false
	}
	snap := g.ExportSnapshot(nowTick)
	select {
	case g.snapshotSink <- snap:
		g.dirtySinceSnapshot = false
		return true
	default:
		// Drop snapshot if sink is backed up.
		return false
	}
}

func recordClick(env ClickEnvelope) RecordedClick {
	rc := RecordedClick{Seat: env.Seat.String(), ClickID: env.ClickID}
	if env.Click.Hit {
		t := env.Click.Target.Array()
		rc.Target = &t
	}
	return rc
}

// ClickFromTarget converts a wire target into a click; nil is a miss.
func ClickFromTarget(target *[3]int) (controller.Click, error) {
	if target == nil {
		return controller.Miss, nil
	}
	p := board.PosFromArray(*target)
	if !p.Valid() {
		return controller.Click{}, fmt.Errorf("target out of range: %v", *target)
	}
	return controller.ClickAt(p), nil
}

// ReplayClick rebuilds the envelope for a logged click.
func ReplayClick(rc RecordedClick) (ClickEnvelope, error) {
	p, ok := board.ParsePlayer(rc.Seat)
	if !ok {
		return ClickEnvelope{}, fmt.Errorf("bad seat %q", rc.Seat)
	}
	c, err := ClickFromTarget(rc.Target)
	if err != nil {
		return ClickEnvelope{}, err
	}
	return ClickEnvelope{Seat: p, ClickID: rc.ClickID, Click: c}, nil
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
