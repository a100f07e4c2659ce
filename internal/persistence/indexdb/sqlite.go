package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"santorini.ai/internal/persistence/snapshot"
	"santorini.ai/internal/sim/game"
	"santorini.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable read model of the JSONL logs. Writes are queued
// and applied by a single writer goroutine in batched transactions.
type SQLiteIndex struct {
	db     *sql.DB
	gameID string

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     game.TickLogEntry
	audit    game.AuditEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	GameID  string
	Tick    uint64
	Path    string
	Bytes   int64
	Turn    string
	Outcome string
	Workers int
	Blocks  int
	Paused  bool
}

// Stats reports queue pressure; drops mean the index lags the JSONL logs.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path, gameID string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO games(game_id, created_at) VALUES(?, ?)`,
		gameID, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:     db,
		gameID: gameID,
		ch:     make(chan req, 8192),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS games (
			game_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			game_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			controls INTEGER NOT NULL,
			clicks INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (game_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS clicks (
			game_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			seat TEXT NOT NULL,
			click_id TEXT NOT NULL,
			pos_row INTEGER,
			pos_col INTEGER,
			pos_height INTEGER,
			PRIMARY KEY (game_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_clicks_seat_tick ON clicks(game_id, seat, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			game_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			from_pos TEXT,
			to_pos TEXT,
			turn TEXT NOT NULL,
			outcome TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (game_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_action_tick ON audits(game_id, action, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			game_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			bytes INTEGER NOT NULL,
			turn TEXT NOT NULL,
			outcome TEXT NOT NULL,
			workers INTEGER NOT NULL,
			blocks INTEGER NOT NULL,
			paused INTEGER NOT NULL,
			PRIMARY KEY (game_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry game.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry game.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, size int64, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		GameID:  snap.Header.GameID,
		Tick:    snap.Header.Tick,
		Path:    path,
		Bytes:   size,
		Turn:    snap.Turn,
		Outcome: snap.Outcome,
		Paused:  snap.Paused,
	}
	for _, p := range snap.Pieces {
		switch p.Kind {
		case "WORKER":
			r.Workers++
		case "BLOCK":
			r.Blocks++
		}
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertTuning stores the tuning values actually applied (canonical JSON).
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func posJSON(p *[3]int) any {
	if p == nil {
		return nil
	}
	b, _ := json.Marshal(p)
	return string(b)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(game_id,tick,digest,joins,leaves,controls,clicks,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertClick, _ := s.db.Prepare(`INSERT OR REPLACE INTO clicks(game_id,tick,seq,seat,click_id,pos_row,pos_col,pos_height) VALUES(?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(game_id,tick,seq,actor,action,from_pos,to_pos,turn,outcome,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(game_id,tick,path,bytes,turn,outcome,workers,blocks,paused) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertClick, insertAudit, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			b, _ := json.Marshal(t)
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					s.gameID,
					int64(t.Tick),
					t.Digest,
					len(t.Joins),
					len(t.Leaves),
					len(t.Controls),
					len(t.Clicks),
					string(b),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for i, c := range t.Clicks {
				if insertClick == nil {
					break
				}
				var row, col, height any
				if c.Target != nil {
					row, col, height = c.Target[0], c.Target[1], c.Target[2]
				}
				if _, err := tx.Stmt(insertClick).Exec(s.gameID, int64(t.Tick), i, c.Seat, c.ClickID, row, col, height); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			gameID := a.GameID
			if gameID == "" {
				gameID = s.gameID
			}
			if insertAudit != nil {
				if _, err := tx.Stmt(insertAudit).Exec(
					gameID,
					int64(a.Tick),
					seq,
					a.Actor,
					a.Action,
					posJSON(a.From),
					posJSON(a.To),
					a.Turn,
					a.Result,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					sn.GameID,
					int64(sn.Tick),
					sn.Path,
					sn.Bytes,
					sn.Turn,
					sn.Outcome,
					sn.Workers,
					sn.Blocks,
					sn.Paused,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

// RecentAudits returns up to limit audit entries of the current game, newest first.
func (s *SQLiteIndex) RecentAudits(ctx context.Context, limit int) ([]game.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_json FROM audits WHERE game_id = ? ORDER BY tick DESC, seq DESC LIMIT ?`, s.gameID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.AuditEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e game.AuditEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
