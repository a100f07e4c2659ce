package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"santorini.ai/internal/persistence/indexdb"
	"santorini.ai/internal/persistence/snapshot"
	"santorini.ai/internal/sim/game"
	"santorini.ai/internal/sim/tuning"
)

// runtimeIndex is the read-model side of the server. It never feeds back
// into the game loop.
type runtimeIndex interface {
	game.TickLogger
	game.AuditLogger
	Close() error
	UpsertTuning(tune tuning.Tuning) error
	RecordSnapshot(path string, size int64, snap snapshot.SnapshotV1)
	RecentAudits(ctx context.Context, limit int) ([]game.AuditEntry, error)
	Stats() indexdb.Stats
}

func openRuntimeIndex(gameDir, gameID string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SANTORINI_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(gameDir, "index", "game.sqlite"), gameID)
	default:
		return nil, fmt.Errorf("unsupported SANTORINI_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger struct {
	a game.TickLogger
	b game.TickLogger
}

func (m multiTickLogger) WriteTick(entry game.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a game.AuditLogger
	b game.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry game.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
