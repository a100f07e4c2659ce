package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	persistlog "santorini.ai/internal/persistence/log"
	"santorini.ai/internal/persistence/snapshot"
	"santorini.ai/internal/protocol"
	"santorini.ai/internal/sim/game"
	"santorini.ai/internal/sim/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		gameID     = flag.String("game", "game_1", "game id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	started := time.Now()

	gameDir := filepath.Join(*dataDir, "games", *gameID)
	_ = os.MkdirAll(gameDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		if p, _, err := snapshot.Latest(filepath.Join(gameDir, "snapshots")); err == nil {
			snapshotToLoad = p
		}
	}

	// Tuning is required for a fresh game; a snapshot carries its own timing.
	tune, err := tuning.Load(tp)
	if err != nil {
		if snapshotToLoad == "" || !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	idx, err := openRuntimeIndex(gameDir, *gameID, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	cfg, err := game.ConfigFromTuning(*gameID, tune)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	g, err := game.New(cfg)
	if err != nil {
		logger.Fatalf("game: %v", err)
	}
	g.SetLogger(log.New(os.Stdout, "[game] ", log.LstdFlags|log.Lmicroseconds))

	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.GameID != "" && snap.Header.GameID != *gameID {
			logger.Fatalf("snapshot game id mismatch: flag=%s snap=%s", *gameID, snap.Header.GameID)
		}
		if err := g.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), g.CurrentTick())
	}

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("schemas: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(gameDir)
	auditLog := persistlog.NewAuditLogger(gameDir)
	defer tickLog.Close()
	defer auditLog.Close()
	tl := multiTickLogger{a: tickLog}
	al := multiAuditLogger{a: auditLog}
	if idx != nil {
		tl.b = idx
		al.b = idx
	}
	g.SetTickLogger(tl)
	g.SetAuditLogger(al)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	g.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(gameDir, "snapshots", snapshot.FileName(snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				var size int64
				if st, err := os.Stat(path); err == nil {
					size = st.Size()
				}
				logger.Printf("snapshot tick=%d size=%s", snap.Header.Tick, humanize.Bytes(uint64(size)))
				if idx != nil {
					idx.RecordSnapshot(path, size, snap)
				}
			}
		}
	}()

	go func() {
		if err := g.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("game stopped: %v", err)
		}
	}()

	enablePprof := envBool("SANTORINI_ENABLE_PPROF_HTTP", false)
	if !enablePprof {
		logger.Printf("pprof endpoints disabled (SANTORINI_ENABLE_PPROF_HTTP=false)")
	}
	mux := buildMux(muxOptions{
		Game:        g,
		Index:       idx,
		Validator:   validator,
		MaxQueue:    tune.MaxQueue,
		Started:     started,
		Logger:      logger,
		EnableAdmin: envBool("SANTORINI_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		EnablePprof: enablePprof,
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		logger.Printf("shutdown after %s", humanize.RelTime(started, time.Now(), "", ""))
	}()

	logger.Printf("game=%s listening on %s", g.ID(), *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
