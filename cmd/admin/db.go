package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "", "game id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	seat := fs.String("seat", "", "seat filter (clicks)")
	action := fs.String("action", "", "action filter (audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*gameID) == "" {
			fmt.Fprintln(os.Stderr, "missing -game or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "games", *gameID, "index", "game.sqlite")
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, queryOpts{Limit: *limit, Seat: *seat, Action: *action}, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-game GAME|-db PATH] [-limit N] snapshots|ticks|clicks|audits|tuning")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type queryOpts struct {
	Limit  int
	Seat   string
	Action string
}

func runQuery(db *sql.DB, q string, o queryOpts, emit func(any)) error {
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT game_id,tick,path,bytes,turn,outcome,workers,blocks,paused FROM snapshots ORDER BY tick DESC LIMIT ?`, o.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				GameID  string `json:"game_id"`
				Tick    int64  `json:"tick"`
				Path    string `json:"path"`
				Bytes   int64  `json:"bytes"`
				Turn    string `json:"turn"`
				Outcome string `json:"outcome"`
				Workers int    `json:"workers"`
				Blocks  int    `json:"blocks"`
				Paused  bool   `json:"paused"`
			}
			if err := rows.Scan(&r.GameID, &r.Tick, &r.Path, &r.Bytes, &r.Turn, &r.Outcome, &r.Workers, &r.Blocks, &r.Paused); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT tick,digest,joins,leaves,controls,clicks FROM ticks ORDER BY tick DESC LIMIT ?`, o.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int64  `json:"tick"`
				Digest   string `json:"digest"`
				Joins    int    `json:"joins"`
				Leaves   int    `json:"leaves"`
				Controls int    `json:"controls"`
				Clicks   int    `json:"clicks"`
			}
			if err := rows.Scan(&r.Tick, &r.Digest, &r.Joins, &r.Leaves, &r.Controls, &r.Clicks); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "clicks":
		query := `SELECT tick,seat,click_id,pos_row,pos_col,pos_height FROM clicks ORDER BY tick DESC, seq DESC LIMIT ?`
		args := []any{o.Limit}
		if s := strings.ToUpper(strings.TrimSpace(o.Seat)); s != "" {
			query = `SELECT tick,seat,click_id,pos_row,pos_col,pos_height FROM clicks WHERE seat=? ORDER BY tick DESC, seq DESC LIMIT ?`
			args = []any{s, o.Limit}
		}
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				r struct {
					Tick    int64   `json:"tick"`
					Seat    string  `json:"seat"`
					ClickID string  `json:"click_id"`
					Target  *[3]int `json:"target"`
				}
				row, col, h sql.NullInt64
			)
			if err := rows.Scan(&r.Tick, &r.Seat, &r.ClickID, &row, &col, &h); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			if row.Valid && col.Valid && h.Valid {
				r.Target = &[3]int{int(row.Int64), int(col.Int64), int(h.Int64)}
			}
			emit(r)
		}
		return rows.Err()

	case "audits":
		query := `SELECT raw_json FROM audits ORDER BY tick DESC, seq DESC LIMIT ?`
		args := []any{o.Limit}
		if a := strings.ToUpper(strings.TrimSpace(o.Action)); a != "" {
			query = `SELECT raw_json FROM audits WHERE action=? ORDER BY tick DESC, seq DESC LIMIT ?`
			args = []any{a, o.Limit}
		}
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(json.RawMessage(raw))
		}
		return rows.Err()

	case "tuning":
		var r struct {
			Digest    string          `json:"digest"`
			UpdatedAt string          `json:"updated_at"`
			Tuning    json.RawMessage `json:"tuning"`
		}
		var raw string
		if err := db.QueryRow(`SELECT digest,json,updated_at FROM config WHERE name='tuning'`).Scan(&r.Digest, &raw, &r.UpdatedAt); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		r.Tuning = json.RawMessage(raw)
		emit(r)
		return nil

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
