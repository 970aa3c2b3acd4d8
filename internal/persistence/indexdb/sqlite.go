// Package indexdb keeps a queryable SQLite history of lot loads. Writes go
// through a single writer goroutine and are dropped when it falls behind;
// the index is a read model, never the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

var ErrClosed = errors.New("indexdb: closed")

// LoadRecord is one attempt to load a lot document.
type LoadRecord struct {
	LotID    string
	Path     string
	FloorX   int
	FloorY   int
	Stories  int
	Revision int
	OK       bool
	Fatal    bool
	Error    string
	At       time.Time
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DroppedTotal  uint64
}

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqLoad reqKind = iota + 1
	reqSync
)

type req struct {
	kind reqKind
	load LoadRecord
	done chan struct{}
}

const queueSize = 4096

func OpenSQLite(path string) (*SQLiteIndex, error) {
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

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queueSize),
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
		`CREATE TABLE IF NOT EXISTS lot_loads (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			lot_id TEXT NOT NULL,
			path TEXT NOT NULL,
			floor_x INTEGER NOT NULL,
			floor_y INTEGER NOT NULL,
			stories INTEGER NOT NULL,
			revision INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			fatal INTEGER NOT NULL,
			error TEXT NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lot_loads_path ON lot_loads(path, seq);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
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

// RecordLoad queues r without blocking.
func (s *SQLiteIndex) RecordLoad(r LoadRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	select {
	case s.ch <- req{kind: reqLoad, load: r}:
	default:
		s.dropped.Add(1)
	}
}

// Sync waits until every record queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DroppedTotal:  s.dropped.Load(),
	}
}

// Loads returns the recorded loads, oldest first. A non-empty path filters
// to that document.
func (s *SQLiteIndex) Loads(ctx context.Context, path string) ([]LoadRecord, error) {
	q := `SELECT lot_id,path,floor_x,floor_y,stories,revision,ok,fatal,error,at FROM lot_loads`
	var args []any
	if path != "" {
		q += ` WHERE path = ?`
		args = append(args, path)
	}
	q += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LoadRecord
	for rows.Next() {
		var (
			r  LoadRecord
			at string
		)
		if err := rows.Scan(&r.LotID, &r.Path, &r.FloorX, &r.FloorY, &r.Stories, &r.Revision, &r.OK, &r.Fatal, &r.Error, &at); err != nil {
			return nil, err
		}
		if r.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("lot_loads.at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	insertLoad, _ := s.db.Prepare(`INSERT INTO lot_loads(lot_id,path,floor_x,floor_y,stories,revision,ok,fatal,error,at) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertLoad != nil {
			_ = insertLoad.Close()
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		commitEvery = 500
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
	}

	for r := range s.ch {
		switch r.kind {
		case reqSync:
			commit()
			close(r.done)
			continue
		case reqLoad:
			begin()
			if tx == nil || insertLoad == nil {
				continue
			}
			l := r.load
			if _, err := tx.Stmt(insertLoad).Exec(
				l.LotID,
				l.Path,
				l.FloorX,
				l.FloorY,
				l.Stories,
				l.Revision,
				l.OK,
				l.Fatal,
				l.Error,
				l.At.UTC().Format(time.RFC3339Nano),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		// Commit once the burst drains so readers never wait on an idle tx.
		if opCount >= commitEvery || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}
