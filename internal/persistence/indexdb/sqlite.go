package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"spacebots.io/internal/persistence/snapshot"
	"spacebots.io/internal/sim/agent"
	"spacebots.io/internal/sim/simulation"
	"spacebots.io/internal/sim/tuning"
)

// SQLiteIndex is a queryable read model of runs. Writes are queued and
// applied by a single goroutine; the JSONL step log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropStep     atomic.Uint64
	dropRun      atomic.Uint64
	dropResult   atomic.Uint64
	dropSnapshot atomic.Uint64
}

type Stats struct {
	QueueDepth    int `json:"queue_depth"`
	QueueCapacity int `json:"queue_capacity"`

	DropStepTotal     uint64 `json:"drop_step_total"`
	DropRunTotal      uint64 `json:"drop_run_total"`
	DropResultTotal   uint64 `json:"drop_result_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

// RunInfo describes a run when it starts.
type RunInfo struct {
	RunID  string
	Seed   uint64
	Width  int
	Height int
	Steps  int
	Agents int
	Tuning tuning.Tuning
}

// Seeds span the full uint64 range, which sqlite INTEGER cannot hold, so
// they are stored as decimal text.
func FormatSeed(seed uint64) string { return strconv.FormatUint(seed, 10) }

func ParseSeed(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }

type reqKind int

const (
	reqRunStart reqKind = iota + 1
	reqRunFinish
	reqStep
	reqResult
	reqSnapshot
)

type req struct {
	kind reqKind
	at   string

	runID    string
	run      RunInfo
	status   string
	step     simulation.StepEntry
	result   agent.Stats
	snapshot snapshotRow
}

type snapshotRow struct {
	Path   string
	Step   int
	Agents int
	Digest string
}

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
		// Every agent step lands here; size for bursts from many agents.
		ch: make(chan req, 65536),
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
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','2');`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			seed TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			tuning_json TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			dir TEXT NOT NULL,
			from_x INTEGER NOT NULL,
			from_y INTEGER NOT NULL,
			to_x INTEGER NOT NULL,
			to_y INTEGER NOT NULL,
			moved INTEGER NOT NULL,
			collected INTEGER NOT NULL,
			merged INTEGER NOT NULL,
			replaced INTEGER NOT NULL,
			resources INTEGER NOT NULL,
			PRIMARY KEY (run_id, agent_id, step)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_steps_pos ON steps(run_id, to_x, to_y);`,
		`CREATE TABLE IF NOT EXISTS agent_results (
			run_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			resources INTEGER NOT NULL,
			moves INTEGER NOT NULL,
			blocked INTEGER NOT NULL,
			merges INTEGER NOT NULL,
			PRIMARY KEY (run_id, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			grid_digest TEXT NOT NULL,
			recorded_at TEXT NOT NULL
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
		DropStepTotal:     s.dropStep.Load(),
		DropRunTotal:      s.dropRun.Load(),
		DropResultTotal:   s.dropResult.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// enqueue never blocks; a nil index (indexing disabled) accepts and drops.
func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	r.at = time.Now().UTC().Format(time.RFC3339Nano)
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind.
		switch r.kind {
		case reqStep:
			s.dropStep.Add(1)
		case reqRunStart, reqRunFinish:
			s.dropRun.Add(1)
		case reqResult:
			s.dropResult.Add(1)
		case reqSnapshot:
			s.dropSnapshot.Add(1)
		}
	}
}

func (s *SQLiteIndex) RecordRun(info RunInfo) {
	s.enqueue(req{kind: reqRunStart, runID: info.RunID, run: info})
}

// FinishRun marks the run with a terminal status (ok, canceled, poisoned, failed).
func (s *SQLiteIndex) FinishRun(runID, status string) {
	s.enqueue(req{kind: reqRunFinish, runID: runID, status: status})
}

// ForRun binds the index to one run so it can serve as a step recorder.
func (s *SQLiteIndex) ForRun(runID string) simulation.Recorder {
	return runRecorder{s: s, runID: runID}
}

type runRecorder struct {
	s     *SQLiteIndex
	runID string
}

func (r runRecorder) RecordStep(e simulation.StepEntry) error {
	r.s.enqueue(req{kind: reqStep, runID: r.runID, step: e})
	return nil
}

func (s *SQLiteIndex) RecordAgentResult(runID string, st agent.Stats) {
	s.enqueue(req{kind: reqResult, runID: runID, result: st})
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	row := snapshotRow{Path: path, Step: snap.Header.Step, Agents: len(snap.Agents)}
	if m, _, _, err := snap.Restore(); err == nil {
		row.Digest = m.Digest()
	}
	s.enqueue(req{kind: reqSnapshot, runID: snap.Header.RunID, snapshot: row})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,seed,width,height,steps,agents,tuning_json,status,started_at) VALUES(?,?,?,?,?,?,?,'running',?)`)
	finishRun, _ := s.db.Prepare(`UPDATE runs SET status=?, finished_at=? WHERE run_id=?`)
	insertStep, _ := s.db.Prepare(`INSERT OR REPLACE INTO steps(run_id,agent_id,step,dir,from_x,from_y,to_x,to_y,moved,collected,merged,replaced,resources) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertResult, _ := s.db.Prepare(`INSERT OR REPLACE INTO agent_results(run_id,agent_id,x,y,resources,moves,blocked,merges) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,run_id,step,agents,grid_digest,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRun, finishRun, insertStep, insertResult, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
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
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRunStart:
			tj, _ := json.Marshal(r.run.Tuning)
			exec(insertRun, r.runID, FormatSeed(r.run.Seed), r.run.Width, r.run.Height, r.run.Steps, r.run.Agents, string(tj), r.at)
		case reqRunFinish:
			exec(finishRun, r.status, r.at, r.runID)
			// Run boundaries are worth committing right away.
			commit()
			continue
		case reqStep:
			e := r.step
			exec(insertStep, r.runID, e.AgentID, e.Step, e.Dir,
				e.From.X, e.From.Y, e.To.X, e.To.Y,
				boolInt(e.Moved), boolInt(e.Collected), boolInt(e.Merged), e.Replaced, e.Resources)
		case reqResult:
			st := r.result
			exec(insertResult, r.runID, st.ID, st.Pos.X, st.Pos.Y, st.Resources, st.Moves, st.Blocked, st.Merges)
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.Path, r.runID, sn.Step, sn.Agents, sn.Digest, r.at)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
