package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"spacebots.io/internal/persistence/indexdb"
)

type runRow struct {
	RunID      string `json:"run_id"`
	Seed       uint64 `json:"seed"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Steps      int    `json:"steps"`
	Agents     int    `json:"agents"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

type resultRow struct {
	AgentID   string `json:"agent_id"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Resources int    `json:"resources"`
	Moves     int    `json:"moves"`
	Blocked   int    `json:"blocked"`
	Merges    int    `json:"merges"`
}

type stepRow struct {
	AgentID   string `json:"agent_id"`
	Step      int    `json:"step"`
	Dir       string `json:"dir"`
	ToX       int    `json:"to_x"`
	ToY       int    `json:"to_y"`
	Moved     bool   `json:"moved"`
	Collected bool   `json:"collected"`
	Merged    bool   `json:"merged"`
	Resources int    `json:"resources"`
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	runID := fs.String("run", "", "run id (optional; defaults to latest)")
	agentID := fs.String("agent", "", "agent_id filter (steps)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "runs.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	if q != "runs" && strings.TrimSpace(*runID) == "" {
		id, err := latestRun(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest run:", err)
			os.Exit(1)
		}
		*runID = id
	}

	var rows []any
	switch q {
	case "runs":
		rows, err = queryRuns(db, *limit)
	case "results":
		rows, err = queryResults(db, *runID)
	case "steps":
		rows, err = querySteps(db, *runID, *agentID, *limit)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want runs|results|steps)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

func latestRun(db *sql.DB) (string, error) {
	var id string
	err := db.QueryRow(`SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no runs indexed")
	}
	return id, err
}

func queryRuns(db *sql.DB, limit int) ([]any, error) {
	rs, err := db.Query(`SELECT run_id,seed,width,height,steps,agents,status,started_at,COALESCE(finished_at,'') FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []any
	for rs.Next() {
		var (
			r    runRow
			seed string
		)
		if err := rs.Scan(&r.RunID, &seed, &r.Width, &r.Height, &r.Steps, &r.Agents, &r.Status, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		if r.Seed, err = indexdb.ParseSeed(seed); err != nil {
			return nil, fmt.Errorf("run %s: bad seed %q: %w", r.RunID, seed, err)
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

func queryResults(db *sql.DB, runID string) ([]any, error) {
	rs, err := db.Query(`SELECT agent_id,x,y,resources,moves,blocked,merges FROM agent_results WHERE run_id=? ORDER BY agent_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []any
	for rs.Next() {
		var r resultRow
		if err := rs.Scan(&r.AgentID, &r.X, &r.Y, &r.Resources, &r.Moves, &r.Blocked, &r.Merges); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

func querySteps(db *sql.DB, runID, agentID string, limit int) ([]any, error) {
	q := `SELECT agent_id,step,dir,to_x,to_y,moved,collected,merged,resources FROM steps WHERE run_id=?`
	args := []any{runID}
	if agentID != "" {
		q += ` AND agent_id=?`
		args = append(args, agentID)
	}
	q += ` ORDER BY step, agent_id LIMIT ?`
	args = append(args, limit)

	rs, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []any
	for rs.Next() {
		var r stepRow
		if err := rs.Scan(&r.AgentID, &r.Step, &r.Dir, &r.ToX, &r.ToY, &r.Moved, &r.Collected, &r.Merged, &r.Resources); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rs.Err()
}
