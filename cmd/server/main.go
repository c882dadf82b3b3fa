package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"spacebots.io/internal/sim/grid"
	"spacebots.io/internal/sim/tuning"
	"spacebots.io/internal/transport/observer"
	"spacebots.io/internal/transport/relay"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address (empty to disable observer and relay)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite run index")

		seed  = flag.Uint64("seed", 0, "map seed override (0 keeps the tuning value)")
		steps = flag.Int("steps", -1, "steps per agent override (-1 keeps the tuning value)")
		serve = flag.Bool("serve", false, "keep serving observer/relay after the run until interrupted")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	if *steps >= 0 {
		tune.Steps = *steps
	}

	rt, err := newRuntime(runConfig{DataDir: *dataDir, DisableDB: *disableDB, Tuning: tune}, logger)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}
	defer rt.close()

	ctx, cancel := signalContext()
	defer cancel()

	var srv *http.Server
	if strings.TrimSpace(*addr) != "" {
		srv = startHTTP(ctx, *addr, rt, logger)
	}

	res, runErr := rt.run(ctx)
	printSummary(os.Stdout, res)

	if *serve && srv != nil && ctx.Err() == nil && runErr == nil {
		logger.Printf("run complete; serving until interrupted")
		<-ctx.Done()
	}
	if srv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx2)
		cancel2()
	}

	if runErr != nil {
		rt.close()
		if errors.Is(runErr, grid.ErrPoisoned) {
			logger.Printf("fatal: %v", runErr)
			os.Exit(3)
		}
		logger.Printf("run failed: %v", runErr)
		os.Exit(1)
	}
}

func startHTTP(ctx context.Context, addr string, rt *runtime, logger *log.Logger) *http.Server {
	tune := rt.cfg.Tuning
	obs := observer.NewServer(observer.Config{
		Grid:            rt.grid,
		Agents:          rt.agents,
		RunID:           rt.runID,
		Steps:           tune.Steps,
		StepInterval:    tune.StepInterval(),
		DefaultInterval: tune.ObserverInterval(),
		Logger:          logger,
	})
	hub := relay.NewHub(log.New(os.Stdout, "[relay] ", log.LstdFlags|log.Lmicroseconds))
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		sum := rt.sim.Summary()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP spacebots_agent_resources Energy collected per agent.\n")
		fmt.Fprintf(rw, "# TYPE spacebots_agent_resources gauge\n")
		for _, st := range sum.Agents {
			fmt.Fprintf(rw, "spacebots_agent_resources{run=%q,agent=%q} %d\n", rt.runID, st.ID, st.Resources)
		}
		fmt.Fprintf(rw, "# HELP spacebots_agent_moves Successful moves per agent.\n")
		fmt.Fprintf(rw, "# TYPE spacebots_agent_moves gauge\n")
		for _, st := range sum.Agents {
			fmt.Fprintf(rw, "spacebots_agent_moves{run=%q,agent=%q} %d\n", rt.runID, st.ID, st.Moves)
		}
		fmt.Fprintf(rw, "# HELP spacebots_relay_peers Connected relay peers.\n")
		fmt.Fprintf(rw, "# TYPE spacebots_relay_peers gauge\n")
		fmt.Fprintf(rw, "spacebots_relay_peers{run=%q} %d\n", rt.runID, hub.Peers())
		if rt.idx != nil {
			st := rt.idx.Stats()
			fmt.Fprintf(rw, "# HELP spacebots_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE spacebots_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "spacebots_index_queue_depth{run=%q} %d\n", rt.runID, st.QueueDepth)
			fmt.Fprintf(rw, "spacebots_index_dropped_total{run=%q} %d\n", rt.runID, st.DropStepTotal+st.DropRunTotal+st.DropResultTotal+st.DropSnapshotTotal)
		}
	})
	mux.HandleFunc("/v1/summary", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(rt.sim.Summary())
	})
	mux.HandleFunc("/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obs.WSHandler())
	mux.HandleFunc("/v1/relay", hub.Handler(ctx))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("ListenAndServe: %v", err)
		}
	}()
	return srv
}

func printSummary(w io.Writer, res runResult) {
	fmt.Fprintf(w, "run %s (%s) seed=%d grid=%dx%d\n", res.RunID, res.Status, res.Summary.Seed, res.Summary.Width, res.Summary.Height)
	for _, st := range res.Summary.Agents {
		fmt.Fprintf(w, "  %s: position=(%d,%d) resources=%d moves=%d blocked=%d merges=%d\n",
			st.ID, st.Pos.X, st.Pos.Y, st.Resources, st.Moves, st.Blocked, st.Merges)
	}
	fmt.Fprintf(w, "total resources=%d\n", res.Summary.Resources)
	if res.SnapshotPath != "" {
		fmt.Fprintf(w, "snapshot: %s\n", res.SnapshotPath)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
