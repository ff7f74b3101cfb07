// Command gridtransit runs the grid transit puzzle: an interactive game
// served over HTTP, or a headless replay of a scripted solution.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/talgya/gridtransit/internal/api"
	"github.com/talgya/gridtransit/internal/engine"
	"github.com/talgya/gridtransit/internal/entropy"
	"github.com/talgya/gridtransit/internal/level"
	"github.com/talgya/gridtransit/internal/persistence"
)

const usage = `usage: gridtransit [global flags] <command> [flags]

commands:
  play    serve a level over HTTP and run it in real time
  run     replay a script of board edits headlessly
  levels  list built-in levels with progress

global flags:
`

type globals struct {
	dbPath   string
	tuning   string
	seed     int64
	logLevel string
}

func main() {
	var g globals
	fs := flag.NewFlagSet("gridtransit", flag.ExitOnError)
	fs.StringVar(&g.dbPath, "db", envOr("GRIDTRANSIT_DB", "data/gridtransit.db"), "progress database path (empty disables)")
	fs.StringVar(&g.tuning, "tuning", os.Getenv("GRIDTRANSIT_TUNING"), "YAML file overriding gameplay tuning")
	fs.Int64Var(&g.seed, "seed", 0, "random seed (0 = crypto randomness)")
	fs.StringVar(&g.logLevel, "log-level", envOr("GRIDTRANSIT_LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	setupLogging(g.logLevel)

	args := fs.Args()
	cmd := "play"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "play":
		err = play(g, args)
	case "run":
		err = runScript(g, args)
	case "levels":
		err = listLevels(g)
	default:
		fs.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// setupLogging writes text logs to a terminal and JSON logs otherwise.
func setupLogging(lvl string) {
	var threshold slog.Level
	if err := threshold.UnmarshalText([]byte(lvl)); err != nil {
		threshold = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: threshold}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func openDB(path string) (*persistence.DB, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := persistence.Open(path)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", path)
	return db, nil
}

func loadTuning(path string) (engine.Tuning, error) {
	if path == "" {
		return engine.DefaultTuning(), nil
	}
	return engine.LoadTuning(path)
}

// resolveLevel loads a level and refuses built-in levels not yet unlocked.
func resolveLevel(db *persistence.DB, ref string, force bool) (*level.Level, error) {
	lvl, err := level.Resolve(ref)
	if err != nil {
		return nil, err
	}
	i := level.Index(lvl.ID)
	if db == nil || force || i < 0 {
		return lvl, nil
	}
	unlocked, err := db.Unlocked()
	if err != nil {
		return nil, err
	}
	if !unlocked[i] {
		return nil, fmt.Errorf("level %s is locked; complete %s first", lvl.ID, level.Order[i-1])
	}
	return lvl, nil
}

func play(g globals, args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	ref := fs.String("level", level.Order[0], "built-in level id or level YAML path")
	listen := fs.String("listen", envOr("GRIDTRANSIT_LISTEN", ":8080"), "HTTP listen address")
	speed := fs.Float64("speed", 1, "time multiplier")
	force := fs.Bool("force", false, "play a locked built-in level")
	fs.Parse(args)

	db, err := openDB(g.dbPath)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	lvl, err := resolveLevel(db, *ref, *force)
	if err != nil {
		return err
	}
	tuning, err := loadTuning(g.tuning)
	if err != nil {
		return err
	}
	sim, err := engine.New(lvl, tuning, entropy.New(g.seed))
	if err != nil {
		return err
	}

	status := sim.Status()
	if db != nil {
		if err := db.StartSession(status.RunID, lvl.ID); err != nil {
			slog.Warn("start session", "error", err)
		}
	}

	eng := engine.NewEngine(tuning.FrameDT)
	eng.SetSpeed(*speed)

	var saved uuid.UUID
	eng.OnFrame = func(_ uint64, dt float64) {
		if err := sim.Tick(dt); err != nil {
			return
		}
		st := sim.Status()
		if !st.Phase.Ended() || st.RunID == saved {
			return
		}
		saved = st.RunID
		printOutcome(lvl, *st.Outcome)
		if db != nil {
			if err := db.SaveRun(lvl.ID, st.RunID, *st.Outcome, sim.EventsSince(0)); err != nil {
				slog.Error("save run failed", "error", err)
			}
		}
	}
	eng.OnSecond = func(uint64) {
		st := sim.Status()
		slog.Debug("status", "time", humanize.Ftoa(st.GameTime), "phase", st.Phase, "score", st.Score,
			"active", st.Active, "buses", st.Buses)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(sim, eng, db, *listen, os.Getenv("GRIDTRANSIT_ADMIN_KEY"))
	srv.Start(ctx)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		eng.Stop()
	}()

	fmt.Printf("\n%s: %s\n", lvl.Name, lvl.Description)
	fmt.Printf("API: http://localhost%s/api/v1/status\n", *listen)
	fmt.Println("Starting game... (Ctrl+C to stop)")

	eng.Run()

	st := sim.Status()
	if db != nil && st.RunID != saved {
		out := engine.Outcome{Reason: "abandoned", Score: st.Score, Time: st.GameTime, Stats: st.Stats}
		if err := db.SaveRun(lvl.ID, st.RunID, out, sim.EventsSince(0)); err != nil {
			slog.Error("final save failed", "error", err)
		}
	}
	return nil
}

func runScript(g globals, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	path := fs.String("script", "", "script YAML path (required)")
	ref := fs.String("level", "", "level overriding the script's level")
	fs.Parse(args)
	if *path == "" {
		return errors.New("-script is required")
	}

	sc, err := engine.LoadScript(*path)
	if err != nil {
		return err
	}
	if *ref != "" {
		sc.Level = *ref
	}
	if sc.Level == "" {
		return errors.New("script names no level")
	}

	db, err := openDB(g.dbPath)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	lvl, err := level.Resolve(sc.Level)
	if err != nil {
		return err
	}
	tuning, err := loadTuning(g.tuning)
	if err != nil {
		return err
	}
	sim, err := engine.New(lvl, tuning, entropy.New(g.seed))
	if err != nil {
		return err
	}
	runID := sim.Status().RunID
	if db != nil {
		if err := db.StartSession(runID, lvl.ID); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	out, err := sim.RunScript(ctx, sc, tuning.FrameDT)
	if err != nil {
		return err
	}
	slog.Info("script finished", "level", lvl.ID, "wall_time", time.Since(start).Round(time.Millisecond))
	printOutcome(lvl, out)

	if db != nil {
		return db.SaveRun(lvl.ID, runID, out, sim.EventsSince(0))
	}
	return nil
}

func printOutcome(lvl *level.Level, out engine.Outcome) {
	verdict := "FAILED"
	if out.Completed {
		verdict = "COMPLETE"
	}
	fmt.Printf("\n%s %s after %ss: %s\n", lvl.Name, verdict, humanize.FtoaWithDigits(out.Time, 1), out.Reason)
	fmt.Printf("  score      %s\n", humanize.Comma(int64(out.Score)))
	fmt.Printf("  arrived    %d of %d\n", out.Stats.Arrived, out.Stats.Spawned)
	fmt.Printf("  gave up    %d\n", out.Stats.GaveUp)
	if out.Stats.Arrived > 0 {
		fmt.Printf("  avg trip   %ss\n", humanize.FtoaWithDigits(out.Stats.AvgTravelTime(), 1))
	}
}

func listLevels(g globals) error {
	db, err := openDB(g.dbPath)
	if err != nil {
		return err
	}
	unlocked := level.InitialUnlocked()
	best := map[string]persistence.BestScore{}
	if db != nil {
		defer db.Close()
		if unlocked, err = db.Unlocked(); err != nil {
			return err
		}
		scores, err := db.BestScores()
		if err != nil {
			return err
		}
		for _, b := range scores {
			best[b.LevelID] = b
		}
	}

	for i, id := range level.Order {
		lvl, err := level.Builtin(id)
		if err != nil {
			return err
		}
		state := "locked"
		if unlocked[i] {
			state = "open"
		}
		line := fmt.Sprintf("%-12s %-22s %s %-6s", id, lvl.Name, strings.Repeat("*", lvl.Difficulty), state)
		if b, ok := best[id]; ok {
			when := b.RecordedAt
			if t, err := time.Parse(time.RFC3339, b.RecordedAt); err == nil {
				when = humanize.Time(t)
			}
			line += fmt.Sprintf("  best %s (%s)", humanize.Comma(int64(b.Score)), when)
		}
		fmt.Println(line)
	}
	return nil
}
