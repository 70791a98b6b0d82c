package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/KeepSolving/internal/config"
	"github.com/MRamiBalles/KeepSolving/internal/engine"
	"github.com/MRamiBalles/KeepSolving/internal/events"
	"github.com/MRamiBalles/KeepSolving/internal/infra/storage"
	"github.com/MRamiBalles/KeepSolving/internal/network"
	"github.com/MRamiBalles/KeepSolving/internal/platform/logger"
)

type runFlags struct {
	configPath string
	difficulty string
	dbPath     string
	listen     string
	autopilot  time.Duration
	logPath    string
	quiet      bool
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play one round, reading operator commands from stdin",
		Long: `Play one round. Each stdin line is a command:
  a | auto                      next module to the first idle tedax
  q | quit                      end the round
  m | manual <id> [instr]       module <id> to the first idle tedax
  x | exact <id> <w> <b> [i]    module <id> to tedax <w> on bench <b>
  d | designate <id> [instr]    module <id> to a free tedax, bench later
  s | solve <id> <answer>       answer module <id> on the spot
  <w><w|b|p><b>                 oldest wires/button/password module to tedax <w>, bench <b>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRound(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "", "YAML round file (overrides --difficulty)")
	cmd.Flags().StringVar(&f.difficulty, "difficulty", config.DifficultyStandard, "difficulty preset")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "SQLite file for the round audit trail")
	cmd.Flags().StringVar(&f.listen, "listen", "", "address for the spectator and metrics HTTP server, e.g. :8080")
	cmd.Flags().DurationVar(&f.autopilot, "autopilot", 0, "submit an auto assignment at this interval")
	cmd.Flags().StringVar(&f.logPath, "log", "", "write the text log to this file")
	cmd.Flags().BoolVar(&f.quiet, "quiet", false, "do not echo the event log")
	return cmd
}

func loadConfig(f *runFlags) (config.Round, error) {
	if f.configPath != "" {
		return config.Load(f.configPath)
	}
	return config.Preset(f.difficulty)
}

func openLogger(path string) (*logger.Logger, func(), error) {
	if path == "" {
		return logger.Discard(), func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logger.New(file), func() { file.Close() }, nil
}

func runRound(parent context.Context, in io.Reader, out io.Writer, f *runFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	appLogger, closeLog, err := openLogger(f.logPath)
	if err != nil {
		return err
	}
	defer closeLog()

	opts := []engine.Option{engine.WithLogger(appLogger)}
	var rounds storage.RoundRepository
	if f.dbPath != "" {
		db, err := storage.InitSQLite(f.dbPath)
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
		defer db.Close()
		opts = append(opts, engine.WithPersister(storage.NewEventPersister(storage.NewSQLiteEventRepository(db), 0)))
		rounds = storage.NewSQLiteRoundRepository(db)
	}

	round, err := engine.InitRound(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	round.Start(ctx)

	stopServer := func() {}
	if f.listen != "" {
		stopServer = serve(ctx, round, f.listen, appLogger)
	}
	if f.autopilot > 0 {
		go engine.NewAutopilot(round, f.autopilot).Run(ctx)
	}
	go readCommands(in, round)

	echoCtx, stopEcho := context.WithCancel(context.Background())
	echoDone := make(chan struct{})
	go func() {
		defer close(echoDone)
		if !f.quiet {
			echoEvents(echoCtx, out, round.Events())
		}
	}()

	select {
	case <-round.Done():
	case <-ctx.Done():
	}

	stopServer()
	round.Shutdown()
	stopEcho()
	<-echoDone

	summary := round.Summary()
	if rounds != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rounds.Save(saveCtx, storage.RoundRecord{
			RoundID:    summary.RoundID,
			Difficulty: summary.Difficulty,
			Score:      summary.Score,
			Currency:   summary.Currency,
			Generated:  summary.Generated,
			Pending:    summary.Pending,
			Reason:     summary.Reason,
			StartedAt:  summary.StartedAt,
			EndedAt:    summary.EndedAt,
		}); err != nil {
			appLogger.Error("failed to save round: " + err.Error())
		}
	}

	fmt.Fprintf(out, "round %s over (%s): score %d, currency %d, generated %d, completed %d, pending %d\n",
		summary.RoundID, summary.Reason, summary.Score, summary.Currency,
		summary.Generated, summary.Completed, summary.Pending)
	return nil
}

// readCommands feeds stdin lines to the dispatcher until EOF.
func readCommands(in io.Reader, target interface{ SubmitLine(string) bool }) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		target.SubmitLine(line)
	}
}

// echoEvents prints new log lines until ctx is done, then flushes the rest.
func echoEvents(ctx context.Context, out io.Writer, log *events.Log) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var lastSeq uint64
	flush := func() {
		for _, e := range log.Since(lastSeq) {
			fmt.Fprintln(out, e.String())
			lastSeq = e.Seq
		}
	}
	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		}
	}
}

// serve exposes the read-only surfaces and returns a function that stops them.
func serve(ctx context.Context, round *engine.Round, addr string, appLogger *logger.Logger) func() {
	hubCtx, cancelHub := context.WithCancel(ctx)
	hub := network.NewHub(appLogger)
	go hub.Run(hubCtx)
	hub.StartSnapshotPoller(hubCtx, round, 250*time.Millisecond)
	hub.StartEventPoller(hubCtx, round.Events(), 200*time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", network.ServeWS(hub))
	network.NewLogReplayHandler(round.Events(), round.ID, appLogger).RegisterRoutes(mux)
	mux.HandleFunc("/metrics", round.Metrics().Handler())
	mux.HandleFunc("/metrics/prometheus", round.Metrics().PrometheusHandler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		appLogger.Info("spectator server listening on " + addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("spectator server failed: " + err.Error())
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		cancelHub()
	}
}
