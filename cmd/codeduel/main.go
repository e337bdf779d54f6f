package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/NYTimes/gziphandler"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"codeduel/internal/api"
	"codeduel/internal/broadcast"
	"codeduel/internal/database"
	"codeduel/internal/judge"
	"codeduel/internal/match"
	"codeduel/internal/scheduler"
	"codeduel/internal/util/slogx"
	"codeduel/internal/verify"
	"codeduel/internal/version"
)

var serverCmd = &cobra.Command{
	Use:     "codeduel",
	Args:    cobra.ExactArgs(0),
	Version: version.Version,
	Short:   "Start CodeDuel server",
	Long: `CodeDuel runs timed head-to-head duels on competitive programming problems.

Players race to solve the same problem set on an external judge, the server
verifies their submissions and decides the winner.
`,
}

func makeLogger() *slog.Logger {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(colorable.NewColorableStderr(), &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func main() {
	p := serverCmd.Flags()
	optsPath := p.StringP(
		"options", "o", "",
		"options file",
	)

	serverCmd.RunE = func(cmd *cobra.Command, _args []string) error {
		_ = godotenv.Load()

		var opts Options
		if *optsPath != "" {
			rawOpts, err := os.ReadFile(*optsPath)
			if err != nil {
				return fmt.Errorf("read options: %w", err)
			}
			if err := toml.Unmarshal(rawOpts, &opts); err != nil {
				return fmt.Errorf("unmarshal options: %w", err)
			}
		}
		opts.MixEnv()
		opts.FillDefaults()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		log := makeLogger()
		log.Info("starting codeduel", slog.String("version", version.Version))

		db, err := database.New(log, opts.DB)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		hub := broadcast.NewHub(log)
		judgeClient := judge.NewClient(opts.Judge)
		source := judge.NewSource(judgeClient)
		verifier := verify.New(log, db, judgeClient, opts.Verify)
		clock := clockwork.NewRealClock()

		mgr := match.NewManager(log, db, source, verifier, hub, clock, opts.Match)
		sched, err := scheduler.New(log, db, mgr, clock, opts.Scheduler)
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		defer sched.Close()
		mgr.SetScheduler(sched)
		if err := sched.Rearm(ctx); err != nil {
			return fmt.Errorf("rearm timers: %w", err)
		}

		mux := http.NewServeMux()
		api.NewServer(log, mgr, hub, opts.API).Register(mux, "/api")

		servCtx, servCancel := context.WithCancel(ctx)
		defer servCancel()
		server := &http.Server{
			Addr:        opts.Addr,
			Handler:     gziphandler.GzipHandler(mux),
			BaseContext: func(net.Listener) context.Context { return servCtx },
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("starting http server", slog.String("addr", opts.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Info("stopping server")
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutCancel()
			if err := server.Shutdown(shutCtx); err != nil {
				log.Warn("server shutdown failed", slogx.Err(err))
			}
			return nil
		})
		return g.Wait()
	}

	if err := serverCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
