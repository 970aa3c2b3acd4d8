package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bluebear.game/internal/command"
	"bluebear.game/internal/config"
	"bluebear.game/internal/display"
	"bluebear.game/internal/engine"
	"bluebear.game/internal/persistence/indexdb"
	plog "bluebear.game/internal/persistence/log"
	"bluebear.game/internal/persistence/snapshot"
	"bluebear.game/internal/threading"
	"bluebear.game/internal/transport/observer"
)

type runOptions struct {
	observerAddr   string
	maxTicks       uint64
	commandLog     bool
	index          bool
	snapshotOnExit bool
	resume         string
}

func newRunCmd(o *rootOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [lot]",
		Short: "Run the simulation and render loops on a lot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (ro.resume != "") {
				return errors.New("run needs a lot path or --resume, not both")
			}
			cfg, err := o.load()
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("observer") {
				cfg.Observer.Addr = ro.observerAddr
			}
			if f.Changed("max-ticks") {
				cfg.MaxTicks = ro.maxTicks
			}
			if f.Changed("command-log") {
				cfg.CommandLog.Enabled = ro.commandLog
			}
			if f.Changed("index") {
				cfg.Index.Enabled = ro.index
			}
			if f.Changed("snapshot-on-exit") {
				cfg.Snapshots.OnExit = ro.snapshotOnExit
			}
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return run(ctx, cmd, cfg, path, ro.resume)
		},
	}
	cmd.Flags().StringVar(&ro.observerAddr, "observer", "", "observer listen address (empty disables)")
	cmd.Flags().Uint64Var(&ro.maxTicks, "max-ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	cmd.Flags().BoolVar(&ro.commandLog, "command-log", false, "record consumed command batches under <data_dir>/commands")
	cmd.Flags().BoolVar(&ro.index, "index", false, "record lot loads in the SQLite index")
	cmd.Flags().BoolVar(&ro.snapshotOnExit, "snapshot-on-exit", false, "write a snapshot to <data_dir>/snapshots when the run stops")
	cmd.Flags().StringVar(&ro.resume, "resume", "", "resume from a snapshot file, or \"latest\" for the newest in <data_dir>/snapshots")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, cfg config.Config, path, resume string) error {
	logger := newLogger(cmd, cfg)
	builder, err := newBuilder(cfg, logger)
	if err != nil {
		return err
	}

	var cmdLog *plog.CommandLogger
	if cfg.CommandLog.Enabled {
		cmdLog = plog.NewCommandLogger(cfg.DataDir)
		defer cmdLog.Close()
	}
	var idx *indexdb.SQLiteIndex
	if cfg.Index.Enabled {
		if idx, err = indexdb.OpenSQLite(cfg.Index.Path); err != nil {
			return err
		}
		defer idx.Close()
	}

	bus := threading.NewBus[command.Display, command.Engine]()
	hub := observer.NewHub(logger)

	engCfg := engine.Config{TickRateHz: cfg.TickRateHz, MaxTicks: cfg.MaxTicks, Bus: bus, Builder: builder, Log: logger}
	dispCfg := display.Config{
		FrameRateHz: cfg.FrameRate(),
		ViewportX:   cfg.Display.ViewportX,
		ViewportY:   cfg.Display.ViewportY,
		Bus:         bus,
		Log:         logger,
		Sink:        hub,
	}
	// Typed nils must not reach the interface fields.
	if cmdLog != nil {
		engCfg.Commands, dispCfg.Commands = cmdLog, cmdLog
	}
	if idx != nil {
		engCfg.Index = idx
	}

	eng, err := engine.New(engCfg)
	if err != nil {
		return err
	}
	disp, err := display.New(dispCfg)
	if err != nil {
		return err
	}

	if resume != "" {
		err = restore(ctx, eng, cfg, resume)
	} else {
		err = eng.LoadLot(ctx, path)
	}
	if err != nil {
		return err
	}
	start := []command.Display{command.ChangeState{State: command.StateMainGame}}
	bus.Produce(&start)

	var ln net.Listener
	if cfg.Observer.Addr != "" {
		if ln, err = net.Listen("tcp", cfg.Observer.Addr); err != nil {
			return err
		}
		logger.WithField("addr", ln.Addr().String()).Info("observer listening")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// MaxTicks ends the whole run, not just the engine.
		defer cancel()
		return eng.Run(gctx)
	})
	g.Go(func() error { return disp.Run(gctx) })
	g.Go(func() error { return reloadOnHangup(gctx, disp, eng, logger) })

	if ln != nil {
		srv := &http.Server{
			Handler: observer.NewServer(observer.ServerConfig{
				Source:     eng,
				Hub:        hub,
				Requester:  disp,
				TickRateHz: cfg.TickRateHz,
				Log:        logger,
			}).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			return srv.Shutdown(shutCtx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.WithFields(logrus.Fields{"ticks": eng.Ticks(), "frames": disp.Frames()}).Info("stopped")
	if err == nil && cfg.Snapshots.OnExit {
		err = writeSnapshot(eng, cfg, logger)
	}
	return err
}

func restore(ctx context.Context, eng *engine.Engine, cfg config.Config, from string) error {
	if from == "latest" {
		p, err := snapshot.Latest(cfg.SnapshotDir())
		if err != nil {
			return err
		}
		if p == "" {
			return fmt.Errorf("no snapshots in %s", cfg.SnapshotDir())
		}
		from = p
	}
	snap, err := snapshot.ReadSnapshot(from)
	if err != nil {
		return fmt.Errorf("%s: %w", from, err)
	}
	return eng.Restore(ctx, snap)
}

func writeSnapshot(eng *engine.Engine, cfg config.Config, log logrus.FieldLogger) error {
	snap, err := eng.Snapshot()
	if err != nil {
		return err
	}
	p := filepath.Join(cfg.SnapshotDir(), snapshot.Name(snap.Header.Ticks))
	if err := snapshot.WriteSnapshot(p, snap); err != nil {
		return err
	}
	log.WithField("path", p).Info("snapshot written")
	return nil
}

// reloadOnHangup asks the engine to reload the current lot on SIGHUP.
func reloadOnHangup(ctx context.Context, disp *display.Display, eng *engine.Engine, log logrus.FieldLogger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			path := eng.LotPath()
			log.WithField("path", path).Info("reload requested")
			disp.Request(command.LoadLot{Path: path})
		}
	}
}
