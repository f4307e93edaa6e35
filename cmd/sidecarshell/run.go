package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/guseggert/sidecarshell/config"
	"github.com/guseggert/sidecarshell/env"
	"github.com/guseggert/sidecarshell/hub"
	"github.com/guseggert/sidecarshell/shell"
	"github.com/guseggert/sidecarshell/sidecar"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var stageExitCodes = map[shell.Stage]int{
	shell.StageResolve:   2,
	shell.StageProvision: 3,
	shell.StageSpawn:     4,
}

// startupExit maps a startup failure to the process exit status. An interrupt is not a failure.
func startupExit(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	var startErr *shell.StartupError
	if errors.As(err, &startErr) {
		return cli.Exit(err, stageExitCodes[startErr.Stage])
	}
	return err
}

func newLogger(cfg config.Config) (*zap.SugaredLogger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	if env.BuildMode == env.Production {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return l.Sugar(), nil
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := hub.New(
		hub.WithLogger(log),
		hub.WithOriginPatterns(cfg.AllowedOrigins...),
	)
	l, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}

	resolver := env.NewResolver(env.OSPaths{
		Identifier:   cfg.Identifier,
		DataDir:      cfg.DataDir,
		ResourceRoot: cfg.ResourceDir,
	}, log)
	sh := shell.New(resolver, h,
		shell.WithLogger(log),
		shell.WithRuntime(cfg.Runtime),
		shell.WithAck(cfg.Ack),
		shell.WithSkipSyncWhenCurrent(cfg.SkipSyncWhenCurrent),
		shell.WithReadyTimeout(cfg.ReadyTimeout),
		shell.WithProcessHook(func(p *sidecar.Process) { h.SetInput(p) }),
	)
	h.SetStatusFunc(sh.Status)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return h.Serve(groupCtx, l)
	})

	log.Infow("starting", "Mode", env.BuildMode, "Hub", l.Addr().String())
	err = sh.Start(ctx)
	if err != nil {
		exitErr := startupExit(ctx, err)
		if exitErr == nil {
			log.Infow("interrupted during startup", "Error", err)
		}
		cancel()
		if werr := group.Wait(); werr != nil {
			log.Warnf("error stopping hub: %s", werr)
		}
		return exitErr
	}

	group.Go(func() error {
		select {
		case <-groupCtx.Done():
		case <-sh.Done():
			// not restarted; the hub keeps reporting the exit on /status until interrupted
			log.Warnw("backend exited", "Status", sh.Status())
			<-groupCtx.Done()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := sh.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("shutting down backend: %w", err)
		}
		return nil
	})

	err = group.Wait()
	if err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
