// Package shell brings the backend sidecar up and keeps it relayed for the life of the application.
//
// Start runs, in order: environment resolution, runtime lookup, provisioning (awaited), spawning, and then
// starts the relay in the background. Any failure before the relay starts is returned as a *StartupError and
// leaves nothing running. The process is not restarted if it exits; Shutdown is the teardown hook and must be
// called on application exit.
package shell

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guseggert/sidecarshell/env"
	"github.com/guseggert/sidecarshell/hub"
	"github.com/guseggert/sidecarshell/provision"
	"github.com/guseggert/sidecarshell/relay"
	"github.com/guseggert/sidecarshell/sidecar"
	"go.uber.org/zap"
)

type Shell struct {
	resolver *env.Resolver
	log      *zap.SugaredLogger

	runtime         string
	skipWhenCurrent bool
	readyTimeout    time.Duration
	relayOpts       []relay.Option
	onStart         func(*sidecar.Process)
	backendAddr     string
	backendURL      string

	relay *relay.Relay
	ready atomic.Bool
	done  chan struct{}

	mut      sync.Mutex
	stage    Stage
	env      env.Environment
	proc     *sidecar.Process
	cancel   context.CancelFunc
	err      error
	relayErr error
}

type Option func(s *Shell)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Shell) {
		s.log = l.Named("shell")
	}
}

// WithRuntime overrides the runtime binary, see sidecar.LookupRuntime.
func WithRuntime(path string) Option {
	return func(s *Shell) {
		s.runtime = path
	}
}

// WithAck sets what the relay writes back after each line. "" disables the write-back.
func WithAck(ack string) Option {
	return func(s *Shell) {
		s.relayOpts = append(s.relayOpts, relay.WithAck(ack))
	}
}

func WithSkipSyncWhenCurrent(skip bool) Option {
	return func(s *Shell) {
		s.skipWhenCurrent = skip
	}
}

// WithReadyTimeout enables polling the backend until it answers HTTP. Zero disables it.
func WithReadyTimeout(d time.Duration) Option {
	return func(s *Shell) {
		s.readyTimeout = d
	}
}

// WithProcessHook calls f with the process right after it is spawned, before any output is relayed.
func WithProcessHook(f func(*sidecar.Process)) Option {
	return func(s *Shell) {
		s.onStart = f
	}
}

func New(resolver *env.Resolver, emitter relay.Emitter, opts ...Option) *Shell {
	s := &Shell{
		resolver:    resolver,
		log:         zap.NewNop().Sugar(),
		backendAddr: sidecar.Addr(),
		backendURL:  sidecar.URL(),
		done:        make(chan struct{}),
		stage:       StageIdle,
	}
	for _, o := range opts {
		o(s)
	}
	s.relay = relay.New(emitter, append([]relay.Option{relay.WithLogger(s.log)}, s.relayOpts...)...)
	return s
}

// Start brings the sidecar up. ctx bounds startup only; the running sidecar lives until Shutdown.
func (s *Shell) Start(ctx context.Context) error {
	s.mut.Lock()
	if s.stage != StageIdle {
		s.mut.Unlock()
		return errors.New("shell already started")
	}
	s.mut.Unlock()

	s.setStage(StageResolve)
	e, err := s.resolver.Resolve()
	if err != nil {
		return s.fail(StageResolve, err)
	}

	runtime, err := sidecar.LookupRuntime(s.runtime)
	if err != nil {
		return s.fail(StageSpawn, err)
	}
	s.log.Infow("using runtime", "Path", runtime)

	s.setStage(StageProvision)
	p := &provision.Provisioner{
		Env:             e,
		Runtime:         runtime,
		SkipWhenCurrent: s.skipWhenCurrent,
		Log:             s.log,
	}
	err = p.Provision(ctx)
	if err != nil {
		return s.fail(StageProvision, err)
	}

	s.setStage(StageSpawn)
	cmd := sidecar.RunCommand(runtime, e.Path, e.Entry)
	s.log.Infow("spawning backend", "Command", cmd.String())
	proc, err := sidecar.Start(cmd, sidecar.WithLogger(s.log), sidecar.WithPortCheck(s.backendAddr))
	if err != nil {
		return s.fail(StageSpawn, err)
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	s.mut.Lock()
	s.env = e
	s.proc = proc
	s.cancel = cancel
	s.stage = StageRunning
	s.mut.Unlock()

	if s.onStart != nil {
		s.onStart(proc)
	}

	go func() {
		err := s.relay.Run(relayCtx, proc)
		s.mut.Lock()
		s.relayErr = err
		if s.stage == StageRunning {
			s.stage = StageExited
		}
		s.mut.Unlock()
		close(s.done)
	}()

	if s.readyTimeout > 0 {
		go s.probe(relayCtx)
	}
	return nil
}

func (s *Shell) probe(ctx context.Context) {
	err := waitReady(ctx, s.log, s.backendURL, s.readyTimeout)
	if err != nil {
		s.log.Warnw("backend did not become ready", "Error", err)
		return
	}
	s.ready.Store(true)
	s.log.Infow("backend ready", "URL", s.backendURL)
}

func (s *Shell) setStage(stage Stage) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.stage = stage
}

func (s *Shell) fail(stage Stage, err error) error {
	startErr := &StartupError{Stage: stage, Err: err}
	s.mut.Lock()
	s.stage = stage
	s.err = startErr
	s.mut.Unlock()
	close(s.done)
	s.log.Errorw("startup failed", "Stage", stage, "Error", err)
	return startErr
}

// Done is closed when the relay has stopped, or when Start failed.
func (s *Shell) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until Done and returns the startup error, if any.
func (s *Shell) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
	}
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.err != nil {
		return s.err
	}
	if errors.Is(s.relayErr, context.Canceled) {
		return nil
	}
	return s.relayErr
}

// Process is the running sidecar, or nil before a successful Start.
func (s *Shell) Process() *sidecar.Process {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.proc
}

// Environment is the resolved environment, zero before a successful Start.
func (s *Shell) Environment() env.Environment {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.env
}

// Shutdown stops the relay and the sidecar, waiting until both are gone or ctx is done.
func (s *Shell) Shutdown(ctx context.Context) error {
	s.mut.Lock()
	proc, cancel := s.proc, s.cancel
	if s.stage == StageRunning {
		s.stage = StageStopped
	}
	s.mut.Unlock()

	if proc == nil {
		return nil
	}
	s.log.Info("shutting down")
	cancel()
	err := proc.Shutdown(ctx)
	<-s.done
	return err
}

func (s *Shell) Status() hub.Status {
	s.mut.Lock()
	defer s.mut.Unlock()
	st := hub.Status{
		Stage:   string(s.stage),
		Ready:   s.ready.Load(),
		Relayed: s.relay.Relayed(),
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	if s.proc != nil {
		st.ProcessID = s.proc.ID
		st.PID = s.proc.PID()
		select {
		case <-s.proc.Done():
			code := s.proc.ExitCode()
			st.ExitCode = &code
		default:
		}
	}
	return st
}
