package sidecar

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	inet "github.com/guseggert/sidecarshell/internal/net"
	"go.uber.org/zap"
)

const (
	eventBuffer = 64
	inputBuffer = 64
)

type options struct {
	log      *zap.SugaredLogger
	portAddr string
}

type Option func(o *options)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithPortCheck makes Start fail with ErrPortInUse if addr is already bound.
func WithPortCheck(addr string) Option {
	return func(o *options) {
		o.portAddr = addr
	}
}

// Process is a running child process.
type Process struct {
	ID      string
	Command Command
	Started time.Time

	log *zap.SugaredLogger
	cmd *exec.Cmd

	stdin       io.WriteCloser
	inputs      chan []byte
	stdinOnce   sync.Once
	stdinClosed chan struct{}

	events  chan Event
	readers sync.WaitGroup

	// stop is closed on shutdown, after which undelivered events are dropped so the readers can drain the pipes.
	stop     chan struct{}
	stopOnce sync.Once

	done     chan struct{}
	exitCode atomic.Int32
}

// Start spawns c with piped stdio and returns once the process is running.
func Start(c Command, opts ...Option) (*Process, error) {
	o := options{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.portAddr != "" {
		err := inet.CheckTCPAddrFree(o.portAddr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrPortInUse, err)
		}
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	id := uuid.New().String()
	log := o.log.Named("process").With("ID", id)
	log.Debugw("starting process", "Command", c.String())

	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.Path, err)
	}

	p := &Process{
		ID:          id,
		Command:     c,
		Started:     time.Now(),
		log:         log,
		cmd:         cmd,
		stdin:       stdin,
		inputs:      make(chan []byte, inputBuffer),
		stdinClosed: make(chan struct{}),
		events:      make(chan Event, eventBuffer),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	p.exitCode.Store(-1)
	log.Infow("process started", "PID", cmd.Process.Pid)

	p.readers.Add(2)
	go p.readLines(stdout, Stdout)
	go p.readLines(stderr, Stderr)
	go p.writeLoop()
	go p.wait()

	return p, nil
}

// Events returns the output stream. It is closed after the Exited event.
func (p *Process) Events() <-chan Event {
	return p.events
}

// Done is closed once the process has exited and all of its output has been read.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// ExitCode is -1 until the process exits.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// Write queues b for the process's stdin and never blocks.
// It returns ErrStdinFull when the process is not reading its stdin fast enough, and ErrClosed once stdin is closed.
// Write errors from the pipe itself are logged by the writer, not returned.
func (p *Process) Write(b []byte) (int, error) {
	select {
	case <-p.stdinClosed:
		return 0, ErrClosed
	default:
	}
	buf := append([]byte(nil), b...)
	select {
	case p.inputs <- buf:
		return len(b), nil
	case <-p.stdinClosed:
		return 0, ErrClosed
	default:
		return 0, ErrStdinFull
	}
}

// CloseStdin closes the process's stdin, unblocking a pending pipe write. Queued input is dropped.
// Subsequent writes return ErrClosed.
func (p *Process) CloseStdin() error {
	var err error
	p.stdinOnce.Do(func() {
		close(p.stdinClosed)
		err = p.stdin.Close()
	})
	return err
}

// writeLoop is the only writer of the stdin pipe.
func (p *Process) writeLoop() {
	for {
		select {
		case <-p.stdinClosed:
			return
		case b := <-p.inputs:
			_, err := p.stdin.Write(b)
			if err != nil && !errors.Is(err, os.ErrClosed) {
				p.log.Debugf("error writing stdin: %s", err)
			}
		}
	}
}

// Shutdown stops the process and waits for it to exit.
// Events still buffered or produced after Shutdown is called may be dropped.
// If ctx is done before the process exits after SIGTERM, the process group is killed and ctx.Err() is returned.
func (p *Process) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })

	err := p.CloseStdin()
	if err != nil {
		p.log.Debugf("error closing stdin: %s", err)
	}

	select {
	case <-p.done:
		return nil
	default:
	}

	p.log.Debug("terminating process")
	err = terminate(p.cmd)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.log.Debugf("error terminating process, killing: %s", err)
		if err := kill(p.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("killing process: %w", err)
		}
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
	}

	p.log.Infow("process did not exit in time, killing", "Error", ctx.Err())
	err = kill(p.cmd)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing process: %w", err)
	}
	<-p.done
	return ctx.Err()
}

func (p *Process) send(ev Event) {
	select {
	case p.events <- ev:
	case <-p.stop:
	}
}

func (p *Process) readLines(r io.Reader, kind Kind) {
	defer p.readers.Done()
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			p.send(Event{Kind: kind, Line: trimEOL(line)})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.log.Debugf("%s reader got error: %s", kind, err)
			}
			return
		}
	}
}

// wait reaps the process once both output pipes are drained, as exec.Cmd requires.
func (p *Process) wait() {
	p.readers.Wait()

	err := p.cmd.Wait()
	code := p.cmd.ProcessState.ExitCode()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			p.log.Debugf("unexpected wait error: %s", err)
		}
	}
	p.exitCode.Store(int32(code))
	if err := p.CloseStdin(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.log.Debugf("error closing stdin: %s", err)
	}
	p.log.Infow("process exited", "ExitCode", code, "Runtime", time.Since(p.Started))

	p.send(Event{Kind: Exited, Code: code})
	close(p.done)
	close(p.events)
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}
