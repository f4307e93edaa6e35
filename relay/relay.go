// Package relay forwards a sidecar's output to the host's event bus, and can answer each line on the sidecar's stdin.
package relay

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/guseggert/sidecarshell/sidecar"
	"go.uber.org/zap"
)

const (
	// EventMessage is the event emitted once per stdout line.
	EventMessage = "message"
	// DefaultAck is written to the sidecar after every relayed line.
	DefaultAck = "message from shell\n"
)

// Emitter publishes named events to the host's subscribers. Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(event, payload string) error
}

// Source is a running sidecar: its ordered output plus its stdin.
type Source interface {
	io.Writer
	Events() <-chan sidecar.Event
}

// Responder returns what to write back to the sidecar after a stdout line was relayed. "" writes nothing.
type Responder func(line string) string

type Relay struct {
	emitter Emitter
	respond Responder
	log     *zap.SugaredLogger

	relayed atomic.Uint64
	// stalled is set while write-backs are refused because the sidecar is not reading stdin.
	stalled bool
}

type Option func(r *Relay)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Relay) {
		r.log = l.Named("relay")
	}
}

// WithAck writes ack after every relayed line. An empty ack disables the write-back.
func WithAck(ack string) Option {
	return func(r *Relay) {
		r.respond = func(string) string { return ack }
	}
}

func WithResponder(f Responder) Option {
	return func(r *Relay) {
		r.respond = f
	}
}

func New(emitter Emitter, opts ...Option) *Relay {
	r := &Relay{
		emitter: emitter,
		log:     zap.NewNop().Sugar(),
	}
	WithAck(DefaultAck)(r)
	for _, o := range opts {
		o(r)
	}
	return r
}

// Relayed is the number of lines emitted so far.
func (r *Relay) Relayed() uint64 {
	return r.relayed.Load()
}

// Run relays events from src until its event stream closes, returning nil, or until ctx is done.
// Failures to emit or to write back are logged and do not stop the relay.
func (r *Relay) Run(ctx context.Context, src Source) error {
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			r.log.Debugw("relay canceled", "Error", ctx.Err())
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				r.log.Debug("event stream closed")
				return nil
			}
			r.handle(src, ev)
		}
	}
}

func (r *Relay) handle(w io.Writer, ev sidecar.Event) {
	switch ev.Kind {
	case sidecar.Stdout:
		line := DecodeLine(ev.Line)
		err := r.emitter.Emit(EventMessage, Display(line))
		if err != nil {
			r.log.Warnw("error emitting message", "Error", err)
		} else {
			r.relayed.Add(1)
		}
		if r.respond == nil {
			return
		}
		resp := r.respond(line)
		if resp == "" {
			return
		}
		r.writeBack(w, resp)
	case sidecar.Stderr:
		r.log.Warnw("sidecar stderr", "Line", DecodeLine(ev.Line))
	case sidecar.Exited:
		r.log.Infow("sidecar exited", "ExitCode", ev.Code)
	default:
		r.log.Debugw("ignoring unknown event", "Kind", ev.Kind)
	}
}

// writeBack answers on the sidecar's stdin. A sidecar that does not read its stdin gets its answers dropped.
func (r *Relay) writeBack(w io.Writer, resp string) {
	_, err := io.WriteString(w, resp)
	switch {
	case errors.Is(err, sidecar.ErrStdinFull):
		if !r.stalled {
			r.stalled = true
			r.log.Warnw("sidecar is not reading stdin, dropping write-backs", "Error", err)
		}
	case err != nil:
		r.log.Warnw("error writing to sidecar stdin", "Error", err)
	default:
		if r.stalled {
			r.stalled = false
			r.log.Info("sidecar is reading stdin again")
		}
	}
}
