package sidecar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	stderrTailLines = 20
	runStopTimeout  = 5 * time.Second
)

// Run runs c to completion, logging its output.
// It returns an error if the process cannot be started, exits non-zero, or ctx is done first,
// in which case the process is shut down.
func Run(ctx context.Context, log *zap.SugaredLogger, c Command) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("run")

	proc, err := Start(c, WithLogger(log))
	if err != nil {
		return err
	}

	var tail []string
	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), runStopTimeout)
			defer cancel()
			if err := proc.Shutdown(stopCtx); err != nil {
				log.Debugf("error shutting down %s: %s", c.Path, err)
			}
			return ctx.Err()
		case ev, ok := <-proc.Events():
			if !ok {
				return fmt.Errorf("%s: output closed before exit", c)
			}
			switch ev.Kind {
			case Stdout:
				log.Debugw("stdout", "Line", string(ev.Line))
			case Stderr:
				log.Debugw("stderr", "Line", string(ev.Line))
				tail = append(tail, string(ev.Line))
				if len(tail) > stderrTailLines {
					tail = tail[1:]
				}
			case Exited:
				if ev.Code != 0 {
					return fmt.Errorf("%s exited with code %d: %s", c, ev.Code, strings.Join(tail, "\n"))
				}
				return nil
			}
		}
	}
}
