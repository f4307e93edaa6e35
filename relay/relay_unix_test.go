//go:build unix

package relay

import (
	"context"
	"testing"
	"time"

	"github.com/guseggert/sidecarshell/sidecar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func runProcess(t *testing.T, r *Relay, script string) *sidecar.Process {
	t.Helper()
	proc, err := sidecar.Start(sidecar.Command{Path: "sh", Args: []string{"-c", script}})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background(), proc) }()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("relay did not finish")
	}
	return proc
}

func TestRelayStubChildOneLine(t *testing.T) {
	em := &recordingEmitter{}
	r := New(em, WithLogger(zaptest.NewLogger(t).Sugar()))
	runProcess(t, r, "echo hello")
	assert.Equal(t, []emitted{{event: "message", payload: "'hello'"}}, em.events)
}

func TestRelayStubChildOrderingAndMalformed(t *testing.T) {
	em := &recordingEmitter{}
	r := New(em, WithLogger(zaptest.NewLogger(t).Sugar()))
	runProcess(t, r, "printf 'A\\nB\\377\\nC\\n'")
	assert.Equal(t, []string{"'A'", "'B�'", "'C'"}, em.payloads())
}

func TestRelayAckReachesChild(t *testing.T) {
	em := &recordingEmitter{}
	r := New(em, WithAck("pong\n"), WithLogger(zaptest.NewLogger(t).Sugar()))
	runProcess(t, r, "echo ping; read reply; echo got $reply")
	assert.Equal(t, []string{"'ping'", "'got pong'"}, em.payloads())
}

func TestRelayChildNotReadingStdin(t *testing.T) {
	em := &recordingEmitter{}
	r := New(em, WithLogger(zaptest.NewLogger(t).Sugar()))
	proc, err := sidecar.Start(sidecar.Command{Path: "sh", Args: []string{"-c", "seq 1 10000; exec sleep 30"}})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background(), proc) }()

	require.Eventually(t, func() bool { return r.Relayed() == 10000 }, 20*time.Second, 10*time.Millisecond)
	payloads := em.payloads()
	assert.Equal(t, "'1'", payloads[0])
	assert.Equal(t, "'10000'", payloads[len(payloads)-1])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, proc.Shutdown(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not finish after shutdown")
	}
}
