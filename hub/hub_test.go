package hub

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

type syncBuffer struct {
	m sync.Mutex
	b bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.m.Lock()
	defer s.m.Unlock()
	return s.b.String()
}

func newTestHub(t *testing.T, opts ...Option) (*Hub, *Client) {
	t.Helper()
	h := New(append([]Option{WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)...)
	s := httptest.NewServer(h)
	t.Cleanup(s.Close)
	t.Cleanup(h.Close)
	return h, &Client{URL: s.URL, Logger: zaptest.NewLogger(t).Sugar()}
}

func waitSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Subscribers() == n }, 5*time.Second, 10*time.Millisecond)
}

func readN(t *testing.T, ctx context.Context, conn *Conn, n int) []Message {
	t.Helper()
	var msgs []Message
	for i := 0; i < n; i++ {
		msg, err := conn.Next(ctx)
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestEmitOrderingAcrossSubscribers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h, client := newTestHub(t, WithHistory(0))

	const subscribers = 3
	var conns []*Conn
	for i := 0; i < subscribers; i++ {
		conn, err := client.Dial(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		conns = append(conns, conn)
	}
	waitSubscribers(t, h, subscribers)

	var expected []Message
	for i := 0; i < 100; i++ {
		msg := Message{Event: "message", Payload: fmt.Sprintf("'%d'", i)}
		expected = append(expected, msg)
		require.NoError(t, h.Emit(msg.Event, msg.Payload))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, conn := range conns {
		conn := conn
		group.Go(func() error {
			for _, exp := range expected {
				msg, err := conn.Next(groupCtx)
				if err != nil {
					return err
				}
				if msg != exp {
					return fmt.Errorf("expected %v, got %v", exp, msg)
				}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
}

func TestHistoryReplay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h, client := newTestHub(t, WithHistory(2))

	require.NoError(t, h.Emit("message", "'A'"))
	require.NoError(t, h.Emit("message", "'B'"))
	require.NoError(t, h.Emit("message", "'C'"))

	conn, err := client.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()
	waitSubscribers(t, h, 1)
	require.NoError(t, h.Emit("message", "'D'"))

	assert.Equal(t, []Message{
		{Event: "message", Payload: "'B'"},
		{Event: "message", Payload: "'C'"},
		{Event: "message", Payload: "'D'"},
	}, readN(t, ctx, conn, 3))
}

func TestInput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h, client := newTestHub(t)

	err := client.SendInput(ctx, "too early")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	stdin := &syncBuffer{}
	h.SetInput(stdin)

	require.NoError(t, client.SendInput(ctx, "from post"))

	conn, err := client.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SendInput(ctx, "from ws\n"))

	require.Eventually(t, func() bool {
		return stdin.String() == "from post\nfrom ws\n"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInputOriginPolicy(t *testing.T) {
	cases := []struct {
		name      string
		origin    string
		patterns  []string
		expStatus int
	}{
		{name: "no origin", expStatus: http.StatusNoContent},
		{name: "foreign origin", origin: "http://evil.example", expStatus: http.StatusForbidden},
		{name: "allowed pattern", origin: "tauri://localhost", patterns: []string{"localhost"}, expStatus: http.StatusNoContent},
		{name: "pattern mismatch", origin: "http://evil.example", patterns: []string{"localhost"}, expStatus: http.StatusForbidden},
		{name: "malformed origin", origin: "://", expStatus: http.StatusForbidden},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			h, client := newTestHub(t, WithOriginPatterns(c.patterns...))
			stdin := &syncBuffer{}
			h.SetInput(stdin)

			req, err := http.NewRequest(http.MethodPost, client.URL+"/input", strings.NewReader("hello"))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "text/plain")
			if c.origin != "" {
				req.Header.Set("Origin", c.origin)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, c.expStatus, resp.StatusCode)
			if c.expStatus == http.StatusForbidden {
				assert.Empty(t, stdin.String())
			} else {
				assert.Equal(t, "hello\n", stdin.String())
			}
		})
	}
}

func TestInputSameOrigin(t *testing.T) {
	h, client := newTestHub(t)
	stdin := &syncBuffer{}
	h.SetInput(stdin)

	req, err := http.NewRequest(http.MethodPost, client.URL+"/input", strings.NewReader("hello"))
	require.NoError(t, err)
	req.Header.Set("Origin", client.URL)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestInputWriteFailure(t *testing.T) {
	h, client := newTestHub(t)
	h.SetInput(failingWriter{})
	err := client.SendInput(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestStatus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h, client := newTestHub(t)

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{}, st)

	code := 0
	h.SetStatusFunc(func() Status {
		return Status{Stage: "exited", PID: 42, ExitCode: &code, Relayed: 7}
	})
	conn, err := client.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()
	waitSubscribers(t, h, 1)

	st, err = client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "exited", st.Stage)
	assert.Equal(t, 42, st.PID)
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 0, *st.ExitCode)
	assert.Equal(t, uint64(7), st.Relayed)
	assert.Equal(t, 1, st.Subscribers)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	h := New(WithLogger(zaptest.NewLogger(t).Sugar()))
	sub, _, err := h.subscribe()
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer+1; i++ {
		require.NoError(t, h.Emit("message", "x"))
	}
	assert.Equal(t, 0, h.Subscribers())

	n := 0
	for range sub.ch {
		n++
	}
	assert.Equal(t, subscriberBuffer, n)

	// unsubscribing after being dropped is a no-op
	h.unsubscribe(sub)
}

func TestServeShutdownClosesSubscribers(t *testing.T) {
	h := New(WithLogger(zaptest.NewLogger(t).Sugar()))
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- h.Serve(ctx, l) }()

	client := &Client{URL: "http://" + l.Addr().String()}
	readCtx, readCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer readCancel()
	conn, err := client.Dial(readCtx)
	require.NoError(t, err)
	waitSubscribers(t, h, 1)

	cancel()
	_, err = conn.Next(readCtx)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, <-serveErr)

	assert.Error(t, h.Emit("message", "after close"))

	resp, err := http.Get("http://" + l.Addr().String() + "/status")
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected server to be closed")
	}
}
