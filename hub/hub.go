package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	defaultHistory    = 256
	subscriberBuffer  = 1024
	maxInputSize      = 1 << 20
	shutdownTimeout   = 5 * time.Second
	closeReasonStalls = "subscriber too slow"
)

// ErrNoInput is returned when input arrives before a sidecar is attached.
var ErrNoInput = errors.New("no input attached")

type subscriber struct {
	id string
	ch chan Message
}

type Hub struct {
	log            *zap.SugaredLogger
	originPatterns []string
	historySize    int
	router         *httprouter.Router

	mut     sync.Mutex
	subs    map[string]*subscriber
	history []Message
	closed  bool

	inputMut sync.Mutex
	input    io.Writer

	statusMut sync.Mutex
	status    func() Status
}

type Option func(h *Hub)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(h *Hub) {
		h.log = l.Named("hub")
	}
}

// WithOriginPatterns allows WebSocket connections from these origin host patterns in addition to same-origin.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) {
		h.originPatterns = patterns
	}
}

// WithHistory sets how many recent events are replayed to new subscribers.
func WithHistory(n int) Option {
	return func(h *Hub) {
		h.historySize = n
	}
}

func New(opts ...Option) *Hub {
	h := &Hub{
		log:         zap.NewNop().Sugar(),
		historySize: defaultHistory,
		subs:        map[string]*subscriber{},
	}
	for _, o := range opts {
		o(h)
	}

	router := httprouter.New()
	router.GET("/events", h.events)
	router.POST("/input", h.postInput)
	router.GET("/status", h.getStatus)
	h.router = router
	return h
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// SetInput attaches the writer that receives subscriber input.
func (h *Hub) SetInput(w io.Writer) {
	h.inputMut.Lock()
	defer h.inputMut.Unlock()
	h.input = w
}

// SetStatusFunc sets the source of /status.
func (h *Hub) SetStatusFunc(f func() Status) {
	h.statusMut.Lock()
	defer h.statusMut.Unlock()
	h.status = f
}

// Emit sends an event to all current subscribers and records it for replay.
func (h *Hub) Emit(event, payload string) error {
	msg := Message{Event: event, Payload: payload}

	h.mut.Lock()
	defer h.mut.Unlock()
	if h.closed {
		return errors.New("hub closed")
	}
	if h.historySize > 0 {
		h.history = append(h.history, msg)
		if len(h.history) > h.historySize {
			h.history = h.history[len(h.history)-h.historySize:]
		}
	}
	for id, sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
			h.log.Warnw("dropping slow subscriber", "Subscriber", id)
			close(sub.ch)
			delete(h.subs, id)
		}
	}
	return nil
}

// Subscribers is the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mut.Lock()
	defer h.mut.Unlock()
	return len(h.subs)
}

// Close disconnects all subscribers. Further emits fail.
func (h *Hub) Close() {
	h.mut.Lock()
	defer h.mut.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}

// Serve serves the hub on l until ctx is done.
func (h *Hub) Serve(ctx context.Context, l net.Listener) error {
	server := &http.Server{Handler: h}
	errCh := make(chan error, 1)
	go func() {
		h.log.Infow("serving", "Addr", l.Addr().String())
		errCh <- server.Serve(l)
	}()

	select {
	case err := <-errCh:
		h.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// hijacked WebSocket conns are not tracked by the server, closing the hub ends their handlers
	h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

// subscribe registers a subscriber and returns it with the history to replay, atomically with respect to Emit.
func (h *Hub) subscribe() (*subscriber, []Message, error) {
	h.mut.Lock()
	defer h.mut.Unlock()
	if h.closed {
		return nil, nil, errors.New("hub closed")
	}
	sub := &subscriber{
		id: uuid.New().String(),
		ch: make(chan Message, subscriberBuffer),
	}
	h.subs[sub.id] = sub
	backlog := make([]Message, len(h.history))
	copy(backlog, h.history)
	return sub, backlog, nil
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mut.Lock()
	defer h.mut.Unlock()
	if cur, ok := h.subs[sub.id]; ok && cur == sub {
		close(sub.ch)
		delete(h.subs, sub.id)
	}
}

func (h *Hub) writeInput(s string) error {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	h.inputMut.Lock()
	defer h.inputMut.Unlock()
	if h.input == nil {
		return ErrNoInput
	}
	_, err := io.WriteString(h.input, s)
	return err
}

func (h *Hub) events(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		h.log.Debugf("error accepting WebSocket conn: %s", err)
		return
	}

	sub, backlog, err := h.subscribe()
	if err != nil {
		conn.Close(websocket.StatusGoingAway, err.Error())
		return
	}
	log := h.log.With("Subscriber", sub.id)
	log.Debugw("subscribed", "Backlog", len(backlog))
	defer h.unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			var in InputMessage
			err := wsjson.Read(ctx, conn, &in)
			if err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					log.Debugf("read error: %s", err)
				}
				return
			}
			err = h.writeInput(in.Input)
			if err != nil {
				log.Warnw("error forwarding input", "Error", err)
			}
		}
	}()

	for _, msg := range backlog {
		err := wsjson.Write(ctx, conn, msg)
		if err != nil {
			log.Debugf("error writing backlog: %s", err)
			conn.Close(websocket.StatusInternalError, "")
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg, ok := <-sub.ch:
			if !ok {
				h.mut.Lock()
				closed := h.closed
				h.mut.Unlock()
				if closed {
					conn.Close(websocket.StatusGoingAway, "shutting down")
				} else {
					conn.Close(websocket.StatusPolicyViolation, closeReasonStalls)
				}
				return
			}
			err := wsjson.Write(ctx, conn, msg)
			if err != nil {
				log.Debugf("write error: %s", err)
				return
			}
		}
	}
}

// originAllowed applies the WebSocket origin policy to plain HTTP requests:
// no Origin header, the same host, or a host matching one of the origin patterns.
func (h *Hub) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, pattern := range h.originPatterns {
		matched, err := path.Match(strings.ToLower(pattern), strings.ToLower(u.Host))
		if err != nil {
			h.log.Warnw("invalid origin pattern", "Pattern", pattern, "Error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

func (h *Hub) postInput(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if !h.originAllowed(r) {
		h.log.Warnw("rejecting input from disallowed origin", "Origin", r.Header.Get("Origin"))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxInputSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.writeInput(string(b))
	if errors.Is(err, ErrNoInput) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Hub) getStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h.statusMut.Lock()
	f := h.status
	h.statusMut.Unlock()

	var st Status
	if f != nil {
		st = f()
	}
	st.Subscribers = h.Subscribers()

	b, err := json.Marshal(st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Add("Content-Type", "application/json")
	w.Write(b)
}
