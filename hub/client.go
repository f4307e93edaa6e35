package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const readLimit = 1 << 20

// Client talks to a Hub over HTTP. URL is the hub's base URL, e.g. "http://127.0.0.1:60317".
type Client struct {
	URL        string
	HTTPClient *http.Client
	Logger     *zap.SugaredLogger
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func (c *Client) logger() *zap.SugaredLogger {
	if c.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return c.Logger
}

// Conn is an open subscription.
type Conn struct {
	conn *websocket.Conn
}

// Dial opens a subscription.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	u := strings.TrimSuffix(c.URL, "/") + "/events"
	c.logger().Debugw("dialing WebSocket", "URL", u)
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPClient:      c.httpClient(),
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing WebSocket conn: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return &Conn{conn: conn}, nil
}

// Next blocks until the next message. It returns io.EOF when the hub closes the subscription normally.
func (c *Conn) Next(ctx context.Context) (Message, error) {
	var msg Message
	err := wsjson.Read(ctx, c.conn, &msg)
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return Message{}, io.EOF
	}
	return msg, err
}

// SendInput writes a line to the sidecar through this subscription.
func (c *Conn) SendInput(ctx context.Context, input string) error {
	return wsjson.Write(ctx, c.conn, InputMessage{Input: input})
}

func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// Subscribe calls fn for each message until ctx is done, the hub closes the subscription, or fn returns an error.
func (c *Client) Subscribe(ctx context.Context, fn func(Message) error) error {
	conn, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		msg, err := conn.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		err = fn(msg)
		if err != nil {
			return err
		}
	}
}

// SendInput posts a line of input for the sidecar.
func (c *Client) SendInput(ctx context.Context, input string) error {
	u := strings.TrimSuffix(c.URL, "/") + "/input"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(input))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("sending input: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code %d sending input: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	u := strings.TrimSuffix(c.URL, "/") + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Status{}, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("getting status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	var st Status
	err = json.NewDecoder(resp.Body).Decode(&st)
	if err != nil {
		return Status{}, fmt.Errorf("decoding status: %w", err)
	}
	return st, nil
}
