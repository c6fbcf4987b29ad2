package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/openbci/internal/device"
	"github.com/muurk/openbci/internal/protocol"
	"github.com/muurk/openbci/internal/version"
)

const userAgentComponent = "openbci-monitor"

// Target is a server the monitor talks to
type Target struct {
	BaseURL   string // http://host:port
	StreamURL string // ws://host:port/ws
}

// ParseTarget accepts host:port, an http(s) base URL or a ws(s) stream URL
func ParseTarget(raw string) (Target, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("invalid server address %q: %w", raw, err)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("invalid server address %q: no host", raw)
	}

	var httpScheme, wsScheme string
	switch u.Scheme {
	case "http", "ws":
		httpScheme, wsScheme = "http", "ws"
	case "https", "wss":
		httpScheme, wsScheme = "https", "wss"
	default:
		return Target{}, fmt.Errorf("invalid server address %q: unsupported scheme %s", raw, u.Scheme)
	}

	return Target{
		BaseURL:   httpScheme + "://" + u.Host,
		StreamURL: wsScheme + "://" + u.Host + "/ws",
	}, nil
}

// StreamClient reads samples from a server's WebSocket stream
type StreamClient struct {
	conn *websocket.Conn
}

// DialStream connects to the stream endpoint
func DialStream(ctx context.Context, t Target) (*StreamClient, error) {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent(userAgentComponent))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.StreamURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.StreamURL, err)
	}
	return &StreamClient{conn: conn}, nil
}

// Next blocks until the next sample arrives
func (c *StreamClient) Next() (protocol.Sample, error) {
	var s protocol.Sample
	if err := c.conn.ReadJSON(&s); err != nil {
		return protocol.Sample{}, err
	}
	return s, nil
}

// Close closes the connection
func (c *StreamClient) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// ControlClient drives the server's control and status endpoints
type ControlClient struct {
	target Target
	http   *http.Client
}

// NewControlClient creates a client with a short request timeout
func NewControlClient(t Target) *ControlClient {
	return &ControlClient{
		target: t,
		http:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Command posts start, stop or reset
func (c *ControlClient) Command(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target.BaseURL+"/control/"+name, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent(userAgentComponent))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s: %s", name, resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

// Status fetches the server's device status
func (c *ControlClient) Status(ctx context.Context) (device.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.target.BaseURL+"/status", nil)
	if err != nil {
		return device.Status{}, err
	}
	req.Header.Set("User-Agent", version.UserAgent(userAgentComponent))

	resp, err := c.http.Do(req)
	if err != nil {
		return device.Status{}, fmt.Errorf("status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return device.Status{}, fmt.Errorf("status: %s", resp.Status)
	}

	var st device.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return device.Status{}, fmt.Errorf("status: decode: %w", err)
	}
	return st, nil
}
