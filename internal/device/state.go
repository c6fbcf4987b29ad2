package device

import (
	"context"
	"fmt"
	"io"

	"github.com/muurk/openbci/internal/watchdog"
)

// ConnectionState is the lifecycle state of the device link
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	ConnectedIdle
	ConnectedStreaming
	Closing
)

// String returns the state name used in logs and status output
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case ConnectedIdle:
		return "connected_idle"
	case ConnectedStreaming:
		return "connected_streaming"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Connected reports whether s has an open transport
func (s ConnectionState) Connected() bool {
	return s == ConnectedIdle || s == ConnectedStreaming
}

// Transport is an open byte link to the board
type Transport io.ReadWriteCloser

// Dialer opens transports. Dial must return promptly once ctx is done.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, endpoint string) (Transport, error)

// Dial calls f(ctx, endpoint)
func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Transport, error) {
	return f(ctx, endpoint)
}

// DebugSink receives raw bytes while the parser is in debug mode
type DebugSink interface {
	DebugByte(b byte)
	// SessionEnded is called when the device session ends
	SessionEnded()
}

// Status is a point-in-time snapshot of the commander
type Status struct {
	State        string         `json:"state"`
	Mode         string         `json:"mode"`
	Endpoint     string         `json:"endpoint,omitempty"`
	LastResponse string         `json:"last_response,omitempty"`
	Subscribers  int            `json:"subscribers"`
	Strategy     string         `json:"decode_strategy"`
	Watchdog     watchdog.Stats `json:"watchdog"`
}
