// Package simulator is a software OpenBCI board.
//
// A Conn speaks the board's side of the wire protocol over an in-memory
// pipe: 'v' resets and answers with a banner terminated by "$$$", 'b'
// starts streaming 33-byte frames at 250 Hz and 's' stops. Channel values
// are sine waves of increasing frequency so the stream is easy to
// recognise in a plot.
package simulator

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/muurk/openbci/internal/device"
	"github.com/muurk/openbci/internal/protocol"
)

// Endpoint is the endpoint name the Dialer accepts
const Endpoint = "sim"

// DefaultBanner is the text sent after a reset
const DefaultBanner = "OpenBCI V3 8-16 channel (simulated)\nADS1299 Device ID: 0x3E\nLIS3DH Device ID: 0x33\n"

// SampleInterval is the nominal frame period
const SampleInterval = 4 * time.Millisecond

// Option configures a simulated board
type Option func(*Conn)

// WithInterval sets the frame period
func WithInterval(d time.Duration) Option {
	return func(c *Conn) {
		c.interval = d
	}
}

// WithBanner replaces the reset banner
func WithBanner(s string) Option {
	return func(c *Conn) {
		c.banner = s
	}
}

// WithDropEvery skips one counter value every n frames. Zero disables.
func WithDropEvery(n int) Option {
	return func(c *Conn) {
		c.dropEvery = n
	}
}

// Conn is the host side of a link to a simulated board
type Conn struct {
	interval  time.Duration
	banner    string
	dropEvery int

	pr *io.PipeReader
	pw *io.PipeWriter

	cmds      chan byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewConn starts a simulated board and returns its link
func NewConn(opts ...Option) *Conn {
	pr, pw := io.Pipe()
	c := &Conn{
		interval: SampleInterval,
		banner:   DefaultBanner,
		pr:       pr,
		pw:       pw,
		cmds:     make(chan byte, 16),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run()
	return c
}

// Read returns bytes sent by the board
func (c *Conn) Read(p []byte) (int, error) {
	return c.pr.Read(p)
}

// Write sends command bytes to the board
func (c *Conn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	for i, b := range p {
		select {
		case c.cmds <- b:
		case <-c.closed:
			return i, io.ErrClosedPipe
		}
	}
	return len(p), nil
}

// Close powers the board off. Pending and later reads fail.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.pr.Close()
	})
	return nil
}

func (c *Conn) run() {
	defer c.pw.Close()

	var (
		ticker    *time.Ticker
		tick      <-chan time.Time
		counter   uint8
		sent      int
		startedAt time.Time
	)
	stop := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stop()

	for {
		select {
		case <-c.closed:
			return

		case cmd := <-c.cmds:
			switch cmd {
			case protocol.CmdReset:
				stop()
				if _, err := c.pw.Write(protocol.BuildTextResponse(c.banner)); err != nil {
					return
				}
			case protocol.CmdStreamStart:
				if ticker == nil {
					ticker = time.NewTicker(c.interval)
					tick = ticker.C
					counter, sent = 0, 0
					startedAt = time.Now()
				}
			case protocol.CmdStreamStop:
				stop()
			}

		case now := <-tick:
			if c.dropEvery > 0 && sent > 0 && sent%c.dropEvery == 0 {
				counter++
			}
			frame, err := protocol.BuildSampleFrame(synthesize(counter, now.Sub(startedAt)))
			if err != nil {
				return
			}
			if _, err := c.pw.Write(frame); err != nil {
				return
			}
			counter++
			sent++
		}
	}
}

// synthesize builds the sample for time t since stream start
func synthesize(counter uint8, t time.Duration) protocol.Sample {
	s := protocol.Sample{Counter: counter}
	secs := t.Seconds()
	for ch := range s.EEG {
		// 50 uV sine at 5, 10, 15 ... Hz
		uv := 50 * math.Sin(2*math.Pi*float64(5*(ch+1))*secs)
		s.EEG[ch] = int32(uv / protocol.MicrovoltsPerCount)
	}
	// Board lying flat: gravity on Z at 0.002 g per count
	s.Accelerometer = [protocol.AccelAxes]int32{0, 0, 500}
	return s
}

// Dialer opens simulated boards for the endpoint "sim"
type Dialer struct {
	Options []Option
}

// Dial implements device.Dialer
func (d Dialer) Dial(ctx context.Context, endpoint string) (device.Transport, error) {
	if endpoint != Endpoint {
		return nil, fmt.Errorf("simulator: unknown endpoint %q", endpoint)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewConn(d.Options...), nil
}
