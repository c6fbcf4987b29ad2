package device

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/muurk/openbci/internal/bus"
	"github.com/muurk/openbci/internal/logging"
	"github.com/muurk/openbci/internal/monitor"
	"github.com/muurk/openbci/internal/protocol"
	"github.com/muurk/openbci/internal/watchdog"
)

// DefaultReadSize is the transport read buffer size
const DefaultReadSize = 1024

// Commander drives one board. All of its state belongs to the goroutine
// running Run; exported methods post work to that goroutine and wait for
// the result, so they are safe to call from anywhere once Run has started.
type Commander struct {
	dialer   Dialer
	strategy protocol.Strategy
	debug    DebugSink
	readSize int
	wdOpts   []watchdog.Option

	ops  chan func()
	done chan struct{}

	// Owned by the event loop
	ctx           context.Context
	state         ConnectionState
	endpoint      string
	transport     Transport
	parser        *protocol.Parser
	watchdog      *watchdog.Watchdog
	bus           *bus.Bus
	session       uint64 // bumped whenever a session starts or ends
	cancelDial    context.CancelFunc
	connectResult chan error
	lastResponse  string
}

// Option configures a Commander
type Option func(*Commander)

// WithStrategy sets the payload decode strategy
func WithStrategy(s protocol.Strategy) Option {
	return func(c *Commander) {
		c.strategy = s
	}
}

// WithDebugSink sets where debug-mode bytes go
func WithDebugSink(s DebugSink) Option {
	return func(c *Commander) {
		c.debug = s
	}
}

// WithReadSize sets the transport read buffer size
func WithReadSize(n int) Option {
	return func(c *Commander) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// WithWatchdogOptions passes options to the sample watchdog
func WithWatchdogOptions(opts ...watchdog.Option) Option {
	return func(c *Commander) {
		c.wdOpts = append(c.wdOpts, opts...)
	}
}

// NewCommander creates a commander that opens links with dialer.
// Call Run before using any other method.
func NewCommander(dialer Dialer, opts ...Option) *Commander {
	c := &Commander{
		dialer:   dialer,
		strategy: protocol.SelectStrategy(),
		readSize: DefaultReadSize,
		ops:      make(chan func()),
		done:     make(chan struct{}),
		state:    Disconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.bus = bus.New(subscriberFault)
	c.watchdog = watchdog.New(reporter{endpoint: &c.endpoint}, c.wdOpts...)
	monitor.ConnectionState.Set(float64(Disconnected))
	return c
}

// Run processes commands and device input until ctx is done. On exit the
// session is hung up and finished, so subscribers see no more samples.
func (c *Commander) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)

	logging.Debug("Commander started", zap.String("strategy", c.strategy.Name()))
	for {
		select {
		case <-ctx.Done():
			c.hangUp()
			if c.parser != nil {
				c.parser.Close(nil)
			}
			logging.Debug("Commander stopped")
			return ctx.Err()
		case op := <-c.ops:
			op()
		}
	}
}

// Done is closed after Run returns
func (c *Commander) Done() <-chan struct{} {
	return c.done
}

// post hands op to the loop. It reports false once the loop has exited.
func (c *Commander) post(op func()) bool {
	select {
	case c.ops <- op:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the loop and returns its error
func (c *Commander) call(fn func() error) error {
	errc := make(chan error, 1)
	if !c.post(func() { errc <- fn() }) {
		return ErrStopped
	}
	return <-errc
}

// Connect starts opening endpoint. It fails immediately with
// ErrConnectionInProgress or ErrAlreadyConnected; otherwise the returned
// channel receives exactly one outcome.
func (c *Commander) Connect(endpoint string) (<-chan error, error) {
	var result <-chan error
	err := c.call(func() error {
		var err error
		result, err = c.connect(endpoint)
		return err
	})
	return result, err
}

// StartStream asks the board to stream samples
func (c *Commander) StartStream() error {
	return c.call(c.startStream)
}

// StopStream asks the board to stop streaming. It is a no-op unless
// streaming.
func (c *Commander) StopStream() error {
	return c.call(c.stopStream)
}

// Reset sends the soft reset command. The parser mode is unchanged.
func (c *Commander) Reset() error {
	return c.call(func() error {
		if !c.state.Connected() {
			return ErrNotConnected
		}
		return c.send(protocol.CmdReset)
	})
}

// SetDebug switches the idle parser into or out of raw byte mode
func (c *Commander) SetDebug(enabled bool) error {
	return c.call(func() error {
		if c.state != ConnectedIdle {
			return ErrInvalidState
		}
		mode := protocol.ModeIdle
		if enabled {
			mode = protocol.ModeDebug
		}
		c.parser.SetMode(mode)
		logging.Info("Debug mode changed",
			zap.String("endpoint", c.endpoint),
			zap.Bool("enabled", enabled),
		)
		return nil
	})
}

// HangUp closes the session. It cancels a pending connect and does not
// wait for the transport to finish closing.
func (c *Commander) HangUp() error {
	return c.call(func() error {
		c.hangUp()
		return nil
	})
}

// Subscribe registers fn for decoded samples. fn runs on the event loop
// and must not block or call back into the Commander.
func (c *Commander) Subscribe(fn bus.Subscriber) (bus.Handle, error) {
	var h bus.Handle
	err := c.call(func() error {
		h = c.bus.Subscribe(fn)
		monitor.Subscribers.Set(float64(c.bus.Len()))
		return nil
	})
	return h, err
}

// Unsubscribe removes a subscription
func (c *Commander) Unsubscribe(h bus.Handle) error {
	return c.call(func() error {
		c.bus.Unsubscribe(h)
		monitor.Subscribers.Set(float64(c.bus.Len()))
		return nil
	})
}

// Status returns a snapshot of the commander
func (c *Commander) Status() (Status, error) {
	var st Status
	err := c.call(func() error {
		mode := protocol.ModeIdle
		if c.parser != nil {
			mode = c.parser.Mode()
		}
		st = Status{
			State:        c.state.String(),
			Mode:         mode.String(),
			Endpoint:     c.endpoint,
			LastResponse: c.lastResponse,
			Subscribers:  c.bus.Len(),
			Strategy:     c.strategy.Name(),
			Watchdog:     c.watchdog.Stats(),
		}
		return nil
	})
	return st, err
}

func (c *Commander) setState(s ConnectionState) {
	if c.state == s {
		return
	}
	logging.Debug("State changed",
		zap.String("endpoint", c.endpoint),
		zap.Stringer("from", c.state),
		zap.Stringer("to", s),
	)
	c.state = s
	monitor.ConnectionState.Set(float64(s))
}

func (c *Commander) connect(endpoint string) (<-chan error, error) {
	switch c.state {
	case Connecting:
		return nil, ErrConnectionInProgress
	case Disconnected:
	default:
		return nil, ErrAlreadyConnected
	}

	c.session++
	session := c.session
	ctx, cancel := context.WithCancel(c.ctx)
	result := make(chan error, 1)

	c.cancelDial = cancel
	c.connectResult = result
	c.endpoint = endpoint
	c.lastResponse = ""
	c.setState(Connecting)
	logging.LogConnection(endpoint, "connecting")

	go func() {
		t, err := c.dialer.Dial(ctx, endpoint)
		if !c.post(func() { c.dialed(session, t, err) }) && t != nil {
			_ = t.Close()
		}
	}()
	return result, nil
}

// finishConnect delivers the connect outcome
func (c *Commander) finishConnect(err error) {
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if c.connectResult != nil {
		c.connectResult <- err
		c.connectResult = nil
	}
}

func (c *Commander) dialed(session uint64, t Transport, err error) {
	if session != c.session || c.state != Connecting {
		// Cancelled while dialing
		if t != nil {
			_ = t.Close()
		}
		return
	}

	if err != nil {
		terr := &TransportError{Op: "open", Endpoint: c.endpoint, Err: err}
		c.setState(Disconnected)
		c.finishConnect(terr)
		monitor.Sessions.WithLabelValues("connect_failed").Inc()
		logging.Error("Connect failed", zap.String("endpoint", c.endpoint), zap.Error(err))
		return
	}

	c.transport = t
	c.parser = protocol.NewParser(func(ev protocol.Event) { c.handleEvent(session, ev) })
	c.watchdog.Reset()
	c.setState(ConnectedIdle)
	c.finishConnect(nil)
	logging.LogConnection(c.endpoint, "connected")

	go c.readLoop(session, t)
	_ = c.send(protocol.CmdReset)
}

// readLoop forwards transport input to the event loop
func (c *Commander) readLoop(session uint64, t Transport) {
	buf := make([]byte, c.readSize)
	for {
		n, err := t.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !c.post(func() { c.received(session, chunk) }) {
				return
			}
		}
		if err != nil {
			c.post(func() { c.readFailed(session, err) })
			return
		}
	}
}

func (c *Commander) received(session uint64, chunk []byte) {
	if session != c.session || c.parser == nil {
		return
	}
	monitor.BytesReceived.Add(float64(len(chunk)))
	logging.LogRawBytes("Received", chunk)
	if err := c.parser.Feed(chunk); err != nil {
		logging.Warn("Input after parser close", zap.Error(err))
	}
}

func (c *Commander) readFailed(session uint64, err error) {
	if session != c.session || c.parser == nil {
		return
	}
	var reason error
	if c.state != Closing && !errors.Is(err, io.EOF) {
		reason = &TransportError{Op: "read", Endpoint: c.endpoint, Err: err}
	}
	c.parser.Close(reason)
}

// send writes one command byte. A failed write ends the session.
func (c *Commander) send(cmd byte) error {
	logging.LogCommand(c.endpoint, protocol.CommandName(cmd), cmd)
	if _, err := c.transport.Write([]byte{cmd}); err != nil {
		terr := &TransportError{Op: "write", Endpoint: c.endpoint, Err: err}
		c.parser.Close(terr)
		return terr
	}
	return nil
}

func (c *Commander) startStream() error {
	if c.state != ConnectedIdle || c.parser.Mode() != protocol.ModeIdle {
		return ErrInvalidState
	}
	c.watchdog.Reset()
	c.parser.SetMode(protocol.ModeSampleStream)
	if err := c.send(protocol.CmdStreamStart); err != nil {
		return err
	}
	c.setState(ConnectedStreaming)
	return nil
}

func (c *Commander) stopStream() error {
	if c.state != ConnectedStreaming {
		return nil
	}
	if err := c.send(protocol.CmdStreamStop); err != nil {
		return err
	}
	c.parser.SetMode(protocol.ModeIdle)
	c.setState(ConnectedIdle)
	return nil
}

func (c *Commander) hangUp() {
	switch c.state {
	case Disconnected, Closing:
		return
	case Connecting:
		c.session++
		c.setState(Disconnected)
		c.finishConnect(ErrConnectCancelled)
		monitor.Sessions.WithLabelValues("cancelled").Inc()
		logging.LogConnection(c.endpoint, "connect cancelled")
		return
	}

	// Best effort: the board may already be gone
	logging.LogCommand(c.endpoint, protocol.CommandName(protocol.CmdStreamStop), protocol.CmdStreamStop)
	if _, err := c.transport.Write([]byte{protocol.CmdStreamStop}); err != nil {
		logging.Debug("Stop before hang-up failed", zap.Error(err))
	}
	c.setState(Closing)
	logging.LogConnection(c.endpoint, "closing")
	if err := c.transport.Close(); err != nil {
		logging.Debug("Transport close failed", zap.Error(err))
	}
}

func (c *Commander) handleEvent(session uint64, ev protocol.Event) {
	if session != c.session {
		return
	}

	switch ev := ev.(type) {
	case protocol.TextResponse:
		c.lastResponse = string(ev.Text)
		monitor.TextResponses.Inc()
		logging.Info("Board response",
			zap.String("endpoint", c.endpoint),
			zap.ByteString("text", ev.Text),
		)

	case protocol.SampleFrame:
		s := ev.Decode(c.strategy)
		monitor.SamplesDecoded.Inc()
		c.watchdog.HandleSample(s)
		c.bus.Publish(s)

	case protocol.DebugByte:
		if c.debug != nil {
			c.debug.DebugByte(ev.Value)
		}

	case protocol.Desync:
		monitor.DesyncEvents.Inc()
		monitor.DesyncBytes.Add(float64(ev.Skipped))
		logging.Warn("Stream desynchronized",
			zap.String("endpoint", c.endpoint),
			zap.Int("skipped", ev.Skipped),
		)

	case protocol.Finished:
		c.deviceLost(ev.Reason)
	}
}

// deviceLost ends the session. There is no automatic reconnection.
func (c *Commander) deviceLost(reason error) {
	if c.transport != nil {
		_ = c.transport.Close()
	}
	c.transport = nil
	c.parser = nil
	c.session++
	c.setState(Disconnected)

	if c.debug != nil {
		c.debug.SessionEnded()
	}

	if reason == nil {
		monitor.Sessions.WithLabelValues("closed").Inc()
		logging.LogConnection(c.endpoint, "closed")
		return
	}
	monitor.Sessions.WithLabelValues("error").Inc()
	logging.Error("Device lost",
		zap.String("endpoint", c.endpoint),
		zap.Error(reason),
	)
}
