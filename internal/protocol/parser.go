package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrParserClosed is returned by Feed after Close
var ErrParserClosed = errors.New("parser closed")

// Event is a protocol event produced by the Parser
type Event interface {
	event()
}

// TextResponse is a text reply terminated by "$$$" (terminator excluded)
type TextResponse struct {
	Text []byte
}

// SampleFrame is one well-formed 33-byte streaming frame
type SampleFrame struct {
	Counter uint8
	Payload [PayloadSize]byte
}

// DebugByte is a single byte received in debug mode
type DebugByte struct {
	Value byte
}

// Desync reports bytes discarded while looking for a frame start marker
type Desync struct {
	Skipped int
}

// Finished is the terminal event. A nil Reason means a clean close.
type Finished struct {
	Reason error
}

func (TextResponse) event() {}
func (SampleFrame) event()  {}
func (DebugByte) event()    {}
func (Desync) event()       {}
func (Finished) event()     {}

func (e TextResponse) String() string { return fmt.Sprintf("TextResponse{%q}", e.Text) }
func (e SampleFrame) String() string  { return fmt.Sprintf("SampleFrame{counter=%d}", e.Counter) }
func (e DebugByte) String() string    { return fmt.Sprintf("DebugByte{0x%02x}", e.Value) }
func (e Desync) String() string       { return fmt.Sprintf("Desync{skipped=%d}", e.Skipped) }
func (e Finished) String() string     { return fmt.Sprintf("Finished{reason=%v}", e.Reason) }

// Parser turns an append-only byte stream into protocol events.
// Input may be split at any byte boundary; the events are the same as if
// the whole stream had been fed at once.
type Parser struct {
	emit func(Event)
	mode Mode

	buf      []byte
	pos      int // start of unconsumed input in buf
	textScan int // where the next terminator search resumes
	skipped  int // bytes discarded since the last realignment

	draining bool
	closed   bool
}

// NewParser creates a parser in idle mode that reports events to emit
func NewParser(emit func(Event)) *Parser {
	return &Parser{
		emit: emit,
		mode: ModeIdle,
	}
}

// Mode returns the current parser mode
func (p *Parser) Mode() Mode {
	return p.mode
}

// Buffered returns the number of bytes waiting for more input
func (p *Parser) Buffered() int {
	return len(p.buf) - p.pos
}

// SetMode switches the parser mode. Bytes already buffered are
// interpreted under the new mode.
func (p *Parser) SetMode(m Mode) {
	if p.closed || p.mode == m {
		return
	}
	if p.mode == ModeSampleStream {
		p.flushDesync()
	}
	p.mode = m
	p.textScan = p.pos
	p.drain()
}

// Feed appends data to the stream and emits every event it completes
func (p *Parser) Feed(data []byte) error {
	if p.closed {
		return ErrParserClosed
	}
	p.buf = append(p.buf, data...)
	p.drain()
	return nil
}

// Close emits the terminal Finished event. Calling it again is a no-op.
func (p *Parser) Close(reason error) {
	if p.closed {
		return
	}
	p.flushDesync()
	p.closed = true
	p.buf = nil
	p.pos = 0
	p.textScan = 0
	p.emit(Finished{Reason: reason})
}

// Closed reports whether Close has been called
func (p *Parser) Closed() bool {
	return p.closed
}

func (p *Parser) drain() {
	// An event handler may switch modes; the outer loop picks that up.
	if p.draining {
		return
	}
	p.draining = true
	defer func() { p.draining = false }()

	for !p.closed {
		var progressed bool
		switch p.mode {
		case ModeIdle:
			progressed = p.stepIdle()
		case ModeSampleStream:
			progressed = p.stepStream()
		case ModeDebug:
			progressed = p.stepDebug()
		}
		if !progressed {
			break
		}
	}
	p.compact()
}

// compact drops consumed bytes from the front of the buffer
func (p *Parser) compact() {
	if p.pos == 0 {
		return
	}
	n := copy(p.buf, p.buf[p.pos:])
	p.buf = p.buf[:n]
	p.textScan -= p.pos
	if p.textScan < 0 {
		p.textScan = 0
	}
	p.pos = 0
}

func (p *Parser) stepIdle() bool {
	from := p.pos
	if p.textScan > from {
		from = p.textScan
	}

	i := bytes.Index(p.buf[from:], Terminator)
	if i < 0 {
		// A terminator may straddle the next chunk
		resume := len(p.buf) - len(Terminator) + 1
		if resume < p.pos {
			resume = p.pos
		}
		p.textScan = resume
		return false
	}

	end := from + i
	text := append([]byte{}, p.buf[p.pos:end]...)
	p.pos = end + len(Terminator)
	p.textScan = p.pos
	p.emit(TextResponse{Text: text})
	return true
}

func (p *Parser) stepStream() bool {
	avail := p.buf[p.pos:]
	if len(avail) == 0 {
		return false
	}

	if avail[0] != FrameStart {
		i := bytes.IndexByte(avail, FrameStart)
		if i < 0 {
			p.skipped += len(avail)
			p.pos = len(p.buf)
			return false
		}
		p.skipped += i
		p.pos += i
		return true
	}

	// Aligned on a start marker: report any bytes dropped to get here
	p.flushDesync()

	if len(avail) < FrameSize {
		return false
	}

	if avail[FrameSize-1] != FrameEnd {
		// Not a frame after all; drop the marker and keep scanning
		p.skipped++
		p.pos++
		return true
	}

	frame := SampleFrame{Counter: avail[1]}
	copy(frame.Payload[:], avail[2:2+PayloadSize])
	p.pos += FrameSize
	p.emit(frame)
	return true
}

func (p *Parser) stepDebug() bool {
	if p.pos >= len(p.buf) {
		return false
	}
	b := p.buf[p.pos]
	p.pos++
	p.emit(DebugByte{Value: b})
	return true
}

func (p *Parser) flushDesync() {
	if p.skipped == 0 {
		return
	}
	n := p.skipped
	p.skipped = 0
	p.emit(Desync{Skipped: n})
}
