// Package protocol implements the OpenBCI serial wire protocol.
//
// This package turns the raw byte stream coming from an ADS1299-based
// OpenBCI board into discrete protocol events, and decodes the binary
// sample frames into Sample values.
//
// # Wire Format
//
// The board talks in two modes:
//   - Text (idle) mode: free-form ASCII terminated by the literal "$$$"
//   - Streaming mode: fixed 33-byte binary frames
//
// A streaming frame has this structure:
//   - Start marker: 0xA0
//   - Counter: 1 byte, wraps at 255
//   - Payload: 30 bytes
//   - End marker: 0xC0
//
// The payload holds 8 EEG channels of 3 bytes each (big-endian, signed
// 24-bit two's complement) followed by 3 accelerometer axes of 2 bytes
// each (big-endian, signed 16-bit).
//
// # Commands
//
// Commands sent to the board are single bytes:
//   - 'v': soft reset
//   - 'b': begin streaming
//   - 's': stop streaming
//
// # Parsing
//
// Parser is an explicit scanner keyed by Mode. It buffers input across
// Feed calls, so frames and terminators may be split over any number of
// reads. The mode is never inferred from content; the owner of the
// parser switches it together with the command it sends.
//
//	p := protocol.NewParser(func(ev protocol.Event) {
//	    switch e := ev.(type) {
//	    case protocol.TextResponse:
//	        fmt.Printf("board said %q\n", e.Text)
//	    case protocol.SampleFrame:
//	        sample := e.Decode(protocol.SelectStrategy())
//	        fmt.Println(sample)
//	    }
//	})
//	p.Feed(chunk)
//
// # Resynchronization
//
// In streaming mode, bytes that cannot start a well-formed frame are
// discarded up to the next 0xA0 start marker. A Desync event reports the
// number of discarded bytes once alignment is found again, so the event
// sequence does not depend on how the input was chunked.
//
// # Thread Safety
//
// Decode functions are stateless and safe for concurrent use. A Parser
// is owned by a single goroutine and must not be shared.
package protocol
