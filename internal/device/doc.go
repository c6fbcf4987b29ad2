// Package device owns the link to an OpenBCI board.
//
// A Commander holds the connection state machine, the protocol parser,
// the sample watchdog and the sample bus. Everything it owns is touched
// only by the goroutine running Commander.Run, so none of it needs locks.
// Exported methods post a closure to that goroutine and wait for its
// result.
//
// # Connection lifecycle
//
//	Disconnected -> Connecting -> ConnectedIdle <-> ConnectedStreaming
//	                    |               |                  |
//	                    +--(HangUp)--> Disconnected   Closing -> Disconnected
//
// Connect dials on its own goroutine and reports the outcome on a
// channel. A successful connect puts the parser in idle mode and sends
// the reset command; the board answers with its banner terminated by
// "$$$". StartStream and StopStream move between idle and streaming.
//
// A reader goroutine copies each transport read and posts it to the
// loop, so input is parsed in arrival order. When the transport fails,
// reaches EOF or is closed by HangUp, the parser is closed and the
// session ends. There is no automatic reconnection.
//
// # Errors
//
// Connect fails synchronously with ErrConnectionInProgress or
// ErrAlreadyConnected. I/O failures are reported as *TransportError and
// end the session. Stream desynchronization is logged and counted but
// does not end the session.
package device
