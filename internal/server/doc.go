// Package server exposes a running board over HTTP.
//
// The server is a thin layer over a Device (normally *device.Commander).
// It never talks to the serial port itself: every control request becomes
// a commander call and every streaming client becomes a bus subscriber.
//
// # Routes
//
//	POST /control/start            start streaming (202)
//	POST /control/stop             stop streaming (202)
//	POST /control/reset            soft reset, reads the banner again (202)
//	POST /control/debug?enabled=   toggle raw byte mode (202)
//	GET  /stream                   server-sent events, one "sensorData" per sample
//	GET  /ws                       WebSocket, one JSON text message per sample
//	GET  /status                   connection state and watchdog stats
//	GET  /metrics                  Prometheus metrics
//	GET  /                         small dashboard page
//
// Unknown commands return 404. A command the board cannot take in its
// current state returns 409, a transport failure 502 and a stopped
// commander 503.
//
// # Sample Format
//
// Samples are encoded as a three element JSON array:
//
//	[counter, [ch1 ... ch8], [x, y, z]]
//
// # Slow Clients
//
// Each streaming client owns a bounded queue. When a client cannot keep up
// its samples are dropped and counted in
// openbci_consumer_drops_total{consumer="sse"|"ws"}; the device
// loop and other clients are never held back.
//
// # Graceful Shutdown
//
// Start returns after SIGINT, SIGTERM or context cancellation. Open streams
// are closed first, then in-flight requests get up to ShutdownTimeout to
// finish.
package server
