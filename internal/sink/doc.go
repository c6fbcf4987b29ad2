// Package sink holds consumers of the sample stream.
//
// CSVLogger, RedisPublisher and Diagnostics are bus subscribers: their
// HandleSample methods are registered with device.Commander.Subscribe and
// run on the device event loop, so they must return quickly. DebugLog is
// the commander's debug-mode byte sink.
package sink
