// Package bus fans decoded samples out to subscribers.
//
// Publish calls every subscriber registered when it starts, synchronously
// and on the caller's goroutine. There is no queue: a subscriber that
// needs to hand samples to another goroutine does so itself, typically
// with a non-blocking channel send.
//
// The subscriber list is copy-on-write. Publish walks the list that was
// current at entry, so a subscriber may unsubscribe itself (or others)
// from inside its callback without disturbing the delivery in progress.
//
// A Bus has a single owner and is not safe for concurrent use. In this
// service the device event loop owns it; other goroutines reach it
// through the device.Commander.
package bus

import (
	"fmt"

	"github.com/muurk/openbci/internal/protocol"
)

// Handle identifies a subscription
type Handle uint64

// Subscriber receives published samples
type Subscriber func(protocol.Sample)

// FaultHandler is told about a subscriber that panicked
type FaultHandler func(h Handle, fault error)

type entry struct {
	handle Handle
	fn     Subscriber
}

// Bus is the sample fanout registry
type Bus struct {
	subs    []entry // replaced, never modified in place
	next    Handle
	onFault FaultHandler
}

// New creates an empty bus. onFault may be nil.
func New(onFault FaultHandler) *Bus {
	return &Bus{onFault: onFault}
}

// Subscribe registers fn and returns its handle
func (b *Bus) Subscribe(fn Subscriber) Handle {
	b.next++
	h := b.next

	subs := make([]entry, len(b.subs), len(b.subs)+1)
	copy(subs, b.subs)
	b.subs = append(subs, entry{handle: h, fn: fn})
	return h
}

// Unsubscribe removes a subscription. Unknown handles are ignored.
// It reports whether the handle was registered.
func (b *Bus) Unsubscribe(h Handle) bool {
	for i, e := range b.subs {
		if e.handle != h {
			continue
		}
		subs := make([]entry, 0, len(b.subs)-1)
		subs = append(subs, b.subs[:i]...)
		b.subs = append(subs, b.subs[i+1:]...)
		return true
	}
	return false
}

// Len returns the number of subscribers
func (b *Bus) Len() int {
	return len(b.subs)
}

// Publish delivers s to every current subscriber. A panicking subscriber
// is reported to the fault handler and the fanout continues.
func (b *Bus) Publish(s protocol.Sample) {
	for _, e := range b.subs {
		b.deliver(e, s)
	}
}

func (b *Bus) deliver(e entry, s protocol.Sample) {
	defer func() {
		if r := recover(); r != nil {
			if b.onFault != nil {
				b.onFault(e.handle, faultError(r))
			}
		}
	}()
	e.fn(s)
}

func faultError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("subscriber panic: %w", err)
	}
	return fmt.Errorf("subscriber panic: %v", r)
}
