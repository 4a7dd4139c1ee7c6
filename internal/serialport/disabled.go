package serialport

import (
	"context"
	"sync"

	"github.com/canlab/canrx/internal/can"
)

// DisabledMux is a no-op Muxer used when no adapter is attached. It lets
// the rest of the tool run (replay display, catalog work) without a device.
// Subscribers are tracked so their channels close deterministically on
// Unsubscribe or Close, unblocking readers during shutdown.
type DisabledMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
}

func NewDisabledMux() *DisabledMux {
	return &DisabledMux{
		subscribers: make(map[string]chan string),
	}
}

func (d *DisabledMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	if d.closing {
		// Already closing: hand back a closed channel so callers don't block.
		close(ch)
		d.mu.Unlock()
		return id, ch
	}
	d.subscribers[id] = ch
	d.mu.Unlock()
	return id, ch
}

func (d *DisabledMux) Unsubscribe(id string) {
	d.mu.Lock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
}

func (d *DisabledMux) SendFrame(can.Frame) error { return nil }

func (d *DisabledMux) SendRequest(uint8) error { return nil }

func (d *DisabledMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledMux) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
	return nil
}
