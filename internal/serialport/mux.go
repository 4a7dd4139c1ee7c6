package serialport

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/canlab/canrx/internal/can"
)

var ErrWriteFailed = fmt.Errorf("serialport: short write to adapter")

// Muxer is the capability the capture and replay layers program against: a
// line source that fans lines out to subscribers and a frame sink for
// transmission. Implementations: LineMux (real or mock port) and
// DisabledMux (no adapter present).
type Muxer interface {
	// Subscribe creates a channel receiving raw adapter lines. The returned
	// id identifies the channel when unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes and closes a subscriber channel.
	Unsubscribe(string)
	// SendFrame encodes and transmits a frame through the adapter.
	SendFrame(can.Frame) error
	// SendRequest transmits a standard OBD-II poll for the given PID.
	SendRequest(pid uint8) error
	// Monitor reads lines from the port and fans them out until the
	// context ends or the port fails.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the port.
	Close() error
}

// LineMux multiplexes a single adapter port to any number of line
// subscribers and serializes writes to it.
type LineMux[T Porter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	writeMu      sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewLineMux creates a LineMux backed by the given port.
func NewLineMux[T Porter](port T) *LineMux[T] {
	return &LineMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (m *LineMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the mux.
func (m *LineMux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// SendFrame writes a frame to the adapter in the same text format the
// adapter itself emits, so a loopback wiring round-trips through ParseLine.
func (m *LineMux[T]) SendFrame(f can.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	line := fmt.Sprintf("ID: 0x%X, Data: %d %s\n", f.ID, f.Length, f.HexData())

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	n, err := m.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// SendRequest transmits a standard OBD-II service 01 poll.
func (m *LineMux[T]) SendRequest(pid uint8) error {
	data := can.EncodeRequest(pid)
	return m.SendFrame(can.Frame{
		ID:     can.OBDRequestID,
		Length: uint8(len(data)),
		Data:   data,
	})
}

// Monitor reads lines from the port and fans them out to subscribers. A
// subscriber that is not keeping up misses lines rather than stalling the
// read loop.
func (m *LineMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so the outer loop
	// can await lines and context cancellation at the same time.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				// the port hit EOF or an error; scan.Err distinguishes
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}

			m.closingMu.Lock()
			if m.closing {
				m.closingMu.Unlock()
				return nil
			}
			m.closingMu.Unlock()

			m.subscriberMu.Lock()
			for _, ch := range m.subscribers {
				select {
				case ch <- line:
				default:
					// skip a full subscriber so the read loop never blocks
				}
			}
			m.subscriberMu.Unlock()
		}
	}
}

func (m *LineMux[T]) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return m.port.Close()
}
