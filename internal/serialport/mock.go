package serialport

import (
	"io"
	"time"
)

// MockPort implements Porter over an in-memory pipe. Writes are discarded
// after being counted, standing in for an adapter that accepts frames but
// is not on a live bus.
type MockPort struct {
	io.Reader
	closed chan struct{}
}

func (m *MockPort) Write(p []byte) (int, error) {
	select {
	case <-m.closed:
		return 0, io.ErrClosedPipe
	default:
		return len(p), nil
	}
}

func (m *MockPort) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}

// NewMockLineMux creates a LineMux backed by a mock port that replays the
// fixture bytes once per interval, simulating live adapter traffic.
func NewMockLineMux(fixture []byte, interval time.Duration) *LineMux[*MockPort] {
	r, w := io.Pipe()
	port := &MockPort{Reader: r, closed: make(chan struct{})}

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := w.Write(fixture); err != nil {
					return
				}
			case <-port.closed:
				return
			}
		}
	}()

	return NewLineMux(port)
}
