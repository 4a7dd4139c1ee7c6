// Package can holds the frame model shared by the capture, replay and
// catalog layers, plus the adapter line parser and the static OBD-II
// lookup tables.
package can

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Validation limits for classical CAN identifiers.
const (
	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF
)

var (
	ErrInvalidID  = errors.New("can: invalid identifier")
	ErrInvalidLen = errors.New("can: invalid data length")
)

// Frame is a single observed CAN frame. Frames are created by the parser or
// loaded from a log and are never mutated downstream.
type Frame struct {
	Timestamp float64 // seconds since an arbitrary origin
	ID        uint32  // 11-bit standard or 29-bit extended identifier
	Length    uint8   // 0..8
	Data      []byte  // len(Data) == Length
}

// Extended reports whether the identifier needs the 29-bit format.
func (f Frame) Extended() bool { return f.ID > MaxStdID }

// Validate returns an error if the frame violates the frame contract.
func (f Frame) Validate() error {
	if f.ID > MaxExtID {
		return ErrInvalidID
	}
	if f.Length > 8 {
		return ErrInvalidLen
	}
	if int(f.Length) != len(f.Data) {
		return ErrInvalidLen
	}
	return nil
}

// HexData renders the payload as space-separated uppercase hex bytes.
func (f Frame) HexData() string {
	var b strings.Builder
	for i, v := range f.Data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// FormatFrame renders a frame for display. The annotation, if non-empty, is
// appended verbatim; callers produce it from a loaded schema on a
// best-effort basis.
func FormatFrame(f Frame, annotation string) string {
	sec := int64(f.Timestamp)
	ms := int64(math.Round((f.Timestamp - float64(sec)) * 1000))
	if ms < 0 {
		ms = 0
	}
	if ms > 999 {
		ms = 999
	}
	ts := time.Unix(sec, 0).Format("15:04:05")
	base := fmt.Sprintf("%s.%03d | ID: 0x%X | DLC: %d | DATA: %s", ts, ms, f.ID, f.Length, f.HexData())
	if annotation != "" {
		base += " | " + annotation
	}
	return base
}
