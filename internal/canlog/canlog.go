// Package canlog persists captured frames as CSV and loads them back for
// replay and catalog synthesis. The format is stable:
//
//	timestamp_ms,id_hex,dlc,data_hex
//
// with integer millisecond timestamps, uppercase hex identifiers without a
// prefix, and space-separated two-digit uppercase data bytes.
package canlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/canlab/canrx/internal/can"
)

// DefaultMaxBytes is the rotation threshold for the active log file.
const DefaultMaxBytes = 100 * 1024 * 1024

var header = []string{"timestamp_ms", "id_hex", "dlc", "data_hex"}

// ErrClosed is returned by Append on a closed Writer. A caller toggling
// logging from another goroutine can treat it as the toggle taking effect.
var ErrClosed = errors.New("canlog: writer is closed")

// Writer appends frames to a CSV log, rotating the file once it exceeds
// MaxBytes. Every append is flushed to disk before returning, so a crash
// loses at most the in-flight frame. Append and Close are safe to call
// from different goroutines.
//
// A Writer is the single owner of its path. Pointing two writers at the
// same file is a caller error; no file locking is attempted.
type Writer struct {
	// MaxBytes is the rotation threshold. Zero means DefaultMaxBytes.
	MaxBytes int64

	mu   sync.Mutex // guards file and size
	path string
	file *os.File
	size int64
}

// NewWriter opens (or creates) the log at path in append mode, writing the
// header row if the file is empty.
func NewWriter(path string) (*Writer, error) {
	w := &Writer{path: path}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) open() error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log %s: %w", w.path, err)
	}
	w.file = f
	w.size = info.Size()
	if w.size == 0 {
		return w.writeRow(header)
	}
	return nil
}

func (w *Writer) writeRow(row []string) error {
	cw := csv.NewWriter(w.file)
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	w.size = info.Size()
	return nil
}

// Path returns the active log path.
func (w *Writer) Path() string { return w.path }

// Append writes one frame and flushes it. If the file then exceeds the
// rotation threshold the current file is renamed with a local timestamp
// suffix and a fresh file with a header row takes its place.
func (w *Writer) Append(f can.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ErrClosed
	}
	row := []string{
		strconv.FormatInt(int64(f.Timestamp*1000), 10),
		fmt.Sprintf("%X", f.ID),
		strconv.Itoa(int(f.Length)),
		f.HexData(),
	}
	if err := w.writeRow(row); err != nil {
		return fmt.Errorf("append to %s: %w", w.path, err)
	}

	max := w.MaxBytes
	if max == 0 {
		max = DefaultMaxBytes
	}
	if w.size > max {
		return w.rotate()
	}
	return nil
}

func (w *Writer) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close for rotation: %w", err)
	}
	w.file = nil

	// Rotations inside the same second must still land on distinct names.
	target := RotatedName(w.path, time.Now())
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(target)
		stem := strings.TrimSuffix(target, ext)
		for i := 1; ; i++ {
			cand := fmt.Sprintf("%s_%d%s", stem, i, ext)
			if _, err := os.Stat(cand); os.IsNotExist(err) {
				target = cand
				break
			}
		}
	}
	if err := os.Rename(w.path, target); err != nil {
		return fmt.Errorf("rotate %s: %w", w.path, err)
	}
	return w.open()
}

// RotatedName returns the name a rotated-out log file receives: the base
// path with a local timestamp suffix before the extension.
func RotatedName(path string, t time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_%s%s", base, t.Format("20060102_150405"), ext)
}

// Close releases the file handle. Safe to call more than once, including
// while an Append is in flight on another goroutine.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// ReadAll loads every well-formed frame from a log file in order. Malformed
// rows, including partial trailing writes left by a crash, are skipped
// silently.
func ReadAll(path string) ([]can.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var frames []can.Frame
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		frame, ok := parseRow(row)
		if !ok {
			continue
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func parseRow(row []string) (can.Frame, bool) {
	if len(row) != 4 || row[0] == header[0] {
		return can.Frame{}, false
	}
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return can.Frame{}, false
	}
	id, err := strconv.ParseUint(row[1], 16, 32)
	if err != nil || id > can.MaxExtID {
		return can.Frame{}, false
	}
	dlc, err := strconv.Atoi(row[2])
	if err != nil || dlc < 0 || dlc > 8 {
		return can.Frame{}, false
	}
	tokens := strings.Fields(row[3])
	if len(tokens) != dlc {
		return can.Frame{}, false
	}
	data := make([]byte, 0, dlc)
	for _, tok := range tokens {
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return can.Frame{}, false
		}
		data = append(data, byte(v))
	}
	return can.Frame{
		Timestamp: float64(ms) / 1000.0,
		ID:        uint32(id),
		Length:    uint8(dlc),
		Data:      data,
	}, true
}
