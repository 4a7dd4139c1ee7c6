// Package replay re-emits a recorded frame sequence to a sink, preserving
// the original inter-frame timing scaled by a rate factor.
package replay

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/canlab/canrx/internal/can"
	"github.com/canlab/canrx/internal/stats"
)

// MinRate is the floor applied to the rate factor. It guards against a
// zero or negative rate turning delays unbounded.
const MinRate = 0.0001

// ErrNoFrames is returned when the record holds nothing to play.
var ErrNoFrames = errors.New("replay: no frames in record")

// Sink accepts frames for transmission. serialport.Muxer satisfies it.
type Sink interface {
	SendFrame(can.Frame) error
}

// Event is one emitted frame, rendered for display.
type Event struct {
	Frame can.Frame
	Text  string
}

// Engine plays a recorded sequence. An Engine is single-use: construct,
// optionally toggle while playing, then Play runs to completion or
// cancellation.
type Engine struct {
	mu      sync.Mutex
	running bool
	resume  chan struct{}

	tracker *stats.Tracker
	events  chan Event
}

func NewEngine() *Engine {
	return &Engine{
		running: true,
		resume:  make(chan struct{}),
		tracker: stats.NewTracker(),
		events:  make(chan Event, 64),
	}
}

// Events returns the display event stream. It closes when Play returns.
func (e *Engine) Events() <-chan Event { return e.events }

// StatsText renders per-identifier replay statistics.
func (e *Engine) StatsText() string { return e.tracker.Format() }

// ToggleRunning flips the stop gate and reports whether playback is now
// running. While stopped, playback holds position; the frame in progress
// is neither skipped nor dropped.
func (e *Engine) ToggleRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = !e.running
	if e.running {
		close(e.resume)
		e.resume = make(chan struct{})
	}
	return e.running
}

// Play emits frames to the sink in timestamp order. The first frame goes
// out immediately; each subsequent frame waits (ts[i]-ts[i-1])/rate. With
// loop set, reaching the end restarts from the first frame with a fresh
// timing baseline. Sink failures are logged and do not abort playback.
func (e *Engine) Play(ctx context.Context, frames []can.Frame, sink Sink, rate float64, loop bool) error {
	defer close(e.events)

	if len(frames) == 0 {
		return ErrNoFrames
	}
	if rate < MinRate {
		rate = MinRate
	}

	for {
		if err := e.playOnce(ctx, frames, sink, rate); err != nil {
			return err
		}
		if !loop {
			return nil
		}
	}
}

func (e *Engine) playOnce(ctx context.Context, frames []can.Frame, sink Sink, rate float64) error {
	var lastTS float64
	haveLast := false

	for _, frame := range frames {
		if err := e.gate(ctx); err != nil {
			return err
		}
		if haveLast {
			delay := time.Duration((frame.Timestamp - lastTS) / rate * float64(time.Second))
			if delay > 0 {
				if err := e.wait(ctx, delay); err != nil {
					return err
				}
			}
		}
		lastTS = frame.Timestamp
		haveLast = true

		if err := sink.SendFrame(frame); err != nil {
			log.Printf("replay: send 0x%X: %v", frame.ID, err)
		}

		now := float64(time.Now().UnixNano()) / 1e9
		e.tracker.Update(frame.ID, now)
		emitted := frame
		emitted.Timestamp = now
		select {
		case e.events <- Event{Frame: emitted, Text: can.FormatFrame(emitted, "")}:
		default:
		}
	}
	return nil
}

// gate blocks while the stop toggle is engaged.
func (e *Engine) gate(ctx context.Context) error {
	for {
		e.mu.Lock()
		running := e.running
		resume := e.resume
		e.mu.Unlock()
		if running {
			return nil
		}
		select {
		case <-resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
