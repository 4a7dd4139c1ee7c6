// Package capture owns a live logging session: it reads adapter lines from
// a subscribed channel, parses and filters them, maintains rolling
// statistics, and appends passing frames to the CSV log. Commands arriving
// from a second goroutine mutate session flags; each flag is read exactly
// once per frame iteration under the session mutex, so a command never
// races a frame being processed.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canlab/canrx/internal/can"
	"github.com/canlab/canrx/internal/canlog"
	"github.com/canlab/canrx/internal/stats"
)

// State is the controller lifecycle state. Stopped is terminal.
type State int

const (
	Running State = iota
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Paused:
		return "PAUSED"
	default:
		return "STOPPED"
	}
}

// Event is one processed frame, rendered for display. The core never
// prints; the caller consumes events and owns presentation.
type Event struct {
	Frame can.Frame
	Text  string
}

// Session describes a completed capture for the session store.
type Session struct {
	ID         string
	Port       string
	StartedAt  time.Time
	EndedAt    time.Time
	FrameCount uint64
	LogPath    string
}

// Recorder persists session summaries. Optional; a nil Recorder disables
// session bookkeeping.
type Recorder interface {
	RecordSession(Session) error
	RecordStats(sessionID string, entries []stats.Entry) error
}

// Config wires a Controller.
type Config struct {
	// Port names the adapter for session bookkeeping only.
	Port string
	// LogPath is the CSV log target. Empty disables logging entirely.
	LogPath string
	// Filters seeds the identifier filter set. Empty accepts all.
	Filters []uint32
	// Annotate, if set, produces a best-effort display annotation for a
	// frame (typically from a loaded schema). Failures return "".
	Annotate func(can.Frame) string
	// Sessions, if set, receives the session summary on stop.
	Sessions Recorder
	// Now returns the current time in seconds. Defaults to wall clock;
	// injectable for tests.
	Now func() float64
}

// Controller runs one capture session.
type Controller struct {
	mu      sync.Mutex
	state   State
	filters map[uint32]bool
	writer  *canlog.Writer
	quit    chan struct{}

	cfg     Config
	id      string
	started time.Time
	frames  uint64
	tracker *stats.Tracker
	events  chan Event
}

// New builds a Controller in the Running state. When cfg.LogPath is set the
// log is opened immediately so a bad path fails the session up front.
func New(cfg Config) (*Controller, error) {
	if cfg.Now == nil {
		cfg.Now = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }
	}
	c := &Controller{
		state:   Running,
		filters: make(map[uint32]bool),
		quit:    make(chan struct{}),
		cfg:     cfg,
		id:      uuid.NewString(),
		started: time.Now(),
		tracker: stats.NewTracker(),
		events:  make(chan Event, 64),
	}
	for _, id := range cfg.Filters {
		c.filters[id] = true
	}
	if cfg.LogPath != "" {
		w, err := canlog.NewWriter(cfg.LogPath)
		if err != nil {
			return nil, fmt.Errorf("capture: %w", err)
		}
		c.writer = w
	}
	return c, nil
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Events returns the display event stream. It closes when the session
// stops. A slow consumer misses events rather than stalling capture.
func (c *Controller) Events() <-chan Event { return c.events }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StatsText renders the per-identifier statistics for display.
func (c *Controller) StatsText() string { return c.tracker.Format() }

// Pause suspends processing. Incoming lines are drained, not buffered.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Running {
		c.state = Paused
	}
}

// Resume continues a paused session.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Paused {
		c.state = Running
	}
}

// SetFilters replaces the identifier filter set. An empty set accepts all
// identifiers. Takes effect on the next frame.
func (c *Controller) SetFilters(ids []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = make(map[uint32]bool, len(ids))
	for _, id := range ids {
		c.filters[id] = true
	}
}

// ToggleLogging flips log capture and reports the new setting. Toggling on
// reopens the configured path; a failed reopen leaves logging off.
func (c *Controller) ToggleLogging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			log.Printf("close log: %v", err)
		}
		c.writer = nil
		return false
	}
	if c.cfg.LogPath == "" {
		return false
	}
	w, err := canlog.NewWriter(c.cfg.LogPath)
	if err != nil {
		log.Printf("reopen log %s: %v", c.cfg.LogPath, err)
		return false
	}
	c.writer = w
	return true
}

// Stop ends the session. Idempotent; the processing loop observes it at
// the top of its next iteration.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.state == Stopped {
		return
	}
	c.state = Stopped
	close(c.quit)
}

// Run processes lines until the context ends, the source closes, or Stop
// is called. It owns the session teardown: the log is closed, the session
// summary is recorded, and the event channel is closed before returning.
func (c *Controller) Run(ctx context.Context, lines <-chan string) error {
	defer c.teardown()

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return ctx.Err()
		case <-c.quit:
			return nil
		case line, ok := <-lines:
			if !ok {
				c.Stop()
				return nil
			}
			c.process(line)
		}
	}
}

// process handles one adapter line. Flags are read once, under the mutex,
// before any work on the line.
func (c *Controller) process(line string) {
	c.mu.Lock()
	state := c.state
	writer := c.writer
	filters := c.filters // SetFilters swaps the map, never mutates it
	c.mu.Unlock()

	if state != Running {
		// Paused (or stopping): drain the line so the source never backs up.
		return
	}

	frame, err := can.ParseLine(line)
	if err != nil {
		return // adapter noise, expected steady-state
	}
	if len(filters) > 0 && !filters[frame.ID] {
		return
	}
	frame.Timestamp = c.cfg.Now()

	c.frames++
	c.tracker.Update(frame.ID, frame.Timestamp)

	annotation := ""
	if c.cfg.Annotate != nil {
		annotation = c.cfg.Annotate(frame)
	}

	if writer != nil {
		// A toggle can close this writer between the snapshot above and
		// the append; the writer's own lock makes that safe, and ErrClosed
		// just means the toggle won.
		if err := writer.Append(frame); err != nil && !errors.Is(err, canlog.ErrClosed) {
			log.Printf("log frame: %v", err)
		}
	}

	select {
	case c.events <- Event{Frame: frame, Text: can.FormatFrame(frame, annotation)}:
	default:
	}
}

func (c *Controller) teardown() {
	c.mu.Lock()
	writer := c.writer
	c.writer = nil
	c.mu.Unlock()

	logPath := ""
	if writer != nil {
		logPath = writer.Path()
		if err := writer.Close(); err != nil {
			log.Printf("close log: %v", err)
		}
	}

	if c.cfg.Sessions != nil {
		s := Session{
			ID:         c.id,
			Port:       c.cfg.Port,
			StartedAt:  c.started,
			EndedAt:    time.Now(),
			FrameCount: c.frames,
			LogPath:    logPath,
		}
		if err := c.cfg.Sessions.RecordSession(s); err != nil {
			log.Printf("record session: %v", err)
		} else if err := c.cfg.Sessions.RecordStats(c.id, c.tracker.Snapshot()); err != nil {
			log.Printf("record session stats: %v", err)
		}
	}

	close(c.events)
}
