// Package stats maintains rolling per-identifier frame statistics for a
// capture or replay session.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// emaWeight is the smoothing weight applied to each new instantaneous
// frequency sample: ema = (1-emaWeight)*ema + emaWeight*sample. 0.2 tracks
// bursty identifiers quickly enough for live inspection while damping
// jitter.
const emaWeight = 0.2

// Entry is the accumulated state for one identifier.
type Entry struct {
	ID    uint32
	Count uint64
	Hz    float64
}

type idState struct {
	count   uint64
	lastTS  float64
	haveTS  bool
	hz      float64
	haveHz  bool
}

// Tracker accumulates counts and an exponential moving average of the
// arrival frequency per identifier. Safe for concurrent use; the capture
// loop updates it while the display reads it.
type Tracker struct {
	mu  sync.Mutex
	ids map[uint32]*idState
}

func NewTracker() *Tracker {
	return &Tracker{ids: make(map[uint32]*idState)}
}

// Update records one observation of id at timestamp ts (seconds). The count
// and last-seen timestamp always advance; the frequency estimate only moves
// when the delta since the previous observation is positive, so clock
// irregularities never produce an infinite or negative rate.
func (t *Tracker) Update(id uint32, ts float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.ids[id]
	if !ok {
		s = &idState{}
		t.ids[id] = s
	}
	s.count++
	if s.haveTS {
		if dt := ts - s.lastTS; dt > 0 {
			inst := 1.0 / dt
			if s.haveHz {
				s.hz = s.hz*(1-emaWeight) + inst*emaWeight
			} else {
				s.hz = inst
				s.haveHz = true
			}
		}
	}
	s.lastTS = ts
	s.haveTS = true
}

// Snapshot returns a copy of every entry, identifiers ascending.
func (t *Tracker) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.ids))
	for id, s := range t.ids {
		out = append(out, Entry{ID: id, Count: s.count, Hz: s.hz})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Format renders every identifier's count and frequency for display.
func (t *Tracker) Format() string {
	entries := t.Snapshot()
	if len(entries) == 0 {
		return "<no data>"
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("0x%X: %d frames, %.1f Hz", e.ID, e.Count, e.Hz))
	}
	return strings.Join(parts, " | ")
}
