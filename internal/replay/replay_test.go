package replay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/canlab/canrx/internal/can"
)

// recordingSink captures sent frames with receive timestamps.
type recordingSink struct {
	mu     sync.Mutex
	frames []can.Frame
	times  []time.Time
	fail   map[uint32]bool
}

func (s *recordingSink) SendFrame(f can.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[f.ID] {
		return errors.New("adapter gone")
	}
	s.frames = append(s.frames, f)
	s.times = append(s.times, time.Now())
	return nil
}

func (s *recordingSink) sent() []can.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]can.Frame(nil), s.frames...)
}

func testFrames() []can.Frame {
	return []can.Frame{
		{Timestamp: 10.0, ID: 0x100, Length: 1, Data: []byte{0x01}},
		{Timestamp: 10.1, ID: 0x200, Length: 1, Data: []byte{0x02}},
		{Timestamp: 10.3, ID: 0x100, Length: 1, Data: []byte{0x03}},
	}
}

func TestPlayEmitsAllFramesInOrder(t *testing.T) {
	sink := &recordingSink{}
	eng := NewEngine()

	if err := eng.Play(context.Background(), testFrames(), sink, 100, false); err != nil {
		t.Fatalf("Play: %v", err)
	}

	got := sink.sent()
	if len(got) != 3 {
		t.Fatalf("sent %d frames, want 3", len(got))
	}
	for i, want := range []uint32{0x100, 0x200, 0x100} {
		if got[i].ID != want {
			t.Errorf("frame %d has ID 0x%X, want 0x%X", i, got[i].ID, want)
		}
	}

	// The event stream closed with Play and carried one event per frame.
	var events []Event
	for ev := range eng.Events() {
		events = append(events, ev)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want 3", len(events))
	}
	for _, ev := range events {
		if !strings.Contains(ev.Text, "ID: 0x") {
			t.Errorf("event text %q not rendered", ev.Text)
		}
	}
}

func TestPlayScalesDelaysByRate(t *testing.T) {
	// Offsets 0, 100ms, 300ms at rate 2.0 give waits of ~50ms then ~100ms.
	sink := &recordingSink{}
	eng := NewEngine()

	start := time.Now()
	if err := eng.Play(context.Background(), testFrames(), sink, 2.0, false); err != nil {
		t.Fatalf("Play: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 130*time.Millisecond {
		t.Errorf("playback took %v, want at least ~150ms of scaled delay", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("playback took %v, rate scaling not applied", elapsed)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if gap := sink.times[1].Sub(sink.times[0]); gap < 30*time.Millisecond {
		t.Errorf("first inter-frame gap %v, want ~50ms", gap)
	}
	if gap := sink.times[2].Sub(sink.times[1]); gap < 60*time.Millisecond {
		t.Errorf("second inter-frame gap %v, want ~100ms", gap)
	}
}

func TestPlayClampsRate(t *testing.T) {
	// A non-positive rate is clamped instead of producing negative delays.
	sink := &recordingSink{}
	eng := NewEngine()

	frames := []can.Frame{
		{Timestamp: 10.0, ID: 0x100, Length: 1, Data: []byte{0x01}},
		{Timestamp: 10.000001, ID: 0x100, Length: 1, Data: []byte{0x02}},
	}
	done := make(chan error, 1)
	go func() { done <- eng.Play(context.Background(), frames, sink, 0, false) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Play: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("clamped-rate playback did not finish")
	}
	if len(sink.sent()) != 2 {
		t.Errorf("sent %d frames, want 2", len(sink.sent()))
	}
}

func TestPlayEmptyRecord(t *testing.T) {
	eng := NewEngine()
	err := eng.Play(context.Background(), nil, &recordingSink{}, 1.0, false)
	if !errors.Is(err, ErrNoFrames) {
		t.Errorf("got %v, want ErrNoFrames", err)
	}
	if _, ok := <-eng.Events(); ok {
		t.Error("event channel should close even on an empty record")
	}
}

func TestToggleRunningGatesPlayback(t *testing.T) {
	sink := &recordingSink{}
	eng := NewEngine()

	// Stop before starting: Play must hold at the first frame.
	if running := eng.ToggleRunning(); running {
		t.Fatal("ToggleRunning should report stopped")
	}

	done := make(chan error, 1)
	go func() { done <- eng.Play(context.Background(), testFrames(), sink, 100, false) }()

	time.Sleep(50 * time.Millisecond)
	if n := len(sink.sent()); n != 0 {
		t.Fatalf("sent %d frames while stopped, want 0", n)
	}

	if running := eng.ToggleRunning(); !running {
		t.Fatal("ToggleRunning should report running")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Play: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not resume after toggle")
	}
	if n := len(sink.sent()); n != 3 {
		t.Errorf("sent %d frames after resume, want 3", n)
	}
}

func TestCancelWhileStopped(t *testing.T) {
	eng := NewEngine()
	eng.ToggleRunning() // stopped

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Play(ctx, testFrames(), &recordingSink{}, 1.0, false) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Play returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not return after context cancel")
	}
}

func TestLoopRestartsSequence(t *testing.T) {
	sink := &recordingSink{}
	eng := NewEngine()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Play(ctx, testFrames(), sink, 1000, true) }()

	deadline := time.After(5 * time.Second)
	for len(sink.sent()) < 7 {
		select {
		case <-deadline:
			t.Fatalf("only %d frames sent, loop did not restart", len(sink.sent()))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Play returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not return after cancel")
	}

	got := sink.sent()
	if got[3].ID != 0x100 || got[3].Data[0] != 0x01 {
		t.Errorf("second pass starts with %+v, want the first frame again", got[3])
	}
}

func TestSinkFailureContinuesPlayback(t *testing.T) {
	sink := &recordingSink{fail: map[uint32]bool{0x200: true}}
	eng := NewEngine()

	if err := eng.Play(context.Background(), testFrames(), sink, 100, false); err != nil {
		t.Fatalf("Play: %v", err)
	}

	got := sink.sent()
	if len(got) != 2 {
		t.Fatalf("sent %d frames, want 2 (failing frame skipped, playback continues)", len(got))
	}
	if got[0].ID != 0x100 || got[1].ID != 0x100 {
		t.Errorf("surviving frames %+v", got)
	}

	// Statistics still count the attempted frame.
	text := eng.StatsText()
	if !strings.Contains(text, "0x200") {
		t.Errorf("stats %q missing attempted identifier", text)
	}
}
