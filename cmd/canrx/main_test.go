package main

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canlab/canrx/internal/config"
	"github.com/canlab/canrx/internal/serialport"
)

func TestParseIDList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    []uint32
		wantErr bool
	}{
		{name: "plain hex", in: "631,7E8", want: []uint32{0x631, 0x7E8}},
		{name: "0x prefixes and spaces", in: " 0x631 , 0x7e8 ", want: []uint32{0x631, 0x7E8}},
		{name: "single id", in: "5F1", want: []uint32{0x5F1}},
		{name: "empty string", in: "", want: nil},
		{name: "trailing comma", in: "631,", want: []uint32{0x631}},
		{name: "not hex", in: "631,zebra", wantErr: true},
		{name: "too wide", in: "1FFFFFFFF", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIDList(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenMuxDisabledWithoutPort(t *testing.T) {
	t.Parallel()

	mux, err := openMux(config.Default(), "", "")
	require.NoError(t, err)
	defer mux.Close()
	assert.IsType(t, &serialport.DisabledMux{}, mux)
}

func TestOpenMuxMockFixture(t *testing.T) {
	t.Parallel()

	fixture := filepath.Join(t.TempDir(), "fixture.txt")
	require.NoError(t, os.WriteFile(fixture,
		[]byte("ID: 0x631, Data: 1 AA\n"), 0o644))

	mux, err := openMux(config.Default(), "/dev/ttyUSB0", fixture)
	require.NoError(t, err)
	defer mux.Close()

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	select {
	case line := <-ch:
		assert.Equal(t, "ID: 0x631, Data: 1 AA", line)
	case <-time.After(2 * time.Second):
		t.Fatal("mock mux produced no line")
	}
}

func TestOpenMuxMissingFixture(t *testing.T) {
	t.Parallel()

	_, err := openMux(config.Default(), "", filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

func TestAwaitResponse(t *testing.T) {
	t.Parallel()

	lines := make(chan string, 4)
	lines <- "adapter noise"
	lines <- "ID: 0x7E8, Data: 4 41 0D 3C 00" // wrong PID
	lines <- "ID: 0x7E8, Data: 4 41 0C 1A F8"

	got := awaitResponse(context.Background(), lines, 0x0C, time.Second)
	assert.Equal(t, "EngineRPM: 1726 rpm", got)
}

func TestAwaitResponseTimeout(t *testing.T) {
	t.Parallel()

	lines := make(chan string)
	got := awaitResponse(context.Background(), lines, 0x0C, 20*time.Millisecond)
	assert.Equal(t, "", got)
}

func TestAwaitResponseClosedSource(t *testing.T) {
	t.Parallel()

	lines := make(chan string)
	close(lines)
	got := awaitResponse(context.Background(), lines, 0x0C, time.Second)
	assert.Equal(t, "", got)
}

// failingMux is a Muxer whose read loop dies immediately.
type failingMux struct {
	serialport.DisabledMux
	err error
}

func (m *failingMux) Monitor(context.Context) error { return m.err }

func TestMonitorAdapterLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	mux := &failingMux{err: errors.New("device unplugged")}
	monitorAdapter(context.Background(), mux)
	assert.Contains(t, buf.String(), "monitor adapter: device unplugged")

	// Cancellation is the normal exit and must stay quiet.
	buf.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	monitorAdapter(ctx, serialport.NewDisabledMux())
	assert.Empty(t, buf.String())
}
