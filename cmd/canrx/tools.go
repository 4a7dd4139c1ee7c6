package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/canlab/canrx/internal/can"
	"github.com/canlab/canrx/internal/canlog"
	"github.com/canlab/canrx/internal/catalog"
	"github.com/canlab/canrx/internal/config"
	"github.com/canlab/canrx/internal/sessiondb"
)

func runBuildDBC(profile config.Profile, args []string) error {
	fs := flag.NewFlagSet("builddbc", flag.ExitOnError)
	in := fs.String("in", profile.InputCSV, "CSV log to read")
	out := fs.String("out", "output.dbc", "DBC file to create or merge into")
	fs.Parse(args)

	frames, err := canlog.ReadAll(*in)
	if err != nil {
		return err
	}
	existing, err := catalog.ExistingIDs(*out)
	if err != nil {
		return err
	}
	schema := catalog.Synthesize(frames, existing)
	if len(schema) == 0 {
		fmt.Println("no new identifiers")
		return nil
	}
	if err := catalog.WriteDBC(*out, schema); err != nil {
		return err
	}
	fmt.Printf("wrote %d messages to %s\n", len(schema), *out)
	return nil
}

func runSummary(profile config.Profile, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	in := fs.String("in", profile.InputCSV, "CSV log to read")
	top := fs.Int("top", 10, "How many identifiers to list")
	fs.Parse(args)

	frames, err := canlog.ReadAll(*in)
	if err != nil {
		return err
	}
	fmt.Printf("Total frames: %d\n", len(frames))

	counts := make(map[uint32]int)
	for _, f := range frames {
		counts[f.ID]++
	}
	ids := make([]uint32, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})

	fmt.Println("Top identifiers:")
	for i, id := range ids {
		if i >= *top {
			break
		}
		fmt.Printf("  0x%03X: %d\n", id, counts[id])
	}

	fmt.Println("OBD-II decodes:")
	for _, f := range frames {
		if decoded := can.DecodeOBD(f); decoded != "" {
			fmt.Printf("  ts %d id 0x%03X: %s\n", int64(f.Timestamp*1000), f.ID, decoded)
		}
	}
	return nil
}

func runPID(profile config.Profile, args []string) error {
	fs := flag.NewFlagSet("pid", flag.ExitOnError)
	port := fs.String("port", profile.Port, "Serial adapter device")
	wait := fs.Duration("wait", time.Second, "How long to listen for responses per poll")
	fs.Parse(args)

	mux, err := openMux(profile, *port, "")
	if err != nil {
		return fmt.Errorf("open adapter: %w", err)
	}
	defer mux.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go monitorAdapter(ctx, mux)

	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	pids := make([]uint8, 0, len(can.PIDSignals))
	for pid := range can.PIDSignals {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	for _, pid := range pids {
		name := can.PIDSignals[pid].Name
		if err := mux.SendRequest(pid); err != nil {
			fmt.Printf("%s: request failed: %v\n", name, err)
			continue
		}
		if decoded := awaitResponse(ctx, lines, pid, *wait); decoded != "" {
			fmt.Println(decoded)
		} else {
			fmt.Printf("%s: no response\n", name)
		}
	}
	return nil
}

// awaitResponse reads adapter lines until a service 01 response for pid
// arrives or the deadline passes.
func awaitResponse(ctx context.Context, lines <-chan string, pid uint8, wait time.Duration) string {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return ""
		case <-deadline.C:
			return ""
		case line, ok := <-lines:
			if !ok {
				return ""
			}
			frame, err := can.ParseLine(line)
			if err != nil {
				continue
			}
			if can.IsOBDResponse(frame.Data) && frame.Data[1] == pid {
				return can.DecodeOBD(frame)
			}
		}
	}
}

func runSessions(profile config.Profile, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	path := fs.String("db", profile.SessionDB, "Session database path")
	showStats := fs.Bool("stats", false, "Also print per-identifier statistics")
	fs.Parse(args)

	db, err := sessiondb.Open(*path)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := db.Sessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s  %s  %d frames  %s\n",
			s.ID, s.Port, s.StartedAt.Local().Format(time.DateTime), s.FrameCount, s.LogPath)
		if *showStats {
			entries, err := db.SessionStats(s.ID)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("  0x%X: %d frames, %.1f Hz\n", e.ID, e.Count, e.Hz)
			}
		}
	}
	return nil
}
