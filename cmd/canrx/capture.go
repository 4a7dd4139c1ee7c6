package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/canlab/canrx/internal/can"
	"github.com/canlab/canrx/internal/capture"
	"github.com/canlab/canrx/internal/catalog"
	"github.com/canlab/canrx/internal/config"
	"github.com/canlab/canrx/internal/serialport"
	"github.com/canlab/canrx/internal/sessiondb"
)

// parseIDList parses comma-separated hex identifiers ("631,7E8").
func parseIDList(s string) ([]uint32, error) {
	var ids []uint32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "0x"))
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("bad identifier %q: %w", part, err)
		}
		ids = append(ids, uint32(v))
	}
	return ids, nil
}

func openMux(profile config.Profile, port string, mock string) (serialport.Muxer, error) {
	if mock != "" {
		data, err := os.ReadFile(mock)
		if err != nil {
			return nil, fmt.Errorf("read fixtures: %w", err)
		}
		return serialport.NewMockLineMux(data, 200*time.Millisecond), nil
	}
	if port == "" {
		return serialport.NewDisabledMux(), nil
	}
	return serialport.NewRealLineMux(port, profile.Serial)
}

// monitorAdapter runs the mux read loop and surfaces port failures in the
// log; cancellation is the normal exit and stays quiet.
func monitorAdapter(ctx context.Context, mux serialport.Muxer) {
	if err := mux.Monitor(ctx); err != nil && err != context.Canceled {
		log.Printf("monitor adapter: %v", err)
	}
}

func runCapture(profile config.Profile, args []string) error {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	port := fs.String("port", profile.Port, "Serial adapter device")
	out := fs.String("out", profile.OutputCSV, "CSV log path (empty disables logging)")
	dbcPath := fs.String("dbc", profile.DBCPath, "DBC file for display annotation")
	filterList := fs.String("filter", "", "Comma-separated hex identifiers to accept")
	sessionsPath := fs.String("sessions", profile.SessionDB, "Session database path (empty disables)")
	mock := fs.String("mock", "", "Replay a fixtures file instead of opening a port")
	fs.Parse(args)

	filters, err := parseIDList(*filterList)
	if err != nil {
		return err
	}

	mux, err := openMux(profile, *port, *mock)
	if err != nil {
		return fmt.Errorf("open adapter: %w", err)
	}
	defer mux.Close()

	var annotate func(can.Frame) string
	if *dbcPath != "" {
		schema, err := catalog.ReadDBC(*dbcPath)
		if err != nil {
			// Annotation is best-effort; capture proceeds without it.
			log.Printf("load dbc %s: %v", *dbcPath, err)
		} else {
			annotate = func(f can.Frame) string { return catalog.Decode(schema, f) }
		}
	}

	cfg := capture.Config{
		Port:     *port,
		LogPath:  *out,
		Filters:  filters,
		Annotate: annotate,
	}
	if *sessionsPath != "" {
		db, err := sessiondb.Open(*sessionsPath)
		if err != nil {
			return fmt.Errorf("open session db: %w", err)
		}
		defer db.Close()
		cfg.Sessions = db
	}

	ctrl, err := capture.New(cfg)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitorAdapter(ctx, mux)
	}()

	id, lines := mux.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer mux.Unsubscribe(id)
		if err := ctrl.Run(ctx, lines); err != nil && err != context.Canceled {
			log.Printf("capture: %v", err)
		}
		cancel()
	}()

	// Display goroutine: the controller never prints, it emits events.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range ctrl.Events() {
			fmt.Println(ev.Text)
		}
	}()

	fmt.Printf("session %s | [p]ause [r]esume [f <ids>] [c]apture toggle [i]nfo [q]uit\n", ctrl.ID())
	commandLoop(ctx, ctrl, cancel)

	ctrl.Stop()
	cancel()
	wg.Wait()
	fmt.Printf("\n%s\n", ctrl.StatsText())
	return nil
}

// commandLoop reads interactive commands from stdin until quit or
// cancellation. It only mutates controller flags; frame processing happens
// elsewhere.
func commandLoop(ctx context.Context, ctrl *capture.Controller, cancel context.CancelFunc) {
	inputs := make(chan string)
	go func() {
		defer close(inputs)
		scan := bufio.NewScanner(os.Stdin)
		for scan.Scan() {
			select {
			case inputs <- strings.TrimSpace(scan.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case input, ok := <-inputs:
			if !ok {
				return
			}
			cmd, rest, _ := strings.Cut(strings.ToLower(input), " ")
			switch cmd {
			case "p":
				ctrl.Pause()
				fmt.Println("STATUS: PAUSED")
			case "r":
				ctrl.Resume()
				fmt.Println("STATUS: RUNNING")
			case "f":
				ids, err := parseIDList(rest)
				if err != nil {
					fmt.Printf("bad filter: %v\n", err)
					continue
				}
				ctrl.SetFilters(ids)
				if len(ids) == 0 {
					fmt.Println("filters cleared")
				} else {
					fmt.Printf("filtering %d identifiers\n", len(ids))
				}
			case "c":
				if ctrl.ToggleLogging() {
					fmt.Println("logging ON")
				} else {
					fmt.Println("logging OFF")
				}
			case "i":
				fmt.Println(ctrl.StatsText())
			case "q":
				return
			}
		}
	}
}
