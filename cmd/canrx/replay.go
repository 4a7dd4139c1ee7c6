package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/canlab/canrx/internal/canlog"
	"github.com/canlab/canrx/internal/config"
	"github.com/canlab/canrx/internal/replay"
)

func runReplay(profile config.Profile, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	in := fs.String("in", profile.InputCSV, "CSV log to replay")
	port := fs.String("port", "", "Serial adapter to transmit on (empty: display only)")
	rate := fs.Float64("rate", profile.Rate, "Playback rate factor")
	loop := fs.Bool("loop", profile.Loop, "Restart from the beginning at end of record")
	fs.Parse(args)

	frames, err := canlog.ReadAll(*in)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return replay.ErrNoFrames
	}

	sink, err := openMux(profile, *port, "")
	if err != nil {
		return fmt.Errorf("open adapter: %w", err)
	}
	defer sink.Close()

	engine := replay.NewEngine()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Play(ctx, frames, sink, *rate, *loop); err != nil && err != context.Canceled {
			log.Printf("replay: %v", err)
		}
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range engine.Events() {
			fmt.Println(ev.Text)
		}
	}()

	fmt.Printf("replaying %d frames at %gx | [s]top/start [i]nfo [q]uit\n", len(frames), *rate)
	replayCommandLoop(ctx, engine)

	cancel()
	wg.Wait()
	fmt.Printf("\n%s\n", engine.StatsText())
	return nil
}

func replayCommandLoop(ctx context.Context, engine *replay.Engine) {
	inputs := make(chan string)
	go func() {
		defer close(inputs)
		scan := bufio.NewScanner(os.Stdin)
		for scan.Scan() {
			select {
			case inputs <- strings.TrimSpace(strings.ToLower(scan.Text())):
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
			switch input {
			case "s":
				if engine.ToggleRunning() {
					fmt.Println("STATUS: REPLAYING")
				} else {
					fmt.Println("STATUS: STOPPED")
				}
			case "i":
				fmt.Println(engine.StatsText())
			case "q":
				return
			}
		}
	}
}
