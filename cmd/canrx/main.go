// Command canrx captures, records, analyzes and replays automotive CAN
// traffic through a serial adapter, and derives a minimal DBC catalog from
// observed frames.
//
// Subcommands:
//
//	capture   read frames from the adapter, filter, log to CSV
//	replay    re-emit a recorded CSV log with original timing
//	builddbc  synthesize a DBC catalog from a CSV log
//	summary   summarize a CSV log (top identifiers, OBD-II decodes)
//	pid       send OBD-II polls and print responses
//	sessions  list recorded capture sessions
//	profile   write the active profile to disk
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/canlab/canrx/internal/config"
)

var (
	profilePath = flag.String("profile", config.DefaultPath, "Profile file path")
	debugLog    = flag.String("debuglog", "", "Also write log output to this rotating file")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: canrx [flags] <capture|replay|builddbc|summary|pid|sessions|profile> [args]\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func setupDebugLog(path string) {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 3,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *debugLog != "" {
		setupDebugLog(*debugLog)
	}

	profile, err := config.Load(*profilePath)
	if err != nil {
		log.Fatalf("load profile: %v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	switch args[0] {
	case "capture":
		err = runCapture(profile, args[1:])
	case "replay":
		err = runReplay(profile, args[1:])
	case "builddbc":
		err = runBuildDBC(profile, args[1:])
	case "summary":
		err = runSummary(profile, args[1:])
	case "pid":
		err = runPID(profile, args[1:])
	case "sessions":
		err = runSessions(profile, args[1:])
	case "profile":
		err = profile.Save(*profilePath)
		if err == nil {
			fmt.Printf("profile written to %s\n", *profilePath)
		}
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}
