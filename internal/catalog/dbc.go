package catalog

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
)

var (
	boRE = regexp.MustCompile(`^BO_\s+(\d+)\s+(\w+)\s*:\s*(\d+)\s`)
	sgRE = regexp.MustCompile(`^\s*SG_\s+(\w+)\s*(M|m(\d+))?\s*:\s*(\d+)\|(\d+)@1\+\s*\(([^,]+),([^)]+)\)\s*\[[^\]]*\]\s*"([^"]*)"`)
)

const dbcPreamble = "VERSION \"generated by canrx\"\n\nNS_ :\n\nBS_:\n\nBU_: Vector__XXX\n\n"

// ExistingIDs scans a DBC file for the identifiers it already defines.
// A missing file yields an empty set.
func ExistingIDs(path string) (map[uint32]bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[uint32]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open dbc %s: %w", path, err)
	}
	defer f.Close()

	ids := make(map[uint32]bool)
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		if m := boRE.FindStringSubmatch(scan.Text()); m != nil {
			id, err := strconv.ParseUint(m[1], 10, 32)
			if err == nil {
				ids[uint32(id)] = true
			}
		}
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("scan dbc %s: %w", path, err)
	}
	return ids, nil
}

// WriteDBC appends the schema's messages to path, creating the file with a
// preamble when it does not exist yet. Messages whose identifier is already
// defined in the file are skipped.
func WriteDBC(path string, schema Schema) error {
	existing, err := ExistingIDs(path)
	if err != nil {
		return err
	}
	fresh := len(existing) == 0
	if _, statErr := os.Stat(path); statErr == nil {
		fresh = false
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dbc %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if fresh {
		w.WriteString(dbcPreamble)
	} else {
		w.WriteString("\n")
	}

	for _, msg := range schema {
		if existing[msg.ID] {
			continue
		}
		fmt.Fprintf(w, "BO_ %d %s: %d Vector__XXX\n", msg.ID, msg.Name, msg.Length)
		for _, sig := range msg.Signals {
			w.WriteString(formatSignal(sig))
		}
		w.WriteString("\n")
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write dbc %s: %w", path, err)
	}
	return nil
}

func formatSignal(sig Signal) string {
	mux := ""
	switch {
	case sig.Multiplexor:
		mux = " M"
	case sig.MuxValue != nil:
		mux = fmt.Sprintf(" m%d", *sig.MuxValue)
	}
	maxRaw := float64(uint64(1)<<sig.Width - 1)
	return fmt.Sprintf(" SG_ %s%s : %d|%d@1+ (%g,%g) [%g|%g] \"%s\" Vector__XXX\n",
		sig.Name, mux, sig.StartBit, sig.Width, sig.Scale, sig.Offset,
		sig.Offset, maxRaw*sig.Scale+sig.Offset, sig.Unit)
}

// ReadDBC loads a schema from a DBC file previously written by WriteDBC.
// Only the emitted subset of the grammar is recognized; unknown lines are
// ignored so hand-edited files still load.
func ReadDBC(path string) (Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dbc %s: %w", path, err)
	}
	defer f.Close()

	var schema Schema
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := scan.Text()
		if m := boRE.FindStringSubmatch(line); m != nil {
			id, err1 := strconv.ParseUint(m[1], 10, 32)
			dlc, err2 := strconv.Atoi(m[3])
			if err1 != nil || err2 != nil || dlc > 8 {
				continue
			}
			schema = append(schema, Message{ID: uint32(id), Name: m[2], Length: uint8(dlc)})
			continue
		}
		if len(schema) == 0 {
			continue
		}
		if m := sgRE.FindStringSubmatch(line); m != nil {
			sig, ok := parseSignal(m)
			if !ok {
				continue
			}
			last := &schema[len(schema)-1]
			last.Signals = append(last.Signals, sig)
		}
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("scan dbc %s: %w", path, err)
	}
	return schema, nil
}

func parseSignal(m []string) (Signal, bool) {
	start, err1 := strconv.Atoi(m[4])
	width, err2 := strconv.Atoi(m[5])
	scale, err3 := strconv.ParseFloat(m[6], 64)
	offset, err4 := strconv.ParseFloat(m[7], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return Signal{}, false
	}
	sig := Signal{
		Name:     m[1],
		StartBit: start,
		Width:    width,
		Scale:    scale,
		Offset:   offset,
		Unit:     m[8],
	}
	switch {
	case m[2] == "M":
		sig.Multiplexor = true
	case m[2] != "":
		v, err := strconv.ParseUint(m[3], 10, 8)
		if err != nil {
			return Signal{}, false
		}
		mv := uint8(v)
		sig.MuxValue = &mv
	}
	return sig, true
}
