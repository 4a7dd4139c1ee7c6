package catalog

import (
	"fmt"
	"sort"

	"github.com/canlab/canrx/internal/can"
)

// messageNames maps identifiers with known roles to stable names.
// Everything else gets a generated MSG_xxx name.
var messageNames = map[uint32]string{
	0x5F1: "DOOR_UNLOCK_CMD",
	0x5FB: "DOOR_LOCK_CMD",
}

// Synthesize converts a batch of observed frames into a schema. Identifiers
// present in existing are skipped entirely, so running synthesis twice
// against a growing log never rewrites or duplicates a known message.
//
// An identifier whose traffic includes at least one OBD-II service 01
// response is treated as multiplexed: a Service signal, a PID multiplexor
// signal, and one value signal per distinct observed PID, sized and scaled
// from the static PID table (an unrecognized PID gets a raw 8-bit signal).
// All other identifiers get one raw 8-bit signal per byte offset.
func Synthesize(frames []can.Frame, existing map[uint32]bool) Schema {
	byID := make(map[uint32][]can.Frame)
	for _, f := range frames {
		if existing[f.ID] {
			continue
		}
		byID[f.ID] = append(byID[f.ID], f)
	}

	ids := make([]uint32, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	schema := make(Schema, 0, len(ids))
	for _, id := range ids {
		schema = append(schema, synthesizeMessage(id, byID[id]))
	}
	return schema
}

func synthesizeMessage(id uint32, frames []can.Frame) Message {
	// Take the longest observed length: adapters sometimes report a frame
	// short under bus noise.
	var dlc uint8
	for _, f := range frames {
		if f.Length > dlc {
			dlc = f.Length
		}
	}

	name, ok := messageNames[id]
	if !ok {
		name = fmt.Sprintf("MSG_%03X", id)
	}
	msg := Message{ID: id, Name: name, Length: dlc}

	pidSet := make(map[uint8]bool)
	for _, f := range frames {
		if can.IsOBDResponse(f.Data) {
			pidSet[f.Data[1]] = true
		}
	}

	if len(pidSet) == 0 {
		for i := 0; i < int(dlc); i++ {
			msg.Signals = append(msg.Signals, Signal{
				Name:     fmt.Sprintf("BYTE%d", i),
				StartBit: i * 8,
				Width:    8,
				Scale:    1,
			})
		}
		return msg
	}

	msg.Signals = append(msg.Signals,
		Signal{Name: "Service", StartBit: 0, Width: 8, Scale: 1},
		Signal{Name: "PID", StartBit: 8, Width: 8, Scale: 1, Multiplexor: true},
	)

	pids := make([]uint8, 0, len(pidSet))
	for pid := range pidSet {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	for _, pid := range pids {
		pid := pid
		sig := Signal{StartBit: 16, Width: 8, Scale: 1, MuxValue: &pid}
		if def, ok := can.PIDSignals[pid]; ok {
			sig.Name = def.Name
			sig.Width = def.Width
			sig.Scale = def.Scale
			sig.Offset = def.Offset
			sig.Unit = def.Unit
		} else {
			sig.Name = fmt.Sprintf("PID_%02X", pid)
		}
		msg.Signals = append(msg.Signals, sig)
	}
	return msg
}
