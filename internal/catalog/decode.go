package catalog

import (
	"fmt"
	"strings"

	"github.com/canlab/canrx/internal/can"
)

// Decode renders a frame's signal values against the schema for display
// annotation. It returns "" when the schema has no message for the
// identifier or no signal can be evaluated; annotation is best-effort and
// never an error.
//
// Signals are byte-aligned in synthesized schemas; multi-byte values are
// taken most significant byte first, matching how the adapters report
// OBD-II data.
func Decode(schema Schema, f can.Frame) string {
	msg, ok := schema.Find(f.ID)
	if !ok {
		return ""
	}

	// Resolve the active multiplexor value, if the message has one.
	var muxVal *uint8
	for _, sig := range msg.Signals {
		if sig.Multiplexor {
			v, ok := rawValue(sig, f.Data)
			if !ok {
				return ""
			}
			b := uint8(v)
			muxVal = &b
			break
		}
	}

	var parts []string
	for _, sig := range msg.Signals {
		if sig.MuxValue != nil && (muxVal == nil || *sig.MuxValue != *muxVal) {
			continue
		}
		raw, ok := rawValue(sig, f.Data)
		if !ok {
			continue
		}
		val := float64(raw)*sig.Scale + sig.Offset
		if sig.Unit != "" {
			parts = append(parts, fmt.Sprintf("%s=%.4g %s", sig.Name, val, sig.Unit))
		} else {
			parts = append(parts, fmt.Sprintf("%s=%.4g", sig.Name, val))
		}
	}
	return strings.Join(parts, " ")
}

func rawValue(sig Signal, data []byte) (uint64, bool) {
	if sig.StartBit%8 != 0 || sig.Width%8 != 0 || sig.Width == 0 {
		return 0, false
	}
	start := sig.StartBit / 8
	end := start + sig.Width/8
	if end > len(data) {
		return 0, false
	}
	var raw uint64
	for _, b := range data[start:end] {
		raw = raw<<8 | uint64(b)
	}
	return raw, true
}
