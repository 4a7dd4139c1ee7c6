package can

import "fmt"

// OBD-II constants for the standard diagnostic request/response exchange.
// These describe wire conventions, not engine logic; the capture and
// catalog layers consult them but do not depend on any transport.
const (
	OBDRequestID      = 0x7DF // broadcast functional request identifier
	OBDServiceCurrent = 0x01  // service 01: show current data
	OBDResponseMarker = 0x41  // service 01 positive response
)

// PIDSignal describes how to extract a value from a service 01 response
// payload. Width is in bits, starting at byte 2 of the payload.
type PIDSignal struct {
	Name   string
	Width  int
	Scale  float64
	Offset float64
	Unit   string
}

// PIDSignals is the static table of recognized parameter identifiers. It
// lives outside the engine so the engine stays testable without it.
var PIDSignals = map[uint8]PIDSignal{
	0x05: {Name: "CoolantTemp", Width: 8, Scale: 1.0, Offset: -40.0, Unit: "degC"},
	0x0C: {Name: "EngineRPM", Width: 16, Scale: 0.25, Offset: 0.0, Unit: "rpm"},
	0x0D: {Name: "VehicleSpeed", Width: 8, Scale: 1.0, Offset: 0.0, Unit: "km/h"},
	0x11: {Name: "ThrottlePosition", Width: 8, Scale: 100.0 / 255.0, Offset: 0.0, Unit: "%"},
}

// IsOBDResponse reports whether the payload looks like a service 01
// response: marker byte followed by a PID selector.
func IsOBDResponse(data []byte) bool {
	return len(data) >= 2 && data[0] == OBDResponseMarker
}

// DecodeOBD renders a human-readable value for a recognized service 01
// response frame. It returns "" when the frame is not a response or the
// payload is too short for the selector's width.
func DecodeOBD(f Frame) string {
	if !IsOBDResponse(f.Data) || len(f.Data) < 3 {
		return ""
	}
	pid := f.Data[1]
	sig, ok := PIDSignals[pid]
	if !ok {
		return fmt.Sprintf("PID 0x%02X data: %s", pid, Frame{Data: f.Data[2:]}.HexData())
	}
	need := 2 + sig.Width/8
	if len(f.Data) < need {
		return ""
	}
	var raw uint64
	for _, b := range f.Data[2:need] {
		raw = raw<<8 | uint64(b)
	}
	val := float64(raw)*sig.Scale + sig.Offset
	return fmt.Sprintf("%s: %.4g %s", sig.Name, val, sig.Unit)
}

// EncodeRequest builds the 8-byte payload of a standard service 01 request
// for the given PID.
func EncodeRequest(pid uint8) []byte {
	return []byte{0x02, OBDServiceCurrent, pid, 0x00, 0x00, 0x00, 0x00, 0x00}
}
