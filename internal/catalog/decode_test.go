package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canlab/canrx/internal/can"
)

func TestDecodeMultiplexed(t *testing.T) {
	t.Parallel()

	schema := testSchema()
	frame := can.Frame{ID: 0x7E8, Length: 4, Data: []byte{0x41, 0x0C, 0x1A, 0xF8}}
	assert.Equal(t, "Service=65 PID=12 EngineRPM=1726 rpm", Decode(schema, frame))
}

func TestDecodeSelectsByMuxValue(t *testing.T) {
	t.Parallel()

	rpm, speed := uint8(0x0C), uint8(0x0D)
	schema := Schema{{ID: 0x7E8, Name: "MSG_7E8", Length: 4, Signals: []Signal{
		{Name: "PID", StartBit: 8, Width: 8, Scale: 1, Multiplexor: true},
		{Name: "EngineRPM", StartBit: 16, Width: 16, Scale: 0.25, Unit: "rpm", MuxValue: &rpm},
		{Name: "VehicleSpeed", StartBit: 16, Width: 8, Scale: 1, Unit: "km/h", MuxValue: &speed},
	}}}

	frame := can.Frame{ID: 0x7E8, Length: 3, Data: []byte{0x41, 0x0D, 0x3C}}
	assert.Equal(t, "PID=13 VehicleSpeed=60 km/h", Decode(schema, frame))
}

func TestDecodePlainBytes(t *testing.T) {
	t.Parallel()

	schema := Schema{{ID: 0x631, Name: "MSG_631", Length: 2, Signals: []Signal{
		{Name: "BYTE0", StartBit: 0, Width: 8, Scale: 1},
		{Name: "BYTE1", StartBit: 8, Width: 8, Scale: 1},
	}}}
	frame := can.Frame{ID: 0x631, Length: 2, Data: []byte{0x40, 0x05}}
	assert.Equal(t, "BYTE0=64 BYTE1=5", Decode(schema, frame))
}

func TestDecodeUnknownID(t *testing.T) {
	t.Parallel()

	frame := can.Frame{ID: 0x123, Length: 1, Data: []byte{0x00}}
	assert.Equal(t, "", Decode(testSchema(), frame))
}

func TestDecodeShortFrameSkipsSignal(t *testing.T) {
	t.Parallel()

	// Only two bytes: Service and PID decode, the 16-bit value does not fit.
	frame := can.Frame{ID: 0x7E8, Length: 2, Data: []byte{0x41, 0x0C}}
	assert.Equal(t, "Service=65 PID=12", Decode(testSchema(), frame))
}
