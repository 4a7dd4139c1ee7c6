package can

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeOBD(t *testing.T) {
	t.Parallel()

	t.Run("engine rpm uses two bytes and quarter scale", func(t *testing.T) {
		t.Parallel()
		f := Frame{ID: 0x7E8, Length: 4, Data: []byte{0x41, 0x0C, 0x1A, 0xF8}}
		assert.Equal(t, "EngineRPM: 1726 rpm", DecodeOBD(f))
	})

	t.Run("coolant temp applies offset", func(t *testing.T) {
		t.Parallel()
		f := Frame{ID: 0x7E8, Length: 3, Data: []byte{0x41, 0x05, 0x5A}}
		assert.Equal(t, "CoolantTemp: 50 degC", DecodeOBD(f))
	})

	t.Run("unrecognized pid dumps raw bytes", func(t *testing.T) {
		t.Parallel()
		f := Frame{ID: 0x7E8, Length: 4, Data: []byte{0x41, 0x42, 0xAA, 0xBB}}
		assert.Equal(t, "PID 0x42 data: AA BB", DecodeOBD(f))
	})

	t.Run("non-response frames decode to nothing", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, DecodeOBD(Frame{Length: 3, Data: []byte{0x02, 0x01, 0x0C}}))
		assert.Empty(t, DecodeOBD(Frame{}))
	})

	t.Run("payload too short for selector width", func(t *testing.T) {
		t.Parallel()
		// RPM needs two value bytes; only one present.
		assert.Empty(t, DecodeOBD(Frame{Length: 3, Data: []byte{0x41, 0x0C, 0x1A}}))
	})
}

func TestEncodeRequest(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{0x02, 0x01, 0x0D, 0, 0, 0, 0, 0}, EncodeRequest(0x0D))
}

func TestIsOBDResponse(t *testing.T) {
	t.Parallel()

	assert.True(t, IsOBDResponse([]byte{0x41, 0x0C}))
	assert.False(t, IsOBDResponse([]byte{0x41}))
	assert.False(t, IsOBDResponse([]byte{0x02, 0x01}))
	assert.False(t, IsOBDResponse(nil))
}
