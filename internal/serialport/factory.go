package serialport

import (
	"go.bug.st/serial"
)

// NewRealLineMux creates a LineMux backed by a real adapter at the given
// device path using the provided serial options.
func NewRealLineMux(path string, opts PortOptions) (*LineMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewLineMux[serial.Port](port), nil
}
