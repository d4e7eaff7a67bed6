package motion

import (
	"fmt"

	"go.bug.st/serial"
)

// NewSerialSource opens the accelerometer at path with the given options.
func NewSerialSource(path string, opts PortOptions) (*Mux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open accelerometer at %s: %w", path, err)
	}

	return NewMux[serial.Port](port), nil
}
