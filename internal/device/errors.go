package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrMalformedRecord) {
//	    // drop the report
//	}
var (
	// ErrMalformedRecord is returned when a telemetry report cannot be used.
	ErrMalformedRecord = errors.New("device: malformed record")

	// ErrInvalidSnapshot is returned when a snapshot cannot be persisted.
	ErrInvalidSnapshot = errors.New("device: invalid snapshot")
)
