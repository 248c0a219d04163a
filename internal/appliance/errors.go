package appliance

import "errors"

// Domain errors for the appliance package.
var (
	// ErrInvalidIntent is returned when an action intent contains an illegal value.
	ErrInvalidIntent = errors.New("appliance: invalid intent")

	// ErrInvalidCommand is returned when a semantic command has bad parameters.
	ErrInvalidCommand = errors.New("appliance: invalid command")

	// ErrUnsupportedCommand is returned for an unknown device type or action.
	ErrUnsupportedCommand = errors.New("appliance: unsupported command")
)
