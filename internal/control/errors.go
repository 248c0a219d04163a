package control

import "errors"

var (
	// ErrPublishFailed wraps any failure to hand a command to the broker.
	ErrPublishFailed = errors.New("control: publish failed")
)
