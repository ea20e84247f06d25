//go:build !linux

package sensor

import "errors"

// DataReadyTrigger is not available on non-Linux platforms.
type DataReadyTrigger struct{}

// NewDataReadyTrigger returns an error on non-Linux platforms.
func NewDataReadyTrigger(int) (*DataReadyTrigger, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Start is not implemented on non-Linux platforms.
func (t *DataReadyTrigger) Start(func()) error {
	return errors.New("gpio: not supported")
}

// Stop is not implemented on non-Linux platforms.
func (t *DataReadyTrigger) Stop() error {
	return nil
}
