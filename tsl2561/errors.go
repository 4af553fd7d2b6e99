package tsl2561

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig  = errors.New("invalid sensor configuration")
	ErrInvalidGain    = fmt.Errorf("%w: gain must be 0 (1x) or 1 (16x)", ErrInvalidConfig)
	ErrInvalidTiming  = fmt.Errorf("%w: timing must be 0 (13ms), 1 (101ms) or 2 (402ms)", ErrInvalidConfig)
	ErrInvalidPackage = fmt.Errorf("%w: package must be 0 (CS) or 1 (T/FN/CL)", ErrInvalidConfig)

	ErrInvalidAddress = errors.New("address must be 0x29, 0x39 or 0x49")
	ErrNotStarted     = errors.New("sensor must be started")
	ErrUnknownDevice  = errors.New("can't find a TSL2561 at this address")
)

// BusError is returned when a register transaction fails.
type BusError struct {
	Op  string // "read" or "write"
	Reg byte
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus %s of register 0x%02x failed: %v", e.Op, e.Reg, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}
