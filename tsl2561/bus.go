package tsl2561

import (
	"fmt"

	"golang.org/x/exp/io/i2c"
	"golang.org/x/exp/io/i2c/driver"
)

// Bus performs register transactions with the device at a fixed address.
// *i2c.Device from golang.org/x/exp/io/i2c satisfies it.
type Bus interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) error
}

// Connect to a TSL2561 on a Linux I2C character device, e.g. /dev/i2c-1.
// The kernel owns the bus clock on devfs, so the session keeps the default.
func NewTSL2561(addr Address, path string) (*TSL2561, error) {
	if path == "" {
		// i2c-1 is the default I2C bus for the Raspberry Pi
		path = "/dev/i2c-1"
	}
	return OpenTSL2561(&i2c.Devfs{Dev: path}, addr)
}

// OpenTSL2561 opens the device through any x/exp I2C driver.
func OpenTSL2561(o driver.Opener, addr Address) (*TSL2561, error) {
	if !addr.Valid() {
		return nil, ErrInvalidAddress
	}
	device, err := i2c.Open(o, int(addr))
	if err != nil {
		return nil, fmt.Errorf("failed to open: %w", err)
	}
	return New(device, addr, TSL2561_DEFAULT_CLOCK)
}
