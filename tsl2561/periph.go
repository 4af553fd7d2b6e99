package tsl2561

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// periphBus adapts a periph.io I2C device to Bus.
type periphBus struct {
	dev *i2c.Dev
	bus i2c.BusCloser
}

func (p *periphBus) ReadReg(reg byte, buf []byte) error {
	return p.dev.Tx([]byte{reg}, buf)
}

func (p *periphBus) WriteReg(reg byte, buf []byte) error {
	return p.dev.Tx(append([]byte{reg}, buf...), nil)
}

func (p *periphBus) Close() error {
	return p.bus.Close()
}

// Connect to a TSL2561 through periph.io. An empty busName picks the first
// registered bus. The clock is applied to the bus, 0 keeps 400kHz.
func NewPeriphTSL2561(busName string, addr Address, clock uint32) (*TSL2561, error) {
	if !addr.Valid() {
		return nil, ErrInvalidAddress
	}
	if clock == 0 {
		clock = TSL2561_DEFAULT_CLOCK
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %q: %w", busName, err)
	}
	if err := bus.SetSpeed(physic.Frequency(clock) * physic.Hertz); err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to set bus clock to %dHz: %w", clock, err)
	}
	return New(&periphBus{dev: &i2c.Dev{Bus: bus, Addr: uint16(addr)}, bus: bus}, addr, clock)
}
