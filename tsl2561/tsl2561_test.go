package tsl2561

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/io/i2c/driver"
)

// fakeBus emulates the register file of a TSL2561.
type fakeBus struct {
	regs     map[byte][]byte
	writes   [][]byte
	reads    []byte
	readErr  error
	writeErr error
	closed   bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{regs: map[byte][]byte{
		TSL2561_REGISTER_ID: {0x50},
	}}
}

func (f *fakeBus) setChannels(ch0, ch1 uint16) {
	f.regs[TSL2561_REGISTER_CHAN0_LOW] = []byte{byte(ch0), byte(ch0 >> 8)}
	f.regs[TSL2561_REGISTER_CHAN1_LOW] = []byte{byte(ch1), byte(ch1 >> 8)}
}

func (f *fakeBus) ReadReg(reg byte, buf []byte) error {
	if f.readErr != nil {
		return f.readErr
	}
	f.reads = append(f.reads, reg)
	copy(buf, f.regs[reg&0x0F])
	return nil
}

func (f *fakeBus) WriteReg(reg byte, buf []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte{reg}, buf...))
	return nil
}

func (f *fakeBus) Close() error {
	f.closed = true
	return nil
}

func startedSensor(t *testing.T) (*TSL2561, *fakeBus) {
	t.Helper()
	bus := newFakeBus()
	tsl, err := New(bus, TSL2561_ADDR_HIGH, 0)
	require.NoError(t, err)
	require.NoError(t, tsl.Start())
	bus.writes = nil
	return tsl, bus
}

func TestNew(t *testing.T) {
	tsl, err := New(newFakeBus(), TSL2561_ADDR_FLOAT, 0)
	require.NoError(t, err)
	assert.Equal(t, TSL2561_DEFAULT_CLOCK, tsl.Clock)
	assert.Equal(t, TSL2561_GAIN_16X, tsl.Gain)
	assert.Equal(t, TSL2561_INTEGRATIONTIME_13MS, tsl.Timing)
	assert.Equal(t, TSL2561_PACKAGE_T_FN_CL, tsl.Package)
	assert.False(t, tsl.Started)

	tsl, err = New(newFakeBus(), TSL2561_ADDR_LOW, 100000)
	require.NoError(t, err)
	assert.Equal(t, uint32(100000), tsl.Clock)

	_, err = New(newFakeBus(), 0x40, 0)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestStart(t *testing.T) {
	bus := newFakeBus()
	tsl, err := New(bus, TSL2561_ADDR_HIGH, 0)
	require.NoError(t, err)

	require.NoError(t, tsl.Start())
	assert.True(t, tsl.Started)
	assert.Equal(t, [][]byte{
		{TSL2561_COMMAND_BIT | TSL2561_REGISTER_CONTROL, TSL2561_CONTROL_POWERON},
		{TSL2561_COMMAND_BIT | TSL2561_REGISTER_TIMING, 0x10},
	}, bus.writes)
	assert.Equal(t, []byte{TSL2561_COMMAND_BIT | TSL2561_REGISTER_ID}, bus.reads)
}

func TestStartUnknownDevice(t *testing.T) {
	bus := newFakeBus()
	bus.regs[TSL2561_REGISTER_ID] = []byte{0x20}
	tsl, err := New(bus, TSL2561_ADDR_HIGH, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, tsl.Start(), ErrUnknownDevice)
	assert.False(t, tsl.Started)
}

func TestNotStarted(t *testing.T) {
	tsl, err := New(newFakeBus(), TSL2561_ADDR_HIGH, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, tsl.Init(TSL2561_GAIN_1X, TSL2561_INTEGRATIONTIME_402MS, TSL2561_PACKAGE_CS), ErrNotStarted)
	_, err = tsl.GetRawFullSpectrum()
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = tsl.GetRawInfrared()
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = tsl.GetRawVisible()
	assert.ErrorIs(t, err, ErrNotStarted)
	_, _, err = tsl.GetLux()
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = tsl.SetOptimalGain()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestInitInvalidConfig(t *testing.T) {
	tsl, bus := startedSensor(t)

	tests := []struct {
		name   string
		gain   Gain
		timing IntegrationTime
		pack   Package
		want   error
	}{
		{"gain", 2, TSL2561_INTEGRATIONTIME_13MS, TSL2561_PACKAGE_CS, ErrInvalidGain},
		{"gain register value", 0x10, TSL2561_INTEGRATIONTIME_13MS, TSL2561_PACKAGE_CS, ErrInvalidGain},
		{"timing", TSL2561_GAIN_1X, 3, TSL2561_PACKAGE_CS, ErrInvalidTiming},
		{"package", TSL2561_GAIN_1X, TSL2561_INTEGRATIONTIME_13MS, 2, ErrInvalidPackage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tsl.Init(tt.gain, tt.timing, tt.pack)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Empty(t, bus.writes)
		})
	}
}

func TestInitAllValid(t *testing.T) {
	for _, gain := range []Gain{TSL2561_GAIN_1X, TSL2561_GAIN_16X} {
		for _, timing := range []IntegrationTime{TSL2561_INTEGRATIONTIME_13MS, TSL2561_INTEGRATIONTIME_101MS, TSL2561_INTEGRATIONTIME_402MS} {
			for _, pack := range []Package{TSL2561_PACKAGE_CS, TSL2561_PACKAGE_T_FN_CL} {
				tsl, bus := startedSensor(t)
				bus.setChannels(100, 30)

				require.NoError(t, tsl.Init(gain, timing, pack))
				assert.Equal(t, gain, tsl.Gain)
				assert.Equal(t, timing, tsl.Timing)
				assert.Equal(t, pack, tsl.Package)
				assert.Equal(t, [][]byte{
					{0x80, TSL2561_CONTROL_POWEROFF},
					{0x80, TSL2561_CONTROL_POWERON},
					{0x81, byte(gain)<<4 | byte(timing)},
				}, bus.writes)

				lux, saturated, err := tsl.GetLux()
				require.NoError(t, err)
				assert.False(t, saturated)
				assert.Greater(t, lux, 0.0)
			}
		}
	}
}

func TestInitIdempotent(t *testing.T) {
	tsl, bus := startedSensor(t)
	bus.setChannels(1234, 321)

	require.NoError(t, tsl.Init(TSL2561_GAIN_1X, TSL2561_INTEGRATIONTIME_101MS, TSL2561_PACKAGE_CS))
	first := bus.writes
	lux1, sat1, err := tsl.GetLux()
	require.NoError(t, err)

	bus.writes = nil
	require.NoError(t, tsl.Init(TSL2561_GAIN_1X, TSL2561_INTEGRATIONTIME_101MS, TSL2561_PACKAGE_CS))
	assert.Equal(t, first, bus.writes)
	lux2, sat2, err := tsl.GetLux()
	require.NoError(t, err)

	assert.Equal(t, lux1, lux2)
	assert.Equal(t, sat1, sat2)
}

func TestRawReads(t *testing.T) {
	tsl, bus := startedSensor(t)
	bus.regs[TSL2561_REGISTER_CHAN0_LOW] = []byte{0x34, 0x12}
	bus.regs[TSL2561_REGISTER_CHAN1_LOW] = []byte{0x78, 0x06}
	bus.reads = nil

	full, err := tsl.GetRawFullSpectrum()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), full)

	ir, err := tsl.GetRawInfrared()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0678), ir)

	vis, err := tsl.GetRawVisible()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234-0x0678), vis)

	assert.Equal(t, []byte{0xAC, 0xAE, 0xAC, 0xAE}, bus.reads)
}

func TestRawVisibleClamp(t *testing.T) {
	tsl, bus := startedSensor(t)
	bus.setChannels(10, 20)

	vis, err := tsl.GetRawVisible()
	require.NoError(t, err)
	assert.Zero(t, vis)
}

func TestGetLuxSaturated(t *testing.T) {
	tsl, bus := startedSensor(t)
	bus.setChannels(5000, 100)

	lux, saturated, err := tsl.GetLux()
	require.NoError(t, err)
	assert.True(t, saturated)
	assert.Zero(t, lux)
}

// lightBus reports counts for constant illumination, scaled by whichever
// gain was last written to the timing register.
type lightBus struct {
	highGain bool
}

func (b *lightBus) ReadReg(reg byte, buf []byte) error {
	ch0, ch1 := uint16(100), uint16(30)
	if b.highGain {
		ch0, ch1 = ch0*16, ch1*16
	}
	switch reg & 0x0F {
	case TSL2561_REGISTER_ID:
		buf[0] = 0x50
	case TSL2561_REGISTER_CHAN0_LOW:
		buf[0], buf[1] = byte(ch0), byte(ch0>>8)
	case TSL2561_REGISTER_CHAN1_LOW:
		buf[0], buf[1] = byte(ch1), byte(ch1>>8)
	}
	return nil
}

func (b *lightBus) WriteReg(reg byte, buf []byte) error {
	if reg&0x0F == TSL2561_REGISTER_TIMING {
		b.highGain = buf[0]&0x10 != 0
	}
	return nil
}

func TestGetReadingConsistentDuringReconfigure(t *testing.T) {
	tsl, err := New(&lightBus{}, TSL2561_ADDR_FLOAT, 0)
	require.NoError(t, err)
	require.NoError(t, tsl.Start())

	want, err := tsl.GetReading()
	require.NoError(t, err)
	require.False(t, want.Saturated)
	require.NotZero(t, want.Lux)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			gain := TSL2561_GAIN_1X
			if i%2 == 1 {
				gain = TSL2561_GAIN_16X
			}
			assert.NoError(t, tsl.Init(gain, TSL2561_INTEGRATIONTIME_13MS, TSL2561_PACKAGE_T_FN_CL))
		}
	}()

	// Same light at either gain, so every reading converts to the same lux
	for i := 0; i < 20; i++ {
		reading, err := tsl.GetReading()
		require.NoError(t, err)
		assert.Equal(t, want.Lux, reading.Lux, "gain %v counts %d/%d", reading.Gain, reading.Full, reading.Infrared)
	}
	wg.Wait()
}

func TestReadWaitsForIntegration(t *testing.T) {
	tsl, bus := startedSensor(t)
	bus.setChannels(100, 30)

	start := time.Now()
	require.NoError(t, tsl.Init(TSL2561_GAIN_16X, TSL2561_INTEGRATIONTIME_101MS, TSL2561_PACKAGE_T_FN_CL))
	reading, err := tsl.GetReading()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), TSL2561_INTEGRATIONTIME_101MS.Delay())
	assert.Equal(t, TSL2561_INTEGRATIONTIME_101MS, reading.Timing)

	// No timing write since, the next read is immediate
	start = time.Now()
	_, err = tsl.GetReading()
	require.NoError(t, err)
	assert.Less(t, time.Since(start), TSL2561_INTEGRATIONTIME_101MS.Delay())
}

// powerOnFailBus refuses to power the ADCs back on.
type powerOnFailBus struct {
	*fakeBus
}

func (b *powerOnFailBus) WriteReg(reg byte, buf []byte) error {
	if reg&0x0F == TSL2561_REGISTER_CONTROL && buf[0] == TSL2561_CONTROL_POWERON {
		return errors.New("no ack")
	}
	return b.fakeBus.WriteReg(reg, buf)
}

func TestInitPowerOnFailure(t *testing.T) {
	tsl, bus := startedSensor(t)
	tsl.Device = &powerOnFailBus{bus}

	err := tsl.Init(TSL2561_GAIN_1X, TSL2561_INTEGRATIONTIME_13MS, TSL2561_PACKAGE_CS)
	var busErr *BusError
	require.ErrorAs(t, err, &busErr)
	assert.Equal(t, "write", busErr.Op)
	assert.False(t, tsl.IsStarted())

	_, err = tsl.GetReading()
	assert.ErrorIs(t, err, ErrNotStarted)

	// Start recovers the session
	tsl.Device = bus
	require.NoError(t, tsl.Start())
	_, err = tsl.GetReading()
	assert.NoError(t, err)
}

func TestBusError(t *testing.T) {
	tsl, bus := startedSensor(t)
	nack := errors.New("no ack")

	bus.readErr = nack
	_, _, err := tsl.GetLux()
	var busErr *BusError
	require.ErrorAs(t, err, &busErr)
	assert.Equal(t, "read", busErr.Op)
	assert.Equal(t, TSL2561_REGISTER_CHAN0_LOW, busErr.Reg)
	assert.ErrorIs(t, err, nack)

	bus.readErr = nil
	bus.writeErr = nack
	err = tsl.Init(TSL2561_GAIN_1X, TSL2561_INTEGRATIONTIME_13MS, TSL2561_PACKAGE_CS)
	require.ErrorAs(t, err, &busErr)
	assert.Equal(t, "write", busErr.Op)
	assert.Equal(t, TSL2561_REGISTER_CONTROL, busErr.Reg)
}

func TestSetOptimalGain(t *testing.T) {
	tsl, bus := startedSensor(t)
	require.NoError(t, tsl.Init(TSL2561_GAIN_1X, TSL2561_INTEGRATIONTIME_402MS, TSL2561_PACKAGE_T_FN_CL))
	bus.writes = nil

	// dark at 1x, go to 16x
	bus.setChannels(100, 10)
	changed, err := tsl.SetOptimalGain()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, TSL2561_GAIN_16X, tsl.Gain)
	assert.Equal(t, [][]byte{{0x81, 0x12}}, bus.writes)

	// in range, keep 16x
	bus.setChannels(10000, 1000)
	changed, err = tsl.SetOptimalGain()
	require.NoError(t, err)
	assert.False(t, changed)

	// bright at 16x, back to 1x
	bus.setChannels(64000, 1000)
	changed, err = tsl.SetOptimalGain()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, TSL2561_GAIN_1X, tsl.Gain)
}

func TestStopAndClose(t *testing.T) {
	tsl, bus := startedSensor(t)

	require.NoError(t, tsl.Close())
	assert.False(t, tsl.Started)
	assert.True(t, bus.closed)
	assert.Equal(t, [][]byte{{0x80, TSL2561_CONTROL_POWEROFF}}, bus.writes)

	_, err := tsl.GetRawInfrared()
	assert.ErrorIs(t, err, ErrNotStarted)
}

// fakeOpener plugs fakeBus behind the x/exp I2C driver interfaces.
type fakeOpener struct {
	bus  *fakeBus
	addr int
}

func (o *fakeOpener) Open(addr int, tenbit bool) (driver.Conn, error) {
	o.addr = addr
	return &fakeConn{bus: o.bus}, nil
}

type fakeConn struct {
	bus *fakeBus
}

func (c *fakeConn) Tx(w, r []byte) error {
	if r != nil {
		return c.bus.ReadReg(w[0], r)
	}
	return c.bus.WriteReg(w[0], w[1:])
}

func (c *fakeConn) Close() error {
	return c.bus.Close()
}

func TestOpenTSL2561(t *testing.T) {
	bus := newFakeBus()
	bus.setChannels(100, 30)
	o := &fakeOpener{bus: bus}

	tsl, err := OpenTSL2561(o, TSL2561_ADDR_LOW)
	require.NoError(t, err)
	assert.Equal(t, int(TSL2561_ADDR_LOW), o.addr)

	require.NoError(t, tsl.Start())
	require.NoError(t, tsl.Init(TSL2561_GAIN_1X, TSL2561_INTEGRATIONTIME_402MS, TSL2561_PACKAGE_CS))
	lux, saturated, err := tsl.GetLux()
	require.NoError(t, err)
	assert.False(t, saturated)
	assert.InEpsilon(t, 32.705, lux, 0.01)

	require.NoError(t, tsl.Close())
	assert.True(t, bus.closed)

	_, err = OpenTSL2561(o, 0x10)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
