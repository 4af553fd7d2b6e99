package tsl2561

/*
 * tsl2561 - Package for interacting with TSL2561 lux sensors.
 *
 * Ref:
 * https://ams.com/documents/20143/36005/TSL2561_DS000110_3-00.pdf
 * https://github.com/adafruit/Adafruit_TSL2561
 *
 */

import (
	"encoding/binary"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var l *logrus.Logger

func init() {
	l = logrus.New()
	l.Formatter = &logrus.JSONFormatter{}
	l.SetOutput(os.Stdout)
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
}

// SetLogger replaces the package logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		l = logger
	}
}

type TSL2561 struct {
	Address Address
	Clock   uint32
	Started bool
	Gain    Gain
	Timing  IntegrationTime
	Package Package
	Device  Bus
	*sync.Mutex

	// when the first conversion at the current gain/timing completes
	ready time.Time
}

// Reading is a pair of channel counts together with the settings they were
// integrated with.
type Reading struct {
	Full      uint16
	Infrared  uint16
	Gain      Gain
	Timing    IntegrationTime
	Package   Package
	Lux       float64
	Saturated bool
}

// New creates a session for the sensor at addr on bus. Nothing is sent to
// the device until Start. Gain, timing and package start at 16x, 13ms and
// T/FN/CL.
func New(bus Bus, addr Address, clock uint32) (*TSL2561, error) {
	if !addr.Valid() {
		return nil, ErrInvalidAddress
	}
	if clock == 0 {
		clock = TSL2561_DEFAULT_CLOCK
	}
	return &TSL2561{
		Address: addr,
		Clock:   clock,
		Gain:    TSL2561_GAIN_16X,
		Timing:  TSL2561_INTEGRATIONTIME_13MS,
		Package: TSL2561_PACKAGE_T_FN_CL,
		Device:  bus,
		Mutex:   &sync.Mutex{},
	}, nil
}

// Start powers the ADCs on, checks the part number and pushes the current
// gain/timing to the device.
func (tsl *TSL2561) Start() error {
	tsl.Lock()
	defer tsl.Unlock()

	if err := tsl.writeReg(TSL2561_REGISTER_CONTROL, TSL2561_CONTROL_POWERON); err != nil {
		return err
	}

	id, err := tsl.readReg(TSL2561_REGISTER_ID)
	if err != nil {
		return err
	}
	switch id >> 4 {
	case TSL2560_PARTNO_CS, TSL2561_PARTNO_CS, TSL2560_PARTNO_T_FN_CL, TSL2561_PARTNO_T_FN_CL:
	default:
		l.Errorf("Unexpected part number 0x%02x at address 0x%02x", id, tsl.Address)
		return ErrUnknownDevice
	}
	l.Debugf("Found part 0x%02x at address 0x%02x", id, tsl.Address)

	if err := tsl.writeTiming(tsl.Gain, tsl.Timing); err != nil {
		return err
	}
	tsl.Started = true
	return nil
}

// Init sets gain, timing and package. It can be called again to reconfigure.
func (tsl *TSL2561) Init(gain Gain, timing IntegrationTime, pack Package) error {
	tsl.Lock()
	defer tsl.Unlock()

	if !tsl.Started {
		return ErrNotStarted
	}
	if !gain.Valid() {
		return ErrInvalidGain
	}
	if !timing.Valid() {
		return ErrInvalidTiming
	}
	if !pack.Valid() {
		return ErrInvalidPackage
	}

	if err := tsl.writeReg(TSL2561_REGISTER_CONTROL, TSL2561_CONTROL_POWEROFF); err != nil {
		return err
	}
	if err := tsl.writeReg(TSL2561_REGISTER_CONTROL, TSL2561_CONTROL_POWERON); err != nil {
		// The ADCs are off now, reads would return stale counts
		tsl.Started = false
		return err
	}
	if err := tsl.writeTiming(gain, timing); err != nil {
		return err
	}
	tsl.Package = pack
	l.Debugf("Init - Gain: %v, Integration Time: %v, Package: %v", gain, timing, pack)
	return nil
}

// Stop powers the ADCs off.
func (tsl *TSL2561) Stop() error {
	tsl.Lock()
	defer tsl.Unlock()

	if !tsl.Started {
		return nil
	}
	if err := tsl.writeReg(TSL2561_REGISTER_CONTROL, TSL2561_CONTROL_POWEROFF); err != nil {
		return err
	}
	tsl.Started = false
	return nil
}

// Close stops the sensor and releases the bus.
func (tsl *TSL2561) Close() error {
	err := tsl.Stop()
	if c, ok := tsl.Device.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Read channel 0, the full spectrum photodiode
func (tsl *TSL2561) GetRawFullSpectrum() (uint16, error) {
	tsl.Lock()
	defer tsl.Unlock()

	if !tsl.Started {
		return 0, ErrNotStarted
	}
	return tsl.readChannel(TSL2561_REGISTER_CHAN0_LOW)
}

// Read channel 1, the infrared photodiode
func (tsl *TSL2561) GetRawInfrared() (uint16, error) {
	tsl.Lock()
	defer tsl.Unlock()

	if !tsl.Started {
		return 0, ErrNotStarted
	}
	return tsl.readChannel(TSL2561_REGISTER_CHAN1_LOW)
}

// Full spectrum minus infrared, 0 when infrared reads higher.
func (tsl *TSL2561) GetRawVisible() (uint16, error) {
	full, ir, err := tsl.GetFullLuminosity()
	if err != nil {
		return 0, err
	}
	return visible(full, ir), nil
}

// Read from the light sensor's channels
func (tsl *TSL2561) GetFullLuminosity() (uint16, uint16, error) {
	tsl.Lock()
	defer tsl.Unlock()

	if !tsl.Started {
		return 0, 0, ErrNotStarted
	}
	return tsl.readChannels()
}

// GetLux reads both channels and converts them. saturated is true, with a
// lux of 0, when the reading clipped.
func (tsl *TSL2561) GetLux() (lux float64, saturated bool, err error) {
	reading, err := tsl.GetReading()
	if err != nil {
		return 0, false, err
	}
	return reading.Lux, reading.Saturated, nil
}

// GetReading reads both channels and converts them with the settings in
// effect during the same bus transaction.
func (tsl *TSL2561) GetReading() (Reading, error) {
	tsl.Lock()
	defer tsl.Unlock()

	if !tsl.Started {
		return Reading{}, ErrNotStarted
	}
	ch0, ch1, err := tsl.readChannels()
	if err != nil {
		return Reading{}, err
	}
	reading := Reading{
		Full:     ch0,
		Infrared: ch1,
		Gain:     tsl.Gain,
		Timing:   tsl.Timing,
		Package:  tsl.Package,
	}
	reading.Lux, reading.Saturated = CalculateLux(ch0, ch1, tsl.Gain, tsl.Timing, tsl.Package)
	if reading.Saturated {
		l.Warnf("Sensor is saturated - Channel 0: %v, Channel 1: %v, Integration Time: %v", ch0, ch1, tsl.Timing)
	}
	return reading, nil
}

// Settings returns the current gain, timing and package.
func (tsl *TSL2561) Settings() (Gain, IntegrationTime, Package) {
	tsl.Lock()
	defer tsl.Unlock()
	return tsl.Gain, tsl.Timing, tsl.Package
}

// IsStarted reports whether Start succeeded and Stop wasn't called since.
func (tsl *TSL2561) IsStarted() bool {
	tsl.Lock()
	defer tsl.Unlock()
	return tsl.Started
}

// SetOptimalGain switches between 1x and 16x based on the current channel 0
// count. It reports whether the gain changed. Reads after a change block
// until a conversion at the new gain is available.
func (tsl *TSL2561) SetOptimalGain() (bool, error) {
	tsl.Lock()
	defer tsl.Unlock()

	if !tsl.Started {
		return false, ErrNotStarted
	}
	ch0, err := tsl.readChannel(TSL2561_REGISTER_CHAN0_LOW)
	if err != nil {
		return false, err
	}

	lo, hi := tsl.Timing.agcThresholds()
	gain := tsl.Gain
	switch {
	case gain == TSL2561_GAIN_1X && ch0 < lo:
		gain = TSL2561_GAIN_16X
	case gain == TSL2561_GAIN_16X && ch0 > hi:
		gain = TSL2561_GAIN_1X
	default:
		return false, nil
	}

	if err := tsl.writeTiming(gain, tsl.Timing); err != nil {
		return false, err
	}
	l.Debugf("Set - Gain: %v, Integration Time: %v (channel 0: %v)", gain, tsl.Timing, ch0)
	return true, nil
}

func (tsl *TSL2561) readChannels() (uint16, uint16, error) {
	channel0, err := tsl.readChannel(TSL2561_REGISTER_CHAN0_LOW)
	if err != nil {
		return 0, 0, err
	}
	channel1, err := tsl.readChannel(TSL2561_REGISTER_CHAN1_LOW)
	if err != nil {
		return 0, 0, err
	}
	l.Debugf("Channel 0: %v, Channel 1: %v", channel0, channel1)
	return channel0, channel1, nil
}

// Channels are read as a word, low byte first
func (tsl *TSL2561) readChannel(reg byte) (uint16, error) {
	// The data registers hold the previous integration until a full one
	// completes after a timing write
	if wait := time.Until(tsl.ready); wait > 0 {
		time.Sleep(wait)
	}
	bytes := make([]byte, 2)
	if err := tsl.Device.ReadReg(TSL2561_COMMAND_BIT|TSL2561_WORD_BIT|reg, bytes); err != nil {
		return 0, &BusError{Op: "read", Reg: reg, Err: err}
	}
	l.Debugf("Bytes read: %v", bytes)
	return binary.LittleEndian.Uint16(bytes), nil
}

func (tsl *TSL2561) readReg(reg byte) (byte, error) {
	buf := make([]byte, 1)
	if err := tsl.Device.ReadReg(TSL2561_COMMAND_BIT|reg, buf); err != nil {
		return 0, &BusError{Op: "read", Reg: reg, Err: err}
	}
	return buf[0], nil
}

func (tsl *TSL2561) writeReg(reg byte, value byte) error {
	if err := tsl.Device.WriteReg(TSL2561_COMMAND_BIT|reg, []byte{value}); err != nil {
		return &BusError{Op: "write", Reg: reg, Err: err}
	}
	return nil
}

// The timing register holds the gain in bit 4 and the integration time in bits 1:0
func (tsl *TSL2561) writeTiming(gain Gain, timing IntegrationTime) error {
	if err := tsl.writeReg(TSL2561_REGISTER_TIMING, byte(gain)<<4|byte(timing)); err != nil {
		return err
	}
	tsl.Gain = gain
	tsl.Timing = timing
	tsl.ready = time.Now().Add(timing.Delay())
	return nil
}
