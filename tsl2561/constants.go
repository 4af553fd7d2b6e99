package tsl2561

import "time"

// Address selects one of the three strap configurations of the ADDR SEL pin.
type Address uint16

const (
	TSL2561_ADDR_LOW   Address = 0x29 ///< ADDR SEL tied to GND
	TSL2561_ADDR_FLOAT Address = 0x39 ///< ADDR SEL floating
	TSL2561_ADDR_HIGH  Address = 0x49 ///< ADDR SEL tied to VDD

	TSL2561_DEFAULT_CLOCK uint32 = 400000 ///< Default I2C bus clock, 400kHz
)

const (
	TSL2561_VISIBLE      byte = 2 ///< channel 0 - channel 1
	TSL2561_INFRARED     byte = 1 ///< channel 1
	TSL2561_FULLSPECTRUM byte = 0 ///< channel 0

	TSL2561_COMMAND_BIT byte = 0x80 ///< Must be 1
	TSL2561_CLEAR_BIT   byte = 0x40 ///< Clears any pending interrupt (write 1 to clear)
	TSL2561_WORD_BIT    byte = 0x20 ///< 1 = read/write word rather than byte
	TSL2561_BLOCK_BIT   byte = 0x10 ///< 1 = using block read/write

	TSL2561_CONTROL_POWERON  byte = 0x03
	TSL2561_CONTROL_POWEROFF byte = 0x00
)

// TSL2561 Register map
const (
	TSL2561_REGISTER_CONTROL          byte = 0x00 // Control register
	TSL2561_REGISTER_TIMING           byte = 0x01 // Timing register: gain (bit 4), integration time (bits 1:0)
	TSL2561_REGISTER_THRESHHOLDL_LOW  byte = 0x02
	TSL2561_REGISTER_THRESHHOLDL_HIGH byte = 0x03
	TSL2561_REGISTER_THRESHHOLDH_LOW  byte = 0x04
	TSL2561_REGISTER_THRESHHOLDH_HIGH byte = 0x05
	TSL2561_REGISTER_INTERRUPT        byte = 0x06
	TSL2561_REGISTER_CRC              byte = 0x08
	TSL2561_REGISTER_ID               byte = 0x0A // Part number (bits 7:4) and revision (bits 3:0)
	TSL2561_REGISTER_CHAN0_LOW        byte = 0x0C // Channel 0 data, low byte
	TSL2561_REGISTER_CHAN0_HIGH       byte = 0x0D // Channel 0 data, high byte
	TSL2561_REGISTER_CHAN1_LOW        byte = 0x0E // Channel 1 data, low byte
	TSL2561_REGISTER_CHAN1_HIGH       byte = 0x0F // Channel 1 data, high byte
)

// Part numbers reported in the upper nibble of the ID register
const (
	TSL2560_PARTNO_CS      byte = 0x0
	TSL2561_PARTNO_CS      byte = 0x1
	TSL2560_PARTNO_T_FN_CL byte = 0x4
	TSL2561_PARTNO_T_FN_CL byte = 0x5
)

// Gain is the analog gain applied before conversion.
type Gain byte

const (
	TSL2561_GAIN_1X  Gain = 0x00 /// low gain (1x)
	TSL2561_GAIN_16X Gain = 0x01 /// high gain (16x)
)

// IntegrationTime is the ADC integration time.
type IntegrationTime byte

const (
	TSL2561_INTEGRATIONTIME_13MS  IntegrationTime = 0x00 // 13.7 millis
	TSL2561_INTEGRATIONTIME_101MS IntegrationTime = 0x01 // 101 millis
	TSL2561_INTEGRATIONTIME_402MS IntegrationTime = 0x02 // 402 millis
)

// Package is the housing variant, it decides which coefficient table applies.
type Package byte

const (
	TSL2561_PACKAGE_CS      Package = 0x00
	TSL2561_PACKAGE_T_FN_CL Package = 0x01
)

// Fixed point scales used by the lux approximation
const (
	TSL2561_LUX_SCALE     = 14     // Scale by 2^14
	TSL2561_RATIO_SCALE   = 9      // Scale ratio by 2^9
	TSL2561_CHSCALE       = 10     // Scale channel values by 2^10
	TSL2561_CHSCALE_TINT0 = 0x7517 // 322/11 * 2^TSL2561_CHSCALE
	TSL2561_CHSCALE_TINT1 = 0x0FE7 // 322/81 * 2^TSL2561_CHSCALE
)

// Clipping thresholds: raw counts at or above these are saturated
const (
	TSL2561_CLIPPING_13MS  uint16 = 4900
	TSL2561_CLIPPING_101MS uint16 = 37000
	TSL2561_CLIPPING_402MS uint16 = 65000
)

// Auto-gain thresholds on channel 0
const (
	TSL2561_AGC_THI_13MS  uint16 = 4850 // Max value at Ti 13ms = 5047
	TSL2561_AGC_TLO_13MS  uint16 = 100
	TSL2561_AGC_THI_101MS uint16 = 36000 // Max value at Ti 101ms = 37177
	TSL2561_AGC_TLO_101MS uint16 = 200
	TSL2561_AGC_THI_402MS uint16 = 63000 // Max value at Ti 402ms = 65535
	TSL2561_AGC_TLO_402MS uint16 = 500
)

// coefficient is one segment of the piecewise approximation.
// k is the ratio breakpoint (2^RATIO_SCALE), b and m are the ch0 and ch1
// coefficients (2^LUX_SCALE).
type coefficient struct {
	k uint32
	b uint32
	m uint32
}

// T, FN and CL package coefficients
var coefficientsTFNCL = [...]coefficient{
	{k: 0x0040, b: 0x01f2, m: 0x01be}, // 0.125, 0.0304, 0.0272
	{k: 0x0080, b: 0x0214, m: 0x02d1}, // 0.250, 0.0325, 0.0440
	{k: 0x00c0, b: 0x023f, m: 0x037b}, // 0.375, 0.0351, 0.0544
	{k: 0x0100, b: 0x0270, m: 0x03fe}, // 0.50, 0.0381, 0.0624
	{k: 0x0138, b: 0x016f, m: 0x01fc}, // 0.61, 0.0224, 0.0310
	{k: 0x019a, b: 0x00d2, m: 0x00fb}, // 0.80, 0.0128, 0.0153
	{k: 0x029a, b: 0x0018, m: 0x0012}, // 1.3, 0.00146, 0.00112
	{k: 0x029a, b: 0x0000, m: 0x0000}, // 1.3, 0, 0
}

// CS package coefficients
var coefficientsCS = [...]coefficient{
	{k: 0x0043, b: 0x0204, m: 0x01ad}, // 0.130, 0.0315, 0.0262
	{k: 0x0085, b: 0x0228, m: 0x02c1}, // 0.260, 0.0337, 0.0430
	{k: 0x00c8, b: 0x0253, m: 0x0363}, // 0.390, 0.0363, 0.0529
	{k: 0x010a, b: 0x0282, m: 0x03df}, // 0.520, 0.0392, 0.0605
	{k: 0x014d, b: 0x0177, m: 0x01dd}, // 0.65, 0.0229, 0.0291
	{k: 0x019a, b: 0x0101, m: 0x0127}, // 0.80, 0.0157, 0.0180
	{k: 0x029a, b: 0x0037, m: 0x002b}, // 1.3, 0.00338, 0.00260
	{k: 0x029a, b: 0x0000, m: 0x0000}, // 1.3, 0, 0
}

func (p Package) coefficients() []coefficient {
	if p == TSL2561_PACKAGE_CS {
		return coefficientsCS[:]
	}
	return coefficientsTFNCL[:]
}

// Valid reports whether g is one of the two supported gains.
func (g Gain) Valid() bool {
	return g == TSL2561_GAIN_1X || g == TSL2561_GAIN_16X
}

// Valid reports whether t is one of the three supported integration times.
func (t IntegrationTime) Valid() bool {
	return t <= TSL2561_INTEGRATIONTIME_402MS
}

// Valid reports whether p is a known package.
func (p Package) Valid() bool {
	return p == TSL2561_PACKAGE_CS || p == TSL2561_PACKAGE_T_FN_CL
}

// Valid reports whether a is one of the three strap addresses.
func (a Address) Valid() bool {
	switch a {
	case TSL2561_ADDR_LOW, TSL2561_ADDR_FLOAT, TSL2561_ADDR_HIGH:
		return true
	}
	return false
}

// Clipping returns the raw count at which the channels are considered saturated.
func (t IntegrationTime) Clipping() uint16 {
	switch t {
	case TSL2561_INTEGRATIONTIME_13MS:
		return TSL2561_CLIPPING_13MS
	case TSL2561_INTEGRATIONTIME_101MS:
		return TSL2561_CLIPPING_101MS
	default:
		return TSL2561_CLIPPING_402MS
	}
}

// channelScale returns the factor (2^CHSCALE) normalizing counts to 402ms.
func (t IntegrationTime) channelScale() uint32 {
	switch t {
	case TSL2561_INTEGRATIONTIME_13MS:
		return TSL2561_CHSCALE_TINT0
	case TSL2561_INTEGRATIONTIME_101MS:
		return TSL2561_CHSCALE_TINT1
	default:
		return 1 << TSL2561_CHSCALE
	}
}

// Delay is how long to wait after configuring before a conversion is available.
func (t IntegrationTime) Delay() time.Duration {
	switch t {
	case TSL2561_INTEGRATIONTIME_13MS:
		return 15 * time.Millisecond
	case TSL2561_INTEGRATIONTIME_101MS:
		return 120 * time.Millisecond
	default:
		return 450 * time.Millisecond
	}
}

func (t IntegrationTime) agcThresholds() (lo, hi uint16) {
	switch t {
	case TSL2561_INTEGRATIONTIME_13MS:
		return TSL2561_AGC_TLO_13MS, TSL2561_AGC_THI_13MS
	case TSL2561_INTEGRATIONTIME_101MS:
		return TSL2561_AGC_TLO_101MS, TSL2561_AGC_THI_101MS
	default:
		return TSL2561_AGC_TLO_402MS, TSL2561_AGC_THI_402MS
	}
}

func (t IntegrationTime) String() string {
	switch t {
	case TSL2561_INTEGRATIONTIME_13MS:
		return "13ms"
	case TSL2561_INTEGRATIONTIME_101MS:
		return "101ms"
	case TSL2561_INTEGRATIONTIME_402MS:
		return "402ms"
	default:
		return "Unknown"
	}
}

func (g Gain) String() string {
	switch g {
	case TSL2561_GAIN_1X:
		return "Low gain (1x)"
	case TSL2561_GAIN_16X:
		return "High gain (16x)"
	default:
		return "Unknown"
	}
}

func (p Package) String() string {
	switch p {
	case TSL2561_PACKAGE_CS:
		return "CS"
	case TSL2561_PACKAGE_T_FN_CL:
		return "T/FN/CL"
	default:
		return "Unknown"
	}
}
