package tsl2561

// CalculateLux converts the raw channel counts to lux for the given settings.
// It returns 0 and saturated=true when either channel reached the clipping
// threshold of the integration time.
func CalculateLux(ch0, ch1 uint16, gain Gain, timing IntegrationTime, pack Package) (lux float64, saturated bool) {
	clip := timing.Clipping()
	if ch0 >= clip || ch1 >= clip {
		return 0, true
	}

	// Normalize both channels to 402ms and 16x gain
	scale := uint64(timing.channelScale())
	if gain == TSL2561_GAIN_1X {
		scale <<= 4
	}
	full := (uint64(ch0) * scale) >> TSL2561_CHSCALE
	ir := (uint64(ch1) * scale) >> TSL2561_CHSCALE

	var ratio uint64
	if full != 0 {
		// one extra bit of precision, rounded off below
		ratio = ((ir<<(TSL2561_RATIO_SCALE+1))/full + 1) >> 1
	}

	b, m := lookupCoefficients(pack, ratio)

	fullB := full * uint64(b)
	irM := ir * uint64(m)
	if irM >= fullB {
		return 0, false
	}
	return float64(fullB-irM) / float64(uint64(1)<<TSL2561_LUX_SCALE), false
}

// lookupCoefficients returns the segment of the first breakpoint not
// exceeded by ratio, or zeros past the last one.
func lookupCoefficients(pack Package, ratio uint64) (b, m uint32) {
	for _, c := range pack.coefficients() {
		if ratio <= uint64(c.k) {
			return c.b, c.m
		}
	}
	return 0, 0
}

// Returns the normalized output for a given spectrum type
func GetNormalizedOutput(spectrumType byte, ch0, ch1 uint16) float64 {
	switch spectrumType {
	case TSL2561_VISIBLE:
		return float64(visible(ch0, ch1)) / 0xFFFF
	case TSL2561_INFRARED:
		return float64(ch1) / 0xFFFF
	case TSL2561_FULLSPECTRUM:
		return float64(ch0) / 0xFFFF
	default:
		return 0
	}
}

// visible light can't be negative, clamp instead of wrapping
func visible(full, ir uint16) uint16 {
	if ir > full {
		return 0
	}
	return full - ir
}
