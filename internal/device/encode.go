package device

import "math"

// EncodeTemperature packs a Celsius reading into the 12-bit float used by
// the temperature original data: bit 11 sign, bits 7-10 exponent, bits 0-6
// fraction. Values outside the exponent range saturate.
func EncodeTemperature(v float32) uint16 {
	bits := math.Float32bits(v)
	sign := uint16(bits>>31) & 0x1
	exp := int((bits>>23)&0xFF) - 127 + 7
	frac := uint16((bits&0x7FFFFF)>>16) & 0x7F
	switch {
	case v == 0:
		return sign << 11
	case exp <= 0:
		return sign<<11 | (frac+1)&0x7F
	case exp >= 0xF:
		return sign<<11 | 0xF<<8
	default:
		return sign<<11 | uint16(exp)<<7 | frac
	}
}

// EncodeHumidity packs a relative humidity reading into the unsigned 12-bit
// float: bits 8-11 exponent, bits 0-7 fraction.
func EncodeHumidity(v float32) uint16 {
	if v <= 0 {
		return 0
	}
	bits := math.Float32bits(v)
	exp := int((bits>>23)&0xFF) - 127 + 7
	frac := uint16((bits&0x7FFFFF)>>15) & 0xFF
	switch {
	case exp <= 0:
		return (frac + 1) & 0xFF
	case exp >= 0xF:
		return 0xF << 8
	default:
		return uint16(exp)<<8 | frac
	}
}

// EncodeNames builds setting name data: a count byte followed by one
// length-prefixed name per entry. Names are cut at 255 bytes.
func EncodeNames(names []string) []byte {
	n := min(len(names), 0xFF)
	out := make([]byte, 0, 1+n*8)
	out = append(out, byte(n))
	for _, name := range names[:n] {
		b := []byte(name)
		if len(b) > 0xFF {
			b = b[:0xFF]
		}
		out = append(out, byte(len(b)))
		out = append(out, b...)
	}
	return out
}
