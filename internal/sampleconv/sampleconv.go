// Package sampleconv converts between normalized complex64 IQ samples and the
// interleaved fixed-point buffers the front-end streams carry.
package sampleconv

import (
	"fmt"
	"math"
	"strings"
)

// Format is the sample format negotiated for every stream of a session.
type Format int

const (
	Float32 Format = iota
	Int16
	Int12
)

func (f Format) String() string {
	switch f {
	case Float32:
		return "float32"
	case Int16:
		return "int16"
	case Int12:
		return "int12"
	default:
		return "unknown"
	}
}

// ParseFormat maps a sample_format parameter to a Format. Any value mentioning
// "16" selects Int16, "12" selects Int12, everything else keeps Float32.
func ParseFormat(s string) Format {
	switch {
	case strings.Contains(s, "16"):
		return Int16
	case strings.Contains(s, "12"):
		return Int12
	default:
		return Float32
	}
}

// Fixed reports whether the format needs a scratch buffer and conversion.
func (f Format) Fixed() bool { return f == Int16 || f == Int12 }

// TxScale is the multiplier applied to normalized samples before transmit.
func (f Format) TxScale() float64 {
	if f == Int12 {
		return 2047
	}
	return 32767
}

// RxScale is the divisor applied to received fixed-point samples. It is one
// unit above TxScale: the negative full scale of a two's-complement word.
func (f Format) RxScale() float64 {
	if f == Int12 {
		return 2048
	}
	return 32768
}

// ToFixed writes len(src) interleaved I/Q pairs into dst, which must hold at
// least 2*len(src) values. Results saturate at the int16 limits.
func ToFixed(dst []int16, src []complex64, f Format) error {
	if len(dst) < 2*len(src) {
		return fmt.Errorf("fixed buffer holds %d values, need %d", len(dst), 2*len(src))
	}
	scale := f.TxScale()
	for i, v := range src {
		dst[2*i] = saturate(math.Round(float64(real(v)) * scale))
		dst[2*i+1] = saturate(math.Round(float64(imag(v)) * scale))
	}
	return nil
}

// FromFixed fills dst from interleaved I/Q pairs in src.
func FromFixed(dst []complex64, src []int16, f Format) error {
	if len(src) < 2*len(dst) {
		return fmt.Errorf("fixed buffer holds %d values, need %d", len(src), 2*len(dst))
	}
	scale := float32(1 / f.RxScale())
	for i := range dst {
		dst[i] = complex(float32(src[2*i])*scale, float32(src[2*i+1])*scale)
	}
	return nil
}

func saturate(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
