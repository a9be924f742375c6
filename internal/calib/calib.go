// Package calib runs the front-end self-calibration routines and programs the
// TDD switch-timing block.
package calib

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rjboer/limetrx/internal/frontend"
)

// Mode selects which calibration routines run during start.
type Mode int

const (
	None Mode = iota
	IQDCOnly
	FilterOnly
	Both
)

// DefaultMode applies when no calibration parameter is given.
const DefaultMode = FilterOnly

// MinTxLPF is the lowest transmit low-pass bandwidth programmed by filter
// calibration.
const MinTxLPF = 5e6

func (m Mode) String() string {
	switch m {
	case None:
		return "none"
	case IQDCOnly:
		return "iq_dc"
	case FilterOnly:
		return "filter"
	case Both:
		return "all"
	default:
		return "unknown"
	}
}

// Filter reports whether low-pass filter calibration runs.
func (m Mode) Filter() bool { return m == FilterOnly || m == Both }

// IQDC reports whether IQ/DC calibration runs.
func (m Mode) IQDC() bool { return m == IQDCOnly || m == Both }

// ParseMode maps a calibration parameter to a Mode, case-insensitively.
// Unknown values return DefaultMode and ok=false.
func ParseMode(s string) (m Mode, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return None, true
	case "force", "all":
		return Both, true
	case "filter":
		return FilterOnly, true
	case "iq_dc":
		return IQDCOnly, true
	default:
		return DefaultMode, false
	}
}

// Bandwidths carries the per-channel bandwidths negotiated by the host. A
// channel without its own entry uses entry 0.
type Bandwidths struct {
	RX []float64
	TX []float64
}

func (b Bandwidths) of(dir frontend.Direction, ch int) float64 {
	list := b.RX
	if dir == frontend.TX {
		list = b.TX
	}
	if ch < len(list) {
		return list[ch]
	}
	if len(list) > 0 {
		return list[0]
	}
	return 0
}

// FilterCalibrate programs the low-pass filter of every active channel. The
// gain read before each change is written back afterwards so a bandwidth
// change never leaves the configured gain altered. Per-channel failures are
// collected and returned together; every channel is attempted.
func FilterCalibrate(dev frontend.Device, rxCount, txCount int, bw Bandwidths) error {
	var errs []error
	for ch := 0; ch < txCount; ch++ {
		hz := bw.of(frontend.TX, ch)
		if hz < MinTxLPF {
			hz = MinTxLPF
		}
		errs = append(errs, setLPFKeepingGain(dev, frontend.TX, ch, hz))
	}
	for ch := 0; ch < rxCount; ch++ {
		errs = append(errs, setLPFKeepingGain(dev, frontend.RX, ch, bw.of(frontend.RX, ch)))
	}
	return errors.Join(errs...)
}

func setLPFKeepingGain(dev frontend.Device, dir frontend.Direction, ch int, hz float64) error {
	gain, err := dev.Gain(dir, ch)
	if err != nil {
		return fmt.Errorf("%s ch%d: read gain: %w", dir, ch, err)
	}
	var errs []error
	if err := dev.SetLPFBandwidth(dir, ch, hz); err != nil {
		errs = append(errs, fmt.Errorf("%s ch%d: set LPF %.0f Hz: %w", dir, ch, hz, err))
	}
	if err := dev.SetGain(dir, ch, gain); err != nil {
		errs = append(errs, fmt.Errorf("%s ch%d: restore gain: %w", dir, ch, err))
	}
	return errors.Join(errs...)
}

// IQDCCalibrate runs IQ/DC calibration on every active channel, transmit
// first. Failures are collected and returned together.
func IQDCCalibrate(dev frontend.Device, rxCount, txCount int, bw Bandwidths) error {
	var errs []error
	for ch := 0; ch < txCount; ch++ {
		if err := dev.Calibrate(frontend.TX, ch, bw.of(frontend.TX, ch)); err != nil {
			errs = append(errs, fmt.Errorf("tx ch%d: calibrate: %w", ch, err))
		}
	}
	for ch := 0; ch < rxCount; ch++ {
		if err := dev.Calibrate(frontend.RX, ch, bw.of(frontend.RX, ch)); err != nil {
			errs = append(errs, fmt.Errorf("rx ch%d: calibrate: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}
