package soapy

import (
	"errors"
	"fmt"
	"time"

	"github.com/pothosware/go-soapy-sdr/pkg/device"
	"github.com/pothosware/go-soapy-sdr/pkg/sdrerror"

	"github.com/rjboer/limetrx/internal/frontend"
)

// SoapySDR stream flags.
const (
	flagEndBurst = 1 << 1
	flagHasTime  = 1 << 2
)

// stream wraps one single-channel SoapySDR stream. Exactly one of cs16 and
// cf32 is set. Timestamps are converted between sample ticks and nanoseconds
// with the rate captured at setup.
type stream struct {
	cfg  frontend.StreamConfig
	rate float64
	cs16 *device.SDRStreamCS16
	cf32 *device.SDRStreamCF32
}

func (s *stream) Config() frontend.StreamConfig { return s.cfg }

func (s *stream) Start() error {
	if s.cs16 != nil {
		return s.cs16.Activate(0, 0, 0)
	}
	return s.cf32.Activate(0, 0, 0)
}

func (s *stream) Stop() error {
	if s.cs16 != nil {
		return s.cs16.Deactivate(0, 0)
	}
	return s.cf32.Deactivate(0, 0)
}

func (s *stream) Close() error {
	if s.cs16 != nil {
		return s.cs16.Close()
	}
	return s.cf32.Close()
}

func ticksToNs(ticks int64, rate float64) int64 {
	if rate <= 0 {
		return 0
	}
	return int64(float64(ticks) * 1e9 / rate)
}

func nsToTicks(ns int64, rate float64) int64 {
	return int64(float64(ns)*rate/1e9 + 0.5)
}

func timeoutUs(d time.Duration) uint { return uint(d / time.Microsecond) }

func (s *stream) writeFlags(meta frontend.Metadata) []int {
	flags := 0
	if meta.WaitForTimestamp {
		flags |= flagHasTime
	}
	if meta.FlushPartialPacket {
		flags |= flagEndBurst
	}
	return []int{flags}
}

func (s *stream) result(n uint, err error) (int, error) {
	return transferResult(s.cfg, n, err)
}

// transferResult maps a SoapySDR transfer outcome onto the frontend contract:
// a library timeout or an empty transfer is frontend.ErrTimeout.
func transferResult(cfg frontend.StreamConfig, n uint, err error) (int, error) {
	var to *sdrerror.Timeout
	switch {
	case errors.As(err, &to):
		return int(n), fmt.Errorf("%s stream %d: %w: %w", cfg.Direction, cfg.Channel, frontend.ErrTimeout, err)
	case err != nil:
		return int(n), fmt.Errorf("%s stream %d: %w", cfg.Direction, cfg.Channel, err)
	case n == 0:
		return 0, fmt.Errorf("%s stream %d: %w", cfg.Direction, cfg.Channel, frontend.ErrTimeout)
	}
	return int(n), nil
}

func (s *stream) ReadComplex64(buf []complex64, meta *frontend.Metadata, timeout time.Duration) (int, error) {
	if s.cf32 == nil {
		return 0, fmt.Errorf("stream %d is fixed-point", s.cfg.Channel)
	}
	if len(buf) == 0 {
		return 0, nil
	}
	flags := []int{0}
	ns, n, err := s.cf32.Read([][]complex64{buf}, uint(len(buf)), flags, timeoutUs(timeout))
	meta.Timestamp = nsToTicks(int64(ns), s.rate)
	return s.result(n, err)
}

func (s *stream) ReadInt16(buf []int16, meta *frontend.Metadata, timeout time.Duration) (int, error) {
	if s.cs16 == nil {
		return 0, fmt.Errorf("stream %d is float", s.cfg.Channel)
	}
	if len(buf) < 2 {
		return 0, nil
	}
	flags := []int{0}
	ns, n, err := s.cs16.Read([][]int16{buf}, uint(len(buf)/2), flags, timeoutUs(timeout))
	meta.Timestamp = nsToTicks(int64(ns), s.rate)
	return s.result(n, err)
}

func (s *stream) WriteComplex64(buf []complex64, meta frontend.Metadata, timeout time.Duration) (int, error) {
	if s.cf32 == nil {
		return 0, fmt.Errorf("stream %d is fixed-point", s.cfg.Channel)
	}
	if len(buf) == 0 {
		return 0, nil
	}
	ns := uint(ticksToNs(meta.Timestamp, s.rate))
	n, err := s.cf32.Write([][]complex64{buf}, uint(len(buf)), s.writeFlags(meta), ns, timeoutUs(timeout))
	return s.result(n, err)
}

func (s *stream) WriteInt16(buf []int16, meta frontend.Metadata, timeout time.Duration) (int, error) {
	if s.cs16 == nil {
		return 0, fmt.Errorf("stream %d is float", s.cfg.Channel)
	}
	if len(buf) < 2 {
		return 0, nil
	}
	ns := uint(ticksToNs(meta.Timestamp, s.rate))
	n, err := s.cs16.Write([][]int16{buf}, uint(len(buf)/2), s.writeFlags(meta), ns, timeoutUs(timeout))
	return s.result(n, err)
}
