// Package frontend defines the capability set the transceiver core needs from an
// RF front-end: register access, per-channel RF control and timestamped IQ streams.
package frontend

import (
	"errors"
	"fmt"
	"time"

	"github.com/rjboer/limetrx/internal/sampleconv"
)

// ErrTimeout is returned by streams when a transfer did not complete in time.
var ErrTimeout = errors.New("stream timeout")

// Direction selects the receive or transmit side of a channel.
type Direction int

const (
	RX Direction = iota
	TX
)

func (d Direction) String() string {
	if d == TX {
		return "tx"
	}
	return "rx"
}

// Registers is raw 16-bit register access to the front-end's digital block.
type Registers interface {
	ReadRegister(addr uint16) (uint16, error)
	WriteRegister(addr, value uint16) error
}

// SubDeviceSelector is implemented by multi-chip front-ends where register
// writes land on whichever chip is currently selected.
type SubDeviceSelector interface {
	ActiveSubDevice() (int, error)
	SelectSubDevice(index int) error
}

// WithSubDevice runs fn with sub-device index selected and restores the
// previous selection afterwards, even when fn fails. Front-ends without a
// selector run fn directly.
func WithSubDevice(regs Registers, index int, fn func() error) (err error) {
	sel, ok := regs.(SubDeviceSelector)
	if !ok {
		return fn()
	}
	prev, err := sel.ActiveSubDevice()
	if err != nil {
		return fmt.Errorf("read active sub-device: %w", err)
	}
	if err := sel.SelectSubDevice(index); err != nil {
		return fmt.Errorf("select sub-device %d: %w", index, err)
	}
	defer func() {
		if rerr := sel.SelectSubDevice(prev); rerr != nil && err == nil {
			err = fmt.Errorf("restore sub-device %d: %w", prev, rerr)
		}
	}()
	return fn()
}

// Metadata travels with every stream transfer.
type Metadata struct {
	// Timestamp is in samples of the hardware clock.
	Timestamp          int64
	WaitForTimestamp   bool
	FlushPartialPacket bool
}

// StreamConfig describes a single-channel stream.
type StreamConfig struct {
	Direction           Direction
	Channel             int
	Format              sampleconv.Format
	FIFOSize            int
	ThroughputVsLatency float64
}

// Stream is one direction of one channel. Fixed-point formats use the Int16
// methods with interleaved I/Q; Float32 uses the Complex64 methods.
type Stream interface {
	Config() StreamConfig
	Start() error
	Stop() error
	Close() error
	ReadComplex64(buf []complex64, meta *Metadata, timeout time.Duration) (int, error)
	ReadInt16(buf []int16, meta *Metadata, timeout time.Duration) (int, error)
	WriteComplex64(buf []complex64, meta Metadata, timeout time.Duration) (int, error)
	WriteInt16(buf []int16, meta Metadata, timeout time.Duration) (int, error)
}

// Device is an opened front-end.
type Device interface {
	Registers

	// Init programs power-on defaults.
	Init() error
	// LoadConfig restores a persisted register dump.
	LoadConfig(path string) error
	WriteBoardParam(id int, value float64, unit string) error

	EnableChannel(dir Direction, ch int, enable bool) error
	Gain(dir Direction, ch int) (float64, error)
	SetGain(dir Direction, ch int, dB float64) error
	Antenna(dir Direction, ch int) (string, error)
	SetAntenna(dir Direction, ch int, name string) error
	SampleRate(dir Direction) (float64, error)
	SetSampleRate(dir Direction, rate float64, oversample int) error
	SetLOFrequency(dir Direction, ch int, hz float64) error
	SetLPFBandwidth(dir Direction, ch int, hz float64) error
	Calibrate(dir Direction, ch int, bandwidth float64) error

	SetupStream(cfg StreamConfig) (Stream, error)
	Close() error
}

// Opener opens the front-end at a device index.
type Opener interface {
	Open(index int) (Device, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(index int) (Device, error)

func (f OpenerFunc) Open(index int) (Device, error) { return f(index) }
