// Package soapy drives a LimeSDR through SoapySDR's LMS7 module.
package soapy

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pothosware/go-soapy-sdr/pkg/device"
	"github.com/pothosware/go-soapy-sdr/pkg/modules"
	"github.com/pothosware/go-soapy-sdr/pkg/sdrlogger"
	"github.com/pothosware/go-soapy-sdr/pkg/version"

	"github.com/rjboer/limetrx/internal/frontend"
	"github.com/rjboer/limetrx/internal/logging"
	"github.com/rjboer/limetrx/internal/sampleconv"
)

const (
	// register interface of the transceiver chip
	rficInterface = "BBIC"
	// register interface of the board FPGA
	fpgaInterface = "FPGA"
	// FPGA register selecting which transceiver chip SPI writes reach
	chipSelectReg = 0xFFFF

	settingOversampling = "OVERSAMPLING"
	settingLoadConfig   = "LOAD_CONFIG"
	settingTCXODAC      = "DAC_SET"
	settingCalibrate    = "CALIBRATE"
	settingEnable       = "ENABLE_CHANNEL"
)

// Board parameter ids understood by WriteBoardParam.
const BoardParamTCXODAC = 0

var ErrNoDevice = errors.New("no matching SoapySDR device")

// Info is one enumerated device.
type Info map[string]string

// Versions reports the SoapySDR library versions in use.
func Versions() (abi, api, lib string) {
	return version.GetABIVersion(), version.GetAPIVersion(), version.GetLibVersion()
}

// Modules lists the SoapySDR modules found on the search path.
func Modules() []string { return modules.ListModules() }

// List enumerates devices matching args, e.g. {"driver": "lime"}.
func List(args map[string]string) []Info {
	found := device.Enumerate(args)
	out := make([]Info, len(found))
	for i, f := range found {
		out[i] = Info(f)
	}
	return out
}

// Opener opens the index-th device matching Args, "driver=lime" by default.
// Enumeration and make are retried with exponential backoff for up to
// MaxElapsed, 3s when zero.
type Opener struct {
	Args       map[string]string
	MaxElapsed time.Duration
	Log        logging.Logger
}

func (o Opener) Open(index int) (frontend.Device, error) {
	log := o.Log
	if log == nil {
		log = logging.Default()
	}
	sdrlogger.SetLogLevel(sdrlogger.Error)
	abi, api, lib := Versions()
	log.Debug("soapysdr", logging.F("abi", abi), logging.F("api", api), logging.F("lib", lib))

	args := map[string]string{"driver": "lime"}
	for k, v := range o.Args {
		args[k] = v
	}
	maxElapsed := o.MaxElapsed
	if maxElapsed == 0 {
		maxElapsed = 3 * time.Second
	}

	var dev *device.SDRDevice
	op := func() error {
		found := device.Enumerate(args)
		if index < 0 || index >= len(found) {
			return fmt.Errorf("%w: index %d of %d", ErrNoDevice, index, len(found))
		}
		d, err := device.Make(found[index])
		if err != nil {
			return err
		}
		dev = d
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     50 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      maxElapsed,
		Clock:               backoff.SystemClock})
	if err != nil {
		return nil, fmt.Errorf("soapy open %d: %w", index, err)
	}
	log.Info("soapy device made", logging.F("index", index), logging.F("driver", args["driver"]))
	return &Device{dev: dev, log: log}, nil
}

// Device adapts a SoapySDR device to frontend.Device.
type Device struct {
	dev *device.SDRDevice
	log logging.Logger
	sub int
}

func dir(d frontend.Direction) device.Direction {
	if d == frontend.TX {
		return device.DirectionTX
	}
	return device.DirectionRX
}

// ReadRegister reads a transceiver register. SoapySDR reports no read errors.
func (d *Device) ReadRegister(addr uint16) (uint16, error) {
	return uint16(d.dev.ReadRegister(rficInterface, uint32(addr))), nil
}

func (d *Device) WriteRegister(addr, value uint16) error {
	if err := d.dev.WriteRegister(rficInterface, uint32(addr), uint32(value)); err != nil {
		return fmt.Errorf("write reg %#04x: %w", addr, err)
	}
	return nil
}

// ActiveSubDevice returns the transceiver chip register accesses go to.
func (d *Device) ActiveSubDevice() (int, error) { return d.sub, nil }

// SelectSubDevice routes register accesses to chip index.
func (d *Device) SelectSubDevice(index int) error {
	if index < 0 || index > 15 {
		return fmt.Errorf("chip index %d out of range", index)
	}
	if err := d.dev.WriteRegister(fpgaInterface, chipSelectReg, uint32(1)<<index); err != nil {
		return fmt.Errorf("select chip %d: %w", index, err)
	}
	d.sub = index
	return nil
}

// Init is a no-op: the LMS7 module programs power-on defaults when the device
// is made.
func (d *Device) Init() error {
	d.log.Debug("using power-on defaults")
	return nil
}

func (d *Device) LoadConfig(path string) error {
	if err := d.dev.WriteSetting(settingLoadConfig, path); err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	return nil
}

func (d *Device) WriteBoardParam(id int, value float64, unit string) error {
	if id != BoardParamTCXODAC {
		return fmt.Errorf("board param %d not supported", id)
	}
	v := strconv.FormatFloat(value, 'f', -1, 64)
	if err := d.dev.WriteSetting(settingTCXODAC, v); err != nil {
		return fmt.Errorf("tcxo dac %s%s: %w", v, unit, err)
	}
	return nil
}

func (d *Device) EnableChannel(dr frontend.Direction, ch int, enable bool) error {
	return d.dev.WriteChannelSetting(dir(dr), uint(ch), settingEnable, strconv.FormatBool(enable))
}

func (d *Device) Gain(dr frontend.Direction, ch int) (float64, error) {
	return d.dev.GetGain(dir(dr), uint(ch)), nil
}

func (d *Device) SetGain(dr frontend.Direction, ch int, dB float64) error {
	return d.dev.SetGain(dir(dr), uint(ch), dB)
}

func (d *Device) Antenna(dr frontend.Direction, ch int) (string, error) {
	return d.dev.GetAntennas(dir(dr), uint(ch)), nil
}

func (d *Device) SetAntenna(dr frontend.Direction, ch int, name string) error {
	return d.dev.SetAntennas(dir(dr), uint(ch), name)
}

func (d *Device) SampleRate(dr frontend.Direction) (float64, error) {
	return d.dev.GetSampleRate(dir(dr), 0), nil
}

// SetSampleRate sets the host-side rate. A positive oversample fixes the
// ratio between the converter clock and the host rate; zero leaves it to the
// module.
func (d *Device) SetSampleRate(dr frontend.Direction, rate float64, oversample int) error {
	if oversample > 0 {
		if err := d.dev.WriteSetting(settingOversampling, strconv.Itoa(oversample)); err != nil {
			return fmt.Errorf("oversampling %d: %w", oversample, err)
		}
	}
	return d.dev.SetSampleRate(dir(dr), 0, rate)
}

func (d *Device) SetLOFrequency(dr frontend.Direction, ch int, hz float64) error {
	return d.dev.SetFrequency(dir(dr), uint(ch), hz, nil)
}

func (d *Device) SetLPFBandwidth(dr frontend.Direction, ch int, hz float64) error {
	return d.dev.SetBandwidth(dir(dr), uint(ch), hz)
}

func (d *Device) Calibrate(dr frontend.Direction, ch int, bandwidth float64) error {
	return d.dev.WriteChannelSetting(dir(dr), uint(ch), settingCalibrate, strconv.FormatFloat(bandwidth, 'f', 0, 64))
}

func (d *Device) SetupStream(cfg frontend.StreamConfig) (frontend.Stream, error) {
	args := streamArgs(cfg)
	chans := []uint{uint(cfg.Channel)}
	s := &stream{cfg: cfg, rate: d.dev.GetSampleRate(dir(cfg.Direction), uint(cfg.Channel))}
	var err error
	if cfg.Format.Fixed() {
		s.cs16, err = d.dev.SetupSDRStreamCS16(dir(cfg.Direction), chans, args)
	} else {
		s.cf32, err = d.dev.SetupSDRStreamCF32(dir(cfg.Direction), chans, args)
	}
	if err != nil {
		return nil, fmt.Errorf("setup %s stream %d: %w", cfg.Direction, cfg.Channel, err)
	}
	return s, nil
}

func (d *Device) Close() error { return d.dev.Unmake() }

// streamArgs maps the stream tuning onto LMS7 module stream arguments. The
// 12-bit format keeps CS16 on the host side and packs 12 bits on the link.
func streamArgs(cfg frontend.StreamConfig) map[string]string {
	args := map[string]string{}
	if cfg.FIFOSize > 0 {
		args["bufferLength"] = strconv.Itoa(cfg.FIFOSize)
	}
	args["latency"] = strconv.FormatFloat(cfg.ThroughputVsLatency, 'f', -1, 64)
	if cfg.Format == sampleconv.Int12 {
		args["linkFormat"] = "CS12"
	}
	return args
}
