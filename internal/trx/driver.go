// Package trx is the transceiver driver core: it opens a front-end, brings it
// up in a fixed order and moves timestamped sample batches between the host
// and the front-end streams.
package trx

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/rjboer/limetrx/internal/frontend"
	"github.com/rjboer/limetrx/internal/logging"
	"github.com/rjboer/limetrx/internal/params"
	"github.com/rjboer/limetrx/internal/sampleconv"
)

// APIVersion is the host ABI revision this driver is built against.
const APIVersion = 14

// baseRate is the LTE base sample rate that automatic negotiation multiplies.
const baseRate = 1.92e6

var rateMultipliers = []int64{1, 2, 4, 8, 12, 16}

// HostContext is what the host hands the driver at load time.
type HostContext struct {
	APIVersion int
	// Path is the directory relative paths in the parameters resolve against.
	Path   string
	Params params.Source
	Opener frontend.Opener
	Logger logging.Logger
}

// Fraction is a rational sample rate in Hz.
type Fraction struct {
	Num int64
	Den int64
}

func (f Fraction) Float() float64 {
	if f.Den == 0 {
		return 0
	}
	return float64(f.Num) / float64(f.Den)
}

// Init checks the host ABI, opens the front-end and reads every parameter
// the session needs. The returned driver still needs Start before any I/O.
func Init(host *HostContext) (*Driver, error) {
	if host == nil {
		return nil, &InitError{Err: errors.New("nil host context")}
	}
	if host.APIVersion != APIVersion {
		return nil, &InitError{Err: fmt.Errorf("%w: host %d, driver %d", ErrABIMismatch, host.APIVersion, APIVersion)}
	}
	if host.Opener == nil {
		return nil, &InitError{Err: errors.New("no front-end opener")}
	}
	src := host.Params
	if src == nil {
		src = params.Map{}
	}
	log := host.Logger
	if log == nil {
		log = logging.Default()
	}

	tdd, err := tddConfig(src)
	if err != nil {
		return nil, &InitError{Err: err}
	}
	d := &Driver{
		log:      log.With(logging.F("component", "trx")),
		decInter: params.Int(src, ParamDecInter, 0),
		txInterp: params.Int(src, ParamTxInterp, 0),
		format:   sampleFormat(src),
		tdd:      tdd,
	}
	if v, ok := src.Double(ParamSampleRate); ok {
		d.sampleRate = v * 1e6
	}
	for ch := range d.cfr {
		d.cfr[ch] = cfrConfig(src, ch)
	}

	index := 0
	if v, ok := params.First(src, ParamDeviceIndex, ParamLegacyIndex); ok {
		index = int(v)
	}
	dev, err := host.Opener.Open(index)
	if err != nil {
		return nil, &InitError{Err: fmt.Errorf("open device %d: %w", index, err)}
	}
	d.dev = dev
	d.log.Info("device opened", logging.F("index", index))

	if v, ok := src.Double(ParamTCXO); ok {
		if err := dev.WriteBoardParam(tcxoBoardParam, v, ""); err != nil {
			d.log.Warn("tcxo trim not applied", logging.F("value", v), logging.F("err", err))
		}
	}
	if v, ok := src.Double(ParamRxPower); ok {
		d.power.SetRX(v)
	}
	if v, ok := src.Double(ParamTxPower); ok {
		d.power.SetTX(v)
	}

	if name, ok := src.String(ParamConfigFile); ok && name != "" {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(host.Path, name)
		}
		if err := dev.LoadConfig(path); err != nil {
			dev.Close()
			return nil, &InitError{Err: fmt.Errorf("load register dump %s: %w", path, err)}
		}
		d.restored = true
		d.log.Info("register dump loaded", logging.F("path", path))
	} else if err := dev.Init(); err != nil {
		dev.Close()
		return nil, &InitError{Err: fmt.Errorf("initialize device: %w", err)}
	}

	mode, raw, known := calibrationMode(src)
	if !known {
		d.log.Warn("unknown calibration mode", logging.F("value", raw), logging.F("using", mode))
	}
	d.mode = mode
	d.log.Debug("session configured",
		logging.F("format", d.format),
		logging.F("calibration", d.mode),
		logging.F("sample_rate", d.sampleRate),
		logging.F("tdd", d.tdd.Present))
	return d, nil
}

// SampleRate picks the session sample rate. A configured rate wins. Otherwise
// the smallest multiple of 1.92 MHz from the supported table that covers
// minRate is chosen and remembered for Start. When a register dump was loaded
// and the configured rate is negative, the rate the device already runs at is
// reported. The second result is the multiplier picked, 0 when none was.
func (d *Driver) SampleRate(minRate float64) (Fraction, int, error) {
	if d.sampleRate > 0 {
		return Fraction{Num: int64(d.sampleRate), Den: 1}, 0, nil
	}
	if d.restored && d.sampleRate < 0 {
		rate, err := d.dev.SampleRate(frontend.RX)
		if err != nil {
			return Fraction{}, 0, fmt.Errorf("read device sample rate: %w", err)
		}
		return Fraction{Num: int64(rate), Den: 1}, 0, nil
	}
	for _, m := range rateMultipliers {
		rate := float64(m) * baseRate
		if minRate <= rate {
			d.sampleRate = rate
			return Fraction{Num: int64(rate), Den: 1}, int(m), nil
		}
	}
	return Fraction{}, 0, fmt.Errorf("%w: need %.0f Hz", ErrNoSampleRate, minRate)
}

// TxSamplesPerPacket is the transmit packet size the host should batch for,
// split across the transmit channels.
func (d *Driver) TxSamplesPerPacket() int {
	per := 1020
	if d.format == sampleconv.Int12 {
		per = 1360
	}
	return per / max(d.txCount, 1)
}

// AbsRxPower returns the configured absolute receive power in dBm.
func (d *Driver) AbsRxPower(ch int) (float64, error) { return d.power.RX() }

// AbsTxPower returns the configured absolute transmit power in dBm.
func (d *Driver) AbsTxPower(ch int) (float64, error) { return d.power.TX() }

// SetRxGain changes a receive channel gain at runtime. Failures are logged and
// returned; the stream keeps running.
func (d *Driver) SetRxGain(gain float64, ch int) error {
	return d.setGain(frontend.RX, ch, gain)
}

// SetTxGain is SetRxGain for the transmit side.
func (d *Driver) SetTxGain(gain float64, ch int) error {
	return d.setGain(frontend.TX, ch, gain)
}

func (d *Driver) setGain(dir frontend.Direction, ch int, gain float64) error {
	if d.dev == nil {
		return ErrClosed
	}
	dB := roundGain(gain)
	if err := d.dev.SetGain(dir, ch, dB); err != nil {
		d.log.Warn("set gain failed", logging.F("dir", dir), logging.F("ch", ch), logging.F("gain", dB), logging.F("err", err))
		return fmt.Errorf("%s ch%d: set gain: %w", dir, ch, err)
	}
	return nil
}

// roundGain rounds to the nearest whole dB.
func roundGain(g float64) float64 { return math.Floor(g + 0.5) }

// End stops and destroys every stream, closes the device and drops the sample
// buffers. Receive streams are stopped before transmit streams, and all
// streams are stopped before any is destroyed. End is safe after a failed
// Start and on a driver already ended.
func (d *Driver) End() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var errs []error
	for _, dir := range []frontend.Direction{frontend.RX, frontend.TX} {
		for ch, sc := range d.channels(dir) {
			if sc.stream == nil || sc.state != Started {
				continue
			}
			if err := sc.stream.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("%s ch%d: stop stream: %w", dir, ch, err))
			}
		}
	}
	for _, dir := range []frontend.Direction{frontend.RX, frontend.TX} {
		chans := d.channels(dir)
		for ch := range chans {
			sc := &chans[ch]
			if sc.stream != nil {
				if err := sc.stream.Close(); err != nil {
					errs = append(errs, fmt.Errorf("%s ch%d: destroy stream: %w", dir, ch, err))
				}
			}
			sc.stream = nil
			sc.buf = nil
		}
	}
	if d.dev != nil {
		if err := d.dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device: %w", err))
		}
		d.dev = nil
	}
	d.log.Info("session ended")
	return errors.Join(errs...)
}
