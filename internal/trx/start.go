package trx

import (
	"fmt"

	"github.com/rjboer/limetrx/internal/calib"
	"github.com/rjboer/limetrx/internal/cfr"
	"github.com/rjboer/limetrx/internal/frontend"
	"github.com/rjboer/limetrx/internal/logging"
)

// Stream tuning used for every channel.
const (
	streamFIFOSize            = 256 * 1024
	streamThroughputVsLatency = 0.3

	// per-call batch limit of fixed-point sessions, one full stream FIFO
	scratchSamples = streamFIFOSize
)

// RadioParams is the radio configuration the host negotiated. Per-channel
// slices are indexed by channel; a short gain or bandwidth slice leaves the
// missing channels at zero.
type RadioParams struct {
	RFPortCount    int
	RxChannelCount int
	TxChannelCount int
	RxGain         []float64
	TxGain         []float64
	RxFreq         []float64
	TxFreq         []float64
	RxBandwidth    []float64
	TxBandwidth    []float64
}

func at(v []float64, i int) float64 {
	if i < len(v) {
		return v[i]
	}
	return 0
}

func (p RadioParams) validate() error {
	if p.RFPortCount != 1 {
		return fmt.Errorf("%w: got %d", ErrTooManyPorts, p.RFPortCount)
	}
	for _, c := range []struct {
		dir   frontend.Direction
		count int
	}{{frontend.RX, p.RxChannelCount}, {frontend.TX, p.TxChannelCount}} {
		if c.count < 0 || c.count > MaxChannels {
			return fmt.Errorf("%w: %s %d > %d", ErrTooManyChannels, c.dir, c.count, MaxChannels)
		}
	}
	if p.RxChannelCount > 0 && len(p.RxFreq) == 0 {
		return fmt.Errorf("%w: no rx frequency", ErrInvalidParams)
	}
	if p.TxChannelCount > 0 && len(p.TxFreq) == 0 {
		return fmt.Errorf("%w: no tx frequency", ErrInvalidParams)
	}
	return nil
}

// Start programs the front-end in a fixed order. Any error other than a
// calibration or antenna refresh failure aborts with a *FatalError; writes
// made before the failing step are not rolled back and the driver must be
// ended. Start runs once per session.
func (d *Driver) Start(p RadioParams) error {
	switch {
	case d.closed:
		return ErrClosed
	case d.failed:
		return ErrSessionFailed
	case d.configured:
		return ErrAlreadyStarted
	}
	if err := d.start(p); err != nil {
		d.failed = true
		d.log.Error("start failed", logging.F("err", err))
		return err
	}
	d.configured = true
	d.log.Info("running",
		logging.F("rx_channels", d.rxCount),
		logging.F("tx_channels", d.txCount),
		logging.F("sample_rate", d.sampleRate),
		logging.F("format", d.format))
	return nil
}

func (d *Driver) start(p RadioParams) error {
	if err := p.validate(); err != nil {
		return fatal("validate", err)
	}
	d.rxCount, d.txCount = p.RxChannelCount, p.TxChannelCount
	dev := d.dev

	if err := calib.ProgramTDD(dev, d.tdd); err != nil {
		return fatal("tdd timing", err)
	}

	for ch := 0; ch < max(d.rxCount, d.txCount); ch++ {
		if err := cfr.Program(dev, ch, d.cfr[ch]); err != nil {
			return fatal("cfr", fmt.Errorf("ch%d: %w", ch, err))
		}
	}

	if d.restored {
		d.refreshAntennas()
	} else if err := d.applyDefaults(p); err != nil {
		return fatal("defaults", err)
	}

	if d.sampleRate > 0 {
		if err := dev.SetSampleRate(frontend.RX, d.sampleRate, d.decInter); err != nil {
			return fatal("sample rate", fmt.Errorf("rx: %w", err))
		}
		over := d.decInter
		if d.txInterp > 0 {
			over = d.txInterp
		}
		if err := dev.SetSampleRate(frontend.TX, d.sampleRate, over); err != nil {
			return fatal("sample rate", fmt.Errorf("tx: %w", err))
		}
	}

	if err := d.setupStreams(); err != nil {
		return fatal("streams", err)
	}

	if err := d.tuneLO(p); err != nil {
		return fatal("lo", err)
	}

	bw := calib.Bandwidths{RX: p.RxBandwidth, TX: p.TxBandwidth}
	if d.mode.Filter() {
		if err := calib.FilterCalibrate(dev, d.rxCount, d.txCount, bw); err != nil {
			d.log.Warn("filter calibration incomplete", logging.F("err", err))
		}
	}
	if d.mode.IQDC() {
		if err := calib.IQDCCalibrate(dev, d.rxCount, d.txCount, bw); err != nil {
			d.log.Warn("iq/dc calibration incomplete", logging.F("err", err))
		}
	}

	if err := calib.FinalizeTDD(dev, d.tdd); err != nil {
		return fatal("tdd enable", err)
	}
	return nil
}

// applyDefaults enables every active channel and sets its gain.
func (d *Driver) applyDefaults(p RadioParams) error {
	for _, c := range []struct {
		dir   frontend.Direction
		count int
		gains []float64
	}{
		{frontend.RX, d.rxCount, p.RxGain},
		{frontend.TX, d.txCount, p.TxGain},
	} {
		for ch := 0; ch < c.count; ch++ {
			if err := d.dev.EnableChannel(c.dir, ch, true); err != nil {
				return fmt.Errorf("%s ch%d: enable: %w", c.dir, ch, err)
			}
			if err := d.dev.SetGain(c.dir, ch, roundGain(at(c.gains, ch))); err != nil {
				return fmt.Errorf("%s ch%d: set gain: %w", c.dir, ch, err)
			}
		}
	}
	return nil
}

// refreshAntennas re-applies the antenna selection a register dump left behind
// so the RF switches match it. Failures only degrade the session.
func (d *Driver) refreshAntennas() {
	for _, c := range []struct {
		dir   frontend.Direction
		count int
	}{{frontend.RX, d.rxCount}, {frontend.TX, d.txCount}} {
		for ch := 0; ch < c.count; ch++ {
			name, err := d.dev.Antenna(c.dir, ch)
			if err == nil {
				err = d.dev.SetAntenna(c.dir, ch, name)
			}
			if err != nil {
				d.log.Warn("antenna refresh failed", logging.F("dir", c.dir), logging.F("ch", ch), logging.F("err", err))
			}
		}
	}
}

// setupStreams configures every active stream and allocates its scratch
// buffer, so no transfer depends on the size of the first one.
func (d *Driver) setupStreams() error {
	for _, dir := range []frontend.Direction{frontend.RX, frontend.TX} {
		chans := d.channels(dir)
		for ch := range chans {
			s, err := d.dev.SetupStream(frontend.StreamConfig{
				Direction:           dir,
				Channel:             ch,
				Format:              d.format,
				FIFOSize:            streamFIFOSize,
				ThroughputVsLatency: streamThroughputVsLatency,
			})
			if err != nil {
				return fmt.Errorf("%s ch%d: %w", dir, ch, err)
			}
			chans[ch].stream = s
			chans[ch].state = Configured
			if d.format.Fixed() {
				chans[ch].buf = make([]int16, scratchSamples*2)
			}
		}
	}
	return nil
}

// tuneLO sets the LO of channel 0 in both directions, and of channel 2 when
// the direction has more than two channels. Channels share an LO pair per
// chip. A direction with no frequency at all is skipped.
func (d *Driver) tuneLO(p RadioParams) error {
	for _, c := range []struct {
		dir   frontend.Direction
		count int
		freq  []float64
	}{
		{frontend.RX, d.rxCount, p.RxFreq},
		{frontend.TX, d.txCount, p.TxFreq},
	} {
		if len(c.freq) == 0 {
			d.log.Debug("no lo frequency", logging.F("dir", c.dir))
			continue
		}
		for _, ch := range []int{0, 2} {
			if ch > 0 && ch >= c.count {
				continue
			}
			hz := at(c.freq, ch)
			if ch >= len(c.freq) {
				hz = c.freq[0]
			}
			if err := d.dev.SetLOFrequency(c.dir, ch, hz); err != nil {
				return fmt.Errorf("%s ch%d: %.0f Hz: %w", c.dir, ch, hz, err)
			}
		}
	}
	return nil
}
