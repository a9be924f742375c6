package trx

import (
	"sync"

	"github.com/rjboer/limetrx/internal/calib"
	"github.com/rjboer/limetrx/internal/cfr"
	"github.com/rjboer/limetrx/internal/frontend"
	"github.com/rjboer/limetrx/internal/logging"
	"github.com/rjboer/limetrx/internal/sampleconv"
)

// MaxChannels bounds the rx and tx channel counts of a session.
const MaxChannels = 4

// StreamState is the lifecycle of one stream channel. Transitions only move
// forward.
type StreamState int

const (
	Unconfigured StreamState = iota
	Configured
	Started
)

func (s StreamState) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Started:
		return "started"
	default:
		return "unknown"
	}
}

// streamChannel is one direction of one channel. buf is the session-owned
// fixed-point scratch buffer, allocated with the stream for scratchSamples
// samples; it stays nil for Float32 sessions.
type streamChannel struct {
	stream frontend.Stream
	state  StreamState
	buf    []int16
}

// Driver is the session state of one opened front-end. It is created by Init,
// configured once by Start and released by End.
type Driver struct {
	dev frontend.Device
	log logging.Logger

	rxCount    int
	txCount    int
	sampleRate float64
	decInter   int
	txInterp   int
	format     sampleconv.Format
	mode       calib.Mode
	restored   bool
	power      calib.Power
	cfr        [MaxChannels]cfr.Config
	tdd        calib.TDDConfig

	rx [MaxChannels]streamChannel
	tx [MaxChannels]streamChannel

	configured bool
	failed     bool
	closed     bool

	startOnce sync.Once
	startErr  error
}

// Format returns the negotiated sample format.
func (d *Driver) Format() sampleconv.Format { return d.format }

// CalibrationMode returns the calibration policy resolved at init.
func (d *Driver) CalibrationMode() calib.Mode { return d.mode }

// Restored reports whether the configuration came from a persisted register dump.
func (d *Driver) Restored() bool { return d.restored }

// ChannelCounts returns the active rx and tx channel counts.
func (d *Driver) ChannelCounts() (rx, tx int) { return d.rxCount, d.txCount }

// State returns the lifecycle state of a stream channel.
func (d *Driver) State(dir frontend.Direction, ch int) StreamState {
	if ch < 0 || ch >= MaxChannels {
		return Unconfigured
	}
	if dir == frontend.TX {
		return d.tx[ch].state
	}
	return d.rx[ch].state
}

func (d *Driver) channels(dir frontend.Direction) []streamChannel {
	if dir == frontend.TX {
		return d.tx[:d.txCount]
	}
	return d.rx[:d.rxCount]
}
