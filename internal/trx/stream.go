package trx

import (
	"errors"
	"fmt"
	"time"

	"github.com/rjboer/limetrx/internal/frontend"
	"github.com/rjboer/limetrx/internal/logging"
	"github.com/rjboer/limetrx/internal/sampleconv"
)

// ioTimeout bounds every stream transfer.
const ioTimeout = 30 * time.Millisecond

// Metadata flags.
const (
	FlagEndOfBurst uint32 = 1 << iota
)

// Metadata accompanies WriteMeta and ReadMeta. ReadMeta fills Timestamp.
type Metadata struct {
	Flags     uint32
	Timestamp int64
}

// ensureStarted starts every stream on the first transfer of the session,
// receive streams first. Later calls return the outcome of that first attempt.
func (d *Driver) ensureStarted() error {
	switch {
	case d.closed:
		return ErrClosed
	case d.failed:
		return ErrSessionFailed
	case !d.configured:
		return ErrNotStarted
	}
	d.startOnce.Do(func() {
		d.startErr = d.startStreams()
	})
	return d.startErr
}

func (d *Driver) startStreams() error {
	for _, dir := range []frontend.Direction{frontend.RX, frontend.TX} {
		chans := d.channels(dir)
		for ch := range chans {
			if err := chans[ch].stream.Start(); err != nil {
				return fmt.Errorf("%s ch%d: start stream: %w", dir, ch, err)
			}
			chans[ch].state = Started
		}
	}
	d.log.Info("streams started", logging.F("rx", d.rxCount), logging.F("tx", d.txCount))
	return nil
}

func (d *Driver) checkBatch(dir frontend.Direction, samples [][]complex64, count int) error {
	chans := len(d.channels(dir))
	if count < 0 {
		return fmt.Errorf("negative sample count %d", count)
	}
	if len(samples) < chans {
		return fmt.Errorf("%w: %d channel slices for %d channels", ErrBufferTooSmall, len(samples), chans)
	}
	for ch := 0; ch < chans; ch++ {
		if len(samples[ch]) < count {
			return fmt.Errorf("%w: ch%d holds %d of %d samples", ErrBufferTooSmall, ch, len(samples[ch]), count)
		}
	}
	if d.format.Fixed() {
		for ch, sc := range d.channels(dir) {
			if count*2 > len(sc.buf) {
				return fmt.Errorf("%w: %s ch%d batch %d exceeds scratch %d", ErrBufferTooSmall, dir, ch, count, len(sc.buf)/2)
			}
		}
	}
	return nil
}

// Write submits count samples per transmit channel for transmission at
// timestamp ts. A nil sample set is a no-op. endOfBurst flushes the partial
// packet after this batch. Timeouts and short writes are returned wrapping
// ErrTimeout; the session stays usable.
func (d *Driver) Write(ts int64, samples [][]complex64, count int, endOfBurst bool) error {
	if samples == nil {
		return nil
	}
	if err := d.ensureStarted(); err != nil {
		return err
	}
	if err := d.checkBatch(frontend.TX, samples, count); err != nil {
		return err
	}
	meta := frontend.Metadata{
		Timestamp:          ts,
		WaitForTimestamp:   true,
		FlushPartialPacket: endOfBurst,
	}
	var errs []error
	for ch, sc := range d.channels(frontend.TX) {
		var n int
		var err error
		if d.format.Fixed() {
			buf := sc.buf[:count*2]
			if err := sampleconv.ToFixed(buf, samples[ch][:count], d.format); err != nil {
				errs = append(errs, fmt.Errorf("tx ch%d: %w", ch, err))
				continue
			}
			n, err = sc.stream.WriteInt16(buf, meta, ioTimeout)
		} else {
			n, err = sc.stream.WriteComplex64(samples[ch][:count], meta, ioTimeout)
		}
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("tx ch%d: %w", ch, err))
		case n < count:
			errs = append(errs, fmt.Errorf("tx ch%d: wrote %d of %d: %w", ch, n, count, ErrTimeout))
		}
	}
	return errors.Join(errs...)
}

// Read drains count samples per receive channel into samples. It returns the
// batch timestamp and the sample count and error of the last receive channel
// only; an earlier channel that came up short is not reported.
func (d *Driver) Read(samples [][]complex64, count int) (int64, int, error) {
	if err := d.ensureStarted(); err != nil {
		return 0, 0, err
	}
	if err := d.checkBatch(frontend.RX, samples, count); err != nil {
		return 0, 0, err
	}
	var (
		meta frontend.Metadata
		n    int
		err  error
	)
	for ch, sc := range d.channels(frontend.RX) {
		meta = frontend.Metadata{}
		if d.format.Fixed() {
			buf := sc.buf[:count*2]
			n, err = sc.stream.ReadInt16(buf, &meta, ioTimeout)
			if n > 0 {
				if cerr := sampleconv.FromFixed(samples[ch][:n], buf[:n*2], d.format); cerr != nil {
					err = cerr
				}
			}
		} else {
			n, err = sc.stream.ReadComplex64(samples[ch][:count], &meta, ioTimeout)
		}
		if err != nil {
			err = fmt.Errorf("rx ch%d: %w", ch, err)
		}
	}
	return meta.Timestamp, n, err
}

// WriteMeta is Write with its options carried in a Metadata record.
func (d *Driver) WriteMeta(ts int64, samples [][]complex64, count int, md *Metadata) error {
	eob := md != nil && md.Flags&FlagEndOfBurst != 0
	return d.Write(ts, samples, count, eob)
}

// ReadMeta is Read reporting the batch timestamp through md.
func (d *Driver) ReadMeta(samples [][]complex64, count int, md *Metadata) (int, error) {
	ts, n, err := d.Read(samples, count)
	if md != nil {
		md.Timestamp = ts
		md.Flags = 0
	}
	return n, err
}
