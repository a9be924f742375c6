// Package cfr generates crest-factor-reduction window taps and programs them
// into a channel's CFR block.
package cfr

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/rjboer/limetrx/internal/frontend"
)

// Valid filter orders. Anything outside runs the block in bypass.
const (
	MinOrder = 1
	MaxOrder = 40
)

const (
	windowScale    = 32768 * 0.125
	gainScale      = 8192
	thresholdScale = 65535
	maxGain        = 32767
)

// Config is the per-channel CFR setting.
type Config struct {
	Order     int
	Threshold float64
	// Gain is linear. Zero or negative disables gain and sets bypass_gain.
	Gain float64
}

// Bypassed reports whether the order puts the block in bypass.
func (c Config) Bypassed() bool { return c.Order < MinOrder || c.Order > MaxOrder }

// Window returns the raised-cosine taps w[i] = round(4096*(1-cos(2*pi*i/n))).
func Window(n int) []int16 {
	if n <= 0 {
		return []int16{}
	}
	raw := make([]float64, n)
	for i := range raw {
		// fold onto the first half so the taps are exactly symmetric
		k := i
		if n-i < k {
			k = n - i
		}
		raw[i] = 1 - math.Cos(2*math.Pi*float64(k)/float64(n))
	}
	floats.Scale(windowScale, raw)
	taps := make([]int16, n)
	for i, v := range raw {
		taps[i] = int16(math.Round(v))
	}
	return taps
}

// ScaleGain converts a linear gain to the gain register value. ok is false
// when the gain is not positive and the gain stage must be bypassed.
func ScaleGain(g float64) (value uint16, ok bool) {
	if !(g > 0) {
		return 0, false
	}
	return uint16(math.Round(clamp(g*gainScale, 0, maxGain))), true
}

// ScaleThreshold clamps t to [0,1] and scales it to the 16-bit register range.
func ScaleThreshold(t float64) uint16 {
	if math.IsNaN(t) {
		t = 0
	}
	return uint16(math.Round(clamp(t, 0, 1) * thresholdScale))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Program writes cfg into the CFR block of channel ch. The chip serving ch is
// selected for the duration and the caller's selection restored afterwards.
func Program(regs frontend.Registers, ch int, cfg Config) error {
	return frontend.WithSubDevice(regs, SubDevice(ch), func() error {
		return program(regs, ch, cfg)
	})
}

func program(regs frontend.Registers, ch int, cfg Config) error {
	ctrlAddr := BlockAddr(ch, RegControl)
	if cfg.Bypassed() {
		word, _ := Control.Pack(map[string]uint16{"bypass": 1})
		if err := regs.WriteRegister(ctrlAddr, word); err != nil {
			return fmt.Errorf("cfr ch%d: write bypass: %w", ch, err)
		}
		return nil
	}

	taps := Window(cfg.Order)
	ctrl := map[string]uint16{"order": uint16(cfg.Order)}

	if gain, ok := ScaleGain(cfg.Gain); ok {
		if err := regs.WriteRegister(BlockAddr(ch, RegGain), gain); err != nil {
			return fmt.Errorf("cfr ch%d: write gain: %w", ch, err)
		}
	} else {
		ctrl["bypass_gain"] = 1
	}
	if err := regs.WriteRegister(BlockAddr(ch, RegThreshold), ScaleThreshold(cfg.Threshold)); err != nil {
		return fmt.Errorf("cfr ch%d: write threshold: %w", ch, err)
	}
	word, err := Control.Pack(ctrl)
	if err != nil {
		return fmt.Errorf("cfr ch%d: pack control: %w", ch, err)
	}
	if err := regs.WriteRegister(ctrlAddr, word); err != nil {
		return fmt.Errorf("cfr ch%d: write control: %w", ch, err)
	}

	mem := memWriter{regs: regs, ch: ch}
	for bank := 0; bank < Banks; bank++ {
		for w := 0; w < WordsPerBank; w++ {
			if err := mem.word(bank, w, 0); err != nil {
				return fmt.Errorf("cfr ch%d: clear bank %d: %w", ch, bank, err)
			}
		}
	}
	for w, tap := range taps[(cfg.Order-1)/2+1:] {
		if err := mem.word(halfBank, w, tap); err != nil {
			return fmt.Errorf("cfr ch%d: write half window: %w", ch, err)
		}
	}
	for w, tap := range taps {
		if err := mem.word(fullBank, w, tap); err != nil {
			return fmt.Errorf("cfr ch%d: write window: %w", ch, err)
		}
	}
	return nil
}

type memWriter struct {
	regs frontend.Registers
	ch   int
}

// word addresses one memory word and fills all of its sub-registers with v.
func (m memWriter) word(bank, w int, v int16) error {
	addr, err := MemAddr.Pack(map[string]uint16{"word": uint16(w), "bank": uint16(bank)})
	if err != nil {
		return err
	}
	if err := m.regs.WriteRegister(BlockAddr(m.ch, RegMemAddr), addr); err != nil {
		return err
	}
	for sub := 0; sub < SubRegsPerWord; sub++ {
		if err := m.regs.WriteRegister(BlockAddr(m.ch, RegMemData), uint16(v)); err != nil {
			return err
		}
	}
	return nil
}
