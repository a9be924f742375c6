package calib

import (
	"fmt"

	"github.com/rjboer/limetrx/internal/frontend"
	"github.com/rjboer/limetrx/internal/regfield"
)

// TDD timing registers.
const (
	RegTDDStartDelay uint16 = 0x00C0
	RegTDDStopDelay  uint16 = 0x00C1
	RegTDDSwitchMode uint16 = 0x00C2
	RegTDDSwitchDir  uint16 = 0x00C3
	RegTDDMode       uint16 = 0x00C4
)

// Mode word field names.
const (
	FieldEnableCtrl  = "enable_ctrl"
	FieldEnableDir   = "enable_dir"
	FieldTxPolarity  = "tx_polarity"
	FieldRxPolarity  = "rx_polarity"
	FieldPAEnable    = "pa_enable"
	FieldLNAEnable   = "lna_enable"
	FieldSwitchSrc   = "switch_src"
	FieldTriggerMode = "trigger_mode"
	FieldGuardCycles = "guard_cycles"
	FieldLoopback    = "loopback"
)

// ModeWord is the layout of RegTDDMode.
var ModeWord = regfield.MustLayout(
	regfield.Field{Name: FieldEnableCtrl, Offset: 0, Width: 1},
	regfield.Field{Name: FieldEnableDir, Offset: 1, Width: 1},
	regfield.Field{Name: FieldTxPolarity, Offset: 2, Width: 1},
	regfield.Field{Name: FieldRxPolarity, Offset: 3, Width: 1},
	regfield.Field{Name: FieldPAEnable, Offset: 4, Width: 1},
	regfield.Field{Name: FieldLNAEnable, Offset: 5, Width: 1},
	regfield.Field{Name: FieldSwitchSrc, Offset: 6, Width: 2},
	regfield.Field{Name: FieldTriggerMode, Offset: 8, Width: 2},
	regfield.Field{Name: FieldGuardCycles, Offset: 10, Width: 4},
	regfield.Field{Name: FieldLoopback, Offset: 14, Width: 1},
)

var enableFields = []string{FieldEnableCtrl, FieldEnableDir}

// TDDConfig is the switch timing of a TDD-capable build.
type TDDConfig struct {
	Present         bool
	StartDelay      uint16
	StopDelay       uint16
	SwitchMode      uint16
	SwitchDirection uint16
	// Mode holds ModeWord field values by name.
	Mode map[string]uint16
}

func (c TDDConfig) modeWithout(skip []string) map[string]uint16 {
	out := make(map[string]uint16, len(c.Mode))
	for k, v := range c.Mode {
		out[k] = v
	}
	for _, k := range skip {
		delete(out, k)
	}
	return out
}

// ProgramTDD writes the timing registers and the mode word with its enable
// fields cleared. FinalizeTDD sets those once the rest of the bring-up is done.
func ProgramTDD(regs frontend.Registers, cfg TDDConfig) error {
	if !cfg.Present {
		return nil
	}
	timing := []struct {
		name string
		addr uint16
		val  uint16
	}{
		{"start delay", RegTDDStartDelay, cfg.StartDelay},
		{"stop delay", RegTDDStopDelay, cfg.StopDelay},
		{"switch mode", RegTDDSwitchMode, cfg.SwitchMode},
		{"switch direction", RegTDDSwitchDir, cfg.SwitchDirection},
	}
	for _, r := range timing {
		if err := regs.WriteRegister(r.addr, r.val); err != nil {
			return fmt.Errorf("tdd: write %s: %w", r.name, err)
		}
	}
	word, err := ModeWord.Pack(cfg.modeWithout(enableFields))
	if err != nil {
		return fmt.Errorf("tdd: pack mode word: %w", err)
	}
	if err := regs.WriteRegister(RegTDDMode, word); err != nil {
		return fmt.Errorf("tdd: write mode word: %w", err)
	}
	return nil
}

// FinalizeTDD updates only the enable fields of the mode word, keeping every
// other bit as currently programmed.
func FinalizeTDD(regs frontend.Registers, cfg TDDConfig) error {
	if !cfg.Present {
		return nil
	}
	word, err := regs.ReadRegister(RegTDDMode)
	if err != nil {
		return fmt.Errorf("tdd: read mode word: %w", err)
	}
	enable := make(map[string]uint16, len(enableFields))
	for _, f := range enableFields {
		enable[f] = cfg.Mode[f]
	}
	word, err = ModeWord.Update(word, enable)
	if err != nil {
		return fmt.Errorf("tdd: update enable fields: %w", err)
	}
	if err := regs.WriteRegister(RegTDDMode, word); err != nil {
		return fmt.Errorf("tdd: write mode word: %w", err)
	}
	return nil
}
