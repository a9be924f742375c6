package trx

import (
	"fmt"
	"math"

	"github.com/rjboer/limetrx/internal/calib"
	"github.com/rjboer/limetrx/internal/cfr"
	"github.com/rjboer/limetrx/internal/params"
	"github.com/rjboer/limetrx/internal/sampleconv"
)

// Parameter names read at init.
const (
	ParamSampleRate   = "sample_rate"
	ParamDecInter     = "dec_inter"
	ParamTxInterp     = "tx_interp"
	ParamDeviceIndex  = "device_index"
	ParamLegacyIndex  = "lms7002_index"
	ParamTCXO         = "tcxo_calc"
	ParamRxPower      = "rx_power"
	ParamTxPower      = "tx_power"
	ParamConfigFile   = "config_file"
	ParamCalibration  = "calibration"
	ParamSampleFormat = "sample_format"

	ParamTDDStartDelay = "tdd_start_delay"
	ParamTDDStopDelay  = "tdd_stop_delay"
	ParamTDDSwitchMode = "tdd_switch_mode"
	ParamTDDSwitchDir  = "tdd_switch_dir"
)

// tcxoBoardParam is the board parameter id of the reference oscillator DAC.
const tcxoBoardParam = 0

func cfrParam(ch int, name string) string { return fmt.Sprintf("cfr%d_%s", ch, name) }

func tddFieldParam(field string) string { return "tdd_" + field }

// cfrConfig reads cfr<ch>_order, cfr<ch>_threshold and cfr<ch>_gain. Absent
// keys read as zero, which bypasses the block.
func cfrConfig(src params.Source, ch int) cfr.Config {
	cfg := cfr.Config{Order: params.Int(src, cfrParam(ch, "order"), 0)}
	cfg.Threshold, _ = src.Double(cfrParam(ch, "threshold"))
	cfg.Gain, _ = src.Double(cfrParam(ch, "gain"))
	return cfg
}

// tddConfig reads the TDD switch timing. A build is treated as TDD capable as
// soon as any tdd_* key is present. Timing values must fit a register and
// mode fields their bit width.
func tddConfig(src params.Source) (calib.TDDConfig, error) {
	var cfg calib.TDDConfig
	var err error
	value := func(name string, limit uint16) uint16 {
		v, ok := src.Double(name)
		if !ok || err != nil {
			return 0
		}
		cfg.Present = true
		if v < 0 || v > float64(limit) || v != math.Trunc(v) {
			err = fmt.Errorf("%w: %s = %g outside 0..%d", ErrInvalidParams, name, v, limit)
			return 0
		}
		return uint16(v)
	}
	cfg.StartDelay = value(ParamTDDStartDelay, math.MaxUint16)
	cfg.StopDelay = value(ParamTDDStopDelay, math.MaxUint16)
	cfg.SwitchMode = value(ParamTDDSwitchMode, math.MaxUint16)
	cfg.SwitchDirection = value(ParamTDDSwitchDir, math.MaxUint16)
	for _, f := range calib.ModeWord.Fields() {
		name := tddFieldParam(f.Name)
		if _, ok := src.Double(name); !ok {
			continue
		}
		if cfg.Mode == nil {
			cfg.Mode = map[string]uint16{}
		}
		cfg.Mode[f.Name] = value(name, uint16(1)<<f.Width-1)
	}
	return cfg, err
}

func sampleFormat(src params.Source) sampleconv.Format {
	s, ok := src.String(ParamSampleFormat)
	if !ok {
		return sampleconv.Float32
	}
	return sampleconv.ParseFormat(s)
}

func calibrationMode(src params.Source) (calib.Mode, string, bool) {
	s, ok := src.String(ParamCalibration)
	if !ok {
		return calib.DefaultMode, "", true
	}
	m, known := calib.ParseMode(s)
	return m, s, known
}
