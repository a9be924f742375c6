package trx

import (
	"errors"
	"io"
	"testing"

	"github.com/rjboer/limetrx/internal/calib"
	"github.com/rjboer/limetrx/internal/cfr"
	"github.com/rjboer/limetrx/internal/frontend"
	"github.com/rjboer/limetrx/internal/logging"
	"github.com/rjboer/limetrx/internal/params"
	"github.com/rjboer/limetrx/internal/sampleconv"
)

func newHost(m *frontend.Mock, p params.Map) *HostContext {
	return &HostContext{
		APIVersion: APIVersion,
		Path:       "/etc/limetrx",
		Params:     p,
		Opener:     m.Opener(),
		Logger:     logging.New(logging.Debug, logging.Text, io.Discard),
	}
}

func radio(rx, tx int) RadioParams {
	return RadioParams{
		RFPortCount:    1,
		RxChannelCount: rx,
		TxChannelCount: tx,
		RxGain:         []float64{30.4, 30.6, 10, 10},
		TxGain:         []float64{40.5, 20, 20, 20},
		RxFreq:         []float64{2.14e9, 2.14e9, 2.14e9, 2.14e9},
		TxFreq:         []float64{1.95e9, 1.95e9, 1.95e9, 1.95e9},
		RxBandwidth:    []float64{10e6},
		TxBandwidth:    []float64{3e6},
	}
}

func mustInit(t *testing.T, m *frontend.Mock, p params.Map) *Driver {
	t.Helper()
	d, err := Init(newHost(m, p))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	return d
}

func kinds(ops []frontend.Op, keep ...string) []frontend.Op {
	set := map[string]bool{}
	for _, k := range keep {
		set[k] = true
	}
	var out []frontend.Op
	for _, op := range ops {
		if set[op.Kind] {
			out = append(out, op)
		}
	}
	return out
}

func TestInitRejectsABIMismatch(t *testing.T) {
	m := frontend.NewMock()
	host := newHost(m, params.Map{})
	host.APIVersion = APIVersion + 1
	_, err := Init(host)
	var ie *InitError
	if !errors.As(err, &ie) || !errors.Is(err, ErrABIMismatch) {
		t.Fatalf("expected InitError wrapping ErrABIMismatch, got %v", err)
	}
	if ops := m.Ops(); len(ops) != 0 {
		t.Fatalf("mismatch must not touch the device, got %v", ops)
	}
}

func TestInitReadsParameters(t *testing.T) {
	m := frontend.NewMock()
	d := mustInit(t, m, params.Map{
		"tcxo_calc":     128,
		"rx_power":      -20.5,
		"sample_format": "int12",
		"calibration":   "IQ_DC",
	})
	if d.Format() != sampleconv.Int12 {
		t.Fatalf("format = %v", d.Format())
	}
	if d.CalibrationMode() != calib.IQDCOnly {
		t.Fatalf("mode = %v", d.CalibrationMode())
	}
	if d.Restored() {
		t.Fatalf("no register dump configured")
	}
	bp := m.OpsOf(frontend.OpBoardParam)
	if len(bp) != 1 || bp[0].Float != 128 {
		t.Fatalf("tcxo board param ops %v", bp)
	}
	if len(m.OpsOf(frontend.OpInit)) != 1 {
		t.Fatalf("expected device init")
	}
	if p, err := d.AbsRxPower(0); err != nil || p != -20.5 {
		t.Fatalf("rx power %g %v", p, err)
	}
	if _, err := d.AbsTxPower(0); !errors.Is(err, ErrPowerUnavailable) {
		t.Fatalf("tx power should be unavailable, got %v", err)
	}
}

func TestInitUnknownCalibrationFallsBackToFilter(t *testing.T) {
	d := mustInit(t, frontend.NewMock(), params.Map{"calibration": "bogus"})
	if d.CalibrationMode() != calib.FilterOnly {
		t.Fatalf("mode = %v", d.CalibrationMode())
	}
}

func TestInitDeviceIndexAlias(t *testing.T) {
	m := frontend.NewMock()
	_, err := Init(newHost(m, params.Map{"lms7002_index": 1}))
	if err == nil {
		t.Fatalf("expected open failure for index 1")
	}
	var ie *InitError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InitError, got %T", err)
	}
}

func TestInitLoadFailureClosesDevice(t *testing.T) {
	m := frontend.NewMock()
	m.FailOn = func(op frontend.Op) error {
		if op.Kind == frontend.OpLoadConfig {
			return errors.New("bad dump")
		}
		return nil
	}
	if _, err := Init(newHost(m, params.Map{"config_file": "dump.ini"})); err == nil {
		t.Fatalf("expected init failure")
	}
	if !m.Closed() {
		t.Fatalf("device left open after failed init")
	}
}

func TestInitRejectsOutOfRangeTDD(t *testing.T) {
	for _, p := range []params.Map{
		{"tdd_start_delay": -1},
		{"tdd_stop_delay": 70000},
		{"tdd_switch_mode": 1.5},
		{"tdd_start_delay": 7, "tdd_guard_cycles": 20},
	} {
		m := frontend.NewMock()
		_, err := Init(newHost(m, p))
		var ie *InitError
		if !errors.As(err, &ie) || !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("%v: expected InitError wrapping ErrInvalidParams, got %v", p, err)
		}
		if ops := m.Ops(); len(ops) != 0 {
			t.Fatalf("%v: bad timing must not touch the device, got %v", p, ops)
		}
	}
	d := mustInit(t, frontend.NewMock(), params.Map{"tdd_stop_delay": 0xffff, "tdd_guard_cycles": 15})
	if d.tdd.StopDelay != 0xffff || d.tdd.Mode[calib.FieldGuardCycles] != 15 {
		t.Fatalf("limits rejected: %+v", d.tdd)
	}
}

func TestSampleRateNegotiation(t *testing.T) {
	d := mustInit(t, frontend.NewMock(), params.Map{})
	rate, mult, err := d.SampleRate(3e6)
	if err != nil || rate.Num != 3840000 || rate.Den != 1 || mult != 2 {
		t.Fatalf("negotiated %+v x%d %v", rate, mult, err)
	}
	// the negotiated rate sticks for Start
	if again, _, _ := d.SampleRate(1); again.Num != 3840000 {
		t.Fatalf("rate not remembered: %+v", again)
	}

	d = mustInit(t, frontend.NewMock(), params.Map{})
	if _, _, err := d.SampleRate(40e6); !errors.Is(err, ErrNoSampleRate) {
		t.Fatalf("expected ErrNoSampleRate, got %v", err)
	}

	d = mustInit(t, frontend.NewMock(), params.Map{"sample_rate": 23.04})
	if rate, _, _ := d.SampleRate(1e6); rate.Float() != 23.04e6 {
		t.Fatalf("configured rate %+v", rate)
	}
}

func TestSampleRateFromRestoredDevice(t *testing.T) {
	m := frontend.NewMock()
	if err := m.SetSampleRate(frontend.RX, 7.68e6, 0); err != nil {
		t.Fatalf("seed rate: %v", err)
	}
	d := mustInit(t, m, params.Map{"config_file": "dump.ini", "sample_rate": -1})
	rate, mult, err := d.SampleRate(1e6)
	if err != nil || rate.Num != 7680000 || mult != 0 {
		t.Fatalf("restored rate %+v x%d %v", rate, mult, err)
	}
}

func TestTxSamplesPerPacket(t *testing.T) {
	m := frontend.NewMock()
	d := mustInit(t, m, params.Map{"sample_format": "12"})
	if err := d.Start(radio(2, 2)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := d.TxSamplesPerPacket(); got != 680 {
		t.Fatalf("12-bit 2 tx = %d", got)
	}
	d = mustInit(t, frontend.NewMock(), params.Map{})
	if got := d.TxSamplesPerPacket(); got != 1020 {
		t.Fatalf("float before start = %d", got)
	}
}

func TestRuntimeGain(t *testing.T) {
	m := frontend.NewMock()
	d := mustInit(t, m, params.Map{})
	if err := d.SetRxGain(12.5, 1); err != nil {
		t.Fatalf("set rx gain: %v", err)
	}
	ops := m.OpsOf(frontend.OpSetGain)
	if len(ops) != 1 || ops[0].Float != 13 || ops[0].Channel != 1 || ops[0].Dir != frontend.RX {
		t.Fatalf("gain ops %+v", ops)
	}
	m.FailOn = func(op frontend.Op) error {
		if op.Kind == frontend.OpSetGain {
			return errors.New("rejected")
		}
		return nil
	}
	if err := d.SetTxGain(3, 0); err == nil {
		t.Fatalf("expected tx gain failure")
	}
}

func TestEndTeardownOrder(t *testing.T) {
	m := frontend.NewMock()
	d := mustInit(t, m, params.Map{"sample_format": "16"})
	if err := d.Start(radio(2, 1)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := d.Read(make2(2, 16), 16); err != nil {
		t.Fatalf("read: %v", err)
	}
	m.Reset()
	if err := d.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	got := kinds(m.Ops(), frontend.OpStopStream, frontend.OpCloseStream, frontend.OpCloseDevice)
	want := []struct {
		kind string
		dir  frontend.Direction
		ch   int
	}{
		{frontend.OpStopStream, frontend.RX, 0},
		{frontend.OpStopStream, frontend.RX, 1},
		{frontend.OpStopStream, frontend.TX, 0},
		{frontend.OpCloseStream, frontend.RX, 0},
		{frontend.OpCloseStream, frontend.RX, 1},
		{frontend.OpCloseStream, frontend.TX, 0},
		{frontend.OpCloseDevice, frontend.RX, 0},
	}
	if len(got) != len(want) {
		t.Fatalf("teardown ops %+v", got)
	}
	for i, w := range want {
		if got[i].Kind != w.kind || got[i].Dir != w.dir || got[i].Channel != w.ch {
			t.Fatalf("op %d = %+v, want %+v", i, got[i], w)
		}
	}
	if d.rx[0].buf != nil || d.tx[0].buf != nil {
		t.Fatalf("buffers not released")
	}
	if err := d.End(); err != nil {
		t.Fatalf("second end: %v", err)
	}
}

func TestEndAfterFailedStart(t *testing.T) {
	m := frontend.NewMock()
	d := mustInit(t, m, params.Map{})
	m.FailOn = func(op frontend.Op) error {
		if op.Kind == frontend.OpSetLO {
			return errors.New("pll unlocked")
		}
		return nil
	}
	if err := d.Start(radio(1, 1)); err == nil {
		t.Fatalf("expected start failure")
	}
	m.FailOn = nil
	if err := d.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(m.OpsOf(frontend.OpStopStream)) != 0 {
		t.Fatalf("streams were never started and must not be stopped")
	}
	if len(m.OpsOf(frontend.OpCloseStream)) != 2 || !m.Closed() {
		t.Fatalf("configured streams and device must be released")
	}
}

func TestInitProgramsCFRAndTDDOnStart(t *testing.T) {
	m := frontend.NewMock()
	d := mustInit(t, m, params.Map{
		"cfr0_order":      5,
		"cfr0_threshold":  0.5,
		"cfr0_gain":       1.0,
		"tdd_start_delay": 7,
		"tdd_enable_ctrl": 1,
		"tdd_pa_enable":   1,
	})
	if err := d.Start(radio(1, 1)); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctrl := m.Register(cfr.SubDevice(0), cfr.BlockAddr(0, cfr.RegControl))
	if order, _ := cfr.Control.Get(ctrl, "order"); order != 5 {
		t.Fatalf("cfr order field = %d (ctrl %#x)", order, ctrl)
	}
	if g := m.Register(0, cfr.BlockAddr(0, cfr.RegGain)); g != 8192 {
		t.Fatalf("cfr gain = %d", g)
	}
	if v := m.Register(0, calib.RegTDDStartDelay); v != 7 {
		t.Fatalf("tdd start delay = %d", v)
	}
	word := m.Register(0, calib.RegTDDMode)
	if v, _ := calib.ModeWord.Get(word, calib.FieldEnableCtrl); v != 1 {
		t.Fatalf("tdd enable_ctrl not finalized: %#x", word)
	}
	if v, _ := calib.ModeWord.Get(word, calib.FieldPAEnable); v != 1 {
		t.Fatalf("tdd pa_enable lost: %#x", word)
	}
}
