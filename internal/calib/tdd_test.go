package calib

import (
	"testing"

	"github.com/rjboer/limetrx/internal/frontend"
)

func fullMode() map[string]uint16 {
	return map[string]uint16{
		FieldEnableCtrl:  1,
		FieldEnableDir:   1,
		FieldTxPolarity:  1,
		FieldRxPolarity:  0,
		FieldPAEnable:    1,
		FieldLNAEnable:   1,
		FieldSwitchSrc:   2,
		FieldTriggerMode: 3,
		FieldGuardCycles: 9,
		FieldLoopback:    1,
	}
}

func TestModeWordRoundTripHasNoBleed(t *testing.T) {
	if n := len(ModeWord.Fields()); n != 10 {
		t.Fatalf("expected ten fields, got %d", n)
	}
	in := fullMode()
	word, err := ModeWord.Pack(in)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	out := ModeWord.Unpack(word)
	for k, v := range in {
		if out[k] != v {
			t.Fatalf("field %s: got %d want %d", k, out[k], v)
		}
	}

	// Each field at its maximum, alone, must not leak into a neighbour.
	for _, f := range ModeWord.Fields() {
		top := uint16(1)<<f.Width - 1
		word, err := ModeWord.Pack(map[string]uint16{f.Name: top})
		if err != nil {
			t.Fatalf("pack %s: %v", f.Name, err)
		}
		for name, v := range ModeWord.Unpack(word) {
			if name == f.Name && v != top {
				t.Fatalf("%s lost its value: %d", name, v)
			}
			if name != f.Name && v != 0 {
				t.Fatalf("%s bled into %s", f.Name, name)
			}
		}
	}
}

func TestProgramAndFinalizeTDD(t *testing.T) {
	mock := frontend.NewMock()
	cfg := TDDConfig{
		Present:         true,
		StartDelay:      120,
		StopDelay:       80,
		SwitchMode:      2,
		SwitchDirection: 1,
		Mode:            fullMode(),
	}
	if err := ProgramTDD(mock, cfg); err != nil {
		t.Fatalf("program: %v", err)
	}
	regs := map[uint16]uint16{RegTDDStartDelay: 120, RegTDDStopDelay: 80, RegTDDSwitchMode: 2, RegTDDSwitchDir: 1}
	for addr, want := range regs {
		if got := mock.Register(0, addr); got != want {
			t.Fatalf("register %#x: got %d want %d", addr, got, want)
		}
	}
	staged := ModeWord.Unpack(mock.Register(0, RegTDDMode))
	if staged[FieldEnableCtrl] != 0 || staged[FieldEnableDir] != 0 {
		t.Fatalf("enable fields must stay clear until finalize: %v", staged)
	}
	if staged[FieldGuardCycles] != 9 || staged[FieldTriggerMode] != 3 {
		t.Fatalf("mode fields not staged: %v", staged)
	}

	if err := FinalizeTDD(mock, cfg); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	final := ModeWord.Unpack(mock.Register(0, RegTDDMode))
	for k, v := range fullMode() {
		if final[k] != v {
			t.Fatalf("field %s after finalize: got %d want %d", k, final[k], v)
		}
	}
}

func TestFinalizePreservesForeignBits(t *testing.T) {
	mock := frontend.NewMock()
	if err := mock.WriteRegister(RegTDDMode, 0x8000|0x0003); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cfg := TDDConfig{Present: true, Mode: map[string]uint16{FieldEnableCtrl: 0, FieldEnableDir: 1}}
	if err := FinalizeTDD(mock, cfg); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got := mock.Register(0, RegTDDMode); got != 0x8002 {
		t.Fatalf("unexpected mode word %#04x", got)
	}
}

func TestAbsentTDDIsSilent(t *testing.T) {
	mock := frontend.NewMock()
	if err := ProgramTDD(mock, TDDConfig{}); err != nil {
		t.Fatalf("program: %v", err)
	}
	if err := FinalizeTDD(mock, TDDConfig{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(mock.Ops()) != 0 {
		t.Fatalf("absent TDD must not touch registers: %+v", mock.Ops())
	}
}
