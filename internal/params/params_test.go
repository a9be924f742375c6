package params

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMapLookups(t *testing.T) {
	m := Map{"sample_rate": 1.92, "dec_inter": 4, "calibration": "none", "tx_power": "-3.5", "bad": "x"}
	if v, ok := m.Double("sample_rate"); !ok || v != 1.92 {
		t.Fatalf("sample_rate %g %v", v, ok)
	}
	if v, ok := m.Double("dec_inter"); !ok || v != 4 {
		t.Fatalf("dec_inter %g %v", v, ok)
	}
	if v, ok := m.Double("tx_power"); !ok || v != -3.5 {
		t.Fatalf("tx_power %g %v", v, ok)
	}
	if _, ok := m.Double("bad"); ok {
		t.Fatalf("non-numeric string should be absent as a double")
	}
	if _, ok := m.Double("missing"); ok {
		t.Fatalf("missing key should be absent")
	}
	if s, ok := m.String("calibration"); !ok || s != "none" {
		t.Fatalf("calibration %q %v", s, ok)
	}
	if got := Int(m, "dec_inter", 0); got != 4 {
		t.Fatalf("Int = %d", got)
	}
	if got := Int(m, "missing", 7); got != 7 {
		t.Fatalf("Int default = %d", got)
	}
	if v, ok := First(m, "device_index", "dec_inter"); !ok || v != 4 {
		t.Fatalf("First = %g %v", v, ok)
	}
}

func TestLoadHCLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trx.hcl")
	content := "sample_rate = 1.92\ncalibration = \"filter\"\ncfr0_order = 12\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LIMETRX_CALIBRATION", "none")
	t.Setenv("LIMETRX_DEC_INTER", "2")

	src, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if v, ok := src.Double("sample_rate"); !ok || v != 1.92 {
		t.Fatalf("sample_rate %g %v", v, ok)
	}
	if v, ok := src.Double("cfr0_order"); !ok || v != 12 {
		t.Fatalf("cfr0_order %g %v", v, ok)
	}
	if s, ok := src.String("calibration"); !ok || s != "none" {
		t.Fatalf("env should override calibration, got %q", s)
	}
	if v, ok := src.Double("dec_inter"); !ok || v != 2 {
		t.Fatalf("dec_inter from env %g %v", v, ok)
	}
	if _, ok := src.String("config_file"); ok {
		t.Fatalf("config_file should be absent")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.hcl")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
