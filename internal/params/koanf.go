package params

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override file parameters.
const EnvPrefix = "LIMETRX_"

// Koanf is a Source backed by a koanf instance.
type Koanf struct {
	k *koanf.Koanf
}

// NewKoanf wraps an already loaded koanf instance.
func NewKoanf(k *koanf.Koanf) *Koanf { return &Koanf{k: k} }

// Load reads parameters from an HCL file, when path is not empty, and then
// overlays LIMETRX_* environment variables. LIMETRX_SAMPLE_RATE sets
// sample_rate.
func Load(path string) (*Koanf, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), hcl.Parser(true)); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return &Koanf{k: k}, nil
}

func (s *Koanf) Double(name string) (float64, bool) {
	if !s.k.Exists(name) {
		return 0, false
	}
	return toDouble(s.k.Get(name))
}

func (s *Koanf) String(name string) (string, bool) {
	if !s.k.Exists(name) {
		return "", false
	}
	v := s.k.Get(name)
	if v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}

// Keys lists every loaded parameter name.
func (s *Koanf) Keys() []string { return s.k.Keys() }
