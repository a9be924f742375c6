// Package params is the typed parameter lookup the driver reads its settings
// from.
package params

import (
	"fmt"
	"strconv"
	"strings"
)

// Source looks up named driver parameters. ok is false when the name is absent.
type Source interface {
	Double(name string) (v float64, ok bool)
	String(name string) (v string, ok bool)
}

// Map is an in-memory Source. Values may be numbers, strings or bools.
type Map map[string]any

func (m Map) Double(name string) (float64, bool) {
	v, ok := m[name]
	if !ok {
		return 0, false
	}
	return toDouble(v)
}

func (m Map) String(name string) (string, bool) {
	v, ok := m[name]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}

func toDouble(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint16:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Int looks up a double and truncates it, falling back to def when absent.
func Int(src Source, name string, def int) int {
	if v, ok := src.Double(name); ok {
		return int(v)
	}
	return def
}

// First returns the value of the first present name.
func First(src Source, names ...string) (float64, bool) {
	for _, n := range names {
		if v, ok := src.Double(n); ok {
			return v, true
		}
	}
	return 0, false
}
