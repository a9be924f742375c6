// Package regfield packs and unpacks named bit fields of 16-bit registers from a
// table of (name, offset, width) descriptors.
package regfield

import (
	"fmt"
	"sort"
)

// Field describes one sub-field of a register.
type Field struct {
	Name   string
	Offset uint
	Width  uint
}

func (f Field) mask() uint16 {
	return uint16((1<<f.Width)-1) << f.Offset
}

// Layout is an ordered set of non-overlapping fields within a 16-bit register.
type Layout struct {
	fields []Field
	byName map[string]Field
}

// NewLayout validates the descriptors and builds a Layout. Fields must have a
// positive width, fit within 16 bits, carry unique names and not overlap.
func NewLayout(fields ...Field) (*Layout, error) {
	l := &Layout{byName: make(map[string]Field, len(fields))}
	var used uint16
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field at offset %d has no name", f.Offset)
		}
		if f.Width == 0 || f.Offset+f.Width > 16 {
			return nil, fmt.Errorf("field %q (offset %d width %d) does not fit a 16-bit register", f.Name, f.Offset, f.Width)
		}
		if _, dup := l.byName[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		if used&f.mask() != 0 {
			return nil, fmt.Errorf("field %q overlaps another field", f.Name)
		}
		used |= f.mask()
		l.byName[f.Name] = f
		l.fields = append(l.fields, f)
	}
	return l, nil
}

// MustLayout is NewLayout for package-level tables; it panics on a bad table.
func MustLayout(fields ...Field) *Layout {
	l, err := NewLayout(fields...)
	if err != nil {
		panic(err)
	}
	return l
}

// Fields returns the descriptors in declaration order.
func (l *Layout) Fields() []Field {
	return append([]Field(nil), l.fields...)
}

// Field looks up a descriptor by name.
func (l *Layout) Field(name string) (Field, bool) {
	f, ok := l.byName[name]
	return f, ok
}

// Mask returns the combined mask of the named fields.
func (l *Layout) Mask(names ...string) (uint16, error) {
	var m uint16
	for _, n := range names {
		f, ok := l.byName[n]
		if !ok {
			return 0, fmt.Errorf("unknown field %q", n)
		}
		m |= f.mask()
	}
	return m, nil
}

// Pack assembles a register word from per-field values. Fields missing from
// values are zero. A value wider than its field is an error.
func (l *Layout) Pack(values map[string]uint16) (uint16, error) {
	return l.Update(0, values)
}

// Update replaces the named fields inside word and leaves every other bit alone.
func (l *Layout) Update(word uint16, values map[string]uint16) (uint16, error) {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		f, ok := l.byName[n]
		if !ok {
			return 0, fmt.Errorf("unknown field %q", n)
		}
		v := values[n]
		if v>>f.Width != 0 {
			return 0, fmt.Errorf("value %d overflows field %q (%d bits)", v, n, f.Width)
		}
		word = word&^f.mask() | v<<f.Offset
	}
	return word, nil
}

// Unpack splits a register word into its named field values.
func (l *Layout) Unpack(word uint16) map[string]uint16 {
	out := make(map[string]uint16, len(l.fields))
	for _, f := range l.fields {
		out[f.Name] = (word & f.mask()) >> f.Offset
	}
	return out
}

// Get extracts one field from word.
func (l *Layout) Get(word uint16, name string) (uint16, error) {
	f, ok := l.byName[name]
	if !ok {
		return 0, fmt.Errorf("unknown field %q", name)
	}
	return (word & f.mask()) >> f.Offset, nil
}
