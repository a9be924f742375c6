package regfield

import "testing"

func TestNewLayoutRejectsBadTables(t *testing.T) {
	bad := [][]Field{
		{{Name: "a", Offset: 0, Width: 0}},
		{{Name: "a", Offset: 12, Width: 5}},
		{{Name: "a", Offset: 0, Width: 4}, {Name: "a", Offset: 4, Width: 4}},
		{{Name: "a", Offset: 0, Width: 4}, {Name: "b", Offset: 3, Width: 2}},
		{{Name: "", Offset: 0, Width: 1}},
	}
	for i, fields := range bad {
		if _, err := NewLayout(fields...); err == nil {
			t.Fatalf("table %d: expected error", i)
		}
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	l := MustLayout(
		Field{"lo", 0, 3},
		Field{"mid", 3, 5},
		Field{"hi", 8, 8},
	)
	in := map[string]uint16{"lo": 7, "mid": 0x15, "hi": 0xA5}
	word, err := l.Pack(in)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if word != 0xA5AF {
		t.Fatalf("unexpected word %#04x", word)
	}
	out := l.Unpack(word)
	for k, v := range in {
		if out[k] != v {
			t.Fatalf("field %s: got %d want %d", k, out[k], v)
		}
	}
}

func TestPackOverflowAndUnknown(t *testing.T) {
	l := MustLayout(Field{"a", 0, 2})
	if _, err := l.Pack(map[string]uint16{"a": 4}); err == nil {
		t.Fatalf("expected overflow error")
	}
	if _, err := l.Pack(map[string]uint16{"b": 1}); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if _, err := l.Get(0, "b"); err == nil {
		t.Fatalf("expected unknown field error from Get")
	}
}

func TestUpdatePreservesOtherBits(t *testing.T) {
	l := MustLayout(Field{"a", 0, 1}, Field{"b", 1, 1}, Field{"c", 4, 4})
	word, err := l.Update(0xFFF0, map[string]uint16{"a": 1, "b": 0})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if word != 0xFFF1 {
		t.Fatalf("unexpected word %#04x", word)
	}
	m, err := l.Mask("a", "c")
	if err != nil || m != 0x00F1 {
		t.Fatalf("unexpected mask %#04x %v", m, err)
	}
}
