package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": Debug, "": Info, " WARNING ": Warn, "error": Error}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != JSON {
		t.Fatalf("unexpected json parse %v %v", f, err)
	}
	if f, err := ParseFormat("logfmt"); err != nil || f != Logfmt {
		t.Fatalf("unexpected logfmt parse %v %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestJSONLoggerCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Debug, JSON, &buf).With(F("component", "trx"))
	l.Info("stream started", F("channel", 1), Field{Key: "", Value: "dropped"})

	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if payload["msg"] != "stream started" {
		t.Fatalf("unexpected msg %v", payload["msg"])
	}
	if payload["component"] != "trx" {
		t.Fatalf("missing inherited field: %v", payload)
	}
	if payload["channel"] != float64(1) {
		t.Fatalf("missing channel field: %v", payload)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Warn, Text, &buf)
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestDefaultConcurrentAccess(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			Default().Debug("rx")
		}()
		go func() {
			defer wg.Done()
			SetDefault(New(Info, Text, io.Discard))
		}()
	}
	wg.Wait()

	SetDefault(nil)
	if Default() == nil {
		t.Fatalf("nil must not replace the default logger")
	}
}
