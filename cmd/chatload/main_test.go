package main

import (
	"testing"
	"time"
)

func TestParsePing(t *testing.T) {
	at := time.Unix(0, 1700000000123456789)

	got, ok := parsePing("load-3: ping 7 1700000000123456789")
	if !ok || !got.Equal(at) {
		t.Errorf("expected %v, got %v (ok=%v)", at, got, ok)
	}

	for _, line := range []string{
		"load-3: hello",
		"ping 7 1700000000123456789",
		"load-3: ping 7 notanumber",
		"load-3: ping 7",
	} {
		if _, ok := parsePing(line); ok {
			t.Errorf("parsePing(%q) should fail", line)
		}
	}
}
