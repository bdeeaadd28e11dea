package loadstats

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSummarize(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}

	p := Summarize(ds)
	if p.N != 100 {
		t.Errorf("expected n=100, got %d", p.N)
	}
	if p.P50 != 51*time.Millisecond {
		t.Errorf("expected p50 51ms, got %v", p.P50)
	}
	if p.P95 != 95*time.Millisecond {
		t.Errorf("expected p95 95ms, got %v", p.P95)
	}
	if p.P99 != 99*time.Millisecond {
		t.Errorf("expected p99 99ms, got %v", p.P99)
	}
	if p.Max != 100*time.Millisecond {
		t.Errorf("expected max 100ms, got %v", p.Max)
	}
	if ds[0] != 100*time.Millisecond {
		t.Error("Summarize must not reorder its input")
	}
}

func TestSummarize_Empty(t *testing.T) {
	if p := Summarize(nil); p.N != 0 {
		t.Errorf("expected zero value, got %+v", p)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddConnect(time.Millisecond)
			c.AddSent()
			c.AddMsgLatency(2 * time.Millisecond)
		}()
	}
	wg.Wait()
	c.AddError()

	if c.ConnectionCount() != 20 {
		t.Errorf("expected 20 connections, got %d", c.ConnectionCount())
	}
	if c.ErrorCount() != 1 {
		t.Errorf("expected 1 error, got %d", c.ErrorCount())
	}

	var buf bytes.Buffer
	c.Report(&buf, 1)
	out := buf.String()
	for _, want := range []string{"Connections:  20", "Delivered:    100.00%", "Broadcast Latency"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
