package moderation

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestReport_BelowThreshold(t *testing.T) {
	l := NewLedger(3, time.Hour)

	for i := 1; i <= 2; i++ {
		out := l.Report("mallory", epoch)
		if out.Count != i {
			t.Errorf("report %d: count = %d", i, out.Count)
		}
		if out.Banned {
			t.Errorf("report %d: banned too early", i)
		}
		if !out.UnbanAt.IsZero() {
			t.Errorf("report %d: unexpected unban deadline", i)
		}
	}
	if l.Banned("mallory") {
		t.Error("Banned() = true after two reports")
	}
}

func TestReport_ThirdReportBans(t *testing.T) {
	l := NewLedger(3, 4*time.Hour)

	l.Report("mallory", epoch)
	l.Report("mallory", epoch)
	out := l.Report("mallory", epoch)

	if !out.Banned {
		t.Fatal("expected third report to ban")
	}
	if want := epoch.Add(4 * time.Hour); !out.UnbanAt.Equal(want) {
		t.Errorf("UnbanAt = %v, want %v", out.UnbanAt, want)
	}
	if !l.Banned("mallory") {
		t.Error("Banned() = false after ban")
	}
	if at, ok := l.UnbanAt("mallory"); !ok || !at.Equal(out.UnbanAt) {
		t.Errorf("UnbanAt() = (%v, %v)", at, ok)
	}
}

func TestReport_FurtherReportsKeepCounting(t *testing.T) {
	l := NewLedger(3, time.Hour)

	for i := 0; i < 3; i++ {
		l.Report("mallory", epoch)
	}
	out := l.Report("mallory", epoch.Add(time.Minute))

	if out.Count != 4 {
		t.Errorf("expected count 4, got %d", out.Count)
	}
	if !out.Banned {
		t.Error("expected user to remain banned")
	}
	if !out.UnbanAt.IsZero() {
		t.Error("a report during a pending ban must not start another ban")
	}
}

func TestUnban_ResetsCount(t *testing.T) {
	l := NewLedger(3, time.Hour)
	for i := 0; i < 3; i++ {
		l.Report("mallory", epoch)
	}

	if !l.Unban("mallory") {
		t.Fatal("expected a pending ban to be lifted")
	}
	if l.Count("mallory") != 0 {
		t.Errorf("expected count reset to 0, got %d", l.Count("mallory"))
	}
	if l.Banned("mallory") {
		t.Error("still banned after Unban")
	}
	if l.Unban("mallory") {
		t.Error("second Unban should report no pending ban")
	}

	// A fresh ban can start again after the reset.
	for i := 0; i < 3; i++ {
		l.Report("mallory", epoch.Add(2*time.Hour))
	}
	if _, ok := l.UnbanAt("mallory"); !ok {
		t.Error("expected a new ban after reset")
	}
}

func TestNewLedger_DefaultThreshold(t *testing.T) {
	l := NewLedger(0, time.Hour)
	if l.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %d, want %d", l.Threshold, DefaultThreshold)
	}
}
