package utils

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, year int, month time.Month, day, hour, min int) time.Time {
	t.Helper()
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestNormalizeTimeRange_SwappedBounds(t *testing.T) {
	start := mustTime(t, 2025, 1, 1, 12, 0)
	end := mustTime(t, 2025, 1, 1, 10, 0)

	tr, err := NormalizeTimeRange(start, end, time.Time{}, 0, time.UTC, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !tr.Start.Equal(end) || !tr.End.Equal(start) {
		t.Fatalf("expected Start=%v End=%v, got %v", end, start, tr)
	}
}

func TestNormalizeTimeRange_MaxDuration(t *testing.T) {
	start := mustTime(t, 2025, 1, 1, 0, 0)
	end := mustTime(t, 2026, 6, 1, 0, 0)
	maxDuration := 366 * 24 * time.Hour

	tr, err := NormalizeTimeRange(start, end, time.Time{}, 0, time.UTC, maxDuration)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if dur := tr.End.Sub(tr.Start); dur != maxDuration {
		t.Fatalf("expected duration %v, got %v", maxDuration, dur)
	}
}

func TestNormalizeTimeRange_Defaults(t *testing.T) {
	now := mustTime(t, 2025, 3, 31, 9, 0)

	tr, err := NormalizeTimeRange(time.Time{}, time.Time{}, now, 30, time.UTC, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !tr.End.Equal(now) {
		t.Fatalf("expected end %v, got %v", now, tr.End)
	}
	if want := mustTime(t, 2025, 3, 1, 9, 0); !tr.Start.Equal(want) {
		t.Fatalf("expected start %v, got %v", want, tr.Start)
	}
	if !tr.Contains(now.Add(-time.Hour)) || tr.Contains(now) {
		t.Fatalf("Contains must treat the range as [start, end)")
	}
}

func TestNormalizeTimeRange_Invalid(t *testing.T) {
	if _, err := NormalizeTimeRange(time.Time{}, time.Time{}, time.Now(), 0, time.UTC, 0); err == nil {
		t.Fatalf("expected error when no start and no default window")
	}
	at := mustTime(t, 2025, 1, 1, 10, 0)
	if _, err := NormalizeTimeRange(at, at, time.Time{}, 0, time.UTC, 0); err == nil {
		t.Fatalf("expected error for empty range")
	}
}

func TestNewPage(t *testing.T) {
	p := NewPage([]int{21, 22, 23}, 43, 2, 20)
	if !p.HasNext || !p.HasPrev {
		t.Fatalf("expected both neighbours, got %+v", p)
	}

	last := NewPage([]int{41, 42, 43}, 43, 3, 20)
	if last.HasNext {
		t.Fatalf("last page must not have next: %+v", last)
	}

	empty := NewPage[int](nil, 0, 1, 20)
	if empty.Items == nil || len(empty.Items) != 0 || empty.HasNext || empty.HasPrev {
		t.Fatalf("unexpected empty page: %+v", empty)
	}
}
