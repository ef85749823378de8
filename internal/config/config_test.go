package config

import (
	"testing"
	"time"
)

func TestParseTradingPeriods(t *testing.T) {
	got := parseTradingPeriods("09:00-11:30, 13:30-15:00,21:00-02:30")
	want := []TradingPeriod{
		{Start: "09:00", End: "11:30"},
		{Start: "13:30", End: "15:00"},
		{Start: "21:00", End: "02:30"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d periods, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("period %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestParseTradingPeriodsEmpty(t *testing.T) {
	if got := parseTradingPeriods(""); got != nil {
		t.Fatalf("expected nil for empty input, got %+v", got)
	}
}

func TestIsTradingPeriodNoConfigTradesAllDay(t *testing.T) {
	if !IsTradingPeriod(nil, time.Date(2026, 8, 3, 3, 0, 0, 0, time.UTC)) {
		t.Fatal("expected no configured periods to mean always-trading")
	}
}

func TestIsTradingPeriodSameDayWindow(t *testing.T) {
	periods := []TradingPeriod{{Start: "09:00", End: "15:00"}}

	inside := time.Date(2026, 8, 3, 10, 30, 0, 0, time.UTC)
	if !IsTradingPeriod(periods, inside) {
		t.Fatal("expected 10:30 to be inside 09:00-15:00")
	}

	outside := time.Date(2026, 8, 3, 16, 0, 0, 0, time.UTC)
	if IsTradingPeriod(periods, outside) {
		t.Fatal("expected 16:00 to be outside 09:00-15:00")
	}
}

func TestIsTradingPeriodOvernightWindow(t *testing.T) {
	periods := []TradingPeriod{{Start: "21:00", End: "02:30"}}

	lateNight := time.Date(2026, 8, 3, 23, 0, 0, 0, time.UTC)
	if !IsTradingPeriod(periods, lateNight) {
		t.Fatal("expected 23:00 to be inside the 21:00-02:30 overnight window")
	}

	earlyMorning := time.Date(2026, 8, 3, 1, 0, 0, 0, time.UTC)
	if !IsTradingPeriod(periods, earlyMorning) {
		t.Fatal("expected 01:00 to be inside the 21:00-02:30 overnight window")
	}

	midday := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	if IsTradingPeriod(periods, midday) {
		t.Fatal("expected 12:00 to be outside the 21:00-02:30 overnight window")
	}
}
