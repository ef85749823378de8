package signal

import (
	"testing"

	"optioncore/internal/instrument"
)

func withMACD(dif, dea, macdBar, prevDif, prevDea float64) *instrument.Target {
	return &instrument.Target{Indicators: instrument.IndicatorSnapshot{
		"macd.dif": dif, "macd.dea": dea, "macd.macd_bar": macdBar,
		"macd.prev_dif": prevDif, "macd.prev_dea": prevDea,
	}}
}

func TestCheckOpenSignalGoldenCross(t *testing.T) {
	target := withMACD(10.5, 8.3, 2.2, 8.0, 9.0)
	s := DefaultMACDSignalService()
	got, ok := s.CheckOpenSignal(target)
	if !ok || got != "long_macd_golden_cross" {
		t.Fatalf("expected long_macd_golden_cross, got %q ok=%v", got, ok)
	}
}

func TestCheckOpenSignalNoCrossReturnsFalse(t *testing.T) {
	target := withMACD(10.5, 8.3, 2.2, 7.0, 6.0)
	s := DefaultMACDSignalService()
	_, ok := s.CheckOpenSignal(target)
	if ok {
		t.Fatal("expected no signal without a cross")
	}
}

func TestCheckOpenSignalMissingIndicatorReturnsFalse(t *testing.T) {
	target := &instrument.Target{Indicators: instrument.IndicatorSnapshot{}}
	s := DefaultMACDSignalService()
	_, ok := s.CheckOpenSignal(target)
	if ok {
		t.Fatal("expected no signal when macd indicator is absent")
	}
}

func TestCheckCloseSignalLongDeathCross(t *testing.T) {
	target := withMACD(8.0, 9.5, -1.5, 10.0, 9.0)
	s := DefaultMACDSignalService()
	got, ok := s.CheckCloseSignal(target, PositionView{Direction: "long"})
	if !ok || got != "close_long_macd_death_cross" {
		t.Fatalf("expected close_long_macd_death_cross, got %q ok=%v", got, ok)
	}
}

func TestCheckCloseSignalShortGoldenCross(t *testing.T) {
	target := withMACD(10.5, 8.3, 2.2, 8.0, 9.0)
	s := DefaultMACDSignalService()
	got, ok := s.CheckCloseSignal(target, PositionView{Direction: "short"})
	if !ok || got != "close_short_macd_golden_cross" {
		t.Fatalf("expected close_short_macd_golden_cross, got %q ok=%v", got, ok)
	}
}

func TestEnableShortSignalFalseSuppressesShortOpen(t *testing.T) {
	target := withMACD(8.0, 9.5, -1.5, 10.0, 9.0)
	s := DefaultMACDSignalService()
	s.EnableShortSignal = false
	_, ok := s.CheckOpenSignal(target)
	if ok {
		t.Fatal("expected no short signal when disabled")
	}
}
