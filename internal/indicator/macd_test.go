package indicator

import (
	"testing"
	"time"

	"optioncore/internal/barpipeline"
	"optioncore/internal/instrument"
)

func pushBars(t *instrument.Target, closes []float64) {
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	for i, c := range closes {
		t.AppendBar(barpipeline.Bar{Close: c, Datetime: base.Add(time.Duration(i) * time.Minute)})
	}
}

func TestMACDSkipsWithInsufficientHistory(t *testing.T) {
	target := &instrument.Target{Indicators: make(instrument.IndicatorSnapshot)}
	pushBars(target, make([]float64, 10))

	s := DefaultMACDService()
	s.CalculateBar(target)

	if _, ok := target.Indicators["macd.dif"]; ok {
		t.Fatal("expected no macd indicator written with insufficient history")
	}
}

func TestMACDWritesIndicatorsOnceEnoughHistory(t *testing.T) {
	target := &instrument.Target{Indicators: make(instrument.IndicatorSnapshot)}
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	pushBars(target, closes)

	s := DefaultMACDService()
	s.CalculateBar(target)

	if _, ok := target.Indicators["macd.dif"]; !ok {
		t.Fatal("expected macd.dif to be written")
	}
	if _, ok := target.Indicators["macd.dea"]; !ok {
		t.Fatal("expected macd.dea to be written")
	}
	if _, ok := target.Indicators["ema.fast"]; !ok {
		t.Fatal("expected ema.fast to be written")
	}
}

func TestMACDTracksPreviousValues(t *testing.T) {
	target := &instrument.Target{Indicators: make(instrument.IndicatorSnapshot)}
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	pushBars(target, closes)

	s := DefaultMACDService()
	s.CalculateBar(target)
	firstDif := target.Indicators["macd.dif"]
	firstDea := target.Indicators["macd.dea"]

	target.AppendBar(barpipeline.Bar{Close: 999, Datetime: time.Now()})
	s.CalculateBar(target)

	if target.Indicators["macd.prev_dif"] != firstDif {
		t.Fatalf("expected prev_dif to carry the previous call's dif, got %v want %v", target.Indicators["macd.prev_dif"], firstDif)
	}
	if target.Indicators["macd.prev_dea"] != firstDea {
		t.Fatalf("expected prev_dea to carry the previous call's dea, got %v want %v", target.Indicators["macd.prev_dea"], firstDea)
	}
}
