package order

import (
	"testing"
	"time"

	"optioncore/internal/sizing"
)

func TestCalculateAdaptivePriceShort(t *testing.T) {
	e := NewExecutor(DefaultExecutionConfig())
	instr := sizing.Instruction{Direction: sizing.Short, Price: 100}

	got := e.CalculateAdaptivePrice(instr, 98, 99, 0.2)
	want := 98 - 0.2
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCalculateAdaptivePriceShortFallsBackWithoutBid(t *testing.T) {
	e := NewExecutor(DefaultExecutionConfig())
	instr := sizing.Instruction{Direction: sizing.Short, Price: 100}

	got := e.CalculateAdaptivePrice(instr, 0, 99, 0.2)
	if got != 100 {
		t.Fatalf("expected fallback to instruction price 100, got %v", got)
	}
}

func TestCalculateAdaptivePriceLong(t *testing.T) {
	e := NewExecutor(DefaultExecutionConfig())
	instr := sizing.Instruction{Direction: sizing.Long, Price: 100}

	got := e.CalculateAdaptivePrice(instr, 98, 99, 0.2)
	want := 99 + 0.2
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRoundPriceToTick(t *testing.T) {
	cases := []struct {
		price, tick, want float64
	}{
		{100.07, 0.2, 100.0},
		{100.13, 0.2, 100.2},
		{100.0, 0, 100.0},
	}
	for _, c := range cases {
		got := RoundPriceToTick(c.price, c.tick)
		if got != c.want {
			t.Fatalf("RoundPriceToTick(%v, %v) = %v, want %v", c.price, c.tick, got, c.want)
		}
	}
}

func TestCheckTimeoutsFiresAfterDeadline(t *testing.T) {
	e := NewExecutor(ExecutionConfig{SlippageTicks: 1, TimeoutSecs: 15, MaxRetries: 3})
	submit := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	mo := e.RegisterOrder("o1", sizing.Instruction{VtSymbol: "rb2501.SHFE"})
	mo.SubmitTime = submit

	cancelIDs, evs := e.CheckTimeouts(submit.Add(10 * time.Second))
	if len(cancelIDs) != 0 || len(evs) != 0 {
		t.Fatalf("expected no timeout before deadline, got %d cancels", len(cancelIDs))
	}

	cancelIDs, evs = e.CheckTimeouts(submit.Add(16 * time.Second))
	if len(cancelIDs) != 1 || cancelIDs[0] != "o1" {
		t.Fatalf("expected timeout cancel for o1, got %v", cancelIDs)
	}
	if len(evs) != 1 {
		t.Fatalf("expected one OrderTimeoutEvent, got %d", len(evs))
	}
}

func TestMarkOrderFilledStopsTimeoutTracking(t *testing.T) {
	e := NewExecutor(ExecutionConfig{SlippageTicks: 1, TimeoutSecs: 15, MaxRetries: 3})
	submit := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	mo := e.RegisterOrder("o1", sizing.Instruction{VtSymbol: "rb2501.SHFE"})
	mo.SubmitTime = submit
	e.MarkOrderFilled("o1")

	cancelIDs, _ := e.CheckTimeouts(submit.Add(time.Hour))
	if len(cancelIDs) != 0 {
		t.Fatalf("expected no timeout for a filled order, got %v", cancelIDs)
	}
}

func TestPrepareRetryMovesPriceAgainstItself(t *testing.T) {
	e := NewExecutor(ExecutionConfig{SlippageTicks: 1, TimeoutSecs: 15, MaxRetries: 3})
	mo := e.RegisterOrder("o1", sizing.Instruction{VtSymbol: "x", Direction: sizing.Short, Price: 100})

	instr, ok, exhausted := e.PrepareRetry(mo, 0.2)
	if !ok || exhausted != nil {
		t.Fatalf("expected first retry to succeed, got ok=%v exhausted=%v", ok, exhausted)
	}
	if instr.Price != 99.8 {
		t.Fatalf("expected short retry price 99.8, got %v", instr.Price)
	}
	if mo.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", mo.RetryCount)
	}
}

func TestPrepareRetryExhaustion(t *testing.T) {
	e := NewExecutor(ExecutionConfig{SlippageTicks: 1, TimeoutSecs: 15, MaxRetries: 2})
	mo := e.RegisterOrder("o1", sizing.Instruction{VtSymbol: "x", Direction: sizing.Long, Price: 100})

	for i := 0; i < 2; i++ {
		_, ok, exhausted := e.PrepareRetry(mo, 0.2)
		if !ok || exhausted != nil {
			t.Fatalf("expected retry %d to succeed", i)
		}
	}

	_, ok, exhausted := e.PrepareRetry(mo, 0.2)
	if ok || exhausted == nil {
		t.Fatalf("expected retries to be exhausted")
	}
	if exhausted.VtOrderID != "o1" {
		t.Fatalf("expected exhaustion event for o1, got %+v", exhausted)
	}
}
