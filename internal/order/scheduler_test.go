package order

import (
	"testing"
	"time"

	"optioncore/internal/events"
	"optioncore/internal/sizing"
)

func TestIcebergCompletion(t *testing.T) {
	s := NewScheduler(1)
	o, err := s.SubmitIceberg(sizing.Instruction{VtSymbol: "x", Volume: 100}, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(o.Children) != 4 {
		t.Fatalf("expected 4 children, got %d", len(o.Children))
	}
	wantVols := []int{30, 30, 30, 10}
	for i, c := range o.Children {
		if c.Volume != wantVols[i] {
			t.Fatalf("child %d: expected volume %d, got %d", i, wantVols[i], c.Volume)
		}
	}

	var lastEvs []events.DomainEvent
	for i, c := range o.Children {
		lastEvs = s.OnChildFilled(c.ChildID, c.Volume)
		if i < len(o.Children)-1 && lastEvs != nil {
			t.Fatalf("expected no completion event before the last child fills")
		}
	}
	if len(lastEvs) != 1 || lastEvs[0].EventName() != "AdvancedOrderCompleteEvent" {
		t.Fatalf("expected one AdvancedOrderCompleteEvent, got %v", lastEvs)
	}
	if o.Status != StatusComplete {
		t.Fatalf("expected parent status COMPLETE, got %s", o.Status)
	}
}

func TestIcebergGating(t *testing.T) {
	s := NewScheduler(1)
	o, _ := s.SubmitIceberg(sizing.Instruction{VtSymbol: "x", Volume: 90}, 30)

	pending := s.GetPendingChildren(time.Now())
	if len(pending) != 1 || pending[0].ChildID != o.Children[0].ChildID {
		t.Fatalf("expected only child 0 pending, got %v", pending)
	}

	s.MarkChildSubmitted(o.OrderID, o.Children[0].ChildID, "vt1")
	pending = s.GetPendingChildren(time.Now())
	if len(pending) != 0 {
		t.Fatalf("expected no pending children while child 0 is unfilled, got %v", pending)
	}

	s.OnChildFilled(o.Children[0].ChildID, o.Children[0].Volume)
	pending = s.GetPendingChildren(time.Now())
	if len(pending) != 1 || pending[0].ChildID != o.Children[1].ChildID {
		t.Fatalf("expected child 1 pending after child 0 fills, got %v", pending)
	}
}

func TestTWAPPartialCancel(t *testing.T) {
	s := NewScheduler(1)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	o, err := s.SubmitTWAP(sizing.Instruction{VtSymbol: "x", Volume: 300}, 300, 5, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantVols := []int{60, 60, 60, 60, 60}
	for i, c := range o.Children {
		if c.Volume != wantVols[i] {
			t.Fatalf("child %d: expected volume %d, got %d", i, wantVols[i], c.Volume)
		}
		wantTime := start.Add(time.Duration(i*60) * time.Second)
		if !c.ScheduledTime.Equal(wantTime) {
			t.Fatalf("child %d: expected scheduled time %v, got %v", i, wantTime, c.ScheduledTime)
		}
	}

	for _, c := range o.Children[:2] {
		s.MarkChildSubmitted(o.OrderID, c.ChildID, c.ChildID+"-vt")
		s.OnChildFilled(c.ChildID, c.Volume)
	}
	s.MarkChildSubmitted(o.OrderID, o.Children[2].ChildID, "vt-2")

	pending := s.GetPendingChildren(start.Add(150 * time.Second))
	if len(pending) != 0 {
		t.Fatalf("expected no unsubmitted-but-ready children at t=150 (child 2 already submitted), got %v", pending)
	}

	cancelIDs, evs := s.CancelOrder(o.OrderID)
	if len(cancelIDs) != 1 || cancelIDs[0] != "vt-2" {
		t.Fatalf("expected cancel for the submitted-but-unfilled child 2, got %v", cancelIDs)
	}
	if len(evs) != 1 {
		t.Fatalf("expected one cancellation event, got %d", len(evs))
	}
	if o.Status != StatusCancelled {
		t.Fatalf("expected status CANCELLED, got %s", o.Status)
	}
}

func TestVWAPLargestRemainderExactSplit(t *testing.T) {
	cases := []struct {
		name    string
		total   int
		weights []float64
		want    []int
	}{
		{"no remainder a", 100, []float64{0.34, 0.33, 0.33}, []int{34, 33, 33}},
		{"no remainder b", 10, []float64{0.4, 0.3, 0.3}, []int{4, 3, 3}},
		{"remainder to largest fraction", 10, []float64{0.333, 0.333, 0.334}, []int{3, 3, 4}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := NewScheduler(1)
			o, err := s.SubmitVWAP(sizing.Instruction{VtSymbol: "x", Volume: c.total}, 100, c.weights, time.Now())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			sum := 0
			for i, child := range o.Children {
				if child.Volume != c.want[i] {
					t.Fatalf("slice %d: expected volume %d, got %d", i, c.want[i], child.Volume)
				}
				sum += child.Volume
			}
			if sum != c.total {
				t.Fatalf("expected total %d, got %d", c.total, sum)
			}
		})
	}
}

func TestClassicIcebergSumsToTotal(t *testing.T) {
	s := NewScheduler(42)
	o, err := s.SubmitClassicIceberg(sizing.Instruction{VtSymbol: "x", Volume: 97}, 20, 0.3, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum := 0
	for _, c := range o.Children {
		if c.Volume < 1 {
			t.Fatalf("expected every child to carry at least one lot, got %d", c.Volume)
		}
		sum += c.Volume
	}
	if sum != 97 {
		t.Fatalf("expected children to sum exactly to 97, got %d", sum)
	}
}

func TestTimedSplitSchedule(t *testing.T) {
	s := NewScheduler(1)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	o, err := s.SubmitTimedSplit(sizing.Instruction{VtSymbol: "x", Volume: 25}, 10, 10, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(o.Children) != 3 {
		t.Fatalf("expected 3 children (10,10,5), got %d", len(o.Children))
	}
	if o.Children[2].Volume != 5 {
		t.Fatalf("expected last child to absorb remainder of 5, got %d", o.Children[2].Volume)
	}
	for i, c := range o.Children {
		want := start.Add(time.Duration(i*10) * time.Second)
		if !c.ScheduledTime.Equal(want) {
			t.Fatalf("child %d: expected scheduled time %v, got %v", i, want, c.ScheduledTime)
		}
	}
}

func TestSubmitValidationRejectsNonPositive(t *testing.T) {
	s := NewScheduler(1)
	if _, err := s.SubmitIceberg(sizing.Instruction{Volume: 0}, 10); err == nil {
		t.Fatal("expected error for zero volume")
	}
	if _, err := s.SubmitIceberg(sizing.Instruction{Volume: 10}, 0); err == nil {
		t.Fatal("expected error for zero batch size")
	}
	if _, err := s.SubmitVWAP(sizing.Instruction{Volume: 10}, 100, nil, time.Now()); err == nil {
		t.Fatal("expected error for empty volume profile")
	}
	if _, err := s.SubmitClassicIceberg(sizing.Instruction{Volume: 10}, 5, 1.5, 1); err == nil {
		t.Fatal("expected error for jitter ratio outside [0,1]")
	}
}
