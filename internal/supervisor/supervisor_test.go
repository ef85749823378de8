package supervisor

import (
	"context"
	"log"
	"os"
	"os/exec"
	"testing"
	"time"

	"optioncore/internal/config"
)

func testPolicy() config.RestartPolicy {
	return config.RestartPolicy{
		MaxRestarts:     10,
		BaseDelay:       5 * time.Second,
		MaxDelay:        300 * time.Second,
		ResetAfterHours: 1.0,
	}
}

func TestCalculateRestartDelayExponentialBackoff(t *testing.T) {
	policy := testPolicy()
	cases := []struct {
		restartCount int
		want         time.Duration
	}{
		{0, 0},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 80 * time.Second},
		{6, 160 * time.Second},
		{7, 300 * time.Second}, // 320s would exceed MaxDelay, capped
		{20, 300 * time.Second},
	}
	for _, tc := range cases {
		got := calculateRestartDelay(policy, tc.restartCount)
		if got != tc.want {
			t.Errorf("restartCount=%d: expected %s, got %s", tc.restartCount, tc.want, got)
		}
	}
}

func TestShouldRestart(t *testing.T) {
	policy := testPolicy()
	if !shouldRestart(policy, 9, false) {
		t.Fatal("expected restart allowed below max count")
	}
	if shouldRestart(policy, 10, false) {
		t.Fatal("expected restart refused at max count")
	}
	if shouldRestart(policy, 0, true) {
		t.Fatal("expected restart refused once shutdown requested, regardless of count")
	}
}

func TestCheckResetRestartCount(t *testing.T) {
	policy := testPolicy()
	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

	stillWithinHour := start.Add(30 * time.Minute)
	if got := checkResetRestartCount(policy, 4, start, stillWithinHour); got != 4 {
		t.Fatalf("expected restart count unchanged within the reset window, got %d", got)
	}

	pastHour := start.Add(90 * time.Minute)
	if got := checkResetRestartCount(policy, 4, start, pastHour); got != 0 {
		t.Fatalf("expected restart count reset after uptime exceeds reset_after_hours, got %d", got)
	}

	if got := checkResetRestartCount(policy, 0, start, pastHour); got != 0 {
		t.Fatalf("expected a zero restart count to stay zero, got %d", got)
	}
}

func TestSupervisorStartChildAndRequestShutdownStopsCleanly(t *testing.T) {
	logger := log.New(os.Stderr, "[test] ", 0)
	// "sleep" re-invoked with a long duration stands in for the worker
	// binary; the test never lets it run that long.
	sleepPath, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep binary not available in this environment")
	}

	sup := New(sleepPath, []string{"30"}, testPolicy(), nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go func() {
		time.Sleep(200 * time.Millisecond)
		sup.RequestShutdown()
	}()

	if err := sup.Run(ctx); err != nil {
		t.Fatalf("expected a clean shutdown, got error: %v", err)
	}

	sup.mu.Lock()
	defer sup.mu.Unlock()
	if sup.child != nil {
		t.Fatal("expected child to be cleared after shutdown")
	}
}
