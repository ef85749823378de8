// Package supervisor is the watchdog process (C20): it launches the
// worker (C21) as a child process, restarts it with exponential backoff
// on crash, and gates the child's uptime to configured trading sessions.
// Grounded on original_source/src/main/parent_process.py's ParentProcess;
// translated from Python's fork+wait model to Go's os/exec, and from
// threading.Event-style shutdown flags to signal.Notify.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"optioncore/internal/config"
)

// childHandle tracks one running worker process. cmd.Wait is called
// exactly once, by the goroutine spawned in startChild; done is closed
// when it returns, so both waitChild and stopChild can safely select on
// it any number of times.
type childHandle struct {
	cmd     *exec.Cmd
	done    chan struct{}
	exitErr error
}

// Supervisor owns one worker child process.
type Supervisor struct {
	binaryPath string
	workerArgs []string
	policy     config.RestartPolicy
	periods    []config.TradingPeriod
	logger     *log.Logger

	mu            sync.Mutex
	child         *childHandle
	restartCount  int
	lastStartTime time.Time

	shutdownRequested atomic.Bool
	reloadRequested   atomic.Bool
}

// New returns a Supervisor that re-invokes binaryPath with workerArgs
// (expected to include "-mode=worker") every time it (re)starts the
// child.
func New(binaryPath string, workerArgs []string, policy config.RestartPolicy, periods []config.TradingPeriod, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{
		binaryPath: binaryPath,
		workerArgs: workerArgs,
		policy:     policy,
		periods:    periods,
		logger:     logger,
	}
}

// RequestShutdown asks the run loop to stop the child and exit. Safe to
// call from a signal handler.
func (s *Supervisor) RequestShutdown() { s.shutdownRequested.Store(true) }

// RequestReload asks the run loop to restart the child without touching
// the parent's own restart-count bookkeeping. Safe to call from a signal
// handler (mirrors SIGHUP in the original).
func (s *Supervisor) RequestReload() { s.reloadRequested.Store(true) }

// calculateRestartDelay mirrors _calculate_restart_delay: no delay before
// the first start, exponential backoff thereafter, capped at MaxDelay.
func calculateRestartDelay(policy config.RestartPolicy, restartCount int) time.Duration {
	if restartCount == 0 {
		return 0
	}
	delay := policy.BaseDelay * time.Duration(1<<uint(restartCount-1))
	if delay > policy.MaxDelay {
		return policy.MaxDelay
	}
	return delay
}

// shouldRestart mirrors _should_restart.
func shouldRestart(policy config.RestartPolicy, restartCount int, shutdownRequested bool) bool {
	if shutdownRequested {
		return false
	}
	return restartCount < policy.MaxRestarts
}

// checkResetRestartCount mirrors _check_reset_restart_count: once the
// child has been up for ResetAfterHours, forgive prior restarts.
func checkResetRestartCount(policy config.RestartPolicy, restartCount int, lastStartTime, now time.Time) int {
	if lastStartTime.IsZero() || restartCount == 0 {
		return restartCount
	}
	threshold := time.Duration(policy.ResetAfterHours * float64(time.Hour))
	if now.Sub(lastStartTime) > threshold {
		return 0
	}
	return restartCount
}

// Run executes the supervise loop until shutdown is requested or the
// restart budget is exhausted. It blocks the calling goroutine; install
// signal handlers that call RequestShutdown/RequestReload before calling
// Run from a separate goroutine, or call Run directly from main after
// wiring signal.Notify.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Printf("supervisor starting, binary=%s", s.binaryPath)

	const pollInterval = 500 * time.Millisecond

	for {
		if s.shutdownRequested.Load() {
			s.logger.Printf("shutdown requested, stopping")
			s.stopChild()
			return nil
		}
		if ctx.Err() != nil {
			s.stopChild()
			return ctx.Err()
		}

		if !config.IsTradingPeriod(s.periods, time.Now()) {
			s.stopChildIfRunning("outside configured trading period")
			if !sleepInterruptible(ctx, 5*time.Second) {
				continue
			}
			continue
		}

		s.mu.Lock()
		child := s.child
		s.mu.Unlock()

		if child == nil {
			if !shouldRestart(s.policy, s.restartCount, s.shutdownRequested.Load()) {
				s.logger.Printf("max restarts reached (%d), supervisor exiting", s.policy.MaxRestarts)
				return fmt.Errorf("supervisor: max restart count (%d) exceeded", s.policy.MaxRestarts)
			}
			if err := s.startChild(ctx); err != nil {
				s.logger.Printf("failed to start worker: %v", err)
				continue
			}
			continue
		}

		if s.reloadRequested.Load() {
			s.reloadRequested.Store(false)
			s.logger.Printf("reload requested, restarting worker")
			s.stopChild()
			// Undo the increment the upcoming startChild makes, so a
			// reload neither spends the restart budget nor adds backoff.
			s.mu.Lock()
			if s.restartCount > 0 {
				s.restartCount--
			}
			s.mu.Unlock()
			continue
		}

		select {
		case <-child.done:
			s.handleChildExit(child)
		case <-time.After(pollInterval):
			// Wake up periodically to observe shutdown/reload requests
			// and trading-period transitions while the child is healthy.
		case <-ctx.Done():
			s.stopChild()
			return ctx.Err()
		}
	}
}

func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// startChild launches the worker, applying the configured backoff delay
// first.
func (s *Supervisor) startChild(ctx context.Context) error {
	s.mu.Lock()
	delay := calculateRestartDelay(s.policy, s.restartCount)
	s.mu.Unlock()

	if delay > 0 {
		s.logger.Printf("waiting %s before restart", delay)
		if !sleepInterruptible(ctx, delay) {
			return ctx.Err()
		}
	}

	cmd := exec.Command(s.binaryPath, s.workerArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker process: %w", err)
	}

	child := &childHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		child.exitErr = cmd.Wait()
		close(child.done)
	}()

	s.mu.Lock()
	s.child = child
	s.restartCount++
	s.lastStartTime = time.Now()
	count := s.restartCount
	s.mu.Unlock()

	s.logger.Printf("worker started, pid=%d, restart_count=%d", cmd.Process.Pid, count)
	return nil
}

func (s *Supervisor) handleChildExit(child *childHandle) {
	s.mu.Lock()
	if s.child == child {
		s.child = nil
	}
	s.restartCount = checkResetRestartCount(s.policy, s.restartCount, s.lastStartTime, time.Now())
	s.mu.Unlock()

	if child.exitErr == nil {
		s.logger.Printf("worker exited normally")
	} else {
		s.logger.Printf("worker exited abnormally: %v", child.exitErr)
	}
}

func (s *Supervisor) stopChildIfRunning(reason string) {
	s.mu.Lock()
	running := s.child != nil
	s.mu.Unlock()
	if !running {
		return
	}
	s.logger.Printf("stopping worker: %s", reason)
	s.stopChild()
}

// stopChild escalates: wait for self-exit (5s), then SIGTERM + wait
// (10s), then kill. Mirrors _stop_child's three-stage shutdown.
func (s *Supervisor) stopChild() {
	s.mu.Lock()
	child := s.child
	s.mu.Unlock()
	if child == nil || child.cmd.Process == nil {
		return
	}

	select {
	case <-child.done:
		s.logger.Printf("worker exited on its own")
		s.clearChild(child)
		return
	case <-time.After(5 * time.Second):
	}

	s.logger.Printf("worker did not exit, sending terminate signal")
	_ = child.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-child.done:
		s.logger.Printf("worker responded to terminate signal")
	case <-time.After(10 * time.Second):
		s.logger.Printf("worker unresponsive, killing")
		_ = child.cmd.Process.Kill()
		<-child.done
	}
	s.clearChild(child)
}

func (s *Supervisor) clearChild(child *childHandle) {
	s.mu.Lock()
	if s.child == child {
		s.child = nil
	}
	s.mu.Unlock()
}
