// Package scheduler owns the deferred-task primitive the response cache
// uses to debounce persistence. Keeping it behind an interface lets
// tests flush pending work deterministically instead of sleeping.
package scheduler

import (
	"sync"
	"time"
)

// Scheduler schedules a single pending task. Scheduling again before the
// delay elapses replaces the pending task (debounce semantics).
type Scheduler interface {
	Schedule(delay time.Duration, task func())
	Stop()
}

// TimerScheduler runs tasks on real timers.
type TimerScheduler struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewTimerScheduler creates a timer-backed scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

// Schedule replaces any pending task with the given one.
func (s *TimerScheduler) Schedule(delay time.Duration, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, task)
}

// Stop cancels any pending task and refuses further scheduling.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// ManualScheduler holds the pending task until Fire is called. Test use.
type ManualScheduler struct {
	mu      sync.Mutex
	pending func()

	// ScheduleCount tracks how many Schedule calls were observed,
	// independent of how many tasks actually ran.
	ScheduleCount int
}

// NewManualScheduler creates a scheduler driven by explicit Fire calls.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule stores the task, replacing any pending one.
func (s *ManualScheduler) Schedule(_ time.Duration, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = task
	s.ScheduleCount++
}

// Fire runs the pending task, if any, and clears it.
func (s *ManualScheduler) Fire() {
	s.mu.Lock()
	task := s.pending
	s.pending = nil
	s.mu.Unlock()
	if task != nil {
		task()
	}
}

// HasPending reports whether a task is waiting.
func (s *ManualScheduler) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Stop drops any pending task.
func (s *ManualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}
