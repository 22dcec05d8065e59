// ABOUTME: CronScheduler: a poll loop over one manager's schedules, firing due entries as synthetic user messages.
// ABOUTME: Grounded on spec.md §4.5; robfig/cron/v3's standard parser resolves next-fire-time instead of hand-rolled cron math.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Dispatcher delivers a fired schedule's synthetic message into managerID's
// conversation. It's the only thing CronScheduler calls downstream, kept as
// a narrow function type so this package doesn't import SwarmManager.
type Dispatcher func(ctx context.Context, managerID, message string) error

// Scheduler owns one manager's schedules file exclusively; SwarmManager is
// its only downstream dispatcher.
type Scheduler struct {
	path      string
	managerID string
	dispatch  Dispatcher
	now       func() time.Time

	mu       sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Scheduler for managerID, persisting to
// dataDir/schedules/{managerId}.json.
func New(dataDir, managerID string, dispatch Dispatcher) *Scheduler {
	return &Scheduler{
		path:      SchedulePath(dataDir, managerID),
		managerID: managerID,
		dispatch:  dispatch,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Run polls Tick every interval until ctx is cancelled or Stop is called.
// Stop lets an in-progress Tick drain to completion before Run returns; it
// never aborts a dispatch already in flight.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				logger.Warn("cron tick failed", zap.String("manager_id", s.managerID), zap.Error(err))
			}
		}
	}
}

// Stop signals Run to exit after its current Tick returns. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Tick loads the schedules file, fires every due entry, and persists the
// result. A schedule whose dispatch fails is left byte-for-byte unchanged so
// a later tick retries it; if nothing in the whole tick changed, the file is
// not rewritten at all.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := loadSchedules(s.path)
	if err != nil {
		return fmt.Errorf("cron: load schedules: %w", err)
	}

	now := s.now()
	changed := false
	out := make([]Schedule, 0, len(schedules))

	for _, sch := range schedules {
		if !sch.due(now) {
			out = append(out, sch)
			continue
		}

		if err := s.fire(ctx, sch); err != nil {
			logger.Warn("schedule dispatch failed", zap.String("schedule_id", sch.ID), zap.Error(err))
			out = append(out, sch)
			continue
		}
		changed = true

		if sch.OneShot {
			continue
		}

		previousNextFire := sch.NextFireAt
		next, err := s.nextFire(sch, now)
		if err != nil {
			logger.Warn("next fire computation failed", zap.String("schedule_id", sch.ID), zap.Error(err))
			out = append(out, sch)
			continue
		}
		sch.LastFiredAt = &previousNextFire
		sch.NextFireAt = next
		out = append(out, sch)
	}

	if !changed {
		return nil
	}
	return saveSchedules(s.path, out)
}

func (s *Scheduler) fire(ctx context.Context, sch Schedule) error {
	meta, err := json.Marshal(map[string]string{"scheduleId": sch.ID})
	if err != nil {
		return fmt.Errorf("marshal schedule metadata: %w", err)
	}
	message := fmt.Sprintf("[Scheduled Task: %s]\n%s\n\n%s", sch.Name, meta, sch.Message)
	return s.dispatch(ctx, s.managerID, message)
}

func (s *Scheduler) nextFire(sch Schedule, now time.Time) (time.Time, error) {
	loc := sch.location()
	schedule, err := cron.ParseStandard(sch.Cron)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
	}
	return schedule.Next(now.In(loc)), nil
}

// Add appends a new schedule to the manager's file. A non-empty Timezone
// must name a valid IANA zone; an empty one is left as-is and defaults to
// UTC at evaluation time.
func Add(dataDir, managerID string, sch Schedule) error {
	if sch.Timezone != "" {
		if _, err := time.LoadLocation(sch.Timezone); err != nil {
			return fmt.Errorf("cron: invalid timezone %q: %w", sch.Timezone, err)
		}
	}

	path := SchedulePath(dataDir, managerID)
	schedules, err := loadSchedules(path)
	if err != nil {
		return fmt.Errorf("cron: load schedules: %w", err)
	}
	schedules = append(schedules, sch)
	return saveSchedules(path, schedules)
}

// Remove deletes a schedule by id from the manager's file.
func Remove(dataDir, managerID, scheduleID string) error {
	path := SchedulePath(dataDir, managerID)
	schedules, err := loadSchedules(path)
	if err != nil {
		return fmt.Errorf("cron: load schedules: %w", err)
	}
	out := make([]Schedule, 0, len(schedules))
	for _, sch := range schedules {
		if sch.ID != scheduleID {
			out = append(out, sch)
		}
	}
	return saveSchedules(path, out)
}

// List returns the current schedules for managerID.
func List(dataDir, managerID string) ([]Schedule, error) {
	return loadSchedules(SchedulePath(dataDir, managerID))
}
