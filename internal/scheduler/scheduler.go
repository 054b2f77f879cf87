// Package scheduler fires daily device automations at their wall-clock
// times. Each enabled automation owns exactly one cron entry, tracked in
// a registry keyed by automation id so reloads replace rather than
// duplicate.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/medev213/darksmart/internal/domain"
	"github.com/medev213/darksmart/internal/homegraph"
	"github.com/medev213/darksmart/internal/repository"
	"github.com/medev213/darksmart/internal/transport"
)

// Scheduler drives the cron runner and the automation registry.
type Scheduler struct {
	automations repository.AutomationRepository
	devices     repository.DeviceRepository
	reporter    homegraph.Reporter
	commander   transport.Commander
	logger      *zap.Logger

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	stopped bool
}

// New builds a scheduler; Start must be called before jobs fire.
func New(automations repository.AutomationRepository, devices repository.DeviceRepository, reporter homegraph.Reporter, commander transport.Commander, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.L()
	}
	return &Scheduler{
		automations: automations,
		devices:     devices,
		reporter:    reporter,
		commander:   commander,
		logger:      logger,
		cron: cron.New(
			cron.WithChain(cron.Recover(&cronLogger{logger: logger})),
		),
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads every enabled automation, registers it, and begins the
// cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	automations, err := s.automations.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled automations: %w", err)
	}
	for _, a := range automations {
		if err := s.Schedule(a); err != nil {
			s.logger.Warn("skipping automation with invalid schedule",
				zap.String("automation_id", a.ID),
				zap.String("schedule_time", a.ScheduleTime),
				zap.Error(err),
			)
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("automations", len(s.entries)))
	return nil
}

// Schedule registers or replaces the cron entry for an automation. The
// old entry, if any, is removed under the same lock so no id ever holds
// two entries.
func (s *Scheduler) Schedule(a domain.Automation) error {
	spec, err := cronSpec(a.ScheduleTime)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("scheduler is shut down")
	}

	id := a.ID
	entry, err := s.cron.AddFunc(spec, func() { s.fire(id) })
	if err != nil {
		return fmt.Errorf("register cron entry: %w", err)
	}
	if old, ok := s.entries[a.ID]; ok {
		s.cron.Remove(old)
	}
	s.entries[a.ID] = entry
	return nil
}

// Unschedule removes an automation's entry. Unknown ids are a no-op.
func (s *Scheduler) Unschedule(automationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[automationID]; ok {
		s.cron.Remove(entry)
		delete(s.entries, automationID)
	}
}

// Entries reports how many automations are currently registered.
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Shutdown stops the cron loop and waits for in-flight jobs, bounded by
// ctx. Calling it more than once is safe.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fire applies one automation's action. The automation is reloaded at
// fire time so edits and disables made after registration are honored.
func (s *Scheduler) fire(automationID string) {
	ctx := context.Background()

	a, err := s.automations.GetByID(ctx, automationID)
	if err != nil {
		s.logger.Error("load automation", zap.String("automation_id", automationID), zap.Error(err))
		return
	}
	if !a.Enabled {
		return
	}

	device, err := s.devices.GetByIDAndUser(ctx, a.DeviceID, a.UserID)
	if err != nil {
		s.logger.Error("load automation device",
			zap.String("automation_id", a.ID),
			zap.String("device_id", a.DeviceID),
			zap.Error(err),
		)
		return
	}

	on := a.Action == domain.ActionOn
	status := device.Status.Clone()
	status["on"] = on
	if err := s.devices.UpdateStatus(ctx, a.DeviceID, a.UserID, status); err != nil {
		s.logger.Error("apply automation action",
			zap.String("automation_id", a.ID),
			zap.String("device_id", a.DeviceID),
			zap.Error(err),
		)
		return
	}

	state := map[string]any{"on": on}
	if err := s.commander.SendState(ctx, a.DeviceID, state); err != nil {
		s.logger.Warn("automation command delivery failed", zap.String("device_id", a.DeviceID), zap.Error(err))
	}
	if err := s.reporter.ReportState(ctx, a.UserID, a.DeviceID, state); err != nil {
		s.logger.Warn("automation state report failed", zap.String("device_id", a.DeviceID), zap.Error(err))
	}

	s.logger.Info("audit",
		zap.String("event", "automation.fired"),
		zap.String("automation_id", a.ID),
		zap.String("device_id", a.DeviceID),
		zap.String("action", a.Action),
	)
}

// cronSpec converts an "HH:MM" wall-clock time into a daily cron spec.
func cronSpec(scheduleTime string) (string, error) {
	parts := strings.Split(strings.TrimSpace(scheduleTime), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("schedule time %q is not HH:MM", scheduleTime)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("schedule time %q has invalid hour", scheduleTime)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("schedule time %q has invalid minute", scheduleTime)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// cronLogger adapts zap to the cron logging interface so recovered
// panics land in the service log.
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
