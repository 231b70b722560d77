package cleanup

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/orders_retention/models"
	"github.com/sirupsen/logrus"
)

// cleanupAnchorHour is the local hour the entry stage fires at. 02:00 keeps
// the bulk UPDATE off the shop's busy hours.
const cleanupAnchorHour = 2

// Schedule is the durable trigger collaborator. Implemented by
// models.TriggerSchedule; tests substitute an in-memory fake.
type Schedule interface {
	ArmRecurring(ctx context.Context, stage string, fireAt time.Time, every time.Duration) error
	ArmOnce(ctx context.Context, stage string, fireAt time.Time) error
	TriggerNow(ctx context.Context, stage string, now time.Time) error
	Clear(ctx context.Context, stage string) error
	IsPending(ctx context.Context, stage string) (bool, error)
}

// SettingsSource exposes the retention settings the pipeline reads.
// Implemented by models.SettingStore.
type SettingsSource interface {
	CleanFrequency(ctx context.Context) (models.CleanFrequency, error)
	ThresholdConfig(ctx context.Context) (count int, unit models.ThresholdUnit, err error)
	Location(ctx context.Context) *time.Location
}

// PipelineScheduler owns the ordered stage chain's trigger lifecycle: it is
// the only component that arms or clears triggers.
type PipelineScheduler struct {
	Schedule Schedule
	Settings SettingsSource
	Logger   *logrus.Logger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewPipelineScheduler(schedule Schedule, settings SettingsSource, logger *logrus.Logger) *PipelineScheduler {
	return &PipelineScheduler{
		Schedule: schedule,
		Settings: settings,
		Logger:   logger,
		Now:      time.Now,
	}
}

func (p *PipelineScheduler) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// OnFrequencyChanged clears every pending stage trigger and, for a supported
// frequency, arms the entry stage recurring at the next 02:00 local time.
// An empty frequency only clears — that is the deactivation path.
func (p *PipelineScheduler) OnFrequencyChanged(ctx context.Context, freq models.CleanFrequency) error {
	for _, id := range AllStageIDs() {
		if err := p.Schedule.Clear(ctx, string(id)); err != nil {
			return err
		}
	}

	if freq == models.CleanFrequencyNone {
		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{
				"module": "cleanup",
			}).Info("retention pipeline disarmed")
		}
		return nil
	}

	every, ok := freq.Interval()
	if !ok {
		return fmt.Errorf("unsupported clean frequency %q", freq)
	}

	loc := p.Settings.Location(ctx)
	fireAt := nextCleanupAnchor(p.now().In(loc))
	if err := p.Schedule.ArmRecurring(ctx, string(StageMarkOrders), fireAt, every); err != nil {
		return err
	}
	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"module":    "cleanup",
			"frequency": string(freq),
			"fire_at":   fireAt.Format(time.RFC3339),
		}).Info("retention pipeline armed")
	}
	return nil
}

// ArmNext schedules the successor of a completed stage a few seconds out,
// unless the stage is terminal or the successor is already pending.
func (p *PipelineScheduler) ArmNext(ctx context.Context, current Stage) error {
	if current.Terminal() {
		return nil
	}
	pending, err := p.Schedule.IsPending(ctx, string(current.Next))
	if err != nil {
		return err
	}
	if pending {
		return nil
	}
	return p.Schedule.ArmOnce(ctx, string(current.Next), p.now().Add(current.NextDelay))
}

// RearmEntry re-arms the entry stage from the stored frequency without
// touching the delete stages. Self-heal path: a missing entry trigger is
// repaired as soon as the operator resaves or re-runs.
func (p *PipelineScheduler) RearmEntry(ctx context.Context) error {
	freq, err := p.Settings.CleanFrequency(ctx)
	if err != nil {
		return err
	}
	every, ok := freq.Interval()
	if !ok {
		return fmt.Errorf("cannot rearm: no clean frequency configured")
	}
	loc := p.Settings.Location(ctx)
	return p.Schedule.ArmRecurring(ctx, string(StageMarkOrders), nextCleanupAnchor(p.now().In(loc)), every)
}

// TriggerEntryNow fires the entry stage immediately, keeping any configured
// recurrence. A lost recurring trigger is repaired first via RearmEntry, so
// run-now doubles as the self-heal path for a missing schedule. Without a
// configured frequency the run is a plain one-shot.
func (p *PipelineScheduler) TriggerEntryNow(ctx context.Context) error {
	if err := p.RearmEntry(ctx); err != nil && p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"module": "cleanup",
		}).Warn("entry not rearmed: " + err.Error())
	}
	return p.Schedule.TriggerNow(ctx, string(StageMarkOrders), p.now())
}

// nextCleanupAnchor returns the next occurrence of 02:00 in now's location.
func nextCleanupAnchor(now time.Time) time.Time {
	anchor := time.Date(now.Year(), now.Month(), now.Day(), cleanupAnchorHour, 0, 0, 0, now.Location())
	if !anchor.After(now) {
		anchor = anchor.AddDate(0, 0, 1)
	}
	return anchor
}
