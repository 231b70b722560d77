package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/orders_retention/models"
	"github.com/sirupsen/logrus"
)

// StageRunner executes exactly one stage per invocation. The durable retry
// is not handled here: by the time Run is called, the trigger store has
// already pushed the stage's trigger out by the retry delay, so a crash or a
// store failure anywhere below leaves the stage armed for another attempt.
// On success the dispatcher completes the trigger and the runner arms the
// successor.
type StageRunner struct {
	Store     Store
	Scheduler *PipelineScheduler
	Settings  SettingsSource
	Logger    *logrus.Logger

	Now func() time.Time
}

func NewStageRunner(store Store, scheduler *PipelineScheduler, settings SettingsSource, logger *logrus.Logger) *StageRunner {
	return &StageRunner{
		Store:     store,
		Scheduler: scheduler,
		Settings:  settings,
		Logger:    logger,
		Now:       time.Now,
	}
}

func (r *StageRunner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes one stage's bulk operation and arms its successor. Store
// errors propagate to the dispatcher untouched; the pre-armed retry trigger
// is the recovery mechanism, and the attempt counter on the trigger row
// keeps a perpetually failing stage observable.
//
// For the entry stage an invalid threshold configuration skips the whole
// cycle: the trigger completes normally but no chain is started.
func (r *StageRunner) Run(ctx context.Context, id StageID) (int64, error) {
	stage, ok := StageByID(id)
	if !ok {
		return 0, fmt.Errorf("unknown pipeline stage %q", id)
	}

	var threshold time.Time
	if stage.ID == StageMarkOrders {
		var err error
		threshold, err = r.markThreshold(ctx)
		if errors.Is(err, ErrInvalidThresholdConfig) {
			if r.Logger != nil {
				r.Logger.WithFields(logrus.Fields{
					"module": "cleanup",
					"stage":  string(stage.ID),
				}).Warn("skipping cycle: " + err.Error())
			}
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
	}

	affected, err := stage.Action(ctx, r.Store, threshold)
	if err != nil {
		return 0, err
	}

	if r.Logger != nil {
		r.Logger.WithFields(logrus.Fields{
			"module":   "cleanup",
			"stage":    string(stage.ID),
			"affected": affected,
		}).Info("stage completed")
	}

	if err := r.Scheduler.ArmNext(ctx, stage); err != nil {
		return affected, err
	}
	return affected, nil
}

func (r *StageRunner) markThreshold(ctx context.Context) (time.Time, error) {
	count, unit, err := r.Settings.ThresholdConfig(ctx)
	if errors.Is(err, models.ErrMalformedSetting) {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidThresholdConfig, err)
	}
	if err != nil {
		// Settings-store read failure, not a bad config. Propagates so the
		// pre-armed retry fires instead of completing the trigger.
		return time.Time{}, err
	}
	loc := r.Settings.Location(ctx)
	return ThresholdDate(count, unit, r.now().In(loc))
}
