package cleanup

import (
	"context"

	"bitbucket.org/mmdatafocus/orders_retention/models"
	"github.com/sirupsen/logrus"
)

// SettingsWatcher reacts to retention setting changes. Whoever performs a
// settings write routes the change through OnSettingChanged, which is how a
// frequency change re-arms the pipeline and a threshold change produces the
// large-volume warning.
type SettingsWatcher struct {
	Scheduler *PipelineScheduler
	Emitter   *NoticeEmitter
	Settings  SettingsSource
	Store     Store
	Logger    *logrus.Logger
}

func NewSettingsWatcher(scheduler *PipelineScheduler, emitter *NoticeEmitter, settings SettingsSource, store Store, logger *logrus.Logger) *SettingsWatcher {
	return &SettingsWatcher{
		Scheduler: scheduler,
		Emitter:   emitter,
		Settings:  settings,
		Store:     store,
		Logger:    logger,
	}
}

func (w *SettingsWatcher) OnSettingChanged(ctx context.Context, change models.SettingChange) error {
	switch change.Key {
	case models.SettingCleanFrequency:
		return w.Scheduler.OnFrequencyChanged(ctx, models.CleanFrequency(change.New))

	case models.SettingDateCount, models.SettingDateThreshold:
		return w.checkPendingVolume(ctx, change.UserId)
	}
	return nil
}

// checkPendingVolume counts what the next marking cycle would sweep up,
// using the same predicate the mark stage uses, and warns the acting
// operator past the threshold.
func (w *SettingsWatcher) checkPendingVolume(ctx context.Context, userID int) error {
	count, unit, err := w.Settings.ThresholdConfig(ctx)
	if err != nil {
		return err
	}
	threshold, err := ThresholdDate(count, unit, w.Scheduler.now().In(w.Settings.Location(ctx)))
	if err != nil {
		// Malformed config never warns; the mark stage will skip its cycle
		// for the same reason.
		if w.Logger != nil {
			w.Logger.WithFields(logrus.Fields{
				"module": "cleanup",
			}).Warn("volume check skipped: " + err.Error())
		}
		return nil
	}

	eligible, err := w.Store.CountEligible(ctx, threshold)
	if err != nil {
		return err
	}
	if eligible >= OrderCountWarnThreshold {
		return w.Emitter.WarnLargeVolume(ctx, userID, eligible)
	}
	return nil
}
