package cleanup

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/orders_retention/models"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const dispatcherLockKey = "orders_retention:dispatcher"

// TriggerStore is the claim/complete side of the durable trigger table,
// used only by the dispatcher. Implemented by models.TriggerSchedule.
type TriggerStore interface {
	ClaimDue(ctx context.Context, workerID string, batch int, retryDelay, lockTimeout time.Duration, now time.Time) ([]models.ScheduledTrigger, error)
	Complete(ctx context.Context, trig models.ScheduledTrigger, now time.Time) error
	Fail(ctx context.Context, trig models.ScheduledTrigger, cause error) error
}

// Dispatcher polls the scheduled_triggers table and executes due stages.
// Claiming uses row locks with SKIP LOCKED, so concurrent replicas never run
// the same trigger; the redis lock on top just keeps all but one replica
// from hammering the table.
type Dispatcher struct {
	Triggers TriggerStore
	Runner   *StageRunner
	Locker   *redislock.Client
	Logger   *logrus.Logger

	DispatcherID string
	BatchSize    int
	PollInterval time.Duration
	// RetryDelay is how far a claimed trigger's fire time is pushed out
	// before its action runs. A crash mid-action re-fires the stage after
	// this delay.
	RetryDelay  time.Duration
	LockTimeout time.Duration
}

func NewDispatcher(triggers TriggerStore, runner *StageRunner, locker *redislock.Client, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		Triggers:     triggers,
		Runner:       runner,
		Locker:       locker,
		Logger:       logger,
		DispatcherID: uuid.NewString(),
		BatchSize:    len(AllStageIDs()),
		PollInterval: 2 * time.Second,
		RetryDelay:   15 * time.Minute,
		LockTimeout:  30 * time.Second,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *Dispatcher) dispatchOnce(ctx context.Context) {
	if d.Locker != nil {
		lock, err := d.Locker.Obtain(ctx, dispatcherLockKey, d.LockTimeout, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			// Another replica is dispatching this round.
			return
		}
		if err != nil {
			if d.Logger != nil {
				d.Logger.WithFields(logrus.Fields{
					"module": "cleanup",
				}).Error("dispatcher lock: " + err.Error())
			}
			return
		}
		defer func() { _ = lock.Release(ctx) }()
	}

	now := time.Now().UTC()
	claimed, err := d.Triggers.ClaimDue(ctx, d.DispatcherID, d.BatchSize, d.RetryDelay, d.LockTimeout, now)
	if err != nil {
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"module": "cleanup",
			}).Error("claim due triggers: " + err.Error())
		}
		return
	}

	for _, trig := range claimed {
		affected, runErr := d.Runner.Run(ctx, StageID(trig.Stage))
		if runErr != nil {
			if failErr := d.Triggers.Fail(ctx, trig, runErr); failErr != nil && d.Logger != nil {
				d.Logger.WithFields(logrus.Fields{
					"module": "cleanup",
					"stage":  trig.Stage,
				}).Error("release failed trigger: " + failErr.Error())
			}
			if d.Logger != nil {
				d.Logger.WithFields(logrus.Fields{
					"module":   "cleanup",
					"stage":    trig.Stage,
					"attempt":  trig.Attempts,
					"retry_in": d.RetryDelay.String(),
				}).Error("stage failed: " + runErr.Error())
			}
			continue
		}
		if err := d.Triggers.Complete(ctx, trig, time.Now().UTC()); err != nil && d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"module":   "cleanup",
				"stage":    trig.Stage,
				"affected": affected,
			}).Error("complete trigger: " + err.Error())
		}
	}
}
