package models

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// ScheduledTrigger is a durable intent to run one pipeline stage at FireAt.
// The unique index on Stage enforces at most one pending trigger per stage.
//
// Claiming a due trigger pushes FireAt out by the retry delay before the
// stage action runs. A worker crash mid-action therefore leaves the trigger
// armed, and the stage is retried once the new FireAt passes. Completing a
// trigger either advances it to the next recurrence or deletes it.
type ScheduledTrigger struct {
	ID           int        `gorm:"primary_key" json:"id"`
	Stage        string     `gorm:"size:64;not null;uniqueIndex" json:"stage"`
	FireAt       time.Time  `gorm:"index;not null" json:"fire_at"`
	RecurSeconds int64      `gorm:"not null;default:0" json:"recur_seconds"` // 0 = one-shot
	Attempts     int        `gorm:"not null;default:0" json:"attempts"`
	LockedAt     *time.Time `gorm:"index" json:"locked_at"`
	LockedBy     *string    `gorm:"size:100" json:"locked_by"`
	LastError    *string    `gorm:"type:text" json:"last_error"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ScheduledTrigger) TableName() string { return "scheduled_triggers" }

// TriggerSchedule is the scheduling collaborator backed by the
// scheduled_triggers table.
type TriggerSchedule struct {
	DB *gorm.DB
}

func NewTriggerSchedule(db *gorm.DB) *TriggerSchedule {
	return &TriggerSchedule{DB: db}
}

// ArmRecurring schedules a stage at fireAt, recurring every `every`.
// A no-op when a trigger for the stage is already pending.
func (t *TriggerSchedule) ArmRecurring(ctx context.Context, stage string, fireAt time.Time, every time.Duration) error {
	err := t.DB.WithContext(ctx).Create(&ScheduledTrigger{
		Stage:        stage,
		FireAt:       fireAt.UTC(),
		RecurSeconds: int64(every / time.Second),
	}).Error
	if isDuplicateKeyErr(err) {
		return nil
	}
	return err
}

// ArmOnce schedules a one-shot trigger for a stage.
// A no-op when a trigger for the stage is already pending.
func (t *TriggerSchedule) ArmOnce(ctx context.Context, stage string, fireAt time.Time) error {
	err := t.DB.WithContext(ctx).Create(&ScheduledTrigger{
		Stage:  stage,
		FireAt: fireAt.UTC(),
	}).Error
	if isDuplicateKeyErr(err) {
		return nil
	}
	return err
}

// TriggerNow pulls a stage's trigger to the present, creating a one-shot
// trigger when none is pending. Recurrence of an existing trigger is kept.
func (t *TriggerSchedule) TriggerNow(ctx context.Context, stage string, now time.Time) error {
	return t.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stage"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"fire_at": now.UTC()}),
	}).Create(&ScheduledTrigger{
		Stage:  stage,
		FireAt: now.UTC(),
	}).Error
}

func (t *TriggerSchedule) Clear(ctx context.Context, stage string) error {
	return t.DB.WithContext(ctx).Where("stage = ?", stage).Delete(&ScheduledTrigger{}).Error
}

func (t *TriggerSchedule) ClearAll(ctx context.Context) error {
	return t.DB.WithContext(ctx).Where("1 = 1").Delete(&ScheduledTrigger{}).Error
}

func (t *TriggerSchedule) IsPending(ctx context.Context, stage string) (bool, error) {
	var count int64
	err := t.DB.WithContext(ctx).Model(&ScheduledTrigger{}).
		Where("stage = ?", stage).
		Count(&count).Error
	return count > 0, err
}

// Pending lists all pending triggers, soonest first. Status API.
func (t *TriggerSchedule) Pending(ctx context.Context) ([]ScheduledTrigger, error) {
	var rows []ScheduledTrigger
	err := t.DB.WithContext(ctx).Order("fire_at ASC").Find(&rows).Error
	return rows, err
}

// ClaimDue claims up to batch due triggers for workerID. Each claimed
// trigger's FireAt is pushed out by retryDelay inside the claim transaction,
// so a crash between claim and completion re-fires the stage automatically.
// Triggers locked by a worker that died are reclaimed after lockTimeout.
//
// The returned rows carry the pre-claim FireAt, which Complete needs to
// advance recurring triggers on their original anchor.
func (t *TriggerSchedule) ClaimDue(ctx context.Context, workerID string, batch int, retryDelay, lockTimeout time.Duration, now time.Time) ([]ScheduledTrigger, error) {
	now = now.UTC()
	staleBefore := now.Add(-lockTimeout)

	var claimed []ScheduledTrigger
	err := t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("fire_at <= ?", now).
			Where("locked_at IS NULL OR locked_at <= ?", staleBefore).
			Order("fire_at ASC").
			Limit(batch).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if err := tx.Model(&ScheduledTrigger{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"fire_at":   now.Add(retryDelay),
					"attempts":  gorm.Expr("attempts + 1"),
					"locked_at": &now,
					"locked_by": &workerID,
				}).Error; err != nil {
				return err
			}
			claimed[i].Attempts++
		}
		return nil
	})
	return claimed, err
}

// Complete marks a claimed trigger as successfully executed: recurring
// triggers advance to the next occurrence after now, one-shots are removed.
func (t *TriggerSchedule) Complete(ctx context.Context, trig ScheduledTrigger, now time.Time) error {
	if trig.RecurSeconds <= 0 {
		return t.DB.WithContext(ctx).Delete(&ScheduledTrigger{}, trig.ID).Error
	}
	every := time.Duration(trig.RecurSeconds) * time.Second
	next := trig.FireAt.Add(every)
	for !next.After(now) {
		next = next.Add(every)
	}
	return t.DB.WithContext(ctx).Model(&ScheduledTrigger{}).
		Where("id = ?", trig.ID).
		Updates(map[string]interface{}{
			"fire_at":    next.UTC(),
			"attempts":   0,
			"locked_at":  nil,
			"locked_by":  nil,
			"last_error": nil,
		}).Error
}

// Fail releases a claimed trigger after a failed execution. FireAt keeps the
// retry time set during the claim, so the stage re-fires on schedule.
func (t *TriggerSchedule) Fail(ctx context.Context, trig ScheduledTrigger, cause error) error {
	var msg *string
	if cause != nil {
		m := cause.Error()
		msg = &m
	}
	err := t.DB.WithContext(ctx).Model(&ScheduledTrigger{}).
		Where("id = ?", trig.ID).
		Updates(map[string]interface{}{
			"locked_at":  nil,
			"locked_by":  nil,
			"last_error": msg,
		}).Error
	if err != nil && errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
