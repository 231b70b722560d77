package cleanup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/orders_retention/models"
)

type fakeTriggerStore struct {
	due      []models.ScheduledTrigger
	claimErr error

	completed []string
	failed    []string
	failCause error
}

func (f *fakeTriggerStore) ClaimDue(_ context.Context, _ string, _ int, _, _ time.Duration, _ time.Time) ([]models.ScheduledTrigger, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	due := f.due
	f.due = nil
	return due, nil
}

func (f *fakeTriggerStore) Complete(_ context.Context, trig models.ScheduledTrigger, _ time.Time) error {
	f.completed = append(f.completed, trig.Stage)
	return nil
}

func (f *fakeTriggerStore) Fail(_ context.Context, trig models.ScheduledTrigger, cause error) error {
	f.failed = append(f.failed, trig.Stage)
	f.failCause = cause
	return nil
}

func TestDispatchOnce_FailedStageIsReleasedNotCompleted(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 2, 0, 0, 0, time.UTC)
	shop := newFakeShop()
	seedShop(shop, now)
	shop.failures["DeleteOrderItems"] = errors.New("Error 1205: Lock wait timeout exceeded")
	schedule := newFakeSchedule()
	runner := newTestRunner(shop, schedule, &fakeSettings{count: 90, unit: models.ThresholdUnitDays}, now)

	store := &fakeTriggerStore{due: []models.ScheduledTrigger{
		{ID: 1, Stage: string(StageDeleteItems), FireAt: now, Attempts: 1},
	}}
	d := NewDispatcher(store, runner, nil, nil)
	d.dispatchOnce(ctx)

	if len(store.completed) != 0 {
		t.Fatalf("failed stage was completed: %v", store.completed)
	}
	if len(store.failed) != 1 || store.failed[0] != string(StageDeleteItems) {
		t.Fatalf("failed = %v, want the delete stage released for retry", store.failed)
	}
	if store.failCause == nil || !strings.Contains(store.failCause.Error(), "Lock wait timeout") {
		t.Fatalf("fail cause = %v, want the store error recorded", store.failCause)
	}
	if _, pending := schedule.triggers[string(StageDeleteNoteMeta)]; pending {
		t.Fatalf("successor armed despite failed stage")
	}
}

func TestDispatchOnce_SuccessfulStageCompletesAndArmsSuccessor(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 2, 0, 0, 0, time.UTC)
	shop := newFakeShop()
	seedShop(shop, now)
	schedule := newFakeSchedule()
	runner := newTestRunner(shop, schedule, &fakeSettings{count: 90, unit: models.ThresholdUnitDays}, now)

	store := &fakeTriggerStore{due: []models.ScheduledTrigger{
		{ID: 1, Stage: string(StageMarkOrders), FireAt: now, RecurSeconds: 7 * 24 * 3600},
	}}
	d := NewDispatcher(store, runner, nil, nil)
	d.dispatchOnce(ctx)

	if len(store.failed) != 0 {
		t.Fatalf("successful stage was failed: %v", store.failed)
	}
	if len(store.completed) != 1 || store.completed[0] != string(StageMarkOrders) {
		t.Fatalf("completed = %v, want the mark stage", store.completed)
	}
	if _, pending := schedule.triggers[string(StageDeleteItemMeta)]; !pending {
		t.Fatalf("successor not armed after successful stage")
	}
}
