package cleanup

import (
	"context"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/orders_retention/models"
)

func newTestWatcher(shop *fakeShop, schedule *fakeSchedule, settings *fakeSettings, notices *fakeNotices, now time.Time) *SettingsWatcher {
	p := NewPipelineScheduler(schedule, settings, nil)
	p.Now = func() time.Time { return now }
	emitter := NewNoticeEmitter(notices, schedule, nil)
	return NewSettingsWatcher(p, emitter, settings, shop, nil)
}

func TestOnSettingChanged_FrequencyRearmsPipeline(t *testing.T) {
	ctx := context.Background()
	schedule := newFakeSchedule()
	schedule.triggers[string(StageDeleteNotes)] = &fakeTrigger{fireAt: time.Now()}
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	w := newTestWatcher(newFakeShop(), schedule, &fakeSettings{}, &fakeNotices{}, now)

	err := w.OnSettingChanged(ctx, models.SettingChange{
		Key: models.SettingCleanFrequency,
		Old: "",
		New: string(models.CleanFrequencyWeekly),
	})
	if err != nil {
		t.Fatalf("OnSettingChanged: %v", err)
	}
	if len(schedule.triggers) != 1 {
		t.Fatalf("%d triggers pending, want 1", len(schedule.triggers))
	}
	if _, ok := schedule.triggers[string(StageMarkOrders)]; !ok {
		t.Fatalf("entry stage not armed")
	}
}

func TestOnSettingChanged_LargeVolumeWarnsActingUser(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	shop := newFakeShop()
	for i := int64(0); i < 6000; i++ {
		shop.addOrder(i, models.OrderStatusActive, now.AddDate(0, 0, -100))
	}
	notices := &fakeNotices{}
	w := newTestWatcher(shop, newFakeSchedule(), &fakeSettings{count: 90, unit: models.ThresholdUnitDays}, notices, now)

	err := w.OnSettingChanged(ctx, models.SettingChange{
		Key:    models.SettingDateCount,
		Old:    "365",
		New:    "90",
		UserId: 7,
	})
	if err != nil {
		t.Fatalf("OnSettingChanged: %v", err)
	}
	if len(notices.emitted) != 1 {
		t.Fatalf("emitted %d notices, want 1", len(notices.emitted))
	}
	got := notices.emitted[0]
	if got.userID != 7 {
		t.Fatalf("notice for user %d, want acting user 7", got.userID)
	}
	if got.severity != models.NoticeSeverityError {
		t.Fatalf("severity = %s, want error", got.severity)
	}
	if !strings.Contains(got.message, "5000") {
		t.Fatalf("message should mention the threshold: %q", got.message)
	}
}

func TestOnSettingChanged_SmallVolumeStaysQuiet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	shop := newFakeShop()
	for i := int64(0); i < 100; i++ {
		shop.addOrder(i, models.OrderStatusActive, now.AddDate(0, 0, -100))
	}
	notices := &fakeNotices{}
	w := newTestWatcher(shop, newFakeSchedule(), &fakeSettings{count: 90, unit: models.ThresholdUnitDays}, notices, now)

	err := w.OnSettingChanged(ctx, models.SettingChange{Key: models.SettingDateThreshold, New: "days", UserId: 7})
	if err != nil {
		t.Fatalf("OnSettingChanged: %v", err)
	}
	if len(notices.emitted) != 0 {
		t.Fatalf("unexpected notices: %v", notices.emitted)
	}
}

func TestOnSettingChanged_UnrelatedKeyIgnored(t *testing.T) {
	shop := newFakeShop()
	w := newTestWatcher(shop, newFakeSchedule(), &fakeSettings{}, &fakeNotices{}, time.Now())
	err := w.OnSettingChanged(context.Background(), models.SettingChange{Key: models.SettingTimezone, New: "Europe/Warsaw"})
	if err != nil {
		t.Fatalf("OnSettingChanged: %v", err)
	}
	if len(shop.calls) != 0 {
		t.Fatalf("store queried for unrelated setting: %v", shop.calls)
	}
}

func TestScheduleMissing(t *testing.T) {
	ctx := context.Background()
	schedule := newFakeSchedule()
	emitter := NewNoticeEmitter(&fakeNotices{}, schedule, nil)

	missing, err := emitter.ScheduleMissing(ctx)
	if err != nil {
		t.Fatalf("ScheduleMissing: %v", err)
	}
	if !missing {
		t.Fatalf("expected missing schedule with no entry trigger")
	}

	schedule.triggers[string(StageMarkOrders)] = &fakeTrigger{fireAt: time.Now()}
	missing, err = emitter.ScheduleMissing(ctx)
	if err != nil {
		t.Fatalf("ScheduleMissing: %v", err)
	}
	if missing {
		t.Fatalf("schedule reported missing while entry trigger pending")
	}
}
