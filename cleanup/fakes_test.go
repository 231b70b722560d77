package cleanup

// NOTE: These tests are intentionally DB-free. The fakes model just enough of
// the trigger table and the shop schema to validate the pipeline semantics:
// - at most one pending trigger per stage
// - delete stages only ever touch records of marked orders
// - re-running any stage is a harmless no-op
// Full MySQL integration coverage lives in models/retention_pipeline_regression_test.go.

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/orders_retention/models"
)

type fakeTrigger struct {
	fireAt time.Time
	every  time.Duration
}

type fakeSchedule struct {
	triggers map[string]*fakeTrigger
	cleared  []string
	armed    []string
}

func newFakeSchedule() *fakeSchedule {
	return &fakeSchedule{triggers: map[string]*fakeTrigger{}}
}

func (f *fakeSchedule) ArmRecurring(_ context.Context, stage string, fireAt time.Time, every time.Duration) error {
	if _, ok := f.triggers[stage]; ok {
		return nil
	}
	f.triggers[stage] = &fakeTrigger{fireAt: fireAt, every: every}
	f.armed = append(f.armed, stage)
	return nil
}

func (f *fakeSchedule) ArmOnce(_ context.Context, stage string, fireAt time.Time) error {
	if _, ok := f.triggers[stage]; ok {
		return nil
	}
	f.triggers[stage] = &fakeTrigger{fireAt: fireAt}
	f.armed = append(f.armed, stage)
	return nil
}

func (f *fakeSchedule) TriggerNow(_ context.Context, stage string, now time.Time) error {
	if t, ok := f.triggers[stage]; ok {
		t.fireAt = now
		return nil
	}
	f.triggers[stage] = &fakeTrigger{fireAt: now}
	f.armed = append(f.armed, stage)
	return nil
}

func (f *fakeSchedule) Clear(_ context.Context, stage string) error {
	if _, ok := f.triggers[stage]; ok {
		delete(f.triggers, stage)
	}
	f.cleared = append(f.cleared, stage)
	return nil
}

func (f *fakeSchedule) IsPending(_ context.Context, stage string) (bool, error) {
	_, ok := f.triggers[stage]
	return ok, nil
}

type fakeSettings struct {
	freq    models.CleanFrequency
	count   int
	unit    models.ThresholdUnit
	loc     *time.Location
	cfgErr  error
	freqErr error
}

func (f *fakeSettings) CleanFrequency(context.Context) (models.CleanFrequency, error) {
	return f.freq, f.freqErr
}

func (f *fakeSettings) ThresholdConfig(context.Context) (int, models.ThresholdUnit, error) {
	if f.cfgErr != nil {
		return 0, "", f.cfgErr
	}
	return f.count, f.unit, nil
}

func (f *fakeSettings) Location(context.Context) *time.Location {
	if f.loc == nil {
		return time.UTC
	}
	return f.loc
}

// fakeShop is an in-memory shop schema with referential structure: items and
// notes belong to orders, meta rows belong to items/notes/orders.
type fakeShop struct {
	orderStatus  map[int64]models.OrderStatus
	orderCreated map[int64]time.Time
	itemOrder    map[int64]int64 // item id -> order id
	itemMetaItem map[int64]int64 // meta id -> item id
	noteOrder    map[int64]int64
	noteMetaNote map[int64]int64
	metaOrder    map[int64]int64

	failures map[string]error // method name -> forced error
	calls    []string
}

func newFakeShop() *fakeShop {
	return &fakeShop{
		orderStatus:  map[int64]models.OrderStatus{},
		orderCreated: map[int64]time.Time{},
		itemOrder:    map[int64]int64{},
		itemMetaItem: map[int64]int64{},
		noteOrder:    map[int64]int64{},
		noteMetaNote: map[int64]int64{},
		metaOrder:    map[int64]int64{},
		failures:     map[string]error{},
	}
}

func (f *fakeShop) addOrder(id int64, status models.OrderStatus, created time.Time) {
	f.orderStatus[id] = status
	f.orderCreated[id] = created
}

func (f *fakeShop) marked(orderID int64) bool {
	return f.orderStatus[orderID] == models.OrderStatusMarkedForRemoval
}

func (f *fakeShop) fail(method string) (int64, error, bool) {
	if err, ok := f.failures[method]; ok {
		return 0, err, true
	}
	return 0, nil, false
}

func (f *fakeShop) CountEligible(_ context.Context, threshold time.Time) (int64, error) {
	f.calls = append(f.calls, "CountEligible")
	if n, err, ok := f.fail("CountEligible"); ok {
		return n, err
	}
	var count int64
	for id, status := range f.orderStatus {
		if status == models.OrderStatusActive && f.orderCreated[id].Before(threshold) {
			count++
		}
	}
	return count, nil
}

func (f *fakeShop) MarkEligible(_ context.Context, threshold time.Time) (int64, error) {
	f.calls = append(f.calls, "MarkEligible")
	if n, err, ok := f.fail("MarkEligible"); ok {
		return n, err
	}
	var affected int64
	for id, status := range f.orderStatus {
		if status == models.OrderStatusActive && f.orderCreated[id].Before(threshold) {
			f.orderStatus[id] = models.OrderStatusMarkedForRemoval
			affected++
		}
	}
	return affected, nil
}

func (f *fakeShop) DeleteOrderItemMeta(context.Context) (int64, error) {
	f.calls = append(f.calls, "DeleteOrderItemMeta")
	if n, err, ok := f.fail("DeleteOrderItemMeta"); ok {
		return n, err
	}
	var affected int64
	for metaID, itemID := range f.itemMetaItem {
		if f.marked(f.itemOrder[itemID]) {
			delete(f.itemMetaItem, metaID)
			affected++
		}
	}
	return affected, nil
}

func (f *fakeShop) DeleteOrderItems(context.Context) (int64, error) {
	f.calls = append(f.calls, "DeleteOrderItems")
	if n, err, ok := f.fail("DeleteOrderItems"); ok {
		return n, err
	}
	var affected int64
	for itemID, orderID := range f.itemOrder {
		if f.marked(orderID) {
			delete(f.itemOrder, itemID)
			affected++
		}
	}
	return affected, nil
}

func (f *fakeShop) DeleteOrderNoteMeta(context.Context) (int64, error) {
	f.calls = append(f.calls, "DeleteOrderNoteMeta")
	if n, err, ok := f.fail("DeleteOrderNoteMeta"); ok {
		return n, err
	}
	var affected int64
	for metaID, noteID := range f.noteMetaNote {
		if f.marked(f.noteOrder[noteID]) {
			delete(f.noteMetaNote, metaID)
			affected++
		}
	}
	return affected, nil
}

func (f *fakeShop) DeleteOrderNotes(context.Context) (int64, error) {
	f.calls = append(f.calls, "DeleteOrderNotes")
	if n, err, ok := f.fail("DeleteOrderNotes"); ok {
		return n, err
	}
	var affected int64
	for noteID, orderID := range f.noteOrder {
		if f.marked(orderID) {
			delete(f.noteOrder, noteID)
			affected++
		}
	}
	return affected, nil
}

func (f *fakeShop) DeleteOrderMeta(context.Context) (int64, error) {
	f.calls = append(f.calls, "DeleteOrderMeta")
	if n, err, ok := f.fail("DeleteOrderMeta"); ok {
		return n, err
	}
	var affected int64
	for metaID, orderID := range f.metaOrder {
		if f.marked(orderID) {
			delete(f.metaOrder, metaID)
			affected++
		}
	}
	return affected, nil
}

func (f *fakeShop) DeleteMarkedOrders(context.Context) (int64, error) {
	f.calls = append(f.calls, "DeleteMarkedOrders")
	if n, err, ok := f.fail("DeleteMarkedOrders"); ok {
		return n, err
	}
	var affected int64
	for id, status := range f.orderStatus {
		if status == models.OrderStatusMarkedForRemoval {
			delete(f.orderStatus, id)
			delete(f.orderCreated, id)
			affected++
		}
	}
	return affected, nil
}

type emittedNotice struct {
	userID   int
	severity models.NoticeSeverity
	message  string
}

type fakeNotices struct {
	emitted []emittedNotice
}

func (f *fakeNotices) Emit(_ context.Context, userID int, severity models.NoticeSeverity, message string) error {
	f.emitted = append(f.emitted, emittedNotice{userID: userID, severity: severity, message: message})
	return nil
}
