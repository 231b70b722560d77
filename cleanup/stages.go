package cleanup

import (
	"context"
	"time"
)

// StageID identifies one step of the deletion pipeline. Stage ids double as
// the durable trigger keys in the scheduled_triggers table, so renaming one
// orphans in-flight triggers of a running installation.
type StageID string

const (
	StageMarkOrders      StageID = "mark_orders"
	StageDeleteItemMeta  StageID = "delete_order_item_meta"
	StageDeleteItems     StageID = "delete_order_items"
	StageDeleteNoteMeta  StageID = "delete_order_note_meta"
	StageDeleteNotes     StageID = "delete_order_notes"
	StageDeleteOrderMeta StageID = "delete_order_meta"
	StageDeleteOrders    StageID = "delete_orders"
)

// Store is the bulk-operation contract the pipeline requires from the shop
// database. Implemented by models.OrderStore; tests substitute fakes.
type Store interface {
	CountEligible(ctx context.Context, threshold time.Time) (int64, error)
	MarkEligible(ctx context.Context, threshold time.Time) (int64, error)
	DeleteOrderItemMeta(ctx context.Context) (int64, error)
	DeleteOrderItems(ctx context.Context) (int64, error)
	DeleteOrderNoteMeta(ctx context.Context) (int64, error)
	DeleteOrderNotes(ctx context.Context) (int64, error)
	DeleteOrderMeta(ctx context.Context) (int64, error)
	DeleteMarkedOrders(ctx context.Context) (int64, error)
}

// Stage is one node of the pipeline. Actions are idempotent single-statement
// bulk operations: every delete stage is scoped to orders already marked for
// removal, so re-running one after a crash or overlapping an adjacent stage
// affects zero extra rows.
type Stage struct {
	ID     StageID
	Action func(ctx context.Context, store Store, threshold time.Time) (int64, error)
	Next   StageID // empty = terminal
	// NextDelay is how far in the future the successor is armed after this
	// stage completes.
	NextDelay time.Duration
}

func (s Stage) Terminal() bool { return s.Next == "" }

// Chain returns the pipeline stages in execution order. Dependent records
// are always deleted child-first, and the order rows go last.
func Chain() []Stage {
	return []Stage{
		{
			ID: StageMarkOrders,
			Action: func(ctx context.Context, store Store, threshold time.Time) (int64, error) {
				return store.MarkEligible(ctx, threshold)
			},
			Next:      StageDeleteItemMeta,
			NextDelay: 3 * time.Second,
		},
		{
			ID: StageDeleteItemMeta,
			Action: func(ctx context.Context, store Store, _ time.Time) (int64, error) {
				return store.DeleteOrderItemMeta(ctx)
			},
			Next:      StageDeleteItems,
			NextDelay: 10 * time.Second,
		},
		{
			ID: StageDeleteItems,
			Action: func(ctx context.Context, store Store, _ time.Time) (int64, error) {
				return store.DeleteOrderItems(ctx)
			},
			Next:      StageDeleteNoteMeta,
			NextDelay: 10 * time.Second,
		},
		{
			ID: StageDeleteNoteMeta,
			Action: func(ctx context.Context, store Store, _ time.Time) (int64, error) {
				return store.DeleteOrderNoteMeta(ctx)
			},
			Next:      StageDeleteNotes,
			NextDelay: 10 * time.Second,
		},
		{
			ID: StageDeleteNotes,
			Action: func(ctx context.Context, store Store, _ time.Time) (int64, error) {
				return store.DeleteOrderNotes(ctx)
			},
			Next:      StageDeleteOrderMeta,
			NextDelay: 10 * time.Second,
		},
		{
			ID: StageDeleteOrderMeta,
			Action: func(ctx context.Context, store Store, _ time.Time) (int64, error) {
				return store.DeleteOrderMeta(ctx)
			},
			Next:      StageDeleteOrders,
			NextDelay: 10 * time.Second,
		},
		{
			ID: StageDeleteOrders,
			Action: func(ctx context.Context, store Store, _ time.Time) (int64, error) {
				return store.DeleteMarkedOrders(ctx)
			},
		},
	}
}

// StageByID looks a stage up in the chain. ok is false for unknown ids,
// which can happen when an old trigger row survives a deploy that removed
// its stage.
func StageByID(id StageID) (Stage, bool) {
	for _, s := range Chain() {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// AllStageIDs returns every stage id in pipeline order.
func AllStageIDs() []StageID {
	chain := Chain()
	ids := make([]StageID, 0, len(chain))
	for _, s := range chain {
		ids = append(ids, s.ID)
	}
	return ids
}
