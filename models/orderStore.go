package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// OrderStore runs the bulk retention operations against the shop schema.
// Every operation is a single statement; the pipeline never opens a
// transaction spanning more than one of them.
//
// The dependent deletes are multi-table MySQL deletes joined back to the
// orders table, so they only ever touch records whose owning order is
// already marked for removal. Re-running any of them is a no-op.
type OrderStore struct {
	DB *gorm.DB
}

func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{DB: db}
}

// CountEligible counts active orders created before the threshold date.
// Used for the large-volume warning, with the same predicate MarkEligible uses.
func (s *OrderStore) CountEligible(ctx context.Context, threshold time.Time) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&Order{}).
		Where("status = ? AND created_at < ?", OrderStatusActive, threshold).
		Count(&count).Error
	return count, err
}

// MarkEligible flips active orders created before the threshold date to
// MarkedForRemoval. Orders already marked are left alone, so a fresh cycle
// overlapping a slow-moving chain is harmless.
func (s *OrderStore) MarkEligible(ctx context.Context, threshold time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&Order{}).
		Where("status = ? AND created_at < ?", OrderStatusActive, threshold).
		Update("status", OrderStatusMarkedForRemoval)
	return res.RowsAffected, res.Error
}

func (s *OrderStore) DeleteOrderItemMeta(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Exec(`
		DELETE oim FROM order_item_meta AS oim
		JOIN order_items AS oi ON oim.order_item_id = oi.id
		JOIN orders AS o ON oi.order_id = o.id
		WHERE o.status = ?`, OrderStatusMarkedForRemoval)
	return res.RowsAffected, res.Error
}

func (s *OrderStore) DeleteOrderItems(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Exec(`
		DELETE oi FROM order_items AS oi
		JOIN orders AS o ON oi.order_id = o.id
		WHERE o.status = ?`, OrderStatusMarkedForRemoval)
	return res.RowsAffected, res.Error
}

func (s *OrderStore) DeleteOrderNoteMeta(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Exec(`
		DELETE onm FROM order_note_meta AS onm
		JOIN order_notes AS n ON onm.order_note_id = n.id
		JOIN orders AS o ON n.order_id = o.id
		WHERE o.status = ?`, OrderStatusMarkedForRemoval)
	return res.RowsAffected, res.Error
}

func (s *OrderStore) DeleteOrderNotes(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Exec(`
		DELETE n FROM order_notes AS n
		JOIN orders AS o ON n.order_id = o.id
		WHERE o.status = ?`, OrderStatusMarkedForRemoval)
	return res.RowsAffected, res.Error
}

func (s *OrderStore) DeleteOrderMeta(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Exec(`
		DELETE om FROM order_meta AS om
		JOIN orders AS o ON om.order_id = o.id
		WHERE o.status = ?`, OrderStatusMarkedForRemoval)
	return res.RowsAffected, res.Error
}

// DeleteMarkedOrders removes the order rows themselves. Terminal step; all
// dependent records must already be gone by the time this runs.
func (s *OrderStore) DeleteMarkedOrders(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("status = ?", OrderStatusMarkedForRemoval).
		Delete(&Order{})
	return res.RowsAffected, res.Error
}
