package models

import (
	"context"
	"fmt"
	"log"

	"bitbucket.org/mmdatafocus/orders_retention/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Order{}, &OrderItem{}, &OrderItemMeta{},
		&OrderNote{}, &OrderNoteMeta{}, &OrderMeta{},
		&Setting{}, &ScheduledTrigger{}, &Notice{},
	)
	if err != nil {
		log.Fatal(err)
	}
}

// EnsureShopSchema verifies the host shop's order tables exist. When the
// service runs with SKIP_MIGRATIONS it must refuse to start against a
// database that does not carry the shop schema, instead of silently
// scheduling stages that can never succeed.
func EnsureShopSchema(db *gorm.DB) error {
	required := []interface{}{
		&Order{}, &OrderItem{}, &OrderItemMeta{},
		&OrderNote{}, &OrderNoteMeta{}, &OrderMeta{},
	}
	for _, model := range required {
		if !db.Migrator().HasTable(model) {
			return fmt.Errorf("shop schema missing: this service requires the host shop's order tables; run migrations or point DB_NAME at the shop database")
		}
	}
	return nil
}

// ResetRetentionState clears every pending trigger and deletes the retention
// settings. Uninstall path; the shop schema itself is untouched.
func ResetRetentionState(ctx context.Context, db *gorm.DB) error {
	if err := NewTriggerSchedule(db).ClearAll(ctx); err != nil {
		return err
	}
	return NewSettingStore(db).DeleteRetentionSettings(ctx)
}
