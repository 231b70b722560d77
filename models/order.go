package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a row in the host shop's orders table. The retention service never
// loads orders one by one; it only issues bulk predicate operations over them.
type Order struct {
	ID            int64           `gorm:"primary_key" json:"id"`
	OrderNumber   string          `gorm:"size:255;not null" json:"order_number"`
	CustomerEmail string          `gorm:"size:255" json:"customer_email"`
	CurrencyCode  string          `gorm:"size:3" json:"currency_code"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Status        OrderStatus     `gorm:"type:enum('Active','MarkedForRemoval');not null;default:'Active';index:idx_orders_retention,priority:1" json:"status"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;not null;index:idx_orders_retention,priority:2" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID        int64           `gorm:"primary_key" json:"id"`
	OrderId   int64           `gorm:"index;not null" json:"order_id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (OrderItem) TableName() string { return "order_items" }

type OrderItemMeta struct {
	ID          int64  `gorm:"primary_key" json:"id"`
	OrderItemId int64  `gorm:"index;not null" json:"order_item_id"`
	MetaKey     string `gorm:"size:191;index" json:"meta_key"`
	MetaValue   string `gorm:"type:text" json:"meta_value"`
}

func (OrderItemMeta) TableName() string { return "order_item_meta" }

type OrderNote struct {
	ID             int64     `gorm:"primary_key" json:"id"`
	OrderId        int64     `gorm:"index;not null" json:"order_id"`
	Author         string    `gorm:"size:255" json:"author"`
	Content        string    `gorm:"type:text" json:"content"`
	IsCustomerNote bool      `gorm:"not null;default:false" json:"is_customer_note"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (OrderNote) TableName() string { return "order_notes" }

type OrderNoteMeta struct {
	ID          int64  `gorm:"primary_key" json:"id"`
	OrderNoteId int64  `gorm:"index;not null" json:"order_note_id"`
	MetaKey     string `gorm:"size:191;index" json:"meta_key"`
	MetaValue   string `gorm:"type:text" json:"meta_value"`
}

func (OrderNoteMeta) TableName() string { return "order_note_meta" }

type OrderMeta struct {
	ID        int64  `gorm:"primary_key" json:"id"`
	OrderId   int64  `gorm:"index;not null" json:"order_id"`
	MetaKey   string `gorm:"size:191;index" json:"meta_key"`
	MetaValue string `gorm:"type:text" json:"meta_value"`
}

func (OrderMeta) TableName() string { return "order_meta" }
