package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentMethodCard     = "CARD"
	PaymentMethodTransfer = "TRANSFER"

	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
)

// CartLine is one product-and-quantity entry of the session cart. The JSON
// layout matches what the storefront persists under the cartItems key.
type CartLine struct {
	ProductID int64           `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"imageUrl"`
}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"imageUrl"`
}

// WishListEntry is the server-side favorite marker. The local set is a cache
// of product ids only, never authoritative.
type WishListEntry struct {
	ID        int64 `json:"id"`
	UserID    int64 `json:"userId"`
	ProductID int64 `json:"productId"`
}

type Order struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"userId"`
	OrderCount    int             `json:"orderCount"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	PaymentMethod string          `json:"paymentMethod"`
	PaymentStatus string          `json:"paymentStatus"`
	Address       string          `json:"address"`
	CreateDate    time.Time       `json:"createDate"`
}

type OrderItem struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"orderId"`
	ProductID  int64           `json:"productId"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// SessionEntry is one durable key/value pair scoped to a browser session.
type SessionEntry struct {
	ID        uint   `gorm:"primaryKey"                              json:"id"`
	SessionID string `gorm:"uniqueIndex:idx_session_key;not null"    json:"session_id"`
	Key       string `gorm:"uniqueIndex:idx_session_key;not null"    json:"key"`
	Value     string `gorm:"not null"                                json:"value"`
}

func (SessionEntry) TableName() string {
	return "session_entries"
}
