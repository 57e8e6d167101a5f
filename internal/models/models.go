package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int    `json:"id"`
	Email        string `json:"email"` // stored trimmed and lower-cased
	PasswordHash string `json:"-"`
	IsAdmin      bool   `json:"is_admin"`
}

type Item struct {
	ID            int             `json:"id"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	Description   string          `json:"description"`
	VideoFilename string          `json:"video_filename"` // bare filename under the upload dir
	FileFilename  string          `json:"file_filename"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Order struct {
	ID        int         `json:"id"`
	UserID    int         `json:"user_id"`
	UserEmail string      `json:"user_email"` // For display convenience
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	Lines     []OrderItem `json:"lines"`
}

// Total sums the snapshot line totals. Immune to later item price edits.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.PriceEach.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

type OrderItem struct {
	ID        int             `json:"id"`
	OrderID   int             `json:"order_id"`
	ItemID    int             `json:"item_id"`
	ItemTitle string          `json:"item_title"` // For display convenience; "(deleted item)" if gone
	Quantity  int             `json:"quantity"`
	PriceEach decimal.Decimal `json:"price_each"` // captured at checkout time
}

// Order statuses. Any status may move to any other status.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusFulfilled = "fulfilled"
)

var orderStatuses = map[string]bool{
	StatusPending:   true,
	StatusApproved:  true,
	StatusRejected:  true,
	StatusFulfilled: true,
}

func ValidOrderStatus(s string) bool {
	return orderStatuses[s]
}
