package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Delivery status of an order.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusAssigned       OrderStatus = "assigned"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusReturned       OrderStatus = "returned"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusAssigned, OrderStatusCancelled},
	OrderStatusAssigned:       {OrderStatusPending, OrderStatusOutForDelivery, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusReturned},
	OrderStatusReturned:       {OrderStatusAssigned, OrderStatusCancelled},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusAssigned, OrderStatusOutForDelivery,
		OrderStatusDelivered, OrderStatusReturned, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// orders
type Order struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Barcode string `gorm:"type:varchar(64);not null;uniqueIndex" json:"barcode"`

	RecipientName    string  `gorm:"type:varchar(255);not null" json:"recipient_name"`
	RecipientPhone   string  `gorm:"type:varchar(32);not null" json:"recipient_phone"`
	RecipientAddress string  `gorm:"type:text;not null" json:"recipient_address"`
	City             *string `gorm:"type:varchar(255);index" json:"city,omitempty"`

	CODAmount decimal.Decimal `gorm:"column:cod_amount;type:decimal(12,2);not null;default:0" json:"cod_amount"`

	DriverID *uint       `gorm:"index" json:"driver_id,omitempty"`
	Status   OrderStatus `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	Notes    *string     `gorm:"type:text" json:"notes,omitempty"`

	CreatedBy string `gorm:"size:36;not null;index" json:"created_by"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	Driver     *Driver              `gorm:"foreignKey:DriverID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"driver,omitempty"`
	Creator    *User                `gorm:"foreignKey:CreatedBy;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	SheetLinks []DelegateSheetOrder `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
