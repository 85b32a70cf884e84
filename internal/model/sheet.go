package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// delegate_sheets: a batch of orders handed to one driver.
type DelegateSheet struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SheetBarcode string `gorm:"type:varchar(64);not null;uniqueIndex" json:"sheet_barcode"`

	DriverID  uint   `gorm:"not null;index" json:"driver_id"`
	CreatedBy string `gorm:"size:36;not null;index" json:"created_by"`

	TotalAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_amount"`
	OrderCount  int             `gorm:"not null;default:0" json:"order_count"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	Driver  *Driver              `gorm:"foreignKey:DriverID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"driver,omitempty"`
	Creator *User                `gorm:"foreignKey:CreatedBy;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Orders  []DelegateSheetOrder `gorm:"foreignKey:SheetID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"orders,omitempty"`
}

// delegate_sheet_orders: join rows, one per (sheet, order). An order sits on
// at most one sheet.
type DelegateSheetOrder struct {
	ID      uint `gorm:"primaryKey;autoIncrement" json:"id"`
	SheetID uint `gorm:"not null;uniqueIndex:idx_sheet_order" json:"sheet_id"`
	OrderID uint `gorm:"not null;uniqueIndex:idx_sheet_order;uniqueIndex:idx_sheet_orders_order" json:"order_id"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`

	Sheet *DelegateSheet `gorm:"foreignKey:SheetID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Order *Order         `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"order,omitempty"`
}
