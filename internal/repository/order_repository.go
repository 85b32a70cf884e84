package repository

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/dispatch-core/internal/model"
)

// OrderFilter is the where-input of the orders table.
type OrderFilter struct {
	IDs          []uint
	Barcodes     []string
	Statuses     []model.OrderStatus
	DriverID     *uint
	DriverIsNull bool
	City         *string
	CreatedBy    *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Search       string // barcode, recipient name or phone
	// OnSheet filters on membership in any delegate sheet when set.
	OnSheet *bool
	SheetID *uint
}

func (f OrderFilter) Apply(tx *gorm.DB) *gorm.DB {
	if len(f.IDs) > 0 {
		tx = tx.Where("id IN ?", f.IDs)
	}
	if len(f.Barcodes) > 0 {
		tx = tx.Where("barcode IN ?", f.Barcodes)
	}
	if len(f.Statuses) > 0 {
		tx = tx.Where("status IN ?", f.Statuses)
	}
	if f.DriverIsNull {
		tx = tx.Where("driver_id IS NULL")
	} else if f.DriverID != nil {
		tx = tx.Where("driver_id = ?", *f.DriverID)
	}
	if f.City != nil {
		tx = tx.Where("city = ?", *f.City)
	}
	if f.CreatedBy != nil {
		tx = tx.Where("created_by = ?", *f.CreatedBy)
	}
	if f.CreatedFrom != nil {
		tx = tx.Where("created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		tx = tx.Where("created_at < ?", *f.CreatedTo)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := likePattern(s)
		tx = tx.Where("LOWER(barcode) LIKE ? OR LOWER(recipient_name) LIKE ? OR recipient_phone LIKE ?", p, p, p)
	}
	if f.OnSheet != nil {
		sub := "EXISTS (SELECT 1 FROM delegate_sheet_orders dso WHERE dso.order_id = orders.id)"
		if *f.OnSheet {
			tx = tx.Where(sub)
		} else {
			tx = tx.Where("NOT " + sub)
		}
	}
	if f.SheetID != nil {
		tx = tx.Where("id IN (SELECT order_id FROM delegate_sheet_orders WHERE sheet_id = ?)", *f.SheetID)
	}
	return tx
}

// OrderUpdate is the update-input of the orders table.
type OrderUpdate struct {
	RecipientName    *string
	RecipientPhone   *string
	RecipientAddress *string
	City             *string
	CODAmount        *decimal.Decimal
	DriverID         *uint
	ClearDriver      bool
	Status           *model.OrderStatus
	Notes            *string
}

func (u OrderUpdate) Fields() map[string]any {
	m := map[string]any{}
	if u.RecipientName != nil {
		m["recipient_name"] = *u.RecipientName
	}
	if u.RecipientPhone != nil {
		m["recipient_phone"] = *u.RecipientPhone
	}
	if u.RecipientAddress != nil {
		m["recipient_address"] = *u.RecipientAddress
	}
	if u.City != nil {
		m["city"] = *u.City
	}
	if u.CODAmount != nil {
		m["cod_amount"] = *u.CODAmount
	}
	if u.ClearDriver {
		m["driver_id"] = nil
	} else if u.DriverID != nil {
		m["driver_id"] = *u.DriverID
	}
	if u.Status != nil {
		m["status"] = *u.Status
	}
	if u.Notes != nil {
		m["notes"] = *u.Notes
	}
	return m
}

type OrderRepository interface {
	CRUD[model.Order, OrderFilter, OrderUpdate]
	FindByBarcode(ctx context.Context, barcode string) (*model.Order, error)
	FindByBarcodes(ctx context.Context, barcodes []string) ([]model.Order, error)
	Upsert(ctx context.Context, order *model.Order) (*model.Order, error)
}

type GormOrderRepository struct {
	*Store[model.Order, OrderFilter, OrderUpdate]
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{
		Store: newStore[model.Order, OrderFilter, OrderUpdate](db, "id",
			newColumnSet(
				[]string{"id", "barcode", "status", "driver_id", "city", "created_by", "cod_amount", "recipient_name", "created_at", "updated_at"},
				[]string{"cod_amount", "id"},
			)),
	}
}

func (r *GormOrderRepository) FindByBarcode(ctx context.Context, barcode string) (*model.Order, error) {
	var o model.Order
	if err := r.db.WithContext(ctx).Preload("Driver").Where("barcode = ?", barcode).First(&o).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

// FindByBarcodes returns the orders that exist; callers diff against the input.
func (r *GormOrderRepository) FindByBarcodes(ctx context.Context, barcodes []string) ([]model.Order, error) {
	orders := make([]model.Order, 0, len(barcodes))
	if len(barcodes) == 0 {
		return orders, nil
	}
	if err := r.db.WithContext(ctx).Where("barcode IN ?", barcodes).Order("id ASC").Find(&orders).Error; err != nil {
		return nil, translate(err)
	}
	return orders, nil
}

// Upsert keys on barcode; an existing order gets its recipient fields and
// COD amount refreshed, driver and status are left alone.
func (r *GormOrderRepository) Upsert(ctx context.Context, order *model.Order) (*model.Order, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "barcode"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"recipient_name", "recipient_phone", "recipient_address", "city", "cod_amount", "notes", "updated_at",
		}),
	}).Create(order).Error
	if err != nil {
		return nil, translate(err)
	}
	return r.FindByBarcode(ctx, order.Barcode)
}
