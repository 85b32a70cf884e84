package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/dispatch-core/internal/model"
)

type DelegateSheetFilter struct {
	IDs          []uint
	DriverID     *uint
	CreatedBy    *string
	SheetBarcode *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

func (f DelegateSheetFilter) Apply(tx *gorm.DB) *gorm.DB {
	if len(f.IDs) > 0 {
		tx = tx.Where("id IN ?", f.IDs)
	}
	if f.DriverID != nil {
		tx = tx.Where("driver_id = ?", *f.DriverID)
	}
	if f.CreatedBy != nil {
		tx = tx.Where("created_by = ?", *f.CreatedBy)
	}
	if f.SheetBarcode != nil {
		tx = tx.Where("sheet_barcode = ?", *f.SheetBarcode)
	}
	if f.CreatedFrom != nil {
		tx = tx.Where("created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		tx = tx.Where("created_at < ?", *f.CreatedTo)
	}
	return tx
}

type DelegateSheetUpdate struct {
	DriverID    *uint
	TotalAmount *decimal.Decimal
	OrderCount  *int
}

func (u DelegateSheetUpdate) Fields() map[string]any {
	m := map[string]any{}
	if u.DriverID != nil {
		m["driver_id"] = *u.DriverID
	}
	if u.TotalAmount != nil {
		m["total_amount"] = *u.TotalAmount
	}
	if u.OrderCount != nil {
		m["order_count"] = *u.OrderCount
	}
	return m
}

type DelegateSheetRepository interface {
	CRUD[model.DelegateSheet, DelegateSheetFilter, DelegateSheetUpdate]
	FindBySheetBarcode(ctx context.Context, barcode string) (*model.DelegateSheet, error)
	// FindWithOrders loads the sheet, its driver and every linked order.
	FindWithOrders(ctx context.Context, id uint) (*model.DelegateSheet, error)
}

type GormDelegateSheetRepository struct {
	*Store[model.DelegateSheet, DelegateSheetFilter, DelegateSheetUpdate]
}

func NewGormDelegateSheetRepository(db *gorm.DB) *GormDelegateSheetRepository {
	return &GormDelegateSheetRepository{
		Store: newStore[model.DelegateSheet, DelegateSheetFilter, DelegateSheetUpdate](db, "id",
			newColumnSet(
				[]string{"id", "sheet_barcode", "driver_id", "created_by", "total_amount", "order_count", "created_at", "updated_at"},
				[]string{"total_amount", "order_count"},
			)),
	}
}

func (r *GormDelegateSheetRepository) FindBySheetBarcode(ctx context.Context, barcode string) (*model.DelegateSheet, error) {
	var s model.DelegateSheet
	if err := r.db.WithContext(ctx).Where("sheet_barcode = ?", barcode).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return r.FindWithOrders(ctx, s.ID)
}

func (r *GormDelegateSheetRepository) FindWithOrders(ctx context.Context, id uint) (*model.DelegateSheet, error) {
	var s model.DelegateSheet
	err := r.db.WithContext(ctx).
		Preload("Driver").
		Preload("Orders", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		Preload("Orders.Order").
		First(&s, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

type DelegateSheetOrderFilter struct {
	SheetID  *uint
	SheetIDs []uint
	OrderID  *uint
	OrderIDs []uint
}

func (f DelegateSheetOrderFilter) Apply(tx *gorm.DB) *gorm.DB {
	if f.SheetID != nil {
		tx = tx.Where("sheet_id = ?", *f.SheetID)
	}
	if len(f.SheetIDs) > 0 {
		tx = tx.Where("sheet_id IN ?", f.SheetIDs)
	}
	if f.OrderID != nil {
		tx = tx.Where("order_id = ?", *f.OrderID)
	}
	if len(f.OrderIDs) > 0 {
		tx = tx.Where("order_id IN ?", f.OrderIDs)
	}
	return tx
}

// DelegateSheetOrderUpdate exists for interface symmetry; join rows are
// immutable and it never produces fields.
type DelegateSheetOrderUpdate struct{}

func (DelegateSheetOrderUpdate) Fields() map[string]any { return map[string]any{} }

type DelegateSheetOrderRepository interface {
	CRUD[model.DelegateSheetOrder, DelegateSheetOrderFilter, DelegateSheetOrderUpdate]
	// Link adds (sheetID, orderID); an existing pair is left untouched.
	Link(ctx context.Context, sheetID, orderID uint) error
	Unlink(ctx context.Context, sheetID, orderID uint) (int64, error)
	// SheetTotals sums cod_amount over the sheet's current orders.
	SheetTotals(ctx context.Context, sheetID uint) (count int, total decimal.Decimal, err error)
}

type GormDelegateSheetOrderRepository struct {
	*Store[model.DelegateSheetOrder, DelegateSheetOrderFilter, DelegateSheetOrderUpdate]
}

func NewGormDelegateSheetOrderRepository(db *gorm.DB) *GormDelegateSheetOrderRepository {
	return &GormDelegateSheetOrderRepository{
		Store: newStore[model.DelegateSheetOrder, DelegateSheetOrderFilter, DelegateSheetOrderUpdate](db, "id",
			newColumnSet([]string{"id", "sheet_id", "order_id", "created_at"}, nil)),
	}
}

func (r *GormDelegateSheetOrderRepository) Link(ctx context.Context, sheetID, orderID uint) error {
	link := model.DelegateSheetOrder{SheetID: sheetID, OrderID: orderID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sheet_id"}, {Name: "order_id"}},
			DoNothing: true,
		}).
		Create(&link).Error
	return translate(err)
}

func (r *GormDelegateSheetOrderRepository) Unlink(ctx context.Context, sheetID, orderID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("sheet_id = ? AND order_id = ?", sheetID, orderID).
		Delete(&model.DelegateSheetOrder{})
	return res.RowsAffected, translate(res.Error)
}

func (r *GormDelegateSheetOrderRepository) SheetTotals(ctx context.Context, sheetID uint) (int, decimal.Decimal, error) {
	var row struct {
		Count int64
		Total decimal.NullDecimal
	}
	err := r.db.WithContext(ctx).
		Table("delegate_sheet_orders dso").
		Select("COUNT(*) AS count, SUM(o.cod_amount) AS total").
		Joins("JOIN orders o ON o.id = dso.order_id").
		Where("dso.sheet_id = ?", sheetID).
		Scan(&row).Error
	if err != nil {
		return 0, decimal.Zero, translate(err)
	}
	total := decimal.Zero
	if row.Total.Valid {
		total = row.Total.Decimal
	}
	return int(row.Count), total.Round(2), nil
}
