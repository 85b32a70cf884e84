package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Leganyst/dispatch-core/internal/cache"
	"github.com/Leganyst/dispatch-core/internal/logger"
	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/repository"
)

// DelegateSheetService batches orders onto delegate sheets and reconciles
// the money a driver brings back against them.
type DelegateSheetService struct {
	repos    *repository.Repositories
	cache    cache.Cache
	cacheTTL time.Duration
	inv      invalidator
	log      *logger.Logger
	now      func() time.Time
}

func NewDelegateSheetService(repos *repository.Repositories, c cache.Cache, cacheTTL time.Duration, log *logger.Logger) *DelegateSheetService {
	log = log.With("service", "delegate_sheet")
	return &DelegateSheetService{
		repos:    repos,
		cache:    c,
		cacheTTL: cacheTTL,
		inv:      invalidator{cache: c, log: log},
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateSheetInput struct {
	DriverID uint
	Barcodes []string
}

// Reconciliation compares a sheet's stored totals with its orders.
type Reconciliation struct {
	SheetID      uint   `json:"sheet_id"`
	SheetBarcode string `json:"sheet_barcode"`
	OrderCount   int    `json:"order_count"`
	Delivered    int    `json:"delivered"`
	Returned     int    `json:"returned"`
	Outstanding  int    `json:"outstanding"`

	ExpectedAmount  decimal.Decimal `json:"expected_amount"`
	CollectedAmount decimal.Decimal `json:"collected_amount"`
	ReturnedAmount  decimal.Decimal `json:"returned_amount"`
	// Drift is stored total minus recomputed total before correction.
	Drift     decimal.Decimal `json:"drift"`
	Corrected bool            `json:"corrected"`
}

func (s *DelegateSheetService) Create(ctx context.Context, in CreateSheetInput, createdBy string) (*model.DelegateSheet, error) {
	barcodes := uniqueBarcodes(in.Barcodes)
	if len(barcodes) == 0 {
		return nil, validationf("at least one order barcode is required")
	}

	var sheet *model.DelegateSheet
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Users.FindUnique(ctx, createdBy); err != nil {
			return notFound("user", createdBy, err)
		}
		if _, err := tx.Drivers.FindUnique(ctx, in.DriverID); err != nil {
			return notFound("driver", in.DriverID, err)
		}
		orders, err := loadSheetCandidates(ctx, tx, barcodes, in.DriverID)
		if err != nil {
			return err
		}

		created := &model.DelegateSheet{
			SheetBarcode: newBarcode("DS", s.now()),
			DriverID:     in.DriverID,
			CreatedBy:    createdBy,
		}
		if err := tx.DelegateSheets.Create(ctx, created); err != nil {
			return fmt.Errorf("create sheet: %w", err)
		}
		if err := attachOrders(ctx, tx, created, orders); err != nil {
			return err
		}
		sheet, err = tx.DelegateSheets.FindWithOrders(ctx, created.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.inv.reports(ctx)
	s.log.InfoContext(ctx, "delegate sheet created",
		"sheet_id", sheet.ID, "sheet_barcode", sheet.SheetBarcode,
		"driver_id", sheet.DriverID, "orders", sheet.OrderCount, "total", sheet.TotalAmount.StringFixed(2))
	return sheet, nil
}

// Get returns the sheet with its driver and orders, served from cache when
// possible.
func (s *DelegateSheetService) Get(ctx context.Context, id uint) (*model.DelegateSheet, error) {
	key := sheetKey(id)
	var cached model.DelegateSheet
	switch err := s.cache.Get(ctx, key, &cached); {
	case err == nil:
		return &cached, nil
	case !errors.Is(err, cache.ErrMiss):
		s.log.WarnContext(ctx, "cache read failed", "key", key, "err", err)
	}

	sheet, err := s.repos.DelegateSheets.FindWithOrders(ctx, id)
	if err != nil {
		return nil, notFound("delegate sheet", id, err)
	}
	if err := s.cache.Set(ctx, key, sheet, s.cacheTTL); err != nil {
		s.log.WarnContext(ctx, "cache write failed", "key", key, "err", err)
	}
	return sheet, nil
}

func (s *DelegateSheetService) GetByBarcode(ctx context.Context, barcode string) (*model.DelegateSheet, error) {
	barcode = normalizeBarcode(barcode)
	head, err := s.repos.DelegateSheets.FindFirst(ctx, repository.FindArgs[repository.DelegateSheetFilter]{
		Where: repository.DelegateSheetFilter{SheetBarcode: &barcode},
	})
	if err != nil {
		return nil, notFound("delegate sheet", barcode, err)
	}
	return s.Get(ctx, head.ID)
}

// List returns sheet headers (with driver), newest first.
func (s *DelegateSheetService) List(ctx context.Context, f repository.DelegateSheetFilter, page repository.Page) ([]model.DelegateSheet, int64, error) {
	page = page.Normalize()
	total, err := s.repos.DelegateSheets.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.repos.DelegateSheets.FindMany(ctx, repository.FindArgs[repository.DelegateSheetFilter]{
		Where:   f,
		OrderBy: []repository.OrderBy{repository.Desc("created_at"), repository.Desc("id")},
		Skip:    page.Offset(),
		Take:    page.Size,
		Preload: []string{"Driver"},
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// AddOrders puts more orders on an existing sheet under the same rules as Create.
func (s *DelegateSheetService) AddOrders(ctx context.Context, sheetID uint, barcodes []string) (*model.DelegateSheet, error) {
	barcodes = uniqueBarcodes(barcodes)
	if len(barcodes) == 0 {
		return nil, validationf("at least one order barcode is required")
	}

	var sheet *model.DelegateSheet
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		current, err := tx.DelegateSheets.FindUnique(ctx, sheetID)
		if err != nil {
			return notFound("delegate sheet", sheetID, err)
		}
		orders, err := loadSheetCandidates(ctx, tx, barcodes, current.DriverID)
		if err != nil {
			return err
		}
		if err := attachOrders(ctx, tx, current, orders); err != nil {
			return err
		}
		sheet, err = tx.DelegateSheets.FindWithOrders(ctx, sheetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.inv.sheets(ctx, sheetID)
	return sheet, nil
}

// RemoveOrder takes an out-for-delivery or returned order off the sheet; it
// stays with the driver as assigned.
func (s *DelegateSheetService) RemoveOrder(ctx context.Context, sheetID, orderID uint) (*model.DelegateSheet, error) {
	var sheet *model.DelegateSheet
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.DelegateSheets.FindUnique(ctx, sheetID); err != nil {
			return notFound("delegate sheet", sheetID, err)
		}
		order, err := tx.Orders.FindUnique(ctx, orderID)
		if err != nil {
			return notFound("order", orderID, err)
		}
		if order.Status != model.OrderStatusOutForDelivery && order.Status != model.OrderStatusReturned {
			return fmt.Errorf("order %s is %s and cannot leave the sheet: %w", order.Barcode, order.Status, ErrInvalidTransition)
		}
		n, err := tx.DelegateSheetOrders.Unlink(ctx, sheetID, orderID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("order %d on sheet %d: %w", orderID, sheetID, ErrNotFound)
		}
		assigned := model.OrderStatusAssigned
		if _, err := tx.Orders.Update(ctx, orderID, repository.OrderUpdate{Status: &assigned}); err != nil {
			return err
		}
		if err := refreshSheetTotals(ctx, tx, sheetID); err != nil {
			return err
		}
		sheet, err = tx.DelegateSheets.FindWithOrders(ctx, sheetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.inv.sheets(ctx, sheetID)
	return sheet, nil
}

// Delete dissolves a sheet. Orders still out for delivery go back to
// assigned; delivered and returned orders keep their status.
func (s *DelegateSheetService) Delete(ctx context.Context, sheetID uint) error {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.DelegateSheets.FindUnique(ctx, sheetID); err != nil {
			return notFound("delegate sheet", sheetID, err)
		}
		assigned := model.OrderStatusAssigned
		if _, err := tx.Orders.UpdateMany(ctx,
			repository.OrderFilter{SheetID: &sheetID, Statuses: []model.OrderStatus{model.OrderStatusOutForDelivery}},
			repository.OrderUpdate{Status: &assigned},
		); err != nil {
			return err
		}
		if _, err := tx.DelegateSheetOrders.DeleteMany(ctx, repository.DelegateSheetOrderFilter{SheetID: &sheetID}); err != nil {
			return err
		}
		_, err := tx.DelegateSheets.Delete(ctx, sheetID)
		return err
	})
	if err != nil {
		return err
	}
	s.inv.sheets(ctx, sheetID)
	s.log.InfoContext(ctx, "delegate sheet deleted", "sheet_id", sheetID)
	return nil
}

// Reconcile recounts the sheet from its orders, reports delivery progress and
// money, and persists corrected totals when the stored ones drifted.
func (s *DelegateSheetService) Reconcile(ctx context.Context, sheetID uint) (*Reconciliation, error) {
	var rec *Reconciliation
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		sheet, err := tx.DelegateSheets.FindUnique(ctx, sheetID)
		if err != nil {
			return notFound("delegate sheet", sheetID, err)
		}

		groups, err := tx.Orders.GroupBy(ctx, repository.OrderFilter{SheetID: &sheetID}, repository.GroupByArgs{
			By:            []string{"status"},
			AggregateArgs: repository.AggregateArgs{Sum: []string{"cod_amount"}},
		})
		if err != nil {
			return err
		}

		rec = &Reconciliation{
			SheetID:         sheet.ID,
			SheetBarcode:    sheet.SheetBarcode,
			ExpectedAmount:  decimal.Zero,
			CollectedAmount: decimal.Zero,
			ReturnedAmount:  decimal.Zero,
		}
		for _, g := range groups {
			status := model.OrderStatus(deref(g.Keys["status"]))
			count := int(g.Count)
			amount := decimal.Zero
			if sum := g.Sum["cod_amount"]; sum.Valid {
				amount = sum.Decimal
			}

			rec.OrderCount += count
			rec.ExpectedAmount = rec.ExpectedAmount.Add(amount)
			switch status {
			case model.OrderStatusDelivered:
				rec.Delivered += count
				rec.CollectedAmount = rec.CollectedAmount.Add(amount)
			case model.OrderStatusReturned:
				rec.Returned += count
				rec.ReturnedAmount = rec.ReturnedAmount.Add(amount)
			default:
				rec.Outstanding += count
			}
		}
		rec.ExpectedAmount = rec.ExpectedAmount.Round(2)
		rec.CollectedAmount = rec.CollectedAmount.Round(2)
		rec.ReturnedAmount = rec.ReturnedAmount.Round(2)
		rec.Drift = sheet.TotalAmount.Sub(rec.ExpectedAmount).Round(2)

		if sheet.OrderCount == rec.OrderCount && rec.Drift.IsZero() {
			return nil
		}
		rec.Corrected = true
		_, err = tx.DelegateSheets.Update(ctx, sheetID, repository.DelegateSheetUpdate{
			OrderCount:  &rec.OrderCount,
			TotalAmount: &rec.ExpectedAmount,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if rec.Corrected {
		s.log.WarnContext(ctx, "delegate sheet totals corrected",
			"sheet_id", sheetID, "drift", rec.Drift.StringFixed(2), "orders", rec.OrderCount)
		s.inv.sheets(ctx, sheetID)
	}
	return rec, nil
}

// loadSheetCandidates resolves barcodes to orders that may go on a sheet of
// driverID. Every offending barcode is named in the returned error.
func loadSheetCandidates(ctx context.Context, tx *repository.Repositories, barcodes []string, driverID uint) ([]model.Order, error) {
	orders, err := tx.Orders.FindByBarcodes(ctx, barcodes)
	if err != nil {
		return nil, err
	}
	if len(orders) != len(barcodes) {
		found := make(map[string]struct{}, len(orders))
		for _, o := range orders {
			found[o.Barcode] = struct{}{}
		}
		var missing []string
		for _, b := range barcodes {
			if _, ok := found[b]; !ok {
				missing = append(missing, b)
			}
		}
		return nil, fmt.Errorf("unknown barcodes %s: %w", strings.Join(missing, ", "), ErrNotFound)
	}

	ids := make([]uint, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	onSheet, err := tx.Orders.FindMany(ctx, repository.FindArgs[repository.OrderFilter]{
		Where: repository.OrderFilter{IDs: ids, OnSheet: ptrTo(true)},
	})
	if err != nil {
		return nil, err
	}
	if len(onSheet) > 0 {
		return nil, fmt.Errorf("%s: %w", joinBarcodes(onSheet), ErrOrderOnSheet)
	}

	var wrongStatus, otherDriver []model.Order
	for _, o := range orders {
		if o.Status != model.OrderStatusPending && o.Status != model.OrderStatusAssigned {
			wrongStatus = append(wrongStatus, o)
			continue
		}
		if o.DriverID != nil && *o.DriverID != driverID {
			otherDriver = append(otherDriver, o)
		}
	}
	if len(wrongStatus) > 0 {
		return nil, fmt.Errorf("orders not ready for dispatch %s: %w", joinBarcodes(wrongStatus), ErrInvalidTransition)
	}
	if len(otherDriver) > 0 {
		return nil, fmt.Errorf("%s: %w", joinBarcodes(otherDriver), ErrDriverMismatch)
	}
	return orders, nil
}

// attachOrders links orders to sheet, sends them out with its driver and
// refreshes the sheet totals.
func attachOrders(ctx context.Context, tx *repository.Repositories, sheet *model.DelegateSheet, orders []model.Order) error {
	ids := make([]uint, len(orders))
	for i, o := range orders {
		if err := tx.DelegateSheetOrders.Link(ctx, sheet.ID, o.ID); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s: %w", o.Barcode, ErrOrderOnSheet)
			}
			return fmt.Errorf("link order %s: %w", o.Barcode, err)
		}
		ids[i] = o.ID
	}
	// Orders whose status moved on since loadSheetCandidates are not touched
	// and fail the whole batch.
	out := model.OrderStatusOutForDelivery
	driverID := sheet.DriverID
	n, err := tx.Orders.UpdateMany(ctx,
		repository.OrderFilter{IDs: ids, Statuses: []model.OrderStatus{model.OrderStatusPending, model.OrderStatusAssigned}},
		repository.OrderUpdate{DriverID: &driverID, Status: &out},
	)
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return fmt.Errorf("%d of %d orders changed status while dispatching: %w", int64(len(ids))-n, len(ids), ErrInvalidTransition)
	}
	return refreshSheetTotals(ctx, tx, sheet.ID)
}

func joinBarcodes(orders []model.Order) string {
	codes := make([]string, len(orders))
	for i, o := range orders {
		codes[i] = o.Barcode
	}
	return strings.Join(codes, ", ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptrTo[T any](v T) *T { return &v }
