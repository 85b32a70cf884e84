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

type OrderService struct {
	repos *repository.Repositories
	inv   invalidator
	log   *logger.Logger
	now   func() time.Time
}

func NewOrderService(repos *repository.Repositories, c cache.Cache, log *logger.Logger) *OrderService {
	log = log.With("service", "order")
	return &OrderService{
		repos: repos,
		inv:   invalidator{cache: c, log: log},
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type CreateOrderInput struct {
	Barcode          string
	RecipientName    string
	RecipientPhone   string
	RecipientAddress string
	City             *string
	CODAmount        decimal.Decimal
	DriverID         *uint
	Notes            *string
}

// UpdateOrderInput edits recipient data and money; nil fields are kept.
type UpdateOrderInput struct {
	RecipientName    *string
	RecipientPhone   *string
	RecipientAddress *string
	City             *string
	CODAmount        *decimal.Decimal
	Notes            *string
}

func (s *OrderService) Create(ctx context.Context, in CreateOrderInput, createdBy string) (*model.Order, error) {
	order := &model.Order{
		Barcode:          normalizeBarcode(in.Barcode),
		RecipientName:    strings.TrimSpace(in.RecipientName),
		RecipientPhone:   strings.TrimSpace(in.RecipientPhone),
		RecipientAddress: strings.TrimSpace(in.RecipientAddress),
		City:             trimmedOrNil(in.City),
		CODAmount:        in.CODAmount.Round(2),
		Notes:            trimmedOrNil(in.Notes),
		Status:           model.OrderStatusPending,
		CreatedBy:        createdBy,
	}
	if order.Barcode == "" {
		order.Barcode = newBarcode("ORD", s.now())
	}
	if order.RecipientName == "" || order.RecipientPhone == "" || order.RecipientAddress == "" {
		return nil, validationf("recipient name, phone and address are required")
	}
	if order.CODAmount.IsNegative() {
		return nil, validationf("cod_amount must not be negative")
	}

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Users.FindUnique(ctx, createdBy); err != nil {
			return notFound("user", createdBy, err)
		}
		if order.City != nil {
			if _, err := tx.Cities.FindByName(ctx, *order.City); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return validationf("unknown city %q", *order.City)
				}
				return err
			}
		}
		if in.DriverID != nil {
			if _, err := tx.Drivers.FindUnique(ctx, *in.DriverID); err != nil {
				return notFound("driver", *in.DriverID, err)
			}
			order.DriverID = in.DriverID
			order.Status = model.OrderStatusAssigned
		}
		if err := tx.Orders.Create(ctx, order); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("barcode %s already exists: %w", order.Barcode, ErrConflict)
			}
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.inv.reports(ctx)
	s.log.InfoContext(ctx, "order created", "order_id", order.ID, "barcode", order.Barcode, "status", order.Status)
	return order, nil
}

func (s *OrderService) Get(ctx context.Context, id uint) (*model.Order, error) {
	o, err := s.repos.Orders.FindFirst(ctx, repository.FindArgs[repository.OrderFilter]{
		Where:   repository.OrderFilter{IDs: []uint{id}},
		Preload: []string{"Driver"},
	})
	if err != nil {
		return nil, notFound("order", id, err)
	}
	return o, nil
}

func (s *OrderService) GetByBarcode(ctx context.Context, barcode string) (*model.Order, error) {
	barcode = normalizeBarcode(barcode)
	o, err := s.repos.Orders.FindByBarcode(ctx, barcode)
	if err != nil {
		return nil, notFound("order", barcode, err)
	}
	return o, nil
}

// List returns one page, newest first, and the total match count.
func (s *OrderService) List(ctx context.Context, f repository.OrderFilter, page repository.Page) ([]model.Order, int64, error) {
	page = page.Normalize()
	total, err := s.repos.Orders.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.repos.Orders.FindMany(ctx, repository.FindArgs[repository.OrderFilter]{
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

// AssignDriver hands a pending or assigned order to a driver.
func (s *OrderService) AssignDriver(ctx context.Context, orderID, driverID uint) (*model.Order, error) {
	var updated *model.Order
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		order, err := tx.Orders.FindUnique(ctx, orderID)
		if err != nil {
			return notFound("order", orderID, err)
		}
		if order.Status != model.OrderStatusPending && order.Status != model.OrderStatusAssigned {
			return fmt.Errorf("cannot assign a %s order: %w", order.Status, ErrInvalidTransition)
		}
		if err := ensureNotOnSheet(ctx, tx, orderID); err != nil {
			return err
		}
		if _, err := tx.Drivers.FindUnique(ctx, driverID); err != nil {
			return notFound("driver", driverID, err)
		}
		assigned := model.OrderStatusAssigned
		updated, err = tx.Orders.Update(ctx, orderID, repository.OrderUpdate{DriverID: &driverID, Status: &assigned})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.inv.reports(ctx)
	return updated, nil
}

// UnassignDriver returns an assigned order to the pending pool.
func (s *OrderService) UnassignDriver(ctx context.Context, orderID uint) (*model.Order, error) {
	var updated *model.Order
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		order, err := tx.Orders.FindUnique(ctx, orderID)
		if err != nil {
			return notFound("order", orderID, err)
		}
		if err := ensureNotOnSheet(ctx, tx, orderID); err != nil {
			return err
		}
		if order.Status != model.OrderStatusPending && order.Status != model.OrderStatusAssigned {
			return fmt.Errorf("cannot unassign a %s order: %w", order.Status, ErrInvalidTransition)
		}
		pending := model.OrderStatusPending
		updated, err = tx.Orders.Update(ctx, orderID, repository.OrderUpdate{ClearDriver: true, Status: &pending})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.inv.reports(ctx)
	return updated, nil
}

// UpdateStatus moves an order along the delivery lifecycle.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uint, next model.OrderStatus) (*model.Order, error) {
	if !next.Valid() {
		return nil, validationf("unknown status %q", next)
	}

	var (
		updated  *model.Order
		sheetIDs []uint
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		order, err := tx.Orders.FindUnique(ctx, orderID)
		if err != nil {
			return notFound("order", orderID, err)
		}
		if !order.Status.CanTransition(next) {
			return fmt.Errorf("%s -> %s: %w", order.Status, next, ErrInvalidTransition)
		}
		if sheetIDs, err = sheetIDsForOrders(ctx, tx, orderID); err != nil {
			return err
		}

		upd := repository.OrderUpdate{Status: &next}
		switch next {
		case model.OrderStatusAssigned, model.OrderStatusOutForDelivery:
			if order.DriverID == nil {
				return validationf("order %d has no driver", orderID)
			}
		case model.OrderStatusPending:
			if len(sheetIDs) > 0 {
				return fmt.Errorf("order %d: %w", orderID, ErrOrderOnSheet)
			}
			upd.ClearDriver = true
		}
		if updated, err = tx.Orders.Update(ctx, orderID, upd); err != nil {
			return err
		}
		// A returned order going back into circulation leaves the sheet it
		// came back on, so it can be dispatched again.
		if order.Status == model.OrderStatusReturned && len(sheetIDs) > 0 {
			if err := detachFromSheets(ctx, tx, orderID, sheetIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.inv.sheets(ctx, sheetIDs...)
	s.log.InfoContext(ctx, "order status changed", "order_id", orderID, "status", next)
	return updated, nil
}

// Update edits an open order. Sheet totals follow COD changes in the same
// transaction.
func (s *OrderService) Update(ctx context.Context, orderID uint, in UpdateOrderInput) (*model.Order, error) {
	upd := repository.OrderUpdate{Notes: in.Notes}
	for _, f := range []struct {
		in   *string
		out  **string
		name string
	}{
		{in.RecipientName, &upd.RecipientName, "recipient_name"},
		{in.RecipientPhone, &upd.RecipientPhone, "recipient_phone"},
		{in.RecipientAddress, &upd.RecipientAddress, "recipient_address"},
	} {
		if f.in == nil {
			continue
		}
		v := strings.TrimSpace(*f.in)
		if v == "" {
			return nil, validationf("%s must not be empty", f.name)
		}
		*f.out = &v
	}
	if in.CODAmount != nil {
		amount := in.CODAmount.Round(2)
		if amount.IsNegative() {
			return nil, validationf("cod_amount must not be negative")
		}
		upd.CODAmount = &amount
	}

	var (
		updated  *model.Order
		sheetIDs []uint
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		order, err := tx.Orders.FindUnique(ctx, orderID)
		if err != nil {
			return notFound("order", orderID, err)
		}
		if order.Status.Terminal() {
			return fmt.Errorf("order %d is %s: %w", orderID, order.Status, ErrInvalidTransition)
		}
		if in.City != nil {
			city := strings.TrimSpace(*in.City)
			if _, err := tx.Cities.FindByName(ctx, city); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return validationf("unknown city %q", city)
				}
				return err
			}
			upd.City = &city
		}
		if updated, err = tx.Orders.Update(ctx, orderID, upd); err != nil {
			return err
		}
		if sheetIDs, err = sheetIDsForOrders(ctx, tx, orderID); err != nil {
			return err
		}
		if upd.CODAmount != nil {
			for _, id := range sheetIDs {
				if err := refreshSheetTotals(ctx, tx, id); err != nil {
					return fmt.Errorf("refresh sheet %d: %w", id, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.inv.sheets(ctx, sheetIDs...)
	return updated, nil
}

// Delete removes an order that is not on any delegate sheet.
func (s *OrderService) Delete(ctx context.Context, orderID uint) error {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Orders.FindUnique(ctx, orderID); err != nil {
			return notFound("order", orderID, err)
		}
		if err := ensureNotOnSheet(ctx, tx, orderID); err != nil {
			return err
		}
		_, err := tx.Orders.Delete(ctx, orderID)
		return err
	})
	if err != nil {
		return err
	}
	s.inv.reports(ctx)
	return nil
}

func ensureNotOnSheet(ctx context.Context, repos *repository.Repositories, orderID uint) error {
	n, err := repos.DelegateSheetOrders.Count(ctx, repository.DelegateSheetOrderFilter{OrderID: &orderID})
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrOrderOnSheet)
	}
	return nil
}
