package service

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/repository"
)

func TestOrderService_Create(t *testing.T) {
	f := newFixture(t)
	f.city(t, "Cairo")
	d := f.driver(t, "Ali")

	pending := f.order(t, " ab-100 ", "125.50", nil)
	assert.Equal(t, "AB-100", pending.Barcode)
	assert.Equal(t, model.OrderStatusPending, pending.Status)
	assert.True(t, pending.CODAmount.Equal(dec("125.5")))

	assigned := f.order(t, "AB-101", "0", &d.ID)
	assert.Equal(t, model.OrderStatusAssigned, assigned.Status)

	generated, err := f.orders.Create(f.ctx, CreateOrderInput{
		RecipientName: "R", RecipientPhone: "1", RecipientAddress: "A", City: ptrTo("Cairo"),
	}, f.user.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(generated.Barcode, "ORD-"), generated.Barcode)

	tests := []struct {
		name string
		in   CreateOrderInput
		by   string
		want error
	}{
		{"duplicate barcode", CreateOrderInput{Barcode: "ab-100", RecipientName: "R", RecipientPhone: "1", RecipientAddress: "A"}, f.user.ID, ErrConflict},
		{"missing recipient", CreateOrderInput{Barcode: "X-1", RecipientPhone: "1", RecipientAddress: "A"}, f.user.ID, ErrValidation},
		{"negative cod", CreateOrderInput{Barcode: "X-2", RecipientName: "R", RecipientPhone: "1", RecipientAddress: "A", CODAmount: decimal.NewFromInt(-1)}, f.user.ID, ErrValidation},
		{"unknown city", CreateOrderInput{Barcode: "X-3", RecipientName: "R", RecipientPhone: "1", RecipientAddress: "A", City: ptrTo("Atlantis")}, f.user.ID, ErrValidation},
		{"unknown driver", CreateOrderInput{Barcode: "X-4", RecipientName: "R", RecipientPhone: "1", RecipientAddress: "A", DriverID: ptrTo(uint(999))}, f.user.ID, ErrNotFound},
		{"unknown creator", CreateOrderInput{Barcode: "X-5", RecipientName: "R", RecipientPhone: "1", RecipientAddress: "A"}, "nobody", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.Create(f.ctx, tt.in, tt.by)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOrderService_GetAndList(t *testing.T) {
	f := newFixture(t)
	d := f.driver(t, "Ali")
	o := f.order(t, "L-1", "10", &d.ID)
	f.order(t, "L-2", "20", nil)
	f.order(t, "L-3", "30", nil)

	got, err := f.orders.Get(f.ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Driver)
	assert.Equal(t, "Ali", got.Driver.Name)

	byBarcode, err := f.orders.GetByBarcode(f.ctx, " l-1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, byBarcode.ID)

	_, err = f.orders.Get(f.ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	items, total, err := f.orders.List(f.ctx, repository.OrderFilter{DriverIsNull: true}, repository.Page{Number: 1, Size: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, items, 1)
	assert.Equal(t, "L-3", items[0].Barcode, "newest first")
}

func TestOrderService_AssignAndUnassign(t *testing.T) {
	f := newFixture(t)
	d := f.driver(t, "Ali")
	o := f.order(t, "S-1", "10", nil)

	assigned, err := f.orders.AssignDriver(f.ctx, o.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusAssigned, assigned.Status)
	assert.Equal(t, d.ID, *assigned.DriverID)

	_, err = f.orders.AssignDriver(f.ctx, o.ID, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	unassigned, err := f.orders.UnassignDriver(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, unassigned.DriverID)
	assert.Equal(t, model.OrderStatusPending, unassigned.Status)

	_, err = f.sheets.Create(f.ctx, CreateSheetInput{DriverID: d.ID, Barcodes: []string{"S-1"}}, f.user.ID)
	require.NoError(t, err)

	_, err = f.orders.UnassignDriver(f.ctx, o.ID)
	assert.ErrorIs(t, err, ErrOrderOnSheet)
	_, err = f.orders.AssignDriver(f.ctx, o.ID, d.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "out for delivery")
}

func TestOrderService_UpdateStatus(t *testing.T) {
	f := newFixture(t)
	d := f.driver(t, "Ali")
	o := f.order(t, "T-1", "10", nil)

	_, err := f.orders.UpdateStatus(f.ctx, o.ID, model.OrderStatusDelivered)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.orders.UpdateStatus(f.ctx, o.ID, model.OrderStatusAssigned)
	assert.ErrorIs(t, err, ErrValidation, "assigned needs a driver")
	_, err = f.orders.UpdateStatus(f.ctx, o.ID, "lost")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orders.AssignDriver(f.ctx, o.ID, d.ID)
	require.NoError(t, err)

	steps := []model.OrderStatus{
		model.OrderStatusOutForDelivery,
		model.OrderStatusReturned,
		model.OrderStatusAssigned,
		model.OrderStatusPending,
		model.OrderStatusCancelled,
	}
	for _, next := range steps {
		got, err := f.orders.UpdateStatus(f.ctx, o.ID, next)
		require.NoError(t, err, "to %s", next)
		assert.Equal(t, next, got.Status)
	}
	assert.Nil(t, f.reload(t, o.ID).DriverID, "back to pending drops the driver")

	_, err = f.orders.UpdateStatus(f.ctx, o.ID, model.OrderStatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition, "cancelled is terminal")
}

func TestOrderService_UpdateRecomputesSheet(t *testing.T) {
	f := newFixture(t)
	d := f.driver(t, "Ali")
	f.order(t, "U-1", "10", nil)
	o2 := f.order(t, "U-2", "5", nil)

	sheet, err := f.sheets.Create(f.ctx, CreateSheetInput{DriverID: d.ID, Barcodes: []string{"U-1", "U-2"}}, f.user.ID)
	require.NoError(t, err)
	assert.True(t, sheet.TotalAmount.Equal(dec("15")))

	amount := dec("7.25")
	name := " New Name "
	updated, err := f.orders.Update(f.ctx, o2.ID, UpdateOrderInput{CODAmount: &amount, RecipientName: &name})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.RecipientName)

	after, err := f.repos.DelegateSheets.FindUnique(f.ctx, sheet.ID)
	require.NoError(t, err)
	assert.True(t, after.TotalAmount.Equal(dec("17.25")), after.TotalAmount.String())

	blank := " "
	_, err = f.orders.Update(f.ctx, o2.ID, UpdateOrderInput{RecipientPhone: &blank})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orders.UpdateStatus(f.ctx, o2.ID, model.OrderStatusDelivered)
	require.NoError(t, err)
	_, err = f.orders.Update(f.ctx, o2.ID, UpdateOrderInput{CODAmount: &amount})
	assert.ErrorIs(t, err, ErrInvalidTransition, "delivered orders are frozen")
}

func TestOrderService_Delete(t *testing.T) {
	f := newFixture(t)
	d := f.driver(t, "Ali")
	free := f.order(t, "D-1", "1", nil)
	busy := f.order(t, "D-2", "1", nil)
	_, err := f.sheets.Create(f.ctx, CreateSheetInput{DriverID: d.ID, Barcodes: []string{"D-2"}}, f.user.ID)
	require.NoError(t, err)

	require.NoError(t, f.orders.Delete(f.ctx, free.ID))
	assert.ErrorIs(t, f.orders.Delete(f.ctx, free.ID), ErrNotFound)
	assert.ErrorIs(t, f.orders.Delete(f.ctx, busy.ID), ErrOrderOnSheet)
}

