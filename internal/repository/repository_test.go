package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leganyst/dispatch-core/internal/db/dbtest"
	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func seedUser(t *testing.T, repos *repository.Repositories) *model.User {
	t.Helper()
	u := &model.User{Username: "dispatcher", Email: "d@example.com", Password: "x", Role: model.RoleDispatcher}
	require.NoError(t, repos.Users.Create(context.Background(), u))
	return u
}

func seedDriver(t *testing.T, repos *repository.Repositories, name string, areas ...string) *model.Driver {
	t.Helper()
	d := &model.Driver{Name: name, Phone: "0100" + name}
	require.NoError(t, d.SetAreas(areas))
	require.NoError(t, repos.Drivers.Create(context.Background(), d))
	return d
}

func seedOrder(t *testing.T, repos *repository.Repositories, barcode, cod string, createdBy string, status model.OrderStatus, driverID *uint) *model.Order {
	t.Helper()
	o := &model.Order{
		Barcode:          barcode,
		RecipientName:    "Recipient " + barcode,
		RecipientPhone:   "0111",
		RecipientAddress: "Street 1",
		CODAmount:        decimal.RequireFromString(cod),
		Status:           status,
		DriverID:         driverID,
		CreatedBy:        createdBy,
	}
	require.NoError(t, repos.Orders.Create(context.Background(), o))
	return o
}

func TestStore_CreateFindUniqueAndNotFound(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	user := seedUser(t, repos)

	assert.Len(t, user.ID, 36, "uuid assigned on create")

	got, err := repos.Users.FindUnique(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "d@example.com", got.Email)

	_, err = repos.Users.FindUnique(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_UniqueViolationIsConflict(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	seedUser(t, repos)

	err := repos.Users.Create(ctx, &model.User{Username: "other", Email: "d@example.com", Password: "x", Role: model.RoleAdmin})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestStore_FindManyFiltersOrdersAndPages(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	user := seedUser(t, repos)
	driver := seedDriver(t, repos, "Ali")

	seedOrder(t, repos, "B-1", "10", user.ID, model.OrderStatusPending, nil)
	seedOrder(t, repos, "B-2", "30", user.ID, model.OrderStatusAssigned, &driver.ID)
	seedOrder(t, repos, "B-3", "20", user.ID, model.OrderStatusAssigned, &driver.ID)

	orders, err := repos.Orders.FindMany(ctx, repository.FindArgs[repository.OrderFilter]{
		Where:   repository.OrderFilter{DriverID: &driver.ID},
		OrderBy: []repository.OrderBy{repository.Desc("cod_amount")},
	})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "B-2", orders[0].Barcode)
	assert.Equal(t, "B-3", orders[1].Barcode)

	unassigned, err := repos.Orders.FindMany(ctx, repository.FindArgs[repository.OrderFilter]{
		Where: repository.OrderFilter{DriverIsNull: true},
	})
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	assert.Equal(t, "B-1", unassigned[0].Barcode)

	page, err := repos.Orders.FindMany(ctx, repository.FindArgs[repository.OrderFilter]{
		OrderBy: []repository.OrderBy{repository.Asc("barcode")},
		Skip:    1,
		Take:    1,
	})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "B-2", page[0].Barcode)

	found, err := repos.Orders.FindMany(ctx, repository.FindArgs[repository.OrderFilter]{
		Where: repository.OrderFilter{Search: "recipient b-3"},
	})
	require.NoError(t, err)
	require.Len(t, found, 1)

	count, err := repos.Orders.Count(ctx, repository.OrderFilter{Statuses: []model.OrderStatus{model.OrderStatusAssigned}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, err = repos.Orders.FindMany(ctx, repository.FindArgs[repository.OrderFilter]{
		OrderBy: []repository.OrderBy{repository.Asc("id; DROP TABLE orders")},
	})
	assert.ErrorIs(t, err, repository.ErrInvalidColumn)
}

func TestStore_FindFirst(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	user := seedUser(t, repos)
	seedOrder(t, repos, "B-1", "10", user.ID, model.OrderStatusPending, nil)
	seedOrder(t, repos, "B-2", "50", user.ID, model.OrderStatusPending, nil)

	top, err := repos.Orders.FindFirst(ctx, repository.FindArgs[repository.OrderFilter]{
		OrderBy: []repository.OrderBy{repository.Desc("cod_amount")},
	})
	require.NoError(t, err)
	assert.Equal(t, "B-2", top.Barcode)

	_, err = repos.Orders.FindFirst(ctx, repository.FindArgs[repository.OrderFilter]{
		Where: repository.OrderFilter{Barcodes: []string{"nope"}},
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_UpdatePartialAndMissing(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	user := seedUser(t, repos)
	driver := seedDriver(t, repos, "Ali")
	o := seedOrder(t, repos, "B-1", "10", user.ID, model.OrderStatusPending, nil)

	updated, err := repos.Orders.Update(ctx, o.ID, repository.OrderUpdate{
		DriverID: &driver.ID,
		Status:   ptr(model.OrderStatusAssigned),
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusAssigned, updated.Status)
	require.NotNil(t, updated.DriverID)
	assert.Equal(t, driver.ID, *updated.DriverID)
	assert.Equal(t, "Recipient B-1", updated.RecipientName, "untouched fields survive")

	cleared, err := repos.Orders.Update(ctx, o.ID, repository.OrderUpdate{ClearDriver: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.DriverID)

	same, err := repos.Orders.Update(ctx, o.ID, repository.OrderUpdate{})
	require.NoError(t, err)
	assert.Equal(t, o.ID, same.ID)

	_, err = repos.Orders.Update(ctx, uint(999), repository.OrderUpdate{Notes: ptr("x")})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_UpdateManyDeleteAndDeleteMany(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	user := seedUser(t, repos)
	a := seedOrder(t, repos, "B-1", "10", user.ID, model.OrderStatusPending, nil)
	seedOrder(t, repos, "B-2", "10", user.ID, model.OrderStatusPending, nil)
	seedOrder(t, repos, "B-3", "10", user.ID, model.OrderStatusDelivered, nil)

	n, err := repos.Orders.UpdateMany(ctx,
		repository.OrderFilter{Statuses: []model.OrderStatus{model.OrderStatusPending}},
		repository.OrderUpdate{Status: ptr(model.OrderStatusCancelled)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	deleted, err := repos.Orders.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "B-1", deleted.Barcode)

	_, err = repos.Orders.Delete(ctx, a.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	n, err = repos.Orders.DeleteMany(ctx, repository.OrderFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "empty filter deletes every row")
}

func TestStore_AggregateAndGroupBy(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	user := seedUser(t, repos)
	driver := seedDriver(t, repos, "Ali")
	seedOrder(t, repos, "B-1", "10.5", user.ID, model.OrderStatusDelivered, &driver.ID)
	seedOrder(t, repos, "B-2", "20.25", user.ID, model.OrderStatusDelivered, &driver.ID)
	seedOrder(t, repos, "B-3", "5", user.ID, model.OrderStatusPending, nil)

	agg, err := repos.Orders.Aggregate(ctx, repository.OrderFilter{}, repository.AggregateArgs{
		Sum: []string{"cod_amount"},
		Max: []string{"cod_amount"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, agg.Count)
	require.True(t, agg.Sum["cod_amount"].Valid)
	assert.True(t, agg.Sum["cod_amount"].Decimal.Equal(decimal.RequireFromString("35.75")))
	assert.True(t, agg.Max["cod_amount"].Decimal.Equal(decimal.RequireFromString("20.25")))

	empty, err := repos.Orders.Aggregate(ctx, repository.OrderFilter{Barcodes: []string{"none"}}, repository.AggregateArgs{Sum: []string{"cod_amount"}})
	require.NoError(t, err)
	assert.EqualValues(t, 0, empty.Count)
	assert.False(t, empty.Sum["cod_amount"].Valid)

	_, err = repos.Orders.Aggregate(ctx, repository.OrderFilter{}, repository.AggregateArgs{Sum: []string{"barcode"}})
	assert.ErrorIs(t, err, repository.ErrInvalidColumn)

	groups, err := repos.Orders.GroupBy(ctx, repository.OrderFilter{}, repository.GroupByArgs{
		By:            []string{"status"},
		AggregateArgs: repository.AggregateArgs{Sum: []string{"cod_amount"}},
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "delivered", *groups[0].Keys["status"])
	assert.EqualValues(t, 2, groups[0].Count)
	assert.True(t, groups[0].Sum["cod_amount"].Decimal.Equal(decimal.RequireFromString("30.75")))
	assert.Equal(t, "pending", *groups[1].Keys["status"])

	byDriver, err := repos.Orders.GroupBy(ctx, repository.OrderFilter{}, repository.GroupByArgs{By: []string{"driver_id"}})
	require.NoError(t, err)
	require.Len(t, byDriver, 2)
	var sawNull bool
	for _, g := range byDriver {
		if g.Keys["driver_id"] == nil {
			sawNull = true
			assert.EqualValues(t, 1, g.Count)
		}
	}
	assert.True(t, sawNull, "NULL driver forms its own group")
}

func TestUpserts(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	user := seedUser(t, repos)

	again, err := repos.Users.Upsert(ctx, &model.User{Username: "renamed", Email: "D@Example.com", Password: "y", Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID, "existing row keeps its id")
	assert.Equal(t, "renamed", again.Username)
	assert.Equal(t, model.RoleAdmin, again.Role)

	c1, err := repos.Cities.Upsert(ctx, "Cairo")
	require.NoError(t, err)
	c2, err := repos.Cities.Upsert(ctx, "Cairo")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)

	o := seedOrder(t, repos, "B-1", "10", user.ID, model.OrderStatusAssigned, nil)
	refreshed, err := repos.Orders.Upsert(ctx, &model.Order{
		Barcode: "B-1", RecipientName: "New", RecipientPhone: "1", RecipientAddress: "A",
		CODAmount: decimal.NewFromInt(99), Status: model.OrderStatusPending, CreatedBy: user.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, o.ID, refreshed.ID)
	assert.Equal(t, "New", refreshed.RecipientName)
	assert.Equal(t, model.OrderStatusAssigned, refreshed.Status, "status is not overwritten")

	acc, err := repos.Accounts.Upsert(ctx, &model.Account{UserID: user.ID, Type: "oauth", Provider: "google", ProviderAccountID: "g-1", Scope: ptr("email")})
	require.NoError(t, err)
	acc2, err := repos.Accounts.Upsert(ctx, &model.Account{UserID: user.ID, Type: "oauth", Provider: "google", ProviderAccountID: "g-1", Scope: ptr("email profile")})
	require.NoError(t, err)
	assert.Equal(t, acc.ID, acc2.ID)
	assert.Equal(t, "email profile", *acc2.Scope)
}

func TestDriverAreaFilter(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	seedDriver(t, repos, "Ali", "Cairo", "Giza")
	seedDriver(t, repos, "Omar", "Alexandria")
	seedDriver(t, repos, "Sami", "New Cairo")
	seedDriver(t, repos, "Hany", "Port Said & Suez")

	drivers, err := repos.Drivers.FindMany(ctx, repository.FindArgs[repository.DriverFilter]{
		Where: repository.DriverFilter{Area: "Cairo"},
	})
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	assert.Equal(t, "Ali", drivers[0].Name)

	areas, err := drivers[0].Areas()
	require.NoError(t, err)
	assert.Equal(t, []string{"Cairo", "Giza"}, areas)

	tests := []struct {
		area string
		want int64
	}{
		{"C_iro", 0},
		{"%", 0},
		{"Cair", 0},
		{"Port Said & Suez", 1},
		{"Giza", 1},
	}
	for _, tt := range tests {
		t.Run(tt.area, func(t *testing.T) {
			n, err := repos.Drivers.Count(ctx, repository.DriverFilter{Area: tt.area})
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestStore_CreateMany(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))

	n, err := repos.Cities.CreateMany(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repos.Cities.CreateMany(ctx, []model.City{{Name: "Cairo"}, {Name: "Giza"}, {Name: "Luxor"}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = repos.Cities.CreateMany(ctx, []model.City{{Name: "Aswan"}, {Name: "Cairo"}})
	assert.ErrorIs(t, err, repository.ErrConflict)
	_, err = repos.Cities.CreateMany(ctx, []model.City{{Name: "Suez"}, {Name: "Suez"}})
	assert.ErrorIs(t, err, repository.ErrConflict)

	cities, err := repos.Cities.FindMany(ctx, repository.FindArgs[repository.CityFilter]{
		OrderBy: []repository.OrderBy{repository.Asc("name")},
	})
	require.NoError(t, err)
	names := make([]string, len(cities))
	for i, c := range cities {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"Cairo", "Giza", "Luxor"}, names, "a failed batch inserts nothing")
}

func TestSheetLinksAndTotals(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	user := seedUser(t, repos)
	driver := seedDriver(t, repos, "Ali")
	o1 := seedOrder(t, repos, "B-1", "10.5", user.ID, model.OrderStatusAssigned, &driver.ID)
	o2 := seedOrder(t, repos, "B-2", "4.5", user.ID, model.OrderStatusAssigned, &driver.ID)

	sheet := &model.DelegateSheet{SheetBarcode: "DS-1", DriverID: driver.ID, CreatedBy: user.ID}
	require.NoError(t, repos.DelegateSheets.Create(ctx, sheet))

	require.NoError(t, repos.DelegateSheetOrders.Link(ctx, sheet.ID, o1.ID))
	require.NoError(t, repos.DelegateSheetOrders.Link(ctx, sheet.ID, o2.ID))
	require.NoError(t, repos.DelegateSheetOrders.Link(ctx, sheet.ID, o1.ID), "relinking is a no-op")

	err := repos.DelegateSheetOrders.Create(ctx, &model.DelegateSheetOrder{SheetID: sheet.ID, OrderID: o1.ID})
	assert.ErrorIs(t, err, repository.ErrConflict, "(sheet_id, order_id) is unique")

	other := &model.DelegateSheet{SheetBarcode: "DS-2", DriverID: driver.ID, CreatedBy: user.ID}
	require.NoError(t, repos.DelegateSheets.Create(ctx, other))
	err = repos.DelegateSheetOrders.Link(ctx, other.ID, o2.ID)
	assert.ErrorIs(t, err, repository.ErrConflict, "an order sits on one sheet")

	count, total, err := repos.DelegateSheetOrders.SheetTotals(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, total.Equal(decimal.NewFromInt(15)))

	onSheet, err := repos.Orders.Count(ctx, repository.OrderFilter{OnSheet: ptr(true)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, onSheet)

	loaded, err := repos.DelegateSheets.FindBySheetBarcode(ctx, "DS-1")
	require.NoError(t, err)
	require.Len(t, loaded.Orders, 2)
	require.NotNil(t, loaded.Orders[0].Order)
	assert.Equal(t, "B-1", loaded.Orders[0].Order.Barcode)
	require.NotNil(t, loaded.Driver)
	assert.Equal(t, "Ali", loaded.Driver.Name)

	n, err := repos.DelegateSheetOrders.Unlink(ctx, sheet.ID, o1.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	count, total, err = repos.DelegateSheetOrders.SheetTotals(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, total.Equal(decimal.RequireFromString("4.5")))
}

func TestSessionsAndVerificationTokens(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	user := seedUser(t, repos)
	now := time.Now().UTC()

	require.NoError(t, repos.Sessions.Create(ctx, &model.Session{SessionToken: "live", UserID: user.ID, Expires: now.Add(time.Hour)}))
	require.NoError(t, repos.Sessions.Create(ctx, &model.Session{SessionToken: "stale", UserID: user.ID, Expires: now.Add(-time.Hour)}))

	s, err := repos.Sessions.FindBySessionToken(ctx, "live")
	require.NoError(t, err)
	require.NotNil(t, s.User)
	assert.Equal(t, user.Email, s.User.Email)

	purged, err := repos.Sessions.DeleteMany(ctx, repository.SessionFilter{ExpiresBefore: &now})
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	require.NoError(t, repos.VerificationTokens.Create(ctx, &model.VerificationToken{Identifier: "d@example.com", Token: "t1", Expires: now.Add(time.Hour)}))
	err = repos.VerificationTokens.Create(ctx, &model.VerificationToken{Identifier: "d@example.com", Token: "t1", Expires: now})
	assert.ErrorIs(t, err, repository.ErrConflict)

	vt, err := repos.VerificationTokens.FindByIdentifierToken(ctx, "d@example.com", "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", vt.Token)

	n, err := repos.VerificationTokens.DeleteByIdentifierToken(ctx, "d@example.com", "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestTransaction_RollsBack(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	boom := errors.New("boom")

	err := repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Cities.Create(ctx, &model.City{Name: "Cairo"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := repos.Cities.Count(ctx, repository.CityFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, repository.Page{Number: 1, Size: repository.DefaultPageSize}, repository.Page{}.Normalize())
	assert.Equal(t, repository.MaxPageSize, repository.Page{Number: 2, Size: 1000}.Normalize().Size)
	assert.Equal(t, 20, repository.Page{Number: 3, Size: 10}.Offset())
}
