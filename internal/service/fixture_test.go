package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Leganyst/dispatch-core/internal/auth"
	"github.com/Leganyst/dispatch-core/internal/cache"
	"github.com/Leganyst/dispatch-core/internal/db/dbtest"
	"github.com/Leganyst/dispatch-core/internal/logger"
	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/repository"
)

type fixture struct {
	ctx     context.Context
	repos   *repository.Repositories
	auth    *AuthService
	cities  *CityService
	drivers *DriverService
	orders  *OrderService
	sheets  *DelegateSheetService
	reports *ReportService
	user    *model.User
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithCache(t, cache.Nop{})
}

func newFixtureWithCache(t *testing.T, c cache.Cache) *fixture {
	t.Helper()
	repos := repository.New(dbtest.Open(t))
	log := logger.Discard()

	f := &fixture{
		ctx:   context.Background(),
		repos: repos,
		auth: NewAuthService(repos, auth.NewJWTService([]byte("test-secret"), time.Minute), AuthOptions{
			SessionTTL:      time.Hour,
			VerificationTTL: time.Hour,
			BcryptCost:      bcrypt.MinCost,
		}, log),
		cities:  NewCityService(repos, log),
		drivers: NewDriverService(repos, log),
		orders:  NewOrderService(repos, c, log),
		sheets:  NewDelegateSheetService(repos, c, time.Minute, log),
		reports: NewReportService(repos, c, time.Minute, log),
	}

	u, err := f.auth.Register(f.ctx, RegisterInput{
		Username: "dispatcher", Email: "dispatch@example.com", Password: "password123",
	})
	require.NoError(t, err)
	f.user = u
	return f
}

func (f *fixture) city(t *testing.T, name string) *model.City {
	t.Helper()
	c, err := f.cities.Create(f.ctx, name)
	require.NoError(t, err)
	return c
}

func (f *fixture) driver(t *testing.T, name string, areas ...string) *model.Driver {
	t.Helper()
	d, err := f.drivers.Create(f.ctx, DriverInput{Name: name, Phone: "+20 100 000 " + name, AssignedAreas: areas})
	require.NoError(t, err)
	return d
}

func (f *fixture) order(t *testing.T, barcode, cod string, driverID *uint) *model.Order {
	t.Helper()
	o, err := f.orders.Create(f.ctx, CreateOrderInput{
		Barcode:          barcode,
		RecipientName:    "Recipient " + barcode,
		RecipientPhone:   "01000000000",
		RecipientAddress: "1 Nile St",
		CODAmount:        decimal.RequireFromString(cod),
		DriverID:         driverID,
	}, f.user.ID)
	require.NoError(t, err)
	return o
}

func (f *fixture) reload(t *testing.T, id uint) *model.Order {
	t.Helper()
	o, err := f.repos.Orders.FindUnique(f.ctx, id)
	require.NoError(t, err)
	return o
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
