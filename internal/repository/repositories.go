package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories bundles every table repository over one connection (or one
// transaction).
type Repositories struct {
	db *gorm.DB

	Users               UserRepository
	Accounts            AccountRepository
	Sessions            SessionRepository
	VerificationTokens  VerificationTokenRepository
	Cities              CityRepository
	Drivers             DriverRepository
	Orders              OrderRepository
	DelegateSheets      DelegateSheetRepository
	DelegateSheetOrders DelegateSheetOrderRepository
}

func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:                  db,
		Users:               NewGormUserRepository(db),
		Accounts:            NewGormAccountRepository(db),
		Sessions:            NewGormSessionRepository(db),
		VerificationTokens:  NewGormVerificationTokenRepository(db),
		Cities:              NewGormCityRepository(db),
		Drivers:             NewGormDriverRepository(db),
		Orders:              NewGormOrderRepository(db),
		DelegateSheets:      NewGormDelegateSheetRepository(db),
		DelegateSheetOrders: NewGormDelegateSheetOrderRepository(db),
	}
}

// Transaction runs fn with repositories bound to a single transaction.
// Returning an error rolls everything back.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// Ping checks the underlying connection.
func (r *Repositories) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var (
	_ UserRepository               = (*GormUserRepository)(nil)
	_ AccountRepository            = (*GormAccountRepository)(nil)
	_ SessionRepository            = (*GormSessionRepository)(nil)
	_ VerificationTokenRepository  = (*GormVerificationTokenRepository)(nil)
	_ CityRepository               = (*GormCityRepository)(nil)
	_ DriverRepository             = (*GormDriverRepository)(nil)
	_ OrderRepository              = (*GormOrderRepository)(nil)
	_ DelegateSheetRepository      = (*GormDelegateSheetRepository)(nil)
	_ DelegateSheetOrderRepository = (*GormDelegateSheetOrderRepository)(nil)
)
