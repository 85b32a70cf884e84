package model

import "gorm.io/gorm"

// AutoMigrate creates or updates every dispatch table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Account{},
		&Session{},
		&VerificationToken{},
		&City{},
		&Driver{},
		&Order{},
		&DelegateSheet{},
		&DelegateSheetOrder{},
	)
}
