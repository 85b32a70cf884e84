package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// users
type User struct {
	ID string `gorm:"size:36;primaryKey" json:"id"`

	Username string `gorm:"type:varchar(255);not null" json:"username"`
	Email    string `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	// bcrypt hash, never serialised.
	Password string `gorm:"type:varchar(255);not null" json:"-"`
	Role     Role   `gorm:"type:varchar(32);not null;default:'dispatcher'" json:"role"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	Accounts       []Account       `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Sessions       []Session       `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Orders         []Order         `gorm:"foreignKey:CreatedBy;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	DelegateSheets []DelegateSheet `gorm:"foreignKey:CreatedBy;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// accounts: external identity provider links.
type Account struct {
	ID     string `gorm:"size:36;primaryKey" json:"id"`
	UserID string `gorm:"size:36;not null;index" json:"user_id"`

	Type              string `gorm:"type:varchar(64);not null" json:"type"`
	Provider          string `gorm:"type:varchar(64);not null;uniqueIndex:idx_account_provider" json:"provider"`
	ProviderAccountID string `gorm:"type:varchar(255);not null;uniqueIndex:idx_account_provider" json:"provider_account_id"`

	RefreshToken *string `gorm:"type:text" json:"-"`
	AccessToken  *string `gorm:"type:text" json:"-"`
	ExpiresAt    *int64  `json:"expires_at,omitempty"`
	TokenType    *string `gorm:"type:varchar(64)" json:"token_type,omitempty"`
	Scope        *string `gorm:"type:text" json:"scope,omitempty"`
	IDToken      *string `gorm:"type:text" json:"-"`
	SessionState *string `gorm:"type:text" json:"-"`

	User *User `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

func (a *Account) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// sessions
type Session struct {
	ID           string    `gorm:"size:36;primaryKey" json:"id"`
	SessionToken string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"session_token"`
	UserID       string    `gorm:"size:36;not null;index" json:"user_id"`
	Expires      time.Time `gorm:"not null;index" json:"expires"`

	User *User `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

func (s *Session) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// verification_tokens: one-time tokens. The composite primary key doubles
// as the (identifier, token) unique constraint.
type VerificationToken struct {
	Identifier string    `gorm:"type:varchar(255);primaryKey" json:"identifier"`
	Token      string    `gorm:"type:varchar(255);primaryKey;uniqueIndex" json:"token"`
	Expires    time.Time `gorm:"not null;index" json:"expires"`
}
