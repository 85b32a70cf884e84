package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/dispatch-core/internal/model"
)

// UserFilter is the where-input of the users table.
type UserFilter struct {
	IDs    []string
	Email  *string
	Role   *model.Role
	Search string // username or email, case-insensitive
}

func (f UserFilter) Apply(tx *gorm.DB) *gorm.DB {
	if len(f.IDs) > 0 {
		tx = tx.Where("id IN ?", f.IDs)
	}
	if f.Email != nil {
		tx = tx.Where("email = ?", strings.ToLower(*f.Email))
	}
	if f.Role != nil {
		tx = tx.Where("role = ?", *f.Role)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := likePattern(s)
		tx = tx.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", p, p)
	}
	return tx
}

type UserUpdate struct {
	Username *string
	Email    *string
	Password *string
	Role     *model.Role
}

func (u UserUpdate) Fields() map[string]any {
	m := map[string]any{}
	if u.Username != nil {
		m["username"] = *u.Username
	}
	if u.Email != nil {
		m["email"] = strings.ToLower(*u.Email)
	}
	if u.Password != nil {
		m["password"] = *u.Password
	}
	if u.Role != nil {
		m["role"] = *u.Role
	}
	return m
}

type UserRepository interface {
	CRUD[model.User, UserFilter, UserUpdate]
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Upsert(ctx context.Context, user *model.User) (*model.User, error)
	// LockTable blocks other writers to users until the surrounding
	// transaction ends. Only meaningful inside Repositories.Transaction.
	LockTable(ctx context.Context) error
}

type GormUserRepository struct {
	*Store[model.User, UserFilter, UserUpdate]
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{
		Store: newStore[model.User, UserFilter, UserUpdate](db, "id",
			newColumnSet([]string{"id", "username", "email", "role", "created_at", "updated_at"}, nil)),
	}
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// Upsert inserts the user or, when the email exists, refreshes its
// username, password and role. The stored row is returned.
// LockTable takes a postgres table lock. SQLite already serialises writing
// transactions, so there it is a no-op.
func (r *GormUserRepository) LockTable(ctx context.Context) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	return translate(r.db.WithContext(ctx).Exec("LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE").Error)
}

func (r *GormUserRepository) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "password", "role", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return nil, translate(err)
	}
	return r.FindByEmail(ctx, user.Email)
}

// AccountFilter is the where-input of the accounts table.
type AccountFilter struct {
	UserID   *string
	Provider *string
}

func (f AccountFilter) Apply(tx *gorm.DB) *gorm.DB {
	if f.UserID != nil {
		tx = tx.Where("user_id = ?", *f.UserID)
	}
	if f.Provider != nil {
		tx = tx.Where("provider = ?", *f.Provider)
	}
	return tx
}

type AccountUpdate struct {
	AccessToken  *string
	RefreshToken *string
	ExpiresAt    *int64
	Scope        *string
}

func (u AccountUpdate) Fields() map[string]any {
	m := map[string]any{}
	if u.AccessToken != nil {
		m["access_token"] = *u.AccessToken
	}
	if u.RefreshToken != nil {
		m["refresh_token"] = *u.RefreshToken
	}
	if u.ExpiresAt != nil {
		m["expires_at"] = *u.ExpiresAt
	}
	if u.Scope != nil {
		m["scope"] = *u.Scope
	}
	return m
}

type AccountRepository interface {
	CRUD[model.Account, AccountFilter, AccountUpdate]
	FindByProvider(ctx context.Context, provider, providerAccountID string) (*model.Account, error)
	Upsert(ctx context.Context, account *model.Account) (*model.Account, error)
}

type GormAccountRepository struct {
	*Store[model.Account, AccountFilter, AccountUpdate]
}

func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{
		Store: newStore[model.Account, AccountFilter, AccountUpdate](db, "id",
			newColumnSet([]string{"id", "user_id", "provider", "type"}, []string{"expires_at"})),
	}
}

func (r *GormAccountRepository) FindByProvider(ctx context.Context, provider, providerAccountID string) (*model.Account, error) {
	var a model.Account
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_account_id = ?", provider, providerAccountID).
		First(&a).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

// Upsert keys on (provider, provider_account_id) and refreshes the tokens.
func (r *GormAccountRepository) Upsert(ctx context.Context, account *model.Account) (*model.Account, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "provider_account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "expires_at", "token_type", "scope", "id_token", "session_state",
		}),
	}).Create(account).Error
	if err != nil {
		return nil, translate(err)
	}
	return r.FindByProvider(ctx, account.Provider, account.ProviderAccountID)
}

// SessionFilter is the where-input of the sessions table.
type SessionFilter struct {
	UserID        *string
	ExpiresBefore *time.Time
}

func (f SessionFilter) Apply(tx *gorm.DB) *gorm.DB {
	if f.UserID != nil {
		tx = tx.Where("user_id = ?", *f.UserID)
	}
	if f.ExpiresBefore != nil {
		tx = tx.Where("expires < ?", *f.ExpiresBefore)
	}
	return tx
}

type SessionUpdate struct {
	Expires *time.Time
}

func (u SessionUpdate) Fields() map[string]any {
	m := map[string]any{}
	if u.Expires != nil {
		m["expires"] = *u.Expires
	}
	return m
}

type SessionRepository interface {
	CRUD[model.Session, SessionFilter, SessionUpdate]
	FindBySessionToken(ctx context.Context, token string) (*model.Session, error)
	DeleteBySessionToken(ctx context.Context, token string) (int64, error)
}

type GormSessionRepository struct {
	*Store[model.Session, SessionFilter, SessionUpdate]
}

func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{
		Store: newStore[model.Session, SessionFilter, SessionUpdate](db, "id",
			newColumnSet([]string{"id", "user_id", "expires"}, nil)),
	}
}

func (r *GormSessionRepository) FindBySessionToken(ctx context.Context, token string) (*model.Session, error) {
	var s model.Session
	if err := r.db.WithContext(ctx).Preload("User").Where("session_token = ?", token).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *GormSessionRepository) DeleteBySessionToken(ctx context.Context, token string) (int64, error) {
	res := r.db.WithContext(ctx).Where("session_token = ?", token).Delete(&model.Session{})
	return res.RowsAffected, translate(res.Error)
}

// VerificationTokenFilter is the where-input of the verification_tokens table.
type VerificationTokenFilter struct {
	Identifier    *string
	ExpiresBefore *time.Time
}

func (f VerificationTokenFilter) Apply(tx *gorm.DB) *gorm.DB {
	if f.Identifier != nil {
		tx = tx.Where("identifier = ?", *f.Identifier)
	}
	if f.ExpiresBefore != nil {
		tx = tx.Where("expires < ?", *f.ExpiresBefore)
	}
	return tx
}

type VerificationTokenUpdate struct {
	Expires *time.Time
}

func (u VerificationTokenUpdate) Fields() map[string]any {
	m := map[string]any{}
	if u.Expires != nil {
		m["expires"] = *u.Expires
	}
	return m
}

type VerificationTokenRepository interface {
	CRUD[model.VerificationToken, VerificationTokenFilter, VerificationTokenUpdate]
	FindByIdentifierToken(ctx context.Context, identifier, token string) (*model.VerificationToken, error)
	DeleteByIdentifierToken(ctx context.Context, identifier, token string) (int64, error)
}

type GormVerificationTokenRepository struct {
	*Store[model.VerificationToken, VerificationTokenFilter, VerificationTokenUpdate]
}

// Tokens are unique on their own, so "token" serves as the single-column key.
func NewGormVerificationTokenRepository(db *gorm.DB) *GormVerificationTokenRepository {
	return &GormVerificationTokenRepository{
		Store: newStore[model.VerificationToken, VerificationTokenFilter, VerificationTokenUpdate](db, "token",
			newColumnSet([]string{"identifier", "token", "expires"}, nil)),
	}
}

func (r *GormVerificationTokenRepository) FindByIdentifierToken(ctx context.Context, identifier, token string) (*model.VerificationToken, error) {
	var vt model.VerificationToken
	err := r.db.WithContext(ctx).
		Where("identifier = ? AND token = ?", identifier, token).
		First(&vt).Error
	if err != nil {
		return nil, translate(err)
	}
	return &vt, nil
}

func (r *GormVerificationTokenRepository) DeleteByIdentifierToken(ctx context.Context, identifier, token string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("identifier = ? AND token = ?", identifier, token).
		Delete(&model.VerificationToken{})
	return res.RowsAffected, translate(res.Error)
}
