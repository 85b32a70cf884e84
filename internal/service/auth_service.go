package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Leganyst/dispatch-core/internal/auth"
	"github.com/Leganyst/dispatch-core/internal/logger"
	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/repository"
)

const minPasswordLength = 8

type AuthOptions struct {
	SessionTTL      time.Duration
	VerificationTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// AuthService owns users, sessions, verification tokens and linked accounts.
type AuthService struct {
	repos  *repository.Repositories
	tokens *auth.JWTService
	opts   AuthOptions
	log    *logger.Logger
	now    func() time.Time
}

func NewAuthService(repos *repository.Repositories, tokens *auth.JWTService, opts AuthOptions, log *logger.Logger) *AuthService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		repos:  repos,
		tokens: tokens,
		opts:   opts,
		log:    log.With("service", "auth"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     model.Role
}

// LoginResult carries both credentials handed to the client: the opaque
// session token (for logout) and the short-lived JWT.
type LoginResult struct {
	User         *model.User `json:"user"`
	SessionToken string      `json:"session_token"`
	AccessToken  string      `json:"access_token"`
	ExpiresAt    time.Time   `json:"expires_at"`
}

// Principal is the authenticated caller.
type Principal struct {
	UserID    string
	Role      model.Role
	SessionID string
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	user, err := s.newUser(in)
	if err != nil {
		return nil, err
	}
	if err := createUser(ctx, s.repos, user); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// RegisterFirstAdmin creates the initial admin account. Once any user exists
// it fails with ErrInvalidCredentials; the count and the insert share one
// locked transaction.
func (s *AuthService) RegisterFirstAdmin(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Role = model.RoleAdmin
	user, err := s.newUser(in)
	if err != nil {
		return nil, err
	}
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Users.LockTable(ctx); err != nil {
			return fmt.Errorf("lock users: %w", err)
		}
		n, err := tx.Users.Count(ctx, repository.UserFilter{})
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("users already exist, authentication required: %w", ErrInvalidCredentials)
		}
		return createUser(ctx, tx, user)
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "first admin registered", "user_id", user.ID)
	return user, nil
}

// newUser validates in and hashes the password.
func (s *AuthService) newUser(in RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, validationf("invalid email %q", in.Email)
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, validationf("username is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, validationf("password must be at least %d characters", minPasswordLength)
	}
	role := in.Role
	if role == "" {
		role = model.RoleDispatcher
	}
	if !role.Valid() {
		return nil, validationf("unknown role %q", in.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &model.User{Username: username, Email: email, Password: string(hash), Role: role}, nil
}

func createUser(ctx context.Context, repos *repository.Repositories, user *model.User) error {
	if err := repos.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("email %s already registered: %w", user.Email, ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repos.Users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := randomToken(32)
	if err != nil {
		return nil, err
	}
	session := &model.Session{
		SessionToken: token,
		UserID:       user.ID,
		Expires:      s.now().Add(s.opts.SessionTTL),
	}
	if err := s.repos.Sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	access, exp, err := s.tokens.GenerateAccessToken(user.ID, user.Role, session.ID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &LoginResult{User: user, SessionToken: token, AccessToken: access, ExpiresAt: exp}, nil
}

// Logout drops the session; an unknown token is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionToken string) error {
	if _, err := s.repos.Sessions.DeleteBySessionToken(ctx, sessionToken); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// EndSession drops the session an access token was issued for.
func (s *AuthService) EndSession(ctx context.Context, sessionID string) error {
	if _, err := s.repos.Sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ValidateSession returns the owner of a live session. Expired sessions are
// deleted on sight.
func (s *AuthService) ValidateSession(ctx context.Context, sessionToken string) (*model.User, error) {
	session, err := s.repos.Sessions.FindBySessionToken(ctx, sessionToken)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if !session.Expires.After(s.now()) {
		if _, err := s.repos.Sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.log.WarnContext(ctx, "delete expired session", "err", err)
		}
		return nil, ErrInvalidCredentials
	}
	if session.User == nil {
		return nil, ErrInvalidCredentials
	}
	return session.User, nil
}

// Authenticate verifies an access token and, when it is bound to a session,
// that the session has not been logged out or expired.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	claims, err := s.tokens.ValidateToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.SessionID != "" {
		session, err := s.repos.Sessions.FindUnique(ctx, claims.SessionID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		if err != nil {
			return nil, fmt.Errorf("find session: %w", err)
		}
		if !session.Expires.After(s.now()) {
			return nil, ErrInvalidCredentials
		}
	}
	return &Principal{UserID: claims.UserID, Role: claims.Role, SessionID: claims.SessionID}, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.repos.Users.FindUnique(ctx, userID)
	if err != nil {
		return nil, notFound("user", userID, err)
	}
	return u, nil
}

func (s *AuthService) CreateVerificationToken(ctx context.Context, identifier string) (*model.VerificationToken, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return nil, validationf("identifier is required")
	}
	token, err := randomToken(24)
	if err != nil {
		return nil, err
	}
	vt := &model.VerificationToken{
		Identifier: identifier,
		Token:      token,
		Expires:    s.now().Add(s.opts.VerificationTTL),
	}
	if err := s.repos.VerificationTokens.Create(ctx, vt); err != nil {
		return nil, fmt.Errorf("create verification token: %w", err)
	}
	return vt, nil
}

// UseVerificationToken consumes a one-time token.
func (s *AuthService) UseVerificationToken(ctx context.Context, identifier, token string) error {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	vt, err := s.repos.VerificationTokens.FindByIdentifierToken(ctx, identifier, token)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("find verification token: %w", err)
	}
	n, err := s.repos.VerificationTokens.DeleteByIdentifierToken(ctx, identifier, token)
	if err != nil {
		return fmt.Errorf("consume verification token: %w", err)
	}
	// Someone else consumed it between the lookup and the delete.
	if n == 0 {
		return ErrInvalidCredentials
	}
	if !vt.Expires.After(s.now()) {
		return ErrInvalidCredentials
	}
	return nil
}

// LinkAccount attaches an external provider identity to an existing user.
func (s *AuthService) LinkAccount(ctx context.Context, account *model.Account) (*model.Account, error) {
	if account.Provider == "" || account.ProviderAccountID == "" || account.Type == "" {
		return nil, validationf("type, provider and provider_account_id are required")
	}
	if _, err := s.repos.Users.FindUnique(ctx, account.UserID); err != nil {
		return nil, notFound("user", account.UserID, err)
	}
	linked, err := s.repos.Accounts.Upsert(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	return linked, nil
}

// PurgeExpired deletes sessions and verification tokens that expired before now.
func (s *AuthService) PurgeExpired(ctx context.Context, now time.Time) (sessions, tokens int64, err error) {
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		if sessions, err = tx.Sessions.DeleteMany(ctx, repository.SessionFilter{ExpiresBefore: &now}); err != nil {
			return fmt.Errorf("purge sessions: %w", err)
		}
		if tokens, err = tx.VerificationTokens.DeleteMany(ctx, repository.VerificationTokenFilter{ExpiresBefore: &now}); err != nil {
			return fmt.Errorf("purge verification tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	if sessions+tokens > 0 {
		s.log.InfoContext(ctx, "purged expired credentials", "sessions", sessions, "verification_tokens", tokens)
	}
	return sessions, tokens, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
