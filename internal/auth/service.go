// Package auth implements registration, login, and bearer-token session
// management. Passwords are hashed with bcrypt; session tokens are
// random 256-bit values of which only the SHA-256 digest is stored.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cvforge/internal/billing"
	"cvforge/internal/types"

	"github.com/google/uuid"
)

// bcryptCost is the bcrypt cost factor used for password hashing.
const bcryptCost = 12

// DefaultSessionDuration is the lifetime of a new session.
const DefaultSessionDuration = 7 * 24 * time.Hour

// UserRepo is the user data access the auth flows need.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	Create(ctx context.Context, user *types.User) error
	UpdatePassword(ctx context.Context, userID string, newHash string) error
}

// SessionRepo is the session data access the auth flows need.
type SessionRepo interface {
	Create(ctx context.Context, session *types.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*types.Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteForUser(ctx context.Context, userID string) error
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// HashToken produces the hex-encoded SHA-256 digest of a raw token.
// The digest, never the token, is what the sessions table stores, so a
// database leak does not leak usable bearer tokens.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// generateToken returns a random 256-bit hex token.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Service implements registration, login, logout, and session resolution.
type Service struct {
	users           UserRepo
	sessions        SessionRepo
	hasher          PasswordHasher
	clock           billing.Clock
	sessionDuration time.Duration
	logger          *slog.Logger
}

// Config holds the dependencies for creating an auth Service.
type Config struct {
	Users           UserRepo
	Sessions        SessionRepo
	Hasher          PasswordHasher // nil uses bcrypt
	Clock           billing.Clock  // nil uses the system clock
	SessionDuration time.Duration  // zero uses DefaultSessionDuration
	Logger          *slog.Logger
}

// NewService creates an auth Service.
func NewService(cfg Config) *Service {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = billing.SystemClock{}
	}
	duration := cfg.SessionDuration
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:           cfg.Users,
		sessions:        cfg.Sessions,
		hasher:          hasher,
		clock:           clock,
		sessionDuration: duration,
		logger:          logger,
	}
}

// LoginResult carries the authenticated user and the raw session token.
// The token exists only here and in the client's hands; the store keeps
// its digest.
type LoginResult struct {
	User  *types.User
	Token string
}

// Register creates an account on the basic plan and opens a session.
func (s *Service) Register(ctx context.Context, email, name, password string) (*LoginResult, error) {
	passwordHash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	user := &types.User{
		ID:            uuid.NewString(),
		Email:         email,
		Name:          name,
		PasswordHash:  passwordHash,
		Plan:          types.PlanBasic,
		PlanStartDate: s.clock.Now(),
		Role:          types.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return &LoginResult{User: user, Token: token}, nil
}

// Login verifies credentials and opens a session. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeAuthUserNotFound {
			return nil, types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		}
		return nil, err
	}

	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
	}

	token, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return &LoginResult{User: user, Token: token}, nil
}

// Logout revokes the session behind the raw token. Revoking an unknown
// token is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, HashToken(token))
}

// LogoutAll revokes every session of the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.sessions.DeleteForUser(ctx, userID)
}

// Resolve authenticates a raw bearer token and returns the acting user.
// The repository filters expired rows, so an expired session reads the
// same as a missing one.
func (s *Service) Resolve(ctx context.Context, token string) (*types.User, error) {
	if token == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing bearer token", nil)
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}

	return s.users.GetByID(ctx, session.UserID)
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes all other sessions.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, current); err != nil {
		return types.NewAppError(types.ErrCodeAuthInvalidCreds, "current password is incorrect", nil)
	}

	newHash, err := s.hasher.GenerateFromPassword(next)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return err
	}

	if err := s.sessions.DeleteForUser(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "failed to revoke sessions after password change",
			"user_id", userID, "error", err)
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", userID)
	return nil
}

// issueSession stores a new session and returns its raw token.
func (s *Service) issueSession(ctx context.Context, userID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate session token", err)
	}

	now := s.clock.Now()
	session := &types.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(s.sessionDuration),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", err
	}
	return token, nil
}
