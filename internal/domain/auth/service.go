package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

const UserStatusActive = "active"

var ErrInvalidCredentials = errors.New("invalid credentials")

type UserStore interface {
	FindActiveUserByEmail(ctx context.Context, email string) (AuthUser, error)
	GetUser(ctx context.Context, userID string) (AuthUser, error)
	CreateSession(ctx context.Context, userID, tokenHash string, expires time.Time) error
	UpdateLastLogin(ctx context.Context, userID string) error
	RevokeSession(ctx context.Context, userID, tokenHash string) error
	SessionValid(ctx context.Context, userID, tokenHash string) (bool, error)
}

type Service struct {
	Store    UserStore
	Secret   string
	TokenTTL time.Duration
}

func NewService(store UserStore, secret string, ttl time.Duration) *Service {
	return &Service{Store: store, Secret: secret, TokenTTL: ttl}
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      AuthUser
}

// Login verifies credentials, opens a session and issues an access token bound
// to it. Unknown emails and wrong passwords are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.Store.FindActiveUserByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if err := CheckPassword(user.Password, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	sessionID, err := newSessionID()
	if err != nil {
		return LoginResult{}, err
	}
	expires := time.Now().Add(s.TokenTTL)
	if err := s.Store.CreateSession(ctx, user.ID, HashToken(sessionID), expires); err != nil {
		return LoginResult{}, err
	}

	token, err := GenerateToken(s.Secret, Claims{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		RoleID:         user.RoleID,
		SuperAdmin:     user.IsSuperAdmin,
		SessionID:      sessionID,
	}, s.TokenTTL)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.Store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}

	user.Password = ""
	return LoginResult{Token: token, ExpiresAt: expires, User: user}, nil
}

func (s *Service) Logout(ctx context.Context, user UserContext) error {
	if user.SessionID == "" {
		return nil
	}
	return s.Store.RevokeSession(ctx, user.UserID, HashToken(user.SessionID))
}

// SessionActive satisfies the session check used by the auth middleware.
// Tokens minted without a session id are accepted.
func (s *Service) SessionActive(ctx context.Context, user UserContext) (bool, error) {
	if user.SessionID == "" {
		return true, nil
	}
	return s.Store.SessionValid(ctx, user.UserID, HashToken(user.SessionID))
}

func (s *Service) CurrentUser(ctx context.Context, userID string) (AuthUser, error) {
	return s.Store.GetUser(ctx, userID)
}

func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
