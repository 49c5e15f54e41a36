package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nova-admin/nova-admin/internal/platform/httpx"
	"github.com/nova-admin/nova-admin/internal/shared"
	"github.com/nova-admin/nova-admin/internal/users"
)

// UserSource supplies account and role membership reads.
type UserSource interface {
	GetUser(ctx context.Context, id int64) (users.User, error)
	GetUserByUsername(ctx context.Context, username string) (users.User, error)
	UserRoleCodes(ctx context.Context, userID int64) ([]string, error)
}

// Service wraps authentication business rules and resolves bearer
// credentials into principals.
type Service struct {
	users    UserSource
	codec    *TokenCodec
	denylist *Denylist
	records  LoginRecorder
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(userSource UserSource, codec *TokenCodec, denylist *Denylist, records LoginRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: userSource, codec: codec, denylist: denylist, records: records, logger: logger}
}

// LoginResult carries the issued credential.
type LoginResult struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Login validates username/password credentials and issues an access token
// carrying the role codes held at issuance.
func (s *Service) Login(ctx context.Context, username, password, ip, ua string) (LoginResult, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: invalid credentials: %w", httpx.ErrUnauthorized)
	}
	if !user.Enable {
		return LoginResult{}, fmt.Errorf("auth: account disabled: %w", httpx.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, fmt.Errorf("auth: invalid credentials: %w", httpx.ErrUnauthorized)
	}

	codes, err := s.users.UserRoleCodes(ctx, user.ID)
	if err != nil {
		return LoginResult{}, err
	}
	token, claims, err := s.codec.Issue(user.ID, user.Username, codes)
	if err != nil {
		return LoginResult{}, err
	}

	if s.records != nil {
		if err := s.records.CreateLoginRecord(ctx, user.ID, ip, ua); err != nil {
			s.logger.Warn("record login", slog.Any("error", err))
		}
	}
	return LoginResult{AccessToken: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout revokes the principal's token for the remainder of its lifetime.
func (s *Service) Logout(ctx context.Context, principal shared.Principal) error {
	if principal.TokenID == "" {
		return nil
	}
	return s.denylist.Revoke(ctx, principal.TokenID, principal.ExpiresAt)
}

// Resolve verifies a bearer credential and builds the request principal.
// Role codes embedded in the token are not trusted: membership can change
// between issuance and request time, so the current set is re-read from
// storage on every call.
func (s *Service) Resolve(ctx context.Context, credential string) (shared.Principal, error) {
	claims, err := s.codec.Parse(credential)
	if err != nil {
		return shared.Principal{}, err
	}

	revoked, err := s.denylist.Contains(ctx, claims.ID)
	if err != nil {
		return shared.Principal{}, err
	}
	if revoked {
		return shared.Principal{}, fmt.Errorf("auth: token revoked: %w", httpx.ErrUnauthorized)
	}

	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return shared.Principal{}, fmt.Errorf("auth: unknown subject: %w", httpx.ErrUnauthorized)
	}
	if !user.Enable {
		return shared.Principal{}, fmt.Errorf("auth: account disabled: %w", httpx.ErrUnauthorized)
	}
	codes, err := s.users.UserRoleCodes(ctx, user.ID)
	if err != nil {
		return shared.Principal{}, err
	}

	return shared.Principal{
		UserID:    user.ID,
		Username:  user.Username,
		RoleCodes: codes,
		IssuedAt:  claims.IssuedAt.Time,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
