package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hongminglow/ondata-be/internal/auth"
	"github.com/hongminglow/ondata-be/internal/models"
	"github.com/hongminglow/ondata-be/internal/password"
	"github.com/hongminglow/ondata-be/internal/storage"
)

// AuthService owns registration, login, and profile operations.
type AuthService struct {
	users       storage.UserStore
	hasher      password.Hasher
	tokens      *auth.TokenManager
	logger      *zap.Logger
	adminSignup bool
}

// AuthOption tunes an AuthService.
type AuthOption func(*AuthService)

// WithAdminSignup controls whether the public Register accepts role "admin".
// It is allowed unless turned off.
func WithAdminSignup(allowed bool) AuthOption {
	return func(s *AuthService) { s.adminSignup = allowed }
}

// NewAuthService builds AuthService.
func NewAuthService(users storage.UserStore, hasher password.Hasher, tokens *auth.TokenManager, logger *zap.Logger, opts ...AuthOption) *AuthService {
	s := &AuthService{users: users, hasher: hasher, tokens: tokens, logger: logger, adminSignup: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account. An empty role defaults to "user".
func (s *AuthService) Register(ctx context.Context, username, email, pass, role string) (models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	role = strings.TrimSpace(role)
	if username == "" || email == "" || pass == "" {
		return models.User{}, newError(ErrBadRequest, "username, email and password are required")
	}
	if role == "" {
		role = models.RoleUser
	}
	if !models.ValidRole(role) {
		return models.User{}, newError(ErrBadRequest, "role must be user or admin")
	}
	if role == models.RoleAdmin && !s.adminSignup {
		s.logger.Warn("admin self-registration rejected", zap.String("username", username))
		return models.User{}, newError(ErrForbidden, "admin accounts cannot be self-registered")
	}
	if err := checkPassword(pass); err != nil {
		return models.User{}, err
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return models.User{}, passwordTooLong()
		}
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.users.CreateUser(ctx, models.User{
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return models.User{}, newError(ErrConflict, "username or email already registered")
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", zap.Int64("user_id", created.ID), zap.String("username", created.Username))
	return created, nil
}

// Login checks credentials and issues a session token.
func (s *AuthService) Login(ctx context.Context, username, pass string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || pass == "" {
		return "", newError(ErrBadRequest, "username and password are required")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", newError(ErrUnauthorized, "invalid username or password")
		}
		return "", fmt.Errorf("find user: %w", err)
	}
	if err := s.hasher.Compare(user.PasswordHash, pass); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			s.logger.Warn("password compare failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		return "", newError(ErrUnauthorized, "invalid username or password")
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	s.logger.Info("user logged in", zap.Int64("user_id", user.ID), zap.Duration("token_ttl", s.tokens.TTL()))
	return token, nil
}

// Authenticate verifies a bearer token and returns the embedded identity.
func (s *AuthService) Authenticate(token string) (auth.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Identity{}, newError(ErrUnauthorized, "missing token")
	}
	id, err := s.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return auth.Identity{}, newError(ErrUnauthorized, "token expired")
		}
		return auth.Identity{}, newError(ErrUnauthorized, "invalid token")
	}
	return id, nil
}

// VerifyUsername resolves a username to its account id.
func (s *AuthService) VerifyUsername(ctx context.Context, username string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, newError(ErrBadRequest, "username is required")
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, newError(ErrNotFound, "user not found")
		}
		return 0, fmt.Errorf("find user: %w", err)
	}
	return user.ID, nil
}

// Profile returns the public profile of an account.
func (s *AuthService) Profile(ctx context.Context, userID int64) (models.Profile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Profile{}, newError(ErrNotFound, "user not found")
		}
		return models.Profile{}, fmt.Errorf("find user: %w", err)
	}
	return models.Profile{Username: user.Username, Email: user.Email}, nil
}

// UpdateProfile applies a partial username/email change.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, update models.ProfileUpdate) error {
	update.Username = trimmedOrNil(update.Username)
	update.Email = trimmedOrNil(update.Email)
	if update.Username == nil && update.Email == nil {
		return newError(ErrBadRequest, "username or email is required")
	}

	if err := s.users.UpdateProfile(ctx, userID, update); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			return newError(ErrConflict, "username or email already registered")
		case errors.Is(err, storage.ErrNotFound):
			return newError(ErrNotFound, "user not found")
		}
		return fmt.Errorf("update profile: %w", err)
	}
	s.logger.Info("profile updated", zap.Int64("user_id", userID))
	return nil
}

// ResetPassword replaces the password of the account registered under email.
// The new password must differ from the current one.
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword string) error {
	email = strings.TrimSpace(email)
	if email == "" || newPassword == "" {
		return newError(ErrBadRequest, "email and newPassword are required")
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return newError(ErrNotFound, "user not found")
		}
		return fmt.Errorf("find user: %w", err)
	}

	switch err := s.hasher.Compare(user.PasswordHash, newPassword); {
	case err == nil:
		return newError(ErrBadRequest, "new password must differ from the current one")
	case !errors.Is(err, password.ErrMismatch):
		return fmt.Errorf("compare password: %w", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return passwordTooLong()
		}
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return newError(ErrNotFound, "user not found")
		}
		return fmt.Errorf("update password: %w", err)
	}
	s.logger.Info("password reset", zap.Int64("user_id", user.ID))
	return nil
}

func checkPassword(pass string) error {
	if errors.Is(password.CheckLength(pass), password.ErrTooLong) {
		return passwordTooLong()
	}
	return nil
}

func passwordTooLong() error {
	return newError(ErrBadRequest, fmt.Sprintf("password must be at most %d bytes", password.MaxLength))
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
