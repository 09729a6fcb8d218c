// Package auth handles signup and login for the REST API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"pharmacy_inventory/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username or email already exists")
	ErrInvalidUsername    = errors.New("username must be 3 to 50 characters")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	// bcrypt ignores everything past 72 bytes
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
	ErrInvalidRole     = errors.New("role must be customer, pharmacist or practitioner")
)

// UserStore is the persistence the service needs; *store.Store implements it.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) (bool, error)
	FindUser(ctx context.Context, username string) (*model.User, bool, error)
}

type SignupInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// Session is returned by a successful login.
type Session struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

type Service struct {
	users  UserStore
	hasher *PasswordHasher
	tokens *TokenManager
}

func NewService(users UserStore, hasher *PasswordHasher, tokens *TokenManager) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

// Signup creates an account. Role defaults to customer.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	if len(username) < 3 || len(username) > 50 {
		return nil, ErrInvalidUsername
	}
	email := strings.TrimSpace(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(in.Password) < 8 {
		return nil, ErrWeakPassword
	}
	if len(in.Password) > 72 {
		return nil, ErrPasswordTooLong
	}
	role := strings.TrimSpace(in.Role)
	switch role {
	case "":
		role = model.RoleCustomer
	case model.RoleCustomer, model.RolePharmacist, model.RolePractitioner:
	default:
		return nil, ErrInvalidRole
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &model.User{
		Username:       username,
		Email:          email,
		PasswordDigest: digest,
		Role:           role,
	}
	ok, err := s.users.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserExists
	}
	return u, nil
}

// Login checks the credentials and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, found, err := s.users.FindUser(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if !found || !s.hasher.Verify(password, u.PasswordDigest) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Session{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: s.tokens.TTL(),
		Username:  u.Username,
		Role:      u.Role,
	}, nil
}

// Authenticate validates an access token.
func (s *Service) Authenticate(token string) (*Claims, error) {
	return s.tokens.Parse(token)
}
