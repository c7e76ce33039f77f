package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/bcrypt"
)

// RegisterRequest holds the input for creating an account.
type RegisterRequest struct {
	Email        string
	Password     string
	Confirmation string
	// Kitchen marks the account as merchant staff.
	Kitchen bool
}

// Service implements account registration and credential checks.
type Service struct {
	users Repository
	cost  int
	// dummy is compared against when the email is unknown so that both failure
	// paths spend the same bcrypt time.
	dummy []byte
}

// NewService creates an account Service. A zero cost selects bcrypt.DefaultCost.
func NewService(users Repository, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("kitchen-dummy-password"), cost)
	return &Service{users: users, cost: cost, dummy: dummy}
}

// Register validates the request, hashes the password and stores the user.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	if req.Password != req.Confirmation {
		return nil, ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Email:        email,
		PasswordHash: string(hash),
		IsKitchen:    req.Kitchen,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login returns the user matching email and password.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
