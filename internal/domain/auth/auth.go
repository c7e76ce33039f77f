package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthorized is returned when the acting user lacks rights over the
	// restaurant, order or menu item involved.
	ErrUnauthorized = errors.New("not authorized")
	// ErrNoManagedRestaurant is returned for kitchen accounts that have not been
	// assigned a restaurant yet.
	ErrNoManagedRestaurant = errors.New("no restaurant assigned to your account, please contact admin")
	// ErrInvalidCredentials is returned when login fails for any reason.
	ErrInvalidCredentials = errors.New("invalid email and/or password")
	// ErrEmailTaken is returned by Repository.Create on a duplicate email.
	ErrEmailTaken = errors.New("email address already taken")
	// ErrPasswordMismatch is returned when the password confirmation differs.
	ErrPasswordMismatch = errors.New("passwords must match")
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
)

// User is a registered account. Kitchen accounts may be bound to the single
// restaurant they operate.
type User struct {
	ID                  int64
	Email               string
	PasswordHash        string
	IsKitchen           bool
	ManagedRestaurantID *int64
	CreatedAt           time.Time
}

// Principal returns the identity used by domain services for authorization.
func (u *User) Principal() Principal {
	p := Principal{
		UserID:    u.ID,
		Email:     u.Email,
		IsKitchen: u.IsKitchen,
	}
	if u.ManagedRestaurantID != nil {
		p.ManagedRestaurantID = *u.ManagedRestaurantID
	}
	return p
}

// Principal is the authenticated actor of a request. It is passed explicitly
// to every domain operation.
type Principal struct {
	UserID    int64
	Email     string
	IsKitchen bool
	// ManagedRestaurantID is zero when no restaurant is assigned.
	ManagedRestaurantID int64
}

// Kitchen returns the restaurant the principal operates, or an error when the
// principal is not a kitchen operator or has no restaurant assigned.
func (p Principal) Kitchen() (int64, error) {
	if !p.IsKitchen {
		return 0, ErrUnauthorized
	}
	if p.ManagedRestaurantID == 0 {
		return 0, ErrNoManagedRestaurant
	}
	return p.ManagedRestaurantID, nil
}

// Manages reports whether the principal is the kitchen operator of restaurantID.
func (p Principal) Manages(restaurantID int64) bool {
	id, err := p.Kitchen()
	return err == nil && id == restaurantID
}

// Repository defines persistence operations for user accounts.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
