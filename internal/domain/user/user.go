package user

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// View is the public shape of a user. Every response goes through it.
type View struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u User) View() View {
	return View{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// with pointers if optional, nil leaves the stored value untouched
type UpdateFields struct {
	Name  *string
	Email *string
	Role  *Role
}

func (f UpdateFields) Empty() bool {
	return f.Name == nil && f.Email == nil && f.Role == nil
}

// Page bounds a listing. Limit 0 means no limit.
type Page struct {
	Limit  int
	Offset int
}

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already in use")
)

// Store is the credential store. Implementations must enforce email
// uniqueness atomically and report a clash as ErrEmailTaken.
type Store interface {
	Create(ctx context.Context, u User) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context, page Page) ([]User, error)
	Update(ctx context.Context, id string, fields UpdateFields) (User, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}
