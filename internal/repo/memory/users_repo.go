package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/countryauth/internal/domain/user"
	"github.com/google/uuid"
)

type UsersRepo struct {
	mu      sync.RWMutex
	items   map[string]user.User // {"id": user}
	byEmail map[string]string    // {"email": id}
	order   []string
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:   make(map[string]user.User),
		byEmail: make(map[string]string),
	}
}

func (r *UsersRepo) Create(_ context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()

	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[u.Email]; taken {
		return user.User{}, user.ErrEmailTaken
	}

	r.items[u.ID] = u
	r.byEmail[u.Email] = u.ID
	r.order = append(r.order, u.ID)

	return u, nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return r.items[id], nil
}

func (r *UsersRepo) List(_ context.Context, page user.Page) ([]user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.order
	if page.Offset >= len(ids) {
		return []user.User{}, nil
	}
	ids = ids[page.Offset:]

	if page.Limit > 0 && page.Limit < len(ids) {
		ids = ids[:page.Limit]
	}

	out := make([]user.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.items[id])
	}

	return out, nil
}

func (r *UsersRepo) Update(_ context.Context, id string, fields user.UpdateFields) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	if fields.Email != nil && *fields.Email != u.Email {
		if _, taken := r.byEmail[*fields.Email]; taken {
			return user.User{}, user.ErrEmailTaken
		}

		delete(r.byEmail, u.Email)
		u.Email = *fields.Email
		r.byEmail[u.Email] = u.ID
	}

	if fields.Name != nil {
		u.Name = *fields.Name
	}

	if fields.Role != nil {
		u.Role = *fields.Role
	}

	u.UpdatedAt = time.Now().UTC()
	r.items[id] = u

	return u, nil
}

func (r *UsersRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}

	delete(r.items, id)
	delete(r.byEmail, u.Email)

	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return nil
}

func (r *UsersRepo) Ping(context.Context) error {
	return nil
}
