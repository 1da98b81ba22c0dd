// Package usertest holds the behavior every user.Store must share, so the
// memory, mongo and postgres stores are checked against the same cases.
package usertest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/countryauth/internal/domain/user"
)

func newUser(name, email string) user.User {
	now := time.Now().UTC()
	return user.User{
		Name:         name,
		Email:        email,
		PasswordHash: "$2a$10$hash-for-" + name,
		Role:         user.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RunStoreContract runs the shared cases against a fresh, empty store from
// newStore for each subtest. missingID must be a well-formed id for the store
// that does not exist.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) user.Store, missingID string) {
	t.Helper()

	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		created, err := s.Create(ctx, newUser("Ann", "ann@x.com"))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if created.ID == "" {
			t.Fatalf("expected an assigned id")
		}

		byID, err := s.GetByID(ctx, created.ID)
		if err != nil || byID.Email != "ann@x.com" || byID.PasswordHash == "" {
			t.Fatalf("GetByID: %+v %v", byID, err)
		}

		byEmail, err := s.GetByEmail(ctx, "ann@x.com")
		if err != nil || byEmail.ID != created.ID {
			t.Fatalf("GetByEmail: %+v %v", byEmail, err)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		if _, err := s.Create(ctx, newUser("Ann", "ann@x.com")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := s.Create(ctx, newUser("Other", "ann@x.com")); !errors.Is(err, user.ErrEmailTaken) {
			t.Fatalf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("concurrent same email has one winner", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		const n = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)

		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Create(ctx, newUser("Racer", "race@x.com"))
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else if !errors.Is(err, user.ErrEmailTaken) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("expected exactly one successful create, got %d", wins)
		}
	})

	t.Run("missing ids", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		for _, id := range []string{missingID, "not-an-id"} {
			if _, err := s.GetByID(ctx, id); !errors.Is(err, user.ErrNotFound) {
				t.Fatalf("GetByID(%q): expected ErrNotFound, got %v", id, err)
			}
			name := "x"
			if _, err := s.Update(ctx, id, user.UpdateFields{Name: &name}); !errors.Is(err, user.ErrNotFound) {
				t.Fatalf("Update(%q): expected ErrNotFound, got %v", id, err)
			}
			if err := s.Delete(ctx, id); !errors.Is(err, user.ErrNotFound) {
				t.Fatalf("Delete(%q): expected ErrNotFound, got %v", id, err)
			}
		}

		if _, err := s.GetByEmail(ctx, "nobody@x.com"); !errors.Is(err, user.ErrNotFound) {
			t.Fatalf("GetByEmail: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update is partial", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		ann, _ := s.Create(ctx, newUser("Ann", "ann@x.com"))
		bob, _ := s.Create(ctx, newUser("Bob", "bob@x.com"))

		admin := user.RoleAdmin
		updated, err := s.Update(ctx, ann.ID, user.UpdateFields{Role: &admin})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if updated.Role != user.RoleAdmin || updated.Name != "Ann" || updated.Email != "ann@x.com" {
			t.Fatalf("only role should change: %+v", updated)
		}

		email := "ann2@x.com"
		if _, err := s.Update(ctx, ann.ID, user.UpdateFields{Email: &email}); err != nil {
			t.Fatalf("change email: %v", err)
		}
		if _, err := s.GetByEmail(ctx, "ann2@x.com"); err != nil {
			t.Fatalf("new email not indexed: %v", err)
		}
		if _, err := s.GetByEmail(ctx, "ann@x.com"); !errors.Is(err, user.ErrNotFound) {
			t.Fatalf("old email should be free, got %v", err)
		}

		taken := "bob@x.com"
		if _, err := s.Update(ctx, ann.ID, user.UpdateFields{Email: &taken}); !errors.Is(err, user.ErrEmailTaken) {
			t.Fatalf("expected ErrEmailTaken, got %v", err)
		}
		if got, _ := s.GetByID(ctx, bob.ID); got.Email != "bob@x.com" {
			t.Fatalf("bob must be untouched: %+v", got)
		}
	})

	t.Run("list and delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		var ids []string
		for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
			u, err := s.Create(ctx, newUser(email, email))
			if err != nil {
				t.Fatalf("Create %s: %v", email, err)
			}
			ids = append(ids, u.ID)
			// distinct creation times keep the order deterministic
			time.Sleep(2 * time.Millisecond)
		}

		all, err := s.List(ctx, user.Page{})
		if err != nil || len(all) != 3 || all[0].Email != "a@x.com" || all[2].Email != "c@x.com" {
			t.Fatalf("List: %+v %v", all, err)
		}

		page, err := s.List(ctx, user.Page{Limit: 1, Offset: 1})
		if err != nil || len(page) != 1 || page[0].Email != "b@x.com" {
			t.Fatalf("paged List: %+v %v", page, err)
		}

		if err := s.Delete(ctx, ids[1]); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := s.Delete(ctx, ids[1]); !errors.Is(err, user.ErrNotFound) {
			t.Fatalf("repeat Delete: expected ErrNotFound, got %v", err)
		}

		rest, _ := s.List(ctx, user.Page{})
		if len(rest) != 2 {
			t.Fatalf("expected 2 users after delete, got %d", len(rest))
		}

		if _, err := s.Create(ctx, newUser("again", "b@x.com")); err != nil {
			t.Fatalf("email should be reusable after delete: %v", err)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := newStore(t).Ping(context.Background()); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})
}
