package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/efritz/glock"
	"github.com/google/uuid"

	"github.com/GriffinCanCode/ironclad/backend/internal/store"
)

// ListLimit caps List results
const ListLimit = 100

const (
	userPrefix  = "users:id:"
	emailPrefix = "users:email:"
)

var (
	// ErrNotFound is returned when no user has the requested ID
	ErrNotFound = errors.New("user not found")
	// ErrEmailExists is returned when another user already owns the email
	ErrEmailExists = errors.New("email already exists")
)

// Repository stores users in a key-value store. Each user is a JSON document
// under users:id:<id>; users:email:<email> maps an email to its owner and
// enforces uniqueness.
type Repository struct {
	store store.Store
	clock glock.Clock
}

// NewRepository creates a repository. clock may be nil.
func NewRepository(s store.Store, clock glock.Clock) *Repository {
	if clock == nil {
		clock = glock.NewRealClock()
	}
	return &Repository{store: s, clock: clock}
}

// Create stores a new user
func (r *Repository) Create(ctx context.Context, in Input) (*User, error) {
	user := &User{
		ID:        uuid.NewString(),
		CreatedAt: r.clock.Now().UTC(),
	}
	in.apply(user)

	claimed, err := r.store.PutIfAbsent(ctx, emailKey(user.Email), []byte(user.ID))
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrEmailExists
	}

	if err := r.put(ctx, user); err != nil {
		r.release(ctx, user.Email)
		return nil, err
	}
	return user, nil
}

// Get returns the user with the given ID
func (r *Repository) Get(ctx context.Context, id string) (*User, error) {
	data, err := r.store.Get(ctx, userKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var user User
	if err := sonic.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &user, nil
}

// List returns up to ListLimit users, newest first
func (r *Repository) List(ctx context.Context) ([]User, error) {
	entries, err := r.store.Scan(ctx, userPrefix, 0)
	if err != nil {
		return nil, err
	}

	users := make([]User, 0, len(entries))
	for _, entry := range entries {
		var user User
		if err := sonic.Unmarshal(entry.Value, &user); err != nil {
			return nil, fmt.Errorf("decode %s: %w", entry.Key, err)
		}
		users = append(users, user)
	}

	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	if len(users) > ListLimit {
		users = users[:ListLimit]
	}
	return users, nil
}

// Update replaces every field of an existing user
func (r *Repository) Update(ctx context.Context, id string, in Input) (*User, error) {
	user, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	oldEmail := user.Email
	emailChanged := !strings.EqualFold(oldEmail, in.Email)
	if emailChanged {
		claimed, err := r.store.PutIfAbsent(ctx, emailKey(in.Email), []byte(id))
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, ErrEmailExists
		}
	}

	in.apply(user)
	now := r.clock.Now().UTC()
	user.UpdatedAt = &now

	if err := r.put(ctx, user); err != nil {
		if emailChanged {
			r.release(ctx, in.Email)
		}
		return nil, err
	}
	if emailChanged {
		r.release(ctx, oldEmail)
	}
	return user, nil
}

// Delete removes a user and frees its email
func (r *Repository) Delete(ctx context.Context, id string) error {
	user, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := r.store.Delete(ctx, userKey(id)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	r.release(ctx, user.Email)
	return nil
}

func (r *Repository) put(ctx context.Context, user *User) error {
	data, err := sonic.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user %s: %w", user.ID, err)
	}
	return r.store.Put(ctx, userKey(user.ID), data)
}

// release drops an email claim. A leftover claim only blocks reuse of that
// email, so failures are ignored.
func (r *Repository) release(ctx context.Context, email string) {
	_ = r.store.Delete(ctx, emailKey(email))
}

func userKey(id string) string {
	return userPrefix + id
}

func emailKey(email string) string {
	return emailPrefix + strings.ToLower(email)
}
