package authn

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// memoryUser is one entry in an InMemoryBackend.
type memoryUser struct {
	hash []byte
	groups []string
	expired bool
}

// InMemoryBackend is a development/test stand-in for the external
// PAM-equivalent password backend and parameter-service change backend
//. It hashes passwords with bcrypt, the same library the
// teacher's own local password connector uses (dexidp-dex
// server/server.go's passwordDB.Login).
type InMemoryBackend struct {
	mu sync.Mutex
	users map[string]memoryUser
}

// NewInMemoryBackend constructs an empty backend.
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{users: map[string]memoryUser{}}
}

// AddUser registers a user with a bcrypt-hashed password and group list.
func (b *InMemoryBackend) AddUser(username, password string, groups []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[username] = memoryUser{hash: hash, groups: groups}
	return nil
}

// SetExpired marks username's password as requiring a forced change on
// next successful authentication.
func (b *InMemoryBackend) SetExpired(username string, expired bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[username]
	if !ok {
		return
	}
	u.expired = expired
	b.users[username] = u
}

// Authenticate implements PasswordBackend.
func (b *InMemoryBackend) Authenticate(_ context.Context, username, password string) (AuthResult, error) {
	b.mu.Lock()
	u, ok := b.users[username]
	b.mu.Unlock()
	if !ok {
		return AuthResult{}, nil
	}
	if bcrypt.CompareHashAndPassword(u.hash, []byte(password)) != nil {
		return AuthResult{}, nil
	}
	if u.expired {
		return AuthResult{Success: true, Expired: true, UserName: username}, nil
	}
	return AuthResult{Success: true, UserName: username}, nil
}

// ChangePassword implements PasswordChangeBackend.
func (b *InMemoryBackend) ChangePassword(_ context.Context, username, oldPassword, newPassword string) <-chan ChangeResult {
	out := make(chan ChangeResult, 1)
	go func() {
		defer close(out)

		b.mu.Lock()
		u, ok := b.users[username]
		b.mu.Unlock()
		if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(oldPassword)) != nil {
			out <- ChangeResult{Message: "Authentication failed"}
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
		if err != nil {
			out <- ChangeResult{Message: "Could not set new password"}
			return
		}

		b.mu.Lock()
		u.hash = hash
		u.expired = false
		b.users[username] = u
		b.mu.Unlock()

		out <- ChangeResult{Success: true}
	}()
	return out
}

// GroupsForUser implements GroupLookup.
func (b *InMemoryBackend) GroupsForUser(_ context.Context, username string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[username]
	if !ok {
		return nil, nil
	}
	return u.groups, nil
}
