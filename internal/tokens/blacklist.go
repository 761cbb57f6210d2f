package tokens

import (
	"sync"
	"time"
)

// blacklist is the in-memory, process-wide revocation set (
// RevocationBlacklist): ciphertext -> expiration. Entries are removed by
// cleanup, never by validation, so a blacklisted token stays rejected
// until its own expiration passes the sweep.
type blacklist struct {
	mu sync.Mutex
	entries map[string]time.Time
}

func newBlacklist() *blacklist {
	return &blacklist{entries: map[string]time.Time{}}
}

func (b *blacklist) add(token string, expiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[token] = expiresAt
}

func (b *blacklist) contains(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[token]
	return ok
}

// cleanup removes every entry whose expiration has passed as of now. Safe
// to call on an idle timer.
func (b *blacklist) cleanup(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for token, exp := range b.entries {
		if exp.Before(now) {
			delete(b.entries, token)
		}
	}
}
