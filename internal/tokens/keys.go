package tokens

import (
	"sync"
	"time"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/cryptoutil"
)

// keyRing holds the two symmetric keys the handler ever has in play:
// tokens are always sealed with current; opening a token tries current
// first, then old. Rotation replaces old with what was current and mints
// a fresh current, giving in-flight tokens encrypted under the previous
// current key a grace window until old is itself discarded by the next
// rotation or wiped by revokeAll.
type keyRing struct {
	mu sync.Mutex
	current cryptoutil.Key
	old cryptoutil.Key
	hasOld bool
	keyExpiration time.Time
	rotationPeriod time.Duration
	now func() time.Time
}

func newKeyRing(rotationPeriod time.Duration, now func() time.Time) (*keyRing, error) {
	cur, err := cryptoutil.NewKey()
	if err != nil {
		return nil, err
	}
	return &keyRing{
		current: cur,
		keyExpiration: now().Add(rotationPeriod),
		rotationPeriod: rotationPeriod,
		now: now,
	}, nil
}

// maybeRotate implements the rotation rule: when now is past
// keyExpiration, rotate. Called at the top of every key-using operation,
// so rotation is driven by use rather than a background timer.
func (k *keyRing) maybeRotate() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.maybeRotateLocked()
}

func (k *keyRing) maybeRotateLocked() error {
	if !k.now().After(k.keyExpiration) {
		return nil
	}
	fresh, err := cryptoutil.NewKey()
	if err != nil {
		return err
	}
	k.old = k.current
	k.hasOld = true
	k.current = fresh
	k.keyExpiration = k.now().Add(k.rotationPeriod)
	return nil
}

// sealCurrent encrypts plaintext under the current key, rotating first if due.
func (k *keyRing) sealCurrent(plaintext []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.maybeRotateLocked(); err != nil {
		return nil, err
	}
	return cryptoutil.Encrypt(plaintext, k.current)
}

// open tries current, then old. Rotation is checked first, same as seal.
func (k *keyRing) open(ciphertext []byte) ([]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	_ = k.maybeRotateLocked()

	if pt, err := cryptoutil.Decrypt(ciphertext, k.current); err == nil {
		return pt, true
	}
	if k.hasOld {
		if pt, err := cryptoutil.Decrypt(ciphertext, k.old); err == nil {
			return pt, true
		}
	}
	return nil, false
}

// revokeAll performs the "strong" rotation variant revoke_all_tokens
// requires: regenerate current and securely wipe old, closing the grace
// window regular rotation leaves open so that no pre-revocation token —
// not even one still inside old's window — can validate afterward.
func (k *keyRing) revokeAll() error {
	fresh, err := cryptoutil.NewKey()
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.old.Wipe()
	k.old = cryptoutil.Key{}
	k.hasOld = false
	k.current = fresh
	k.keyExpiration = k.now().Add(k.rotationPeriod)
	return nil
}
