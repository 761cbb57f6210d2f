package tokens

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock gives tests full control over "now" without depending on wall time.
type fakeClock struct {
	mu sync.Mutex
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestHandler(t *testing.T, clock *fakeClock) *Handler {
	t.Helper()
	h, err := New(time.Hour, clock.now, nil)
	require.NoError(t, err)
	return h
}

// Validating before expiration yields valid, not expired, with the
// expected remaining time.
func TestValidateBeforeExpiration(t *testing.T) {
	clock := newFakeClock()
	h := newTestHandler(t, clock)

	tok, err := h.GenerateAccessToken(300, "c1", "alice", []string{"rs:s"})
	require.NoError(t, err)

	clock.advance(100 * time.Second)
	res := h.ValidateAccessToken(tok)
	assert.True(t, res.Valid)
	assert.False(t, res.Expired)
	assert.Equal(t, uint32(200), res.RemainingTimeS)
	assert.Equal(t, "c1", res.ClientID)
	assert.Equal(t, "alice", res.UserName)
}

// Validating after expiration yields valid=true, expired=true, remaining=0.
func TestValidateAfterExpiration(t *testing.T) {
	clock := newFakeClock()
	h := newTestHandler(t, clock)

	tok, err := h.GenerateAccessToken(300, "c1", "alice", []string{"rs:s"})
	require.NoError(t, err)

	clock.advance(301 * time.Second)
	res := h.ValidateAccessToken(tok)
	assert.True(t, res.Valid)
	assert.True(t, res.Expired)
	assert.Equal(t, uint32(0), res.RemainingTimeS)
}

// Auth codes validate at most once.
func TestAuthCodeOneShot(t *testing.T) {
	clock := newFakeClock()
	h := newTestHandler(t, clock)

	challenge := "JBbiqONGWPaAmwXk_8bT6UnlPfrn65D32eZlJS-zGG0"
	tok, err := h.GenerateAuthCode(60, "c1", "alice", []string{"rs:s"}, challenge)
	require.NoError(t, err)

	first := h.ValidateAuthCode(tok, "test-verifier")
	assert.True(t, first.Valid)

	second := h.ValidateAuthCode(tok, "test-verifier")
	assert.False(t, second.Valid)
}

// A token of one type validated against an API expecting another type
// is rejected.
func TestTypeMismatchRejected(t *testing.T) {
	clock := newFakeClock()
	h := newTestHandler(t, clock)

	tok, err := h.GenerateRefreshToken(3600, "c1", "alice", []string{"rs:s"})
	require.NoError(t, err)

	res := h.ValidateAccessToken(tok)
	assert.False(t, res.Valid)
}

// After revoke_all_tokens, every token minted before the call is invalid.
func TestRevokeAllInvalidatesPriorTokens(t *testing.T) {
	clock := newFakeClock()
	h := newTestHandler(t, clock)

	tok, err := h.GenerateAccessToken(300, "c1", "alice", []string{"rs:s"})
	require.NoError(t, err)

	require.NoError(t, h.RevokeAllTokens())

	res := h.ValidateAccessToken(tok)
	assert.False(t, res.Valid)
}

func TestPKCEMismatchRejected(t *testing.T) {
	clock := newFakeClock()
	h := newTestHandler(t, clock)

	challenge := "JBbiqONGWPaAmwXk_8bT6UnlPfrn65D32eZlJS-zGG0"
	tok, err := h.GenerateAuthCode(60, "c1", "alice", []string{"rs:s"}, challenge)
	require.NoError(t, err)

	res := h.ValidateAuthCode(tok, "wrong-verifier")
	assert.False(t, res.Valid)
}

func TestMalformedTokenNeverPanics(t *testing.T) {
	clock := newFakeClock()
	h := newTestHandler(t, clock)

	assert.False(t, h.ValidateAccessToken("not-base64!!!").Valid)
	assert.False(t, h.ValidateAccessToken("").Valid)

	// Revoking a malformed token is a no-op, not a panic or error return.
	h.RevokeToken("not-base64!!!")
}

func TestKeyRotationGraceWindow(t *testing.T) {
	clock := newFakeClock()
	h := newTestHandler(t, clock)

	tok, err := h.GenerateAccessToken(3600, "c1", "alice", []string{"rs:s"})
	require.NoError(t, err)

	// Force a rotation by crossing the key's own expiration.
	clock.advance(2 * time.Hour)

	// The token, sealed under the now-rotated-out "old" key, should still
	// validate during the grace window a plain rotation leaves open.
	res := h.ValidateAccessToken(tok)
	assert.True(t, res.Valid)
}

func TestBlacklistCleanupRemovesExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	h := newTestHandler(t, clock)

	tok, err := h.GenerateAccessToken(60, "c1", "alice", []string{"rs:s"})
	require.NoError(t, err)
	h.RevokeToken(tok)
	assert.True(t, h.blacklist.contains(tok))

	clock.advance(2 * time.Minute)
	h.CleanupBlacklist()
	assert.False(t, h.blacklist.contains(tok))
}
