package tokens

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/cryptoutil"
)

// ValidationResult is the outcome of validating a token.
type ValidationResult struct {
	Valid bool
	Expired bool
	RemainingTimeS uint32
	ClientID string
	Scopes []string
	UserName string
}

// Handler is the token handler: it builds, validates, and revokes opaque
// encrypted tokens, and owns the symmetric key ring and revocation
// blacklist that back them.
type Handler struct {
	keys *keyRing
	blacklist *blacklist
	now func() time.Time
	logger *slog.Logger
}

// New constructs a Handler. rotationPeriod is the interval after which
// the key ring rotates; callers tie this to refresh_token_lifetime. now
// defaults to time.Now; tests substitute a controllable clock.
func New(rotationPeriod time.Duration, now func() time.Time, logger *slog.Logger) (*Handler, error) {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	keys, err := newKeyRing(rotationPeriod, now)
	if err != nil {
		return nil, err
	}
	return &Handler{keys: keys, blacklist: newBlacklist(), now: now, logger: logger}, nil
}

func (h *Handler) generate(typ Type, lifetimeS uint32, clientID, userName string, scopes []string, additionalData string) (string, error) {
	expiresAt := h.now().Add(time.Duration(lifetimeS) * time.Second)
	// Overflow is the only generation failure recognized here.
	if expiresAt.Unix() < h.now().Unix() {
		return "", fmt.Errorf("tokens: lifetime %ds overflows expiration timestamp", lifetimeS)
	}

	p := payload{
		typ: typ,
		user: userName,
		expirationSecs: expiresAt.Unix(),
		clientID: clientID,
		scopes: scopes,
		additionalData: additionalData,
	}

	ciphertext, err := h.keys.sealCurrent([]byte(p.encode()))
	if err != nil {
		return "", fmt.Errorf("tokens: seal failed: %w", err)
	}
	return cryptoutil.EncodeToken(ciphertext), nil
}

// GenerateAuthCode mints an auth code bound to client/scopes/user, storing
// the base64 SHA-256 of codeVerifier so the matching validate call can
// require the right code_verifier back (PKCE).
func (h *Handler) GenerateAuthCode(lifetimeS uint32, clientID, userName string, scopes []string, codeChallenge string) (string, error) {
	return h.generate(TypeAuthCode, lifetimeS, clientID, userName, scopes, codeChallenge)
}

// GenerateAccessToken mints an access token.
func (h *Handler) GenerateAccessToken(lifetimeS uint32, clientID, userName string, scopes []string) (string, error) {
	return h.generate(TypeAccessToken, lifetimeS, clientID, userName, scopes, "")
}

// GenerateRefreshToken mints a refresh token.
func (h *Handler) GenerateRefreshToken(lifetimeS uint32, clientID, userName string, scopes []string) (string, error) {
	return h.generate(TypeRefreshToken, lifetimeS, clientID, userName, scopes, "")
}

// validate runs the token-opening pipeline below. wantExtra is compared
// against the payload's additional_data field: for auth codes this is
// the SHA-256 of the presented code_verifier, for every other type it is
// empty.
func (h *Handler) validate(token string, wantType Type, wantExtra string) ValidationResult {
	invalid := ValidationResult{}

	// Step 1: blacklist check.
	if h.blacklist.contains(token) {
		return invalid
	}

	// Step 2: base64 decode.
	ciphertext, err := cryptoutil.DecodeToken(token)
	if err != nil {
		return invalid
	}

	// Step 3: decrypt with current, then old.
	plaintext, ok := h.keys.open(ciphertext)
	if !ok {
		return invalid
	}

	// Step 4: parse payload.
	p, err := decodePayload(string(plaintext))
	if err != nil {
		return invalid
	}

	// Step 5: type and extra-data comparison.
	if p.typ != wantType || p.additionalData != wantExtra {
		return invalid
	}

	// Step 6: expiration comparison.
	now := h.now()
	expiresAt := time.Unix(p.expirationSecs, 0)
	result := ValidationResult{
		Valid: true,
		ClientID: p.clientID,
		Scopes: p.scopes,
		UserName: p.user,
	}
	if now.After(expiresAt) {
		result.Expired = true
		result.RemainingTimeS = 0
	} else {
		result.RemainingTimeS = uint32(expiresAt.Sub(now).Seconds())
	}
	return result
}

// ValidateAuthCode validates an auth code against the presented
// code_verifier, then unconditionally blacklists it — auth codes are
// one-shot regardless of the outcome of this call.
func (h *Handler) ValidateAuthCode(token, codeVerifier string) ValidationResult {
	wantExtra := ""
	if codeVerifier != "" {
		wantExtra = cryptoutil.ChallengeFromVerifier(codeVerifier)
	}
	result := h.validate(token, TypeAuthCode, wantExtra)

	expiresAt := h.now().Add(time.Hour)
	if p, err := h.peekExpiration(token); err == nil {
		expiresAt = p
	}
	h.blacklist.add(token, expiresAt)
	return result
}

// peekExpiration best-effort decodes a token's expiration for blacklist
// bookkeeping, without re-running the full validation pipeline.
func (h *Handler) peekExpiration(token string) (time.Time, error) {
	ciphertext, err := cryptoutil.DecodeToken(token)
	if err != nil {
		return time.Time{}, err
	}
	plaintext, ok := h.keys.open(ciphertext)
	if !ok {
		return time.Time{}, fmt.Errorf("tokens: cannot open token")
	}
	p, err := decodePayload(string(plaintext))
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(p.expirationSecs, 0), nil
}

// ValidateAccessToken validates an access token.
func (h *Handler) ValidateAccessToken(token string) ValidationResult {
	return h.validate(token, TypeAccessToken, "")
}

// ValidateRefreshToken validates a refresh token.
func (h *Handler) ValidateRefreshToken(token string) ValidationResult {
	return h.validate(token, TypeRefreshToken, "")
}

// RevokeToken adds token to the blacklist. A malformed token is already
// unusable, so revoking it is a logged no-op rather than an error.
func (h *Handler) RevokeToken(token string) {
	expiresAt, err := h.peekExpiration(token)
	if err != nil {
		h.logger.Warn("tokens: ignoring revoke of malformed token", "err", err)
		return
	}
	h.blacklist.add(token, expiresAt)
}

// RevokeAllTokens performs the strong key-rotation variant: regenerate
// current, wipe old. Any token minted before this call stops validating,
// with no grace window.
func (h *Handler) RevokeAllTokens() error {
	return h.keys.revokeAll()
}

// CleanupBlacklist sweeps expired blacklist entries.
func (h *Handler) CleanupBlacklist() {
	h.blacklist.cleanup(h.now())
}
