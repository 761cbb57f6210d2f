package settings

import (
	"fmt"
	"strconv"
)

// Mode selects how validateGlobals reacts to a violated invariant.
type Mode int

const (
	// ModeStrict fails the whole load on any violation (initial load).
	ModeStrict Mode = iota
	// ModeLenient replaces each violated value with its default (reload).
	ModeLenient
)

// ValidationErrors maps a setting key to the message explaining why the
// value submitted for it was rejected.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	return fmt.Sprintf("settings: %d invalid value(s)", len(v))
}

// parsedGlobals holds the semantic values of the numeric/boolean globals,
// used internally while validating the cross-field invariants.
type parsedGlobals struct {
	authCodeLifetime uint32
	accessTokenLifetime uint32
	refreshTokenLifetime uint32
	silentModeEnabled bool
	systemUseNotification string
}

func parseUint32(values map[string]string, key string) (uint32, error) {
	n, err := strconv.ParseUint(values[key], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q must be a non-negative 32-bit integer", key)
	}
	return uint32(n), nil
}

func parseBool(values map[string]string, key string) (bool, error) {
	switch values[key] {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%q must be %q or %q", key, "true", "false")
	}
}

// validateGlobals validates the combined settings map against the
// relational invariants the three lifetimes must satisfy together:
//
//	auth_code_lifetime >= 1, <= 0.5 * access_token_lifetime
//	access_token_lifetime >= 2 * auth_code_lifetime, <= 0.5 * refresh_token_lifetime
//	refresh_token_lifetime >= 2 * access_token_lifetime
//
// Every violation is collected, and a relational violation is reported
// under both keys involved. In ModeStrict, the collected errors are
// returned and no values are. In ModeLenient, every
// violated key is replaced by its default in place, and validation is
// re-run once against the patched map so the caller ends up with an
// internally consistent set of values.
func validateGlobals(values map[string]string, mode Mode) (map[string]string, ValidationErrors) {
	errs := ValidationErrors{}

	auth, err := parseUint32(values, KeyAuthCodeLifetime)
	if err != nil {
		errs[KeyAuthCodeLifetime] = err.Error()
	} else if auth < 1 {
		errs[KeyAuthCodeLifetime] = fmt.Sprintf("%q must be >= 1", KeyAuthCodeLifetime)
	}

	access, err := parseUint32(values, KeyAccessTokenLifetime)
	if err != nil {
		errs[KeyAccessTokenLifetime] = err.Error()
	}

	refresh, err := parseUint32(values, KeyRefreshTokenLifetime)
	if err != nil {
		errs[KeyRefreshTokenLifetime] = err.Error()
	}

	if _, ok := errs[KeyAuthCodeLifetime]; !ok {
		if _, ok := errs[KeyAccessTokenLifetime]; !ok {
			if uint64(auth) > uint64(access)/2 {
				msg := fmt.Sprintf("%q must be <= 0.5 * %q", KeyAuthCodeLifetime, KeyAccessTokenLifetime)
				errs[KeyAuthCodeLifetime] = msg
				errs[KeyAccessTokenLifetime] = msg
			}
			if uint64(access) < 2*uint64(auth) {
				msg := fmt.Sprintf("%q must be >= 2 * %q", KeyAccessTokenLifetime, KeyAuthCodeLifetime)
				errs[KeyAuthCodeLifetime] = msg
				errs[KeyAccessTokenLifetime] = msg
			}
		}
	}

	if _, ok := errs[KeyAccessTokenLifetime]; !ok {
		if _, ok := errs[KeyRefreshTokenLifetime]; !ok {
			if uint64(access) > uint64(refresh)/2 {
				msg := fmt.Sprintf("%q must be <= 0.5 * %q", KeyAccessTokenLifetime, KeyRefreshTokenLifetime)
				errs[KeyAccessTokenLifetime] = msg
				errs[KeyRefreshTokenLifetime] = msg
			}
			if uint64(refresh) < 2*uint64(access) {
				msg := fmt.Sprintf("%q must be >= 2 * %q", KeyRefreshTokenLifetime, KeyAccessTokenLifetime)
				errs[KeyAccessTokenLifetime] = msg
				errs[KeyRefreshTokenLifetime] = msg
			}
		}
	}

	if _, err := parseBool(values, KeySilentModeEnabled); err != nil {
		errs[KeySilentModeEnabled] = err.Error()
	}

	if len(errs) == 0 {
		return values, nil
	}

	if mode == ModeStrict {
		return nil, errs
	}

	patched := make(map[string]string, len(values))
	for k, v := range values {
		patched[k] = v
	}
	for k := range errs {
		patched[k] = defaultGlobals[k]
	}
	// One more pass should always be clean, since defaults are mutually
	// consistent; if it somehow isn't, surface whatever remains rather
	// than loop.
	if final, ferrs := validateGlobals(patched, ModeStrict); ferrs == nil {
		return final, nil
	} else {
		return patched, ferrs
	}
}
