// Package paramprovider exposes the authorization server's four readable
// settings and two operational methods behind a narrow bus-shaped
// interface, so the real parameter-service transport — out of scope
// here — can be wired in without touching the settings store or token
// handler directly.
package paramprovider

import (
	"fmt"
	"strconv"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/settings"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/tokens"
)

// Parameter names exposed on the bus, one per readable global setting.
const (
	ParamAuthCodeLifetime = "auth_code_lifetime"
	ParamAccessTokenLifetime = "access_token_lifetime"
	ParamRefreshTokenLifetime = "refresh_token_lifetime"
	ParamSilentModeEnabled = "silent_mode_enabled"
)

// Method names the bus accepts via InvokeMethod.
const (
	MethodRevokeAllTokens = "revoke_all_tokens"
	MethodRevokeToken = "revoke_token"
)

// Value is one parameter's current value, translated from its stored
// string form to its strong Go type.
type Value struct {
	Name string
	Uint uint32 `json:"uint,omitempty"`
	Bool bool `json:"bool,omitempty"`
	IsInt bool `json:"-"`
}

// WriteError is the per-parameter error reported when a write is rejected.
// When multiple parameters are submitted in one write and only some fail
// validation, the others are reported with the "other_invalid_value_in_set"
// code rather than their own reason.
type WriteError struct {
	Code string
	Message string
}

const (
	CodeInvalidValue = "invalid_value"
	CodeOtherInvalidValueInSet = "other_invalid_value_in_set"
)

// Bus is the narrow interface the external parameter-service frontend
// implements: get_all_parameters/invoke_method_by_path.
type Bus interface {
	GetAllParameters(filter []string) ([]Value, error)
	InvokeMethod(path string, args map[string]string) (map[string]string, error)
}

// Provider is the in-process reference implementation of Bus, backed
// directly by the settings store and token handler.
type Provider struct {
	store *settings.Store
	tokens *tokens.Handler
}

// New constructs a Provider.
func New(store *settings.Store, tok *tokens.Handler) *Provider {
	return &Provider{store: store, tokens: tok}
}

var allParamNames = []string{
	ParamAuthCodeLifetime, ParamAccessTokenLifetime, ParamRefreshTokenLifetime, ParamSilentModeEnabled,
}

// GetAllParameters returns the current value of every parameter in filter,
// or all four readable parameters when filter is empty. It never blocks
// the bus loop: every value is a cheap in-memory lookup.
func (p *Provider) GetAllParameters(filter []string) ([]Value, error) {
	names := filter
	if len(names) == 0 {
		names = allParamNames
	}

	out := make([]Value, 0, len(names))
	for _, name := range names {
		v, err := p.readOne(name)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *Provider) readOne(name string) (Value, error) {
	raw := p.store.GetGlobalSetting(name)
	switch name {
	case ParamAuthCodeLifetime, ParamAccessTokenLifetime, ParamRefreshTokenLifetime:
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("paramprovider: parameter %q has a non-numeric stored value", name)
		}
		return Value{Name: name, Uint: uint32(n), IsInt: true}, nil
	case ParamSilentModeEnabled:
		return Value{Name: name, Bool: raw == "true"}, nil
	default:
		return Value{}, fmt.Errorf("paramprovider: unknown parameter %q", name)
	}
}

// SetParameters writes newValues through the settings store in one atomic
// batch and maps the store's validation errors onto the per-parameter
// write-error semantics: a key that failed its own check gets
// invalid_value with the store's message; every other submitted key, if
// the write as a whole failed, gets other_invalid_value_in_set.
func (p *Provider) SetParameters(newValues map[string]string) (bool, map[string]WriteError) {
	ok, verrs := p.store.SetGlobalConfig(newValues)
	if ok {
		return true, nil
	}

	out := make(map[string]WriteError, len(newValues))
	for key := range newValues {
		if msg, failed := verrs[key]; failed {
			out[key] = WriteError{Code: CodeInvalidValue, Message: msg}
		} else {
			out[key] = WriteError{Code: CodeOtherInvalidValueInSet, Message: "rejected because another value in the same write was invalid"}
		}
	}
	return false, out
}

// InvokeMethod dispatches the two bus method names.
func (p *Provider) InvokeMethod(path string, args map[string]string) (map[string]string, error) {
	switch path {
	case MethodRevokeAllTokens:
		if err := p.tokens.RevokeAllTokens(); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	case MethodRevokeToken:
		token, ok := args["token"]
		if !ok || token == "" {
			return nil, fmt.Errorf("paramprovider: revoke_token requires a token argument")
		}
		p.tokens.RevokeToken(token)
		return map[string]string{"status": "ok"}, nil
	default:
		return nil, fmt.Errorf("paramprovider: unknown method %q", path)
	}
}
