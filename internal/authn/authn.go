// Package authn implements the authenticator: it composes a
// password-check backend with a password-change backend and enforces
// scope-to-group authorization.
package authn

import (
	"context"
	"net/url"
	"strings"
	"sync"
)

// AuthResult is the outcome of an authentication attempt. UserName is
// cleared on any failure so a caller never logs a name a user typed into
// the password box by mistake.
type AuthResult struct {
	Success bool
	Expired bool
	Unauthorized bool
	UserName string
}

// ChangeResult is the outcome of a password-change attempt.
type ChangeResult struct {
	Success bool
	Message string
}

// PasswordBackend is the narrow interface the external PAM-equivalent
// password backend implements. An error return means the
// backend itself failed (a true internal error); a false AuthResult.Success
// with a nil error means "credentials rejected".
type PasswordBackend interface {
	Authenticate(ctx context.Context, username, password string) (AuthResult, error)
}

// PasswordChangeBackend is the narrow interface the external
// parameter-service RPC password-change backend implements. The result
// arrives asynchronously on the returned channel, which is always sent
// to exactly once and then closed — a Go channel standing in for the
// async callback pair the underlying RPC uses.
type PasswordChangeBackend interface {
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) <-chan ChangeResult
}

// GroupLookup resolves the groups a user belongs to, used to authorize
// scopes.
type GroupLookup interface {
	GroupsForUser(ctx context.Context, username string) ([]string, error)
}

// Authenticator composes the three collaborators above.
type Authenticator struct {
	backend PasswordBackend
	changeBackend PasswordChangeBackend
	groups GroupLookup

	mu sync.Mutex
	adminConfirmedPassword bool // once true, AdminHasNoPassword is false forever
}

// New constructs an Authenticator.
func New(backend PasswordBackend, changeBackend PasswordChangeBackend, groups GroupLookup) *Authenticator {
	return &Authenticator{backend: backend, changeBackend: changeBackend, groups: groups}
}

// AdminHasNoPassword is optimistically true until the password backend
// reports that "admin" with the empty password fails to authenticate, at
// which point it is cached false forever — passwords cannot be unset, so
// once admin has one, admin always has one.
func (a *Authenticator) AdminHasNoPassword(ctx context.Context) bool {
	a.mu.Lock()
	confirmed := a.adminConfirmedPassword
	a.mu.Unlock()
	if confirmed {
		return false
	}

	res, err := a.backend.Authenticate(ctx, "admin", "")
	if err != nil {
		// Backend failure is not authoritative; stay optimistic so a
		// transient backend outage doesn't wrongly lock the setup page on.
		return true
	}
	if res.Success {
		return true
	}

	a.mu.Lock()
	a.adminConfirmedPassword = true
	a.mu.Unlock()
	return false
}

// HasFormAuthData reports whether form carries both username and password.
func HasFormAuthData(form url.Values) bool {
	return form.Get("username") != "" && form.Get("password") != ""
}

// newPasswordValue reads the new-password form field, accepting both the
// current "new_password" name and the legacy "new-password" alias,
// preserved until callers have migrated off it.
func newPasswordValue(form url.Values) string {
	if v := form.Get("new_password"); v != "" {
		return v
	}
	return form.Get("new-password")
}

// HasFormPasswordChangeData reports whether form carries a non-empty
// username and a new password (by either accepted field name). The current
// password field is not checked, so the initial admin setup form, which has
// no current password, also qualifies.
func HasFormPasswordChangeData(form url.Values) bool {
	return form.Get("username") != "" && newPasswordValue(form) != ""
}

// groupForScope maps a scope of the form "a:b" to the group name "a_b"
// that authorizes it.
func groupForScope(scope string) string {
	return strings.ReplaceAll(scope, ":", "_")
}

// Authenticate extracts username/password from form, checks them against
// the password backend, and — only on credential success — authorizes
// requestedScopes by requiring group membership for each one. UserName is
// cleared on any failure path.
func (a *Authenticator) Authenticate(ctx context.Context, form url.Values, requestedScopes []string) (AuthResult, error) {
	username := form.Get("username")
	password := form.Get("password")

	res, err := a.backend.Authenticate(ctx, username, password)
	if err != nil {
		return AuthResult{}, err
	}
	if !res.Success {
		res.UserName = ""
		return res, nil
	}

	if len(requestedScopes) > 0 && a.groups != nil {
		userGroups, err := a.groups.GroupsForUser(ctx, username)
		if err != nil {
			return AuthResult{}, err
		}
		memberOf := make(map[string]bool, len(userGroups))
		for _, g := range userGroups {
			memberOf[g] = true
		}
		for _, scope := range requestedScopes {
			if !memberOf[groupForScope(scope)] {
				return AuthResult{Unauthorized: true}, nil
			}
		}
	}

	return res, nil
}

// PasswordChange delegates the request's credentials to the change
// backend, using the form fields a password-change submission carries.
func (a *Authenticator) PasswordChange(ctx context.Context, form url.Values) <-chan ChangeResult {
	username := form.Get("username")
	oldPassword := form.Get("password")
	newPassword := newPasswordValue(form)
	return a.changeBackend.ChangePassword(ctx, username, oldPassword, newPassword)
}
