// Package webui implements the response helper: it renders the four
// named HTML pages or, on content negotiation, a compact JSON document,
// and owns the $$NAME$$ template engine and the HTML-escaping policy
// every page goes through.
package webui

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
)

// Page names, one per template file.
const (
	PagePasswordSetup = "password_setup.html"
	PageLogin = "login.html"
	PagePasswordChange = "password_change.html"
	PageConfirmation = "confirmation.html"
)

// ErrorCode is one of the stable JSON error enum values.
type ErrorCode string

const (
	ErrInternal ErrorCode = "internal_error"
	ErrInvalidRequest ErrorCode = "invalid_request"
	ErrInvalidUsernameOrPassword ErrorCode = "invalid_username_or_password"
	ErrInvalidNewPassword ErrorCode = "invalid_new_password"
)

// maxSystemUseNotificationBytes caps the fallback file read.
const maxSystemUseNotificationBytes = 1 << 20

// Helper renders the four named pages (password setup, login, password
// change, confirmation) used by the authorize and password_change flows. It is
// safe for concurrent use; templates are parsed once at construction and
// never mutated afterward.
type Helper struct {
	templates map[string]compiledTemplate

	hostname string
	serviceName string
	serviceVersion string
	apiVersion string
	systemNotificationFile string
	systemUseNotificationSetting func() string
}

// Config configures a Helper.
type Config struct {
	Hostname string
	ServiceName string
	ServiceVersion string
	APIVersion string
	// SystemNotificationFile is read as a fallback when the
	// system_use_notification global setting is empty.
	// Defaults to "/etc/system-use-notification".
	SystemNotificationFile string
	// SystemUseNotificationSetting returns the current value of the
	// system_use_notification global setting. Consulted on every render;
	// nil leaves PageData.SystemUseNotification as the caller set it.
	SystemUseNotificationSetting func() string
}

// Load reads and pre-tokenizes the four named templates from dir.
func Load(dir string, cfg Config) (*Helper, error) {
	if cfg.SystemNotificationFile == "" {
		cfg.SystemNotificationFile = "/etc/system-use-notification"
	}

	names := []string{PagePasswordSetup, PageLogin, PagePasswordChange, PageConfirmation}
	tmpls := make(map[string]compiledTemplate, len(names))
	for _, name := range names {
		data, err := os.ReadFile(dir + string(os.PathSeparator) + name)
		if err != nil {
			return nil, err
		}
		tmpls[name] = compileTemplate(string(data))
	}

	return &Helper{
		templates: tmpls,
		hostname: cfg.Hostname,
		serviceName: cfg.ServiceName,
		serviceVersion: cfg.ServiceVersion,
		apiVersion: cfg.APIVersion,
		systemNotificationFile: cfg.SystemNotificationFile,
		systemUseNotificationSetting: cfg.SystemUseNotificationSetting,
	}, nil
}

// wantsJSON implements the content-negotiation rule from.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// PageData carries the per-request values a rendered page needs. Fields
// left zero are simply omitted from substitution.
type PageData struct {
	UserName string
	ClientName string
	CancelURI string
	ContinueURI string
	ErrorMessage string
	SuccessMessage string
	InfoMessage string
	SystemUseNotification string
	SilentModeEnabled bool
	PageTitle string
	FaviconHref string
}

func (h *Helper) values(d PageData) Values {
	silentClass := ""
	if d.SilentModeEnabled {
		silentClass = "silent-mode"
	}
	return Values{
		"HOSTNAME": {Value: h.hostname},
		"SERVICE_NAME": {Value: h.serviceName},
		"SERVICE_VERSION": {Value: h.serviceVersion},
		"API_VERSION": {Value: h.apiVersion},
		"USER_NAME": {Value: d.UserName},
		"CLIENT_NAME": {Value: d.ClientName},
		"CANCEL_URI": {Value: d.CancelURI, URI: true},
		"CONTINUE_URI": {Value: d.ContinueURI, URI: true},
		"ERROR_MESSAGE": {Value: d.ErrorMessage},
		"SUCCESS_MESSAGE": {Value: d.SuccessMessage},
		"INFO_MESSAGE": {Value: d.InfoMessage},
		"SYSTEM_USE_NOTIFICATION": {Value: d.SystemUseNotification},
		"SILENT_MODE_CLASS": {Value: silentClass},
		"PAGE_TITLE": {Value: d.PageTitle},
		"FAVICON_HREF": {Value: d.FaviconHref, URI: true},
	}
}

// ResolveSystemUseNotification uses the global setting if non-empty, else
// falls back to reading a capped, trimmed file. Read failures produce a
// banner message but never fail the caller.
func (h *Helper) ResolveSystemUseNotification(settingValue string) string {
	if settingValue != "" {
		return settingValue
	}

	f, err := os.Open(h.systemNotificationFile)
	if err != nil {
		return "Failed to load system use notification"
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSystemUseNotificationBytes))
	if err != nil {
		return "Failed to load system use notification"
	}
	return strings.TrimSpace(string(data))
}

// fillSystemUseNotification resolves data.SystemUseNotification from the
// configured setting source, when one was supplied at construction.
func (h *Helper) fillSystemUseNotification(data *PageData) {
	if h.systemUseNotificationSetting == nil {
		return
	}
	data.SystemUseNotification = h.ResolveSystemUseNotification(h.systemUseNotificationSetting())
}

// RenderPage renders the named page as HTML, or as JSON if the request
// negotiates it.
func (h *Helper) RenderPage(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	if wantsJSON(r) {
		h.renderJSONSuccess(w, status)
		return
	}
	h.fillSystemUseNotification(&data)
	tmpl, ok := h.templates[page]
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, string(tmpl.render(h.values(data))))
}

type jsonDoc struct {
	Success bool `json:"success"`
	Error string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (h *Helper) renderJSONSuccess(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(jsonDoc{Success: true})
}

// RenderError renders an error page (HTML) or error document (JSON) using
// one of the stable error codes.
func (h *Helper) RenderError(w http.ResponseWriter, r *http.Request, status int, page string, code ErrorCode, description string, data PageData) {
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(jsonDoc{Success: false, Error: string(code), ErrorDescription: description})
		return
	}
	if data.ErrorMessage == "" {
		data.ErrorMessage = description
	}
	h.fillSystemUseNotification(&data)
	tmpl, ok := h.templates[page]
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, string(tmpl.render(h.values(data))))
}
