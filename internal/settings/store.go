package settings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Paths locates the files and directories a Store loads from.
type Paths struct {
	ConfigFile string // main authd.conf
	ClientsDir string
	ResourceServersDir string
}

// Store is the settings store. It owns four
// pieces of state — globals, clients, resource servers, and the derived
// scope universe — behind two mutexes: globalMu guards only the globals
// cache (so get_global_setting stays cheap), loadMu serializes the whole
// load/reload/write critical section and is never held while calling user
// code such as fsnotify callbacks.
type Store struct {
	paths Paths
	logger *slog.Logger

	globalMu sync.RWMutex
	globals map[string]string

	loadMu sync.Mutex
	clients map[string]OAuthClient
	resourceServers map[string]ResourceServer
	scopeUniverse []string
}

// New loads the store for the first time. A failure here is fatal to
// startup.
func New(paths Paths, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{paths: paths, logger: logger}
	if err := s.load(ModeStrict); err != nil {
		return nil, fmt.Errorf("settings: initial load failed: %w", err)
	}
	return s, nil
}

func (s *Store) warnf(msg string, args...any) {
	s.logger.Warn(msg, args...)
}

// load performs the full load sequence — read, fill defaults, validate,
// load clients and resource servers, derive the scope universe — and
// installs the result, or returns an error without mutating s.
func (s *Store) load(mode Mode) error {
	raw, err := loadGlobalsFile(s.paths.ConfigFile, s.warnf)
	if err != nil {
		return fmt.Errorf("load main config: %w", err)
	}
	fillDefaults(raw, s.warnf)

	globals, verrs := validateGlobals(raw, mode)
	if verrs != nil {
		return fmt.Errorf("validate global settings: %w", verrs)
	}

	clients, err := loadConfDir(s.paths.ClientsDir, s.warnf, parseClientFile)
	if err != nil {
		return fmt.Errorf("load clients: %w", err)
	}

	resourceServers, err := loadConfDir(s.paths.ResourceServersDir, s.warnf, parseResourceServerFile)
	if err != nil {
		return fmt.Errorf("load resource servers: %w", err)
	}

	universe := buildScopeUniverse(resourceServers)

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.globalMu.Lock()
	s.globals = globals
	s.globalMu.Unlock()

	s.clients = clients
	s.resourceServers = resourceServers
	s.scopeUniverse = universe
	return nil
}

func buildScopeUniverse(resourceServers map[string]ResourceServer) []string {
	ids := make([]string, 0, len(resourceServers))
	for id := range resourceServers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var universe []string
	for _, id := range ids {
		universe = append(universe, resourceServers[id].ExposedScopes()...)
	}
	return universe
}

// GetGlobalSetting returns the current cached value for key, or "" if key
// is unrecognized. Takes only the globals mutex, so it stays cheap even
// while a reload holds loadMu.
func (s *Store) GetGlobalSetting(key string) string {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	return s.globals[key]
}

// ClientExists reports whether id names a loaded client.
func (s *Store) ClientExists(id string) bool {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	_, ok := s.clients[id]
	return ok
}

// GetClient returns the client registered under id.
func (s *Store) GetClient(id string) (OAuthClient, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return OAuthClient{}, fmt.Errorf("settings: unknown client %q", id)
	}
	return c, nil
}

// AllClients returns every loaded client, sorted by ID, for inspection
// tooling (authdctl clients).
func (s *Store) AllClients() []OAuthClient {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	out := make([]OAuthClient, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetAllScopes returns the full scope universe derived from every loaded
// resource server.
func (s *Store) GetAllScopes() []string {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	out := make([]string, len(s.scopeUniverse))
	copy(out, s.scopeUniverse)
	return out
}

// ScopeAllowed reports whether scope is present in the scope universe.
func (s *Store) ScopeAllowed(scope string) bool {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	for _, sc := range s.scopeUniverse {
		if sc == scope {
			return true
		}
	}
	return false
}

// SetGlobalConfig merges newValues over the existing globals, validates the
// combined map in strict mode, and on success rewrites the main config file
// atomically. On validation failure the disk file and in-memory state are
// left untouched and the per-key error map is returned.
func (s *Store) SetGlobalConfig(newValues map[string]string) (bool, ValidationErrors) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	merged := make(map[string]string, len(s.globals)+len(newValues))
	s.globalMu.RLock()
	for k, v := range s.globals {
		merged[k] = v
	}
	s.globalMu.RUnlock()
	for k, v := range newValues {
		merged[k] = v
	}

	validated, verrs := validateGlobals(merged, ModeStrict)
	if verrs != nil {
		return false, verrs
	}

	if err := s.writeMainConfig(validated); err != nil {
		s.logger.Error("failed to persist settings", "err", err)
		return false, ValidationErrors{"*": err.Error()}
	}

	s.globalMu.Lock()
	s.globals = validated
	s.globalMu.Unlock()
	return true, nil
}

// writeMainConfig rewrites the main config file using the write-tmp,
// then-rename pattern, so a crash mid-write never leaves a half-written
// file in place of the previous good one.
func (s *Store) writeMainConfig(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	for _, k := range keys {
		buf = append(buf, fmt.Sprintf("%s = %s\n", k, values[k])...)
	}

	dir := filepath.Dir(s.paths.ConfigFile)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.paths.ConfigFile)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.paths.ConfigFile)
}

// ReloadConfig snapshots the current in-memory state, attempts a full
// reload in lenient mode, and restores the snapshot on any failure — it
// never returns an error to the caller; failures are logged instead.
func (s *Store) ReloadConfig() {
	s.loadMu.Lock()
	snapshotClients := s.clients
	snapshotResourceServers := s.resourceServers
	snapshotUniverse := s.scopeUniverse
	s.globalMu.RLock()
	snapshotGlobals := s.globals
	s.globalMu.RUnlock()
	s.loadMu.Unlock()

	if err := s.load(ModeLenient); err != nil {
		s.logger.Error("config reload failed, keeping previous configuration", "err", err)

		s.loadMu.Lock()
		s.clients = snapshotClients
		s.resourceServers = snapshotResourceServers
		s.scopeUniverse = snapshotUniverse
		s.loadMu.Unlock()

		s.globalMu.Lock()
		s.globals = snapshotGlobals
		s.globalMu.Unlock()
	}
}
