package settings

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// parseKeyValueLines implements the line grammar shared by the main config
// file, client config files, and resource-server config files: '#' starts
// a comment, blank lines are ignored, keys and values are separated by the
// first '=' on the line, and both sides are trimmed of surrounding
// whitespace.
func parseKeyValueLines(r io.Reader) (map[string]string, error) {
	out := map[string]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if key == "" {
			continue
		}
		out[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// loadGlobalsFile parses the main config file, warning on and discarding
// unrecognized keys (load step 1).
func loadGlobalsFile(path string, warn func(string,...any)) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := parseKeyValueLines(f)
	if err != nil {
		return nil, err
	}

	values := map[string]string{}
	for k, v := range raw {
		if !recognizedGlobalKeys[k] {
			warn("ignoring unrecognized setting in config file", "key", k)
			continue
		}
		values[k] = v
	}
	return values, nil
}

// fillDefaults copies any missing recognized key from defaultGlobals into
// values, logging each substitution (load step 2).
func fillDefaults(values map[string]string, warn func(string,...any)) {
	for k, def := range defaultGlobals {
		if _, ok := values[k]; !ok {
			values[k] = def
			warn("using default value for missing setting", "key", k, "value", def)
		}
	}
}

var (
	clientFileRE = regexp.MustCompile(`^[A-Za-z0-9]+\.conf$`)
	clientTmpFileRE = regexp.MustCompile(`^~[A-Za-z0-9]+\.conf$`)
)

// idFromConfFile returns the id implied by a "<id>.conf" style filename.
func idFromConfFile(name string) string {
	return strings.TrimSuffix(name, ".conf")
}

func parseClientFile(path, id string) (OAuthClient, error) {
	f, err := os.Open(path)
	if err != nil {
		return OAuthClient{}, err
	}
	defer f.Close()

	fields, err := parseKeyValueLines(f)
	if err != nil {
		return OAuthClient{}, err
	}

	c := OAuthClient{
		ID: id,
		Label: fields["label"],
		RedirectURI: fields["redirect_uri"],
		GrantTypes: map[string]bool{},
	}
	for _, g := range strings.Split(fields["grant_types"], ";") {
		g = strings.TrimSpace(g)
		if g != "" {
			c.GrantTypes[g] = true
		}
	}
	if err := c.validate(); err != nil {
		return OAuthClient{}, err
	}
	return c, nil
}

func parseResourceServerFile(path, id string) (ResourceServer, error) {
	f, err := os.Open(path)
	if err != nil {
		return ResourceServer{}, err
	}
	defer f.Close()

	fields, err := parseKeyValueLines(f)
	if err != nil {
		return ResourceServer{}, err
	}

	rs := ResourceServer{
		ID: id,
		Label: fields["label"],
	}
	for _, s := range strings.Split(fields["scopes"], ";") {
		s = strings.TrimSpace(s)
		if s != "" {
			rs.Scopes = append(rs.Scopes, s)
		}
	}
	return rs, nil
}

// loadConfDir loads every "<id>.conf" file in dir via parseOne, skipping
// "~<id>.conf" editor temp files and warning about any other name that
// doesn't match either pattern (load steps 4/5).
func loadConfDir[T any](dir string, warn func(string,...any), parseOne func(path, id string) (T, error)) (map[string]T, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]T{}, nil
		}
		return nil, err
	}

	out := map[string]T{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if clientTmpFileRE.MatchString(name) {
			continue
		}
		if !clientFileRE.MatchString(name) {
			warn("ignoring file with unrecognized name in config directory", "dir", dir, "name", name)
			continue
		}
		id := idFromConfFile(name)
		v, err := parseOne(dir+string(os.PathSeparator)+name, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[id] = v
	}
	return out, nil
}
