package secrets

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
)

type parsedReference struct {
	Canonical string
	Secret    string
	Version   string
	Project   string
}

func (r parsedReference) versionOrLatest() string {
	if r.Version == "" {
		return "latest"
	}
	return r.Version
}

func (r parsedReference) key() string {
	return r.Canonical + "#" + r.versionOrLatest()
}

func parseReference(ref string) (parsedReference, error) {
	ref = strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(ref, "sm://"); ok {
		ref = "secret://" + rest
	}
	if ref == "" {
		return parsedReference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return parsedReference{}, fmt.Errorf("secrets: invalid reference: %w", err)
	}
	if u.Scheme != "secret" {
		return parsedReference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(u.Host+u.Path, "/")
	if secret == "" {
		return parsedReference{}, errors.New("secrets: missing secret name")
	}
	query := u.Query()
	return parsedReference{
		Canonical: "secret://" + secret,
		Secret:    secret,
		Version:   strings.TrimSpace(query.Get("version")),
		Project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func maskReference(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:8])
}

// fallbackFile reads "secret://name[?version=N]=value" lines once.
type fallbackFile struct {
	path   string
	once   sync.Once
	values map[string]string
	err    error
}

func (f *fallbackFile) lookup(ref parsedReference) (string, bool, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return "", false, f.err
	}
	if value, ok := f.values[ref.key()]; ok {
		return value, true, nil
	}
	value, ok := f.values[ref.Canonical]
	return value, ok, nil
}

func (f *fallbackFile) load() {
	f.values = map[string]string{}
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		f.err = fmt.Errorf("secrets: open fallback file: %w", err)
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		if strings.Contains(line[:idx], "?") {
			// secret://name?version=3=value
			next := strings.Index(line[idx+1:], "=")
			if next < 0 {
				continue
			}
			idx += next + 1
		}
		parsed, err := parseReference(strings.TrimSpace(line[:idx]))
		if err != nil {
			continue
		}
		value := strings.TrimSpace(line[idx+1:])
		if parsed.Version == "" {
			f.values[parsed.Canonical] = value
		}
		f.values[parsed.key()] = value
	}
	if err := scanner.Err(); err != nil {
		f.err = fmt.Errorf("secrets: read fallback file: %w", err)
	}
}
