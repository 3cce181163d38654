package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// envPair is one assignment read from a .env file.
type envPair struct {
	key, value string
}

// LoadDotenv exports the assignments of a .env file that are not already set
// in the environment and returns the keys it applied. A missing file applies
// nothing.
func LoadDotenv(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	pairs, err := parseDotenv(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var applied []string
	for _, p := range pairs {
		if _, exists := os.LookupEnv(p.key); exists {
			continue
		}
		if err := os.Setenv(p.key, p.value); err != nil {
			return applied, fmt.Errorf("set %s: %w", p.key, err)
		}
		applied = append(applied, p.key)
	}
	return applied, nil
}

// parseDotenv reads KEY=value lines. Blank lines, comments and lines without
// '=' are skipped; an optional `export ` prefix is accepted. Unquoted values
// lose a trailing ` # comment`.
func parseDotenv(r io.Reader) ([]envPair, error) {
	var pairs []envPair
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		pairs = append(pairs, envPair{key: key, value: dotenvValue(strings.TrimSpace(value))})
	}
	return pairs, scanner.Err()
}

// dotenvValue strips matching surrounding quotes, or an inline comment from an
// unquoted value.
func dotenvValue(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	if i := strings.Index(s, " #"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
