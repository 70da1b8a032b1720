package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// Option customises Load and EnvironmentValues.
type Option func(*loadOptions)

type loadOptions struct {
	envFile         string
	envMap          map[string]string
	systemEnv       bool
	resolver        SecretResolver
	requiredSecrets []string
}

// WithEnvFile points at a dotenv file; "" disables dotenv loading. Defaults to ".env".
func WithEnvFile(path string) Option {
	return func(o *loadOptions) { o.envFile = path }
}

// WithEnvMap injects values that win over both the process environment and dotenv.
func WithEnvMap(values map[string]string) Option {
	return func(o *loadOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment. Tests use it to stay hermetic.
func WithoutSystemEnv() Option {
	return func(o *loadOptions) { o.systemEnv = false }
}

// WithSecretResolver resolves sm:// and secret:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loadOptions) { o.resolver = resolver }
}

// WithRequiredSecrets lists secret fields, e.g. "Razorpay.KeySecret", that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loadOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

func applyOptions(opts []Option) loadOptions {
	o := loadOptions{envFile: defaultEnvFile, systemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// source layers explicit values over the process environment over dotenv.
type source struct {
	explicit  map[string]string
	systemEnv bool
	dotenv    map[string]string
}

func newSource(o loadOptions) (source, error) {
	dotenv, err := readDotEnv(o.envFile)
	if err != nil {
		return source{}, err
	}
	return source{explicit: o.envMap, systemEnv: o.systemEnv, dotenv: dotenv}, nil
}

func (s source) lookup(key string) (string, bool) {
	if v, ok := s.explicit[key]; ok {
		return v, true
	}
	if s.systemEnv {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
	}
	v, ok := s.dotenv[key]
	return v, ok
}

func (s source) str(key, fallback string) string {
	if v, ok := s.lookup(key); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return fallback
}

func (s source) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s.str(key, "")); err == nil {
		return d
	}
	return fallback
}

func (s source) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(s.str(key, "")); err == nil {
		return n
	}
	return fallback
}

// list splits a comma separated value, dropping blanks.
func (s source) list(key string) []string {
	var out []string
	for _, part := range strings.Split(s.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// all flattens the layers with the same precedence as lookup.
func (s source) all() map[string]string {
	values := make(map[string]string, len(s.dotenv)+len(s.explicit))
	for k, v := range s.dotenv {
		values[k] = v
	}
	if s.systemEnv {
		for _, entry := range os.Environ() {
			if k, v, ok := strings.Cut(entry, "="); ok && strings.TrimSpace(k) != "" {
				values[strings.TrimSpace(k)] = v
			}
		}
	}
	for k, v := range s.explicit {
		values[k] = v
	}
	return values
}

// EnvironmentValues returns the merged environment Load would see. main reads build metadata and
// secret fetcher settings from it before config is loaded.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	src, err := newSource(applyOptions(opts))
	if err != nil {
		return nil, err
	}
	return src.all(), nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}
