package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SecretResolver turns a secret:// reference into its value.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// SecretError wraps a failed lookup of Ref.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve secret %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError lists required secret fields that resolved to empty values.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "config: missing required secrets"
	}
	return fmt.Sprintf("config: missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the field names, sorted.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames hashes each field name so logs do not reveal which credential is absent.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.names))
	for i, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out[i] = hex.EncodeToString(sum[:8])
	}
	sort.Strings(out)
	return out
}

var errNoSecretResolver = errors.New("secret resolver not configured")

// secretFields names every Config field that may hold a secret reference.
func secretFields(cfg *Config) map[string]*string {
	return map[string]*string{
		"Razorpay.KeySecret": &cfg.Razorpay.KeySecret,
		"Redis.Password":     &cfg.Redis.Password,
	}
}

// resolveSecrets replaces references in place and enforces the required list.
func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver, required []string) error {
	fields := secretFields(cfg)
	for _, field := range fields {
		ref, ok := secretRef(*field)
		if !ok {
			continue
		}
		if resolver == nil {
			return &SecretError{Ref: ref, Err: errNoSecretResolver}
		}
		value, err := resolver.ResolveSecret(ctx, ref)
		if err != nil {
			return &SecretError{Ref: ref, Err: err}
		}
		*field = value
	}

	var missing []string
	seen := make(map[string]bool, len(required))
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if field, ok := fields[name]; !ok || strings.TrimSpace(*field) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingSecretsError{names: missing}
	}
	return nil
}

// secretRef reports whether value is a secret reference, normalising sm:// to secret://.
func secretRef(value string) (string, bool) {
	value = strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(value, "secret://"):
		return value, true
	case strings.HasPrefix(value, "sm://"):
		return "secret://" + strings.TrimPrefix(value, "sm://"), true
	}
	return "", false
}
