package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissingSecret is returned when no provider has a value for a key.
var ErrMissingSecret = errors.New("secret not found")

// SecretProvider looks up a secret by key. A provider that has no value for
// the key returns ok=false and a nil error.
type SecretProvider interface {
	Name() string
	Lookup(key string) (value string, ok bool, err error)
}

// SecretResolver consults its providers in order and returns the first
// non-blank value.
type SecretResolver struct {
	providers []SecretProvider
}

// NewSecretResolver creates a resolver over providers, highest priority first.
func NewSecretResolver(providers ...SecretProvider) *SecretResolver {
	return &SecretResolver{providers: providers}
}

// Resolve returns the secret for key or an error wrapping ErrMissingSecret
// that names every provider consulted.
func (r *SecretResolver) Resolve(key string) (Secret, error) {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
		v, ok, err := p.Lookup(key)
		if err != nil {
			return "", fmt.Errorf("secret provider %s: %w", p.Name(), err)
		}
		if ok && strings.TrimSpace(v) != "" {
			return Secret(strings.TrimSpace(v)), nil
		}
	}
	return "", fmt.Errorf("%w: %s (checked %s)", ErrMissingSecret, key, strings.Join(names, ", "))
}

// EnvProvider reads secrets from the process environment.
type EnvProvider struct{}

func (EnvProvider) Name() string { return "environment" }

func (EnvProvider) Lookup(key string) (string, bool, error) {
	v, ok := os.LookupEnv(key)
	return v, ok, nil
}

// DotenvProvider reads secrets from a .env file. A missing file is not an error.
type DotenvProvider struct {
	Path string
}

func (p DotenvProvider) Name() string { return "dotenv:" + p.Path }

func (p DotenvProvider) Lookup(key string) (string, bool, error) {
	if p.Path == "" {
		return "", false, nil
	}
	values, err := godotenv.Read(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", p.Path, err)
	}
	v, ok := values[key]
	return v, ok, nil
}

// StaticProvider serves secrets already present in the loaded configuration.
type StaticProvider struct {
	Label  string
	Values map[string]Secret
}

func (p StaticProvider) Name() string {
	if p.Label == "" {
		return "config"
	}
	return p.Label
}

func (p StaticProvider) Lookup(key string) (string, bool, error) {
	v, ok := p.Values[key]
	return v.Value(), ok, nil
}

// LLMSecretResolver returns the resolver used for the generation API key:
// environment, then the configured .env file, then llm.api_key.
func (c *Config) LLMSecretResolver() *SecretResolver {
	return NewSecretResolver(
		EnvProvider{},
		DotenvProvider{Path: c.LLM.DotenvPath},
		StaticProvider{Label: "config llm.api_key", Values: map[string]Secret{c.LLM.APIKeyEnv: c.LLM.APIKey}},
	)
}
