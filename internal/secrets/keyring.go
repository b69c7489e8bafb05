// Package secrets keeps provider API keys in the system keyring.
package secrets

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"
)

const serviceName = "alita"

// ErrNotFound is returned when no key is stored for a provider.
var ErrNotFound = errors.New("secret not found")

// KeyName is the keyring entry for provider's API key, e.g. DEEPSEEK_API_KEY.
func KeyName(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

// GetAPIKey reads the stored key for provider.
func GetAPIKey(provider string) (string, error) {
	name := KeyName(provider)
	secret, err := keyring.Get(serviceName, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", errors.Wrapf(err, "read secret %q", name)
	}
	return secret, nil
}

// SetAPIKey stores key for provider, replacing any previous one.
func SetAPIKey(provider, key string) error {
	name := KeyName(provider)
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return errors.Errorf("secret %q cannot be empty", name)
	}
	if err := keyring.Set(serviceName, name, trimmed); err != nil {
		return errors.Wrapf(err, "store secret %q", name)
	}
	return nil
}

// DeleteAPIKey removes the stored key for provider.
func DeleteAPIKey(provider string) error {
	name := KeyName(provider)
	if err := keyring.Delete(serviceName, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrapf(err, "delete secret %q", name)
	}
	return nil
}
