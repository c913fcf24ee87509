package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/guiyumin/clipget/internal/core/crypto"
)

// PassphraseEnv names the variable holding the passphrase for sealed secrets.
const PassphraseEnv = EnvPrefix + "_PASSPHRASE"

var ErrPassphraseRequired = errors.New("config contains encrypted secrets; set " + PassphraseEnv)

// secrets lists the fields that may be stored sealed.
func (c *Config) secrets() map[string]*string {
	return map[string]*string{
		"server.api_key":               &c.Server.APIKey,
		"storage.postgres_dsn":         &c.Storage.PostgresDSN,
		"storage.webdav.password":      &c.Storage.WebDAV.Password,
		"storage.s3.secret_access_key": &c.Storage.S3.SecretAccessKey,
	}
}

// IsSecret reports whether key names a field that may be sealed.
func IsSecret(key string) bool {
	_, ok := (&Config{}).secrets()[key]
	return ok
}

// HasSealedSecrets reports whether any secret field is still encrypted.
func (c *Config) HasSealedSecrets() bool {
	for _, v := range c.secrets() {
		if crypto.IsSealed(*v) {
			return true
		}
	}
	return false
}

// OpenSecrets decrypts every sealed secret in place.
func (c *Config) OpenSecrets(passphrase string) error {
	if !c.HasSealedSecrets() {
		return nil
	}
	if passphrase == "" {
		return ErrPassphraseRequired
	}
	for key, v := range c.secrets() {
		plain, err := crypto.Open(*v, passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*v = plain
	}
	return nil
}

// Passphrase returns the passphrase from the environment, or "".
func Passphrase() string {
	return os.Getenv(PassphraseEnv)
}
