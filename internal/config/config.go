// Package config holds the two persistent records hackerrun keeps: the
// per-user global config (which host we manage) and the per-project record
// of the most recent deployment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configDirName  = "hackerrun"
	configFileName = "config.yaml"

	keyServerAddress = "server_address"
	keyCertEmail     = "cert_email"
)

// Store is the global config file, modeled as an explicit object rather than
// ambient global state. Load once, mutate, Save on write.
type Store struct {
	v    *viper.Viper
	path string
}

// Open loads the per-user config file, creating an empty store when the file
// does not exist yet.
func Open() (*Store, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return OpenAt(filepath.Join(base, configDirName, configFileName))
}

// OpenAt loads the config file at an explicit path. Tests use this to point
// the store at a temp directory.
func OpenAt(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}
	return &Store{v: v, path: path}, nil
}

// ServerAddress returns the configured host address, empty when the host was
// never provisioned.
func (s *Store) ServerAddress() string { return s.v.GetString(keyServerAddress) }

func (s *Store) SetServerAddress(addr string) { s.v.Set(keyServerAddress, addr) }

// CertEmail returns the TLS certificate contact address, empty until the
// first deploy collects one.
func (s *Store) CertEmail() string { return s.v.GetString(keyCertEmail) }

func (s *Store) SetCertEmail(email string) { s.v.Set(keyCertEmail, email) }

// Path returns the location of the backing file.
func (s *Store) Path() string { return s.path }

// Save writes the store to disk, creating the config directory if needed.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
