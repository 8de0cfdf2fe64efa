// Package config persists user settings in ~/.riodl.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// DefaultFile returns the default settings file path.
func DefaultFile() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("cannot locate home directory: %w", err)
	}
	return filepath.Join(home, ".riodl.yaml"), nil
}

// Store reads and writes settings through a dedicated viper instance.
type Store struct {
	v    *viper.Viper
	path string
}

// Load opens the settings file at path, creating the Store even when
// the file does not exist yet.  Environment variables prefixed with
// RIODL_ override file values.
func Load(path string) (*Store, error) {
	if path == "" {
		var err error
		path, err = DefaultFile()
		if err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("riodl")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read settings: %w", err)
			}
		}
	}
	return &Store{v: v, path: path}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// All returns every stored setting.
func (s *Store) All() map[string]interface{} {
	return s.v.AllSettings()
}

// GetString returns a string setting, or fallback when unset or empty.
func (s *Store) GetString(key, fallback string) string {
	if value := s.v.GetString(key); value != "" {
		return value
	}
	return fallback
}

// Set updates one setting and writes the file.
func (s *Store) Set(key string, value interface{}) error {
	s.v.Set(key, value)
	return s.write()
}

// Update applies several settings at once and writes the file.
func (s *Store) Update(values map[string]interface{}) error {
	for key, value := range values {
		s.v.Set(key, value)
	}
	return s.write()
}

func (s *Store) write() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	if err := s.v.WriteConfig(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
