package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Credentials struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
}

func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.SecretKey != ""
}

// LoadCredentials reads an api_key/secret_key YAML file. With private set the
// file must not be readable or writable by group or others.
func LoadCredentials(path string, private bool) (Credentials, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Credentials{}, err
	}
	if private && info.Mode().Perm() != 0o600 {
		return Credentials{}, fmt.Errorf("credential file %s must have mode 0600, has %#o", path, info.Mode().Perm())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, err
	}
	var creds Credentials
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&creds); err != nil {
		return Credentials{}, fmt.Errorf("credential file %s: %w", path, err)
	}
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	creds.SecretKey = strings.TrimSpace(creds.SecretKey)
	if !creds.Complete() {
		return Credentials{}, fmt.Errorf("credential file %s: api_key/secret_key required", path)
	}
	return creds, nil
}
