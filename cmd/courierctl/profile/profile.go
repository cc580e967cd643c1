// Package profile stores courierctl connection settings in a YAML file.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

const DefaultServer = "http://localhost:8080"

type Profile struct {
	Server string `yaml:"server" json:"server"`
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	UserID string `yaml:"user_id,omitempty" json:"user_id,omitempty"`
	Token  string `yaml:"token,omitempty" json:"token,omitempty"`
}

// DefaultPath is $HOME/.courierctl.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".courierctl.yaml"
	}
	return filepath.Join(home, ".courierctl.yaml")
}

// Load reads path; a missing file yields an empty profile.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return &p, nil
}

func Save(p *Profile, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from COURIER_SERVER, COURIER_API_KEY,
// COURIER_USER_ID and COURIER_TOKEN when set.
func (p *Profile) ApplyEnv() {
	for env, dst := range map[string]*string{
		"COURIER_SERVER":  &p.Server,
		"COURIER_API_KEY": &p.APIKey,
		"COURIER_USER_ID": &p.UserID,
		"COURIER_TOKEN":   &p.Token,
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
}

// ServerURL returns the base URL without a trailing slash.
func (p *Profile) ServerURL() string {
	s := strings.TrimRight(strings.TrimSpace(p.Server), "/")
	if s == "" {
		return DefaultServer
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	return s
}

// WebSocketURL maps the server URL onto the /ws endpoint.
func (p *Profile) WebSocketURL() string {
	s := p.ServerURL()
	switch {
	case strings.HasPrefix(s, "https://"):
		s = "wss://" + strings.TrimPrefix(s, "https://")
	case strings.HasPrefix(s, "http://"):
		s = "ws://" + strings.TrimPrefix(s, "http://")
	}
	return s + "/ws"
}
