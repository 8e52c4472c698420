package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSettings reads session settings from a YAML file and applies COLLAB_*
// environment overrides. A missing file yields env-only settings.
func LoadSettings(path string) (Settings, error) {
	var s Settings

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}

	ApplyEnv(&s)
	return s, nil
}

// ApplyEnv overrides fields of s from the environment when the variables are set.
func ApplyEnv(s *Settings) {
	if _, ok := os.LookupEnv("COLLAB_ENABLED"); ok {
		s.Enabled = getEnvBool("COLLAB_ENABLED", s.Enabled)
	}
	s.EndpointURL = getEnv("COLLAB_ENDPOINT_URL", s.EndpointURL)
	s.DocumentID = getEnv("COLLAB_DOCUMENT_ID", s.DocumentID)
	s.AuthToken = getEnv("COLLAB_AUTH_TOKEN", s.AuthToken)
	s.UserName = getEnv("COLLAB_USER_NAME", s.UserName)
	if _, ok := os.LookupEnv("COLLAB_AUTO_CONNECT"); ok {
		current := true
		if s.AutoConnect != nil {
			current = *s.AutoConnect
		}
		v := getEnvBool("COLLAB_AUTO_CONNECT", current)
		s.AutoConnect = &v
	}
	s.SaveMode = SaveMode(getEnv("COLLAB_SAVE_MODE", string(s.SaveMode)))
	s.MaxConnectionAttempts = getEnvInt("COLLAB_MAX_CONNECTION_ATTEMPTS", s.MaxConnectionAttempts)
}
