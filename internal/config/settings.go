package config

import (
	"strings"
	"sync"
)

// SaveMode tells the endpoint when to persist the document.
type SaveMode string

// Save modes understood by the endpoint.
const (
	SaveModeManual SaveMode = "manual"
	SaveModeAuto   SaveMode = "auto"
)

// Defaults applied when host settings leave a field empty.
const (
	DefaultUserName              = "Anonymous"
	DefaultSaveMode              = SaveModeManual
	DefaultMaxConnectionAttempts = 5
)

// Settings is the plain settings object a host supplies. Zero values mean
// "not set" and fall back to defaults during resolution.
type Settings struct {
	Enabled               bool     `yaml:"enabled" json:"enabled"`
	EndpointURL           string   `yaml:"endpoint_url" json:"endpoint_url"`
	DocumentID            string   `yaml:"document_id" json:"document_id"`
	AuthToken             string   `yaml:"auth_token" json:"auth_token,omitempty"`
	UserName              string   `yaml:"user_name" json:"user_name"`
	AutoConnect           *bool    `yaml:"auto_connect" json:"auto_connect,omitempty"`
	SaveMode              SaveMode `yaml:"save_mode" json:"save_mode"`
	MaxConnectionAttempts int      `yaml:"max_connection_attempts" json:"max_connection_attempts"`
}

// SessionConfig is the immutable snapshot a session is built from.
type SessionConfig struct {
	Enabled               bool
	EndpointURL           string
	DocumentID            string
	AuthToken             string
	UserName              string
	AutoConnect           bool
	SaveMode              SaveMode
	MaxConnectionAttempts int
}

// Resolve derives a SessionConfig from host settings. It has no side effects.
func Resolve(s Settings) SessionConfig {
	cfg := SessionConfig{
		Enabled:               s.Enabled,
		EndpointURL:           strings.TrimSpace(s.EndpointURL),
		DocumentID:            strings.TrimSpace(s.DocumentID),
		AuthToken:             s.AuthToken,
		UserName:              s.UserName,
		AutoConnect:           true,
		SaveMode:              s.SaveMode,
		MaxConnectionAttempts: s.MaxConnectionAttempts,
	}
	if cfg.UserName == "" {
		cfg.UserName = DefaultUserName
	}
	if s.AutoConnect != nil {
		cfg.AutoConnect = *s.AutoConnect
	}
	if cfg.SaveMode == "" {
		cfg.SaveMode = DefaultSaveMode
	}
	if cfg.MaxConnectionAttempts < 1 {
		cfg.MaxConnectionAttempts = DefaultMaxConnectionAttempts
	}
	return cfg
}

// Eligible reports whether a session may be started from this config.
func (c SessionConfig) Eligible() bool {
	return c.Enabled && c.DocumentID != "" && c.EndpointURL != ""
}

// NormalizedEndpoint returns the endpoint URL without trailing slashes.
func (c SessionConfig) NormalizedEndpoint() string {
	return strings.TrimRight(c.EndpointURL, "/")
}

// HasToken reports whether an auth token was supplied.
func (c SessionConfig) HasToken() bool {
	return c.AuthToken != ""
}

// Resolver memoizes Resolve on the last input it saw.
type Resolver struct {
	mu   sync.Mutex
	ok   bool
	last Settings
	auto *bool
	out  SessionConfig
}

// Resolve returns the cached config when s equals the previous input.
func (r *Resolver) Resolve(s Settings) SessionConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ok && sameSettings(r.last, r.auto, s) {
		return r.out
	}
	r.last = s
	r.auto = nil
	if s.AutoConnect != nil {
		v := *s.AutoConnect
		r.auto = &v
	}
	r.last.AutoConnect = nil
	r.out = Resolve(s)
	r.ok = true
	return r.out
}

func sameSettings(last Settings, lastAuto *bool, s Settings) bool {
	auto := s.AutoConnect
	s.AutoConnect = nil
	if last != s {
		return false
	}
	if lastAuto == nil || auto == nil {
		return lastAuto == nil && auto == nil
	}
	return *lastAuto == *auto
}
