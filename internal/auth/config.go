package auth

import (
	"os"
	"time"
)

type Config struct {
	Issuer         string
	Audience       string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	SigningKeyFile string
	SecureCookies  bool
	// ReloadPath is where a forced logout sends the browser.
	ReloadPath string
}

// ConfigFromEnv reads AUTH_* variables.
func ConfigFromEnv() Config {
	cfg := Config{
		Issuer:         os.Getenv("AUTH_ISSUER"),
		Audience:       os.Getenv("AUTH_AUDIENCE"),
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     30 * 24 * time.Hour,
		SigningKeyFile: os.Getenv("AUTH_SIGNING_KEY_FILE"),
		SecureCookies:  os.Getenv("AUTH_INSECURE_COOKIES") != "1",
		ReloadPath:     os.Getenv("AUTH_RELOAD_PATH"),
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "http://localhost:8431"
	}
	if cfg.Audience == "" {
		cfg.Audience = "realty-web"
	}
	if cfg.ReloadPath == "" {
		cfg.ReloadPath = "/"
	}
	if v, err := time.ParseDuration(os.Getenv("AUTH_ACCESS_TTL")); err == nil && v > 0 {
		cfg.AccessTTL = v
	}
	if v, err := time.ParseDuration(os.Getenv("AUTH_REFRESH_TTL")); err == nil && v > 0 {
		cfg.RefreshTTL = v
	}
	return cfg
}
