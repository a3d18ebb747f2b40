package config

import (
	"strings"
	"time"
)

const (
	minAPITimeout = time.Second
	maxAPITimeout = 2 * time.Minute
)

// APIConfig configures the client for the platform's REST backend.
type APIConfig struct {
	BaseURL   string        `env:"BASE_URL"   envDefault:"http://localhost:5000/api"`
	Timeout   time.Duration `env:"TIMEOUT"    envDefault:"15s"`
	UserAgent string        `env:"USER_AGENT" envDefault:"soft-animal-client/1.0"`

	// PhoneRegion is the default region for phone numbers without a country code.
	PhoneRegion string `env:"PHONE_REGION" envDefault:"UA"`

	// JMESPath expressions locating values in backend responses.
	LoginUserPath     string `env:"LOGIN_USER_PATH"     envDefault:"user"`
	LoginTokenPath    string `env:"LOGIN_TOKEN_PATH"    envDefault:"token"`
	RegisterUserPath  string `env:"REGISTER_USER_PATH"  envDefault:"user"`
	RegisterTokenPath string `env:"REGISTER_TOKEN_PATH" envDefault:"token"`
	ProfileUserPath   string `env:"PROFILE_USER_PATH"   envDefault:"data"`
	ErrorMessagePath  string `env:"ERROR_MESSAGE_PATH"  envDefault:"message"`
}

// Sanitize trims values and clamps the timeout.
func (c *APIConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.UserAgent = strings.TrimSpace(c.UserAgent)
	c.PhoneRegion = strings.ToUpper(strings.TrimSpace(c.PhoneRegion))

	if c.Timeout < minAPITimeout {
		c.Timeout = minAPITimeout
	}
	if c.Timeout > maxAPITimeout {
		c.Timeout = maxAPITimeout
	}

	for _, p := range []*string{
		&c.LoginUserPath, &c.LoginTokenPath,
		&c.RegisterUserPath, &c.RegisterTokenPath,
		&c.ProfileUserPath, &c.ErrorMessagePath,
	} {
		*p = strings.TrimSpace(*p)
	}
}
