package commands

import (
	"errors"
	"time"

	libtelemetry "cei-crawler/lib/telemetry"
)

type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	BaseUrl  string `json:"base_url"`
	// PoolSize caps concurrent connections to the portal.
	PoolSize          int     `json:"pool_size"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
	// TwoCaptchaKey enables solving the login reCAPTCHA through 2captcha.
	TwoCaptchaKey string              `json:"two_captcha_key"`
	Telemetry     libtelemetry.Config `json:"telemetry"`
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Config) Validate() error {
	if c.Username == "" {
		return errors.New("config: username is required")
	}
	if c.Password == "" {
		return errors.New("config: password is required")
	}
	if c.PoolSize < 0 || c.TimeoutSeconds < 0 || c.RequestsPerSecond < 0 {
		return errors.New("config: pool_size, timeout_seconds and requests_per_second cannot be negative")
	}
	return nil
}
