package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvTokenTTLMinutes overrides the lifetime of minted service tokens.
const EnvTokenTTLMinutes = "QUICK_RESUME_TOKEN_TTL_MINUTES"

// DefaultTokenTTLMinutes is long enough for one generation round trip.
const DefaultTokenTTLMinutes = 10

// ServiceAuth holds the shared secret used to sign and verify service tokens.
type ServiceAuth struct {
	Secret     string
	TTLMinutes int
}

// NewServiceAuth creates the service auth configuration for secret.
// The token lifetime comes from QUICK_RESUME_TOKEN_TTL_MINUTES (default: 10).
func NewServiceAuth(secret string) (*ServiceAuth, error) {
	ttlStr := os.Getenv(EnvTokenTTLMinutes)
	if ttlStr == "" {
		ttlStr = strconv.Itoa(DefaultTokenTTLMinutes)
	}

	ttl, err := strconv.Atoi(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", EnvTokenTTLMinutes, err)
	}

	auth := &ServiceAuth{
		Secret:     secret,
		TTLMinutes: ttl,
	}

	if err := auth.normalize(); err != nil {
		return nil, err
	}

	return auth, nil
}

// normalize validates the configuration.
func (a *ServiceAuth) normalize() error {
	if a.Secret == "" {
		return fmt.Errorf("service token secret is required (set %s or service_token)", EnvServiceToken)
	}
	if a.TTLMinutes < 1 {
		return fmt.Errorf("%s must be at least 1 minute, got: %d", EnvTokenTTLMinutes, a.TTLMinutes)
	}
	return nil
}
