package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"Development defaults", func(c *Config) {}, false},
		{"Missing port", func(c *Config) { c.Port = "" }, true},
		{"Missing redis URL", func(c *Config) { c.RedisURL = "" }, true},
		{"Production with default DB password", func(c *Config) {
			c.Env = "production"
			c.DBSSLMode = "require"
		}, true},
		{"Production with disabled SSL", func(c *Config) {
			c.Env = "production"
			c.DBPassword = "s3cure-enough"
			c.DBSSLMode = "disable"
		}, true},
		{"Production fully configured", func(c *Config) {
			c.Env = "prod"
			c.DBPassword = "s3cure-enough"
			c.DBSSLMode = "verify-full"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				Port:       "8480",
				DBHost:     "localhost",
				DBPort:     "5432",
				DBUser:     "user",
				DBPassword: "password",
				DBName:     "retroboard",
				DBSSLMode:  "disable",
				RedisURL:   "localhost:6379",
				Env:        "development",
			}
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
