package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/afhe/internal/config"
)

const (
	modeShared    = "shared"
	modeGuestKeys = "guest-keys"
)

// Config is the afhe-exchange configuration.
type Config struct {
	config.Context `mapstructure:",squash"`

	LogLevel      string        `mapstructure:"log-level"`
	RedisAddr     string        `mapstructure:"redis"`
	RedisPassword string        `mapstructure:"redis-password"`
	RedisDB       int           `mapstructure:"redis-db"`
	Session       string        `mapstructure:"session"`
	TTL           time.Duration `mapstructure:"ttl"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Mode          string        `mapstructure:"mode"`
	Value         string        `mapstructure:"value"`
	Real          float64       `mapstructure:"real"`
	Add           string        `mapstructure:"add"`
}

func addFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	config.AddFlags(fs)
	fs.String("redis", "localhost:6379", "Redis address")
	fs.String("redis-password", "", "Redis password")
	fs.Int("redis-db", 0, "Redis database number")
	fs.String("session", "", "exchange session name, shared by host and guest")
	fs.Duration("ttl", time.Hour, "lifetime of undelivered messages")
	fs.Duration("timeout", 5*time.Minute, "give up after this long, 0 waits forever")
	fs.String("mode", modeShared, `key mode: "shared" or "guest-keys"`)
	fs.String("value", "1", "hexadecimal polynomial the host sends (bfv/bgv)")
	fs.Float64("real", 1, "value the host sends in every slot (ckks)")
	fs.String("add", "", "hexadecimal polynomial the guest adds before replying (shared mode)")
}

// Validate checks the configuration.
func (c Config) Validate() error {
	errs := []error{c.Context.Validate()}
	if c.RedisAddr == "" {
		errs = append(errs, errors.New("redis is required"))
	}
	if c.Session == "" {
		errs = append(errs, errors.New("session is required"))
	}
	if c.Mode != modeShared && c.Mode != modeGuestKeys {
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	return errors.Join(errs...)
}
