package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/afhe/internal/config"
)

const (
	addrKey            = "addr"
	storageKey         = "storage"
	storageCapacityKey = "storage-capacity-mb"
	relinKeysKey       = "relin-keys"
	galoisKeysKey      = "galois-keys"
)

// Config is the afhe-server configuration.
type Config struct {
	config.Context `mapstructure:",squash"`

	LogLevel          string `mapstructure:"log-level"`
	Addr              string `mapstructure:"addr"`
	Storage           string `mapstructure:"storage"`
	StorageCapacityMB int64  `mapstructure:"storage-capacity-mb"`
	RelinKeys         bool   `mapstructure:"relin-keys"`
	GaloisKeys        bool   `mapstructure:"galois-keys"`
}

func addFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	config.AddFlags(fs)
	fs.String(addrKey, ":8448", "HTTP listen address")
	fs.String(storageKey, "memory", `ciphertext storage: "memory" or a directory`)
	fs.Int64(storageCapacityKey, 1024, "capacity of memory storage in MB")
	fs.Bool(relinKeysKey, false, "generate relinearization keys")
	fs.Bool(galoisKeysKey, false, "generate rotation keys")
}

// Validate checks the configuration.
func (c Config) Validate() error {
	errs := []error{c.Context.Validate()}
	if c.Addr == "" {
		errs = append(errs, fmt.Errorf("%s is required", addrKey))
	}
	if c.Storage == "" {
		errs = append(errs, fmt.Errorf("%s is required", storageKey))
	}
	if c.Storage == "memory" && c.StorageCapacityMB <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", storageCapacityKey))
	}
	return errors.Join(errs...)
}
