package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/luxfi/afhe/internal/config"
)

var operations = []string{"keygen", "encrypt", "decrypt", "add", "multiply", "save", "load"}

// Config is the afhe-profile configuration.
type Config struct {
	config.Context `mapstructure:",squash"`

	LogLevel     string   `mapstructure:"log-level"`
	CPUProfile   string   `mapstructure:"cpu"`
	MemProfile   string   `mapstructure:"mem"`
	BlockProfile string   `mapstructure:"block"`
	MutexProfile string   `mapstructure:"mutex"`
	Iterations   int      `mapstructure:"iterations"`
	Ops          []string `mapstructure:"op"`
}

func addFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	config.AddFlags(fs)
	fs.String("cpu", "", "write a cpu profile to this file")
	fs.String("mem", "", "write a heap profile to this file")
	fs.String("block", "", "write a block profile to this file")
	fs.String("mutex", "", "write a mutex profile to this file")
	fs.Int("iterations", 20, "iterations per operation")
	fs.StringSlice("op", operations, "operations to profile")
}

// Validate checks the configuration.
func (c Config) Validate() error {
	errs := []error{c.Context.Validate()}
	if c.Iterations < 1 {
		errs = append(errs, errors.New("iterations must be positive"))
	}
	if len(c.Ops) == 0 {
		errs = append(errs, errors.New("op needs at least one operation"))
	}
	for _, op := range c.Ops {
		if !slices.Contains(operations, op) {
			errs = append(errs, fmt.Errorf("unknown operation %q", op))
		}
	}
	return errors.Join(errs...)
}
