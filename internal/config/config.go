// Package config builds command configuration from flags, environment
// variables and an optional config file.
//
// Precedence, highest first: flags, AFHE_* environment variables, the file
// named by --config (JSON or YAML), defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/luxfi/afhe"
)

// Keys shared by every command.
const (
	ConfigFileKey    = "config"
	LogLevelKey      = "log-level"
	BackendKey       = "backend"
	SchemeKey        = "scheme"
	PolyDegreeKey    = "poly-degree"
	PlainModulusKey  = "plain-modulus"
	PlainBitsKey     = "plain-bits"
	SecurityLevelKey = "security-level"
	CoeffBitSizesKey = "coeff-bit-sizes"
	LogScaleKey      = "log-scale"
	CompressionKey   = "compression"
)

const envPrefix = "AFHE"

// Context describes the afhe context a command works with.
type Context struct {
	Backend       string `mapstructure:"backend"`
	Scheme        string `mapstructure:"scheme"`
	PolyDegree    int    `mapstructure:"poly-degree"`
	PlainModulus  uint64 `mapstructure:"plain-modulus"`
	PlainBits     int    `mapstructure:"plain-bits"`
	SecurityLevel int    `mapstructure:"security-level"`
	CoeffBitSizes []int  `mapstructure:"coeff-bit-sizes"`
	LogScale      int    `mapstructure:"log-scale"`
	Compression   string `mapstructure:"compression"`
}

// AddFlags registers the shared flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "path to a JSON or YAML config file")
	fs.String(LogLevelKey, "info", "log level: debug, info, warn or error")
	fs.String(BackendKey, afhe.DefaultBackend.String(), "backend: lattigo or lux")
	fs.String(SchemeKey, "bfv", "scheme: bfv, bgv or ckks")
	fs.Int(PolyDegreeKey, 4096, "polynomial modulus degree")
	fs.Uint64(PlainModulusKey, 0, "plaintext modulus (bfv/bgv, exclusive with plain-bits)")
	fs.Int(PlainBitsKey, 20, "plaintext modulus bits, enables batching (bfv/bgv)")
	fs.Int(SecurityLevelKey, 128, "security level: 128, 192 or 256")
	fs.IntSlice(CoeffBitSizesKey, nil, "coefficient modulus bit sizes")
	fs.Int(LogScaleKey, 40, "log2 of the ckks encoding scale")
	fs.String(CompressionKey, "zstd", "compression: none, zlib or zstd")
}

// BuildViper binds fs and the environment, and reads the config file when one
// is named.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if filename := v.GetString(ConfigFileKey); filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

// Validate checks the selectors. The parameters themselves are validated by
// the context.
func (c Context) Validate() error {
	var errs []error
	if _, err := afhe.ParseBackend(c.Backend); err != nil {
		errs = append(errs, err)
	}
	if _, err := afhe.ParseScheme(c.Scheme); err != nil {
		errs = append(errs, err)
	}
	if _, err := afhe.ParseCompressionMode(c.Compression); err != nil {
		errs = append(errs, err)
	}
	if c.PolyDegree <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", PolyDegreeKey))
	}
	return errors.Join(errs...)
}

// Resolve converts c into facade values. The plaintext flags are exclusive:
// a plain modulus switches batching off, and ckks ignores both.
func (c Context) Resolve() (afhe.Backend, afhe.Parameters, afhe.CompressionMode, error) {
	if err := c.Validate(); err != nil {
		return 0, afhe.Parameters{}, 0, err
	}
	b, _ := afhe.ParseBackend(c.Backend)
	s, _ := afhe.ParseScheme(c.Scheme)
	m, _ := afhe.ParseCompressionMode(c.Compression)

	p := afhe.Parameters{
		Scheme:        s,
		PolyDegree:    c.PolyDegree,
		SecurityLevel: c.SecurityLevel,
	}
	if len(c.CoeffBitSizes) > 0 {
		p.CoeffBitSizes = c.CoeffBitSizes
	}
	switch {
	case s == afhe.SchemeCKKS:
		p.LogScale = c.LogScale
	case c.PlainModulus != 0:
		p.PlainModulus = c.PlainModulus
	default:
		p.PlainBits = c.PlainBits
	}
	return b, p, m, nil
}

// NewLogger returns a production logger at level, or a development logger for
// "debug".
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", LogLevelKey, err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
