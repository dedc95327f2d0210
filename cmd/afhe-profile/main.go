// Command afhe-profile times afhe operations and writes pprof profiles.
//
//	afhe-profile --backend lattigo --poly-degree 8192 --cpu cpu.prof --mem mem.prof
//	go tool pprof -http=:8080 cpu.prof
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/afhe"
	"github.com/luxfi/afhe/internal/config"
	"github.com/luxfi/afhe/internal/profile"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "afhe-profile",
		Short:         "Profile afhe operations",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.BuildViper(cmd.Flags())
			if err != nil {
				return err
			}
			var cfg Config
			if err := v.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("unmarshal config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			log, err := config.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			_, err = run(cmd.Context(), cfg, log)
			return err
		},
	}
	addFlags(cmd)
	return cmd
}

func run(ctx context.Context, cfg Config, log *zap.Logger) ([]profile.Summary, error) {
	b, params, mode, err := cfg.Context.Resolve()
	if err != nil {
		return nil, err
	}
	fhe, err := afhe.New(b, afhe.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if status := fhe.GenerateParameters(params); status != afhe.StatusValid {
		return nil, &afhe.Error{Kind: afhe.KindParameterValidationFailed, Msg: status}
	}
	if err := fhe.GenerateKeys(); err != nil {
		return nil, err
	}

	p := profile.New(profile.Config{
		CPUProfile:   cfg.CPUProfile,
		MemProfile:   cfg.MemProfile,
		BlockProfile: cfg.BlockProfile,
		MutexProfile: cfg.MutexProfile,
	}, log)
	if err := p.Start(); err != nil {
		return nil, err
	}

	log.Info("profiling",
		zap.Stringer("backend", b),
		zap.Stringer("scheme", params.Scheme),
		zap.Int("poly_degree", params.PolyDegree),
		zap.Int("iterations", cfg.Iterations),
		zap.Int("gomaxprocs", runtime.GOMAXPROCS(0)),
	)

	w := &workload{fhe: fhe, mode: mode}
	summaries, err := w.run(ctx, cfg, log)
	if stopErr := p.Stop(); err == nil {
		err = stopErr
	}
	profile.LogMemStats(log)
	return summaries, err
}

// workload holds the operands shared by the profiled operations.
type workload struct {
	fhe  *afhe.Context
	mode afhe.CompressionMode
	pt   *afhe.Plaintext
	ct   *afhe.Ciphertext
	blob []byte
}

func (w *workload) prepare() error {
	var err error
	if w.fhe.Scheme() == afhe.SchemeCKKS {
		w.pt, err = w.fhe.EncodeDoubleValue(1.5)
	} else {
		w.pt, err = w.fhe.NewPlaintext("3x^1 + 1")
	}
	if err != nil {
		return err
	}
	if w.ct, err = w.fhe.Encrypt(w.pt); err != nil {
		return err
	}
	w.blob, err = afhe.Save(w.ct, w.mode)
	return err
}

func (w *workload) op(name string) (func() error, error) {
	switch name {
	case "keygen":
		return w.fhe.GenerateKeys, nil
	case "encrypt":
		return func() error { _, err := w.fhe.Encrypt(w.pt); return err }, nil
	case "decrypt":
		return func() error { _, err := w.fhe.Decrypt(w.ct); return err }, nil
	case "add":
		return func() error { _, err := w.fhe.Add(w.ct, w.ct); return err }, nil
	case "multiply":
		if w.fhe.RelinKeys() == nil {
			if err := w.fhe.GenerateRelinKeys(); err != nil {
				return nil, err
			}
		}
		return func() error {
			sq, err := w.fhe.Multiply(w.ct, w.ct)
			if err != nil {
				return err
			}
			_, err = w.fhe.Relinearize(sq)
			return err
		}, nil
	case "save":
		return func() error { _, err := afhe.Save(w.ct, w.mode); return err }, nil
	case "load":
		return func() error { _, err := w.fhe.LoadCiphertext(w.blob); return err }, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", name)
	}
}

func (w *workload) run(ctx context.Context, cfg Config, log *zap.Logger) ([]profile.Summary, error) {
	if err := w.prepare(); err != nil {
		return nil, err
	}
	// keygen replaces the key pair, so it runs last.
	ordered := make([]string, 0, len(cfg.Ops))
	for _, name := range cfg.Ops {
		if name != "keygen" {
			ordered = append(ordered, name)
		}
	}
	if len(ordered) < len(cfg.Ops) {
		ordered = append(ordered, "keygen")
	}

	var out []profile.Summary
	for _, name := range ordered {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		fn, err := w.op(name)
		if err != nil {
			log.Warn("operation skipped", zap.String("op", name), zap.Error(err))
			continue
		}
		s, err := profile.Measure(name, cfg.Iterations, fn)
		if err != nil {
			return out, err
		}
		log.Info("timing", s.Fields()...)
		out = append(out, s)
	}
	return out, nil
}
