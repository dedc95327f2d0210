// Command afhe-exchange runs one side of the host/guest exchange over Redis.
//
//	afhe-exchange host  --session demo --value 100
//	afhe-exchange guest --session demo --add 17
//
// In shared mode the host hands its secret key to the guest and gets the
// guest's result back. In guest-keys mode the guest generates its own keys and
// only the guest can read what the host sends.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/afhe"
	"github.com/luxfi/afhe/exchange"
	"github.com/luxfi/afhe/internal/config"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "afhe-exchange",
		Short:         "Share an afhe context and ciphertexts between two processes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(roleCmd(exchange.RoleHost, "Generate the context and lead the exchange", runHost))
	root.AddCommand(roleCmd(exchange.RoleGuest, "Join an exchange led by a host", runGuest))
	return root
}

type runFunc func(ctx context.Context, cfg Config, fhe *afhe.Context, tr exchange.Transport, log *zap.Logger) error

func roleCmd(role exchange.Role, short string, fn runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   role.String(),
		Short: short,
		Args:  cobra.NoArgs,
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
			return run(cmd.Context(), cfg, role, fn)
		},
	}
	addFlags(cmd)
	return cmd
}

func run(ctx context.Context, cfg Config, role exchange.Role, fn runFunc) error {
	log, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("session", cfg.Session))

	b, _, _, err := cfg.Context.Resolve()
	if err != nil {
		return err
	}
	fhe, err := afhe.New(b, afhe.WithLogger(log))
	if err != nil {
		return err
	}

	tr, err := exchange.NewRedisTransport(exchange.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.TTL,
	}, cfg.Session, role)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer tr.Close()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	return fn(ctx, cfg, fhe, tr, log)
}

func runHost(ctx context.Context, cfg Config, fhe *afhe.Context, tr exchange.Transport, log *zap.Logger) error {
	_, params, mode, err := cfg.Context.Resolve()
	if err != nil {
		return err
	}
	if rt, ok := tr.(*exchange.RedisTransport); ok {
		if err := rt.Purge(ctx); err != nil {
			return fmt.Errorf("purge mailbox: %w", err)
		}
	}

	host := exchange.NewHost(fhe, tr, exchange.WithLogger(log), exchange.WithCompression(mode))
	if err := host.ShareContext(ctx, params); err != nil {
		return err
	}

	switch cfg.Mode {
	case modeShared:
		if err := host.GenerateKeys(); err != nil {
			return err
		}
		if err := host.ShareSecretKey(ctx); err != nil {
			return err
		}
	case modeGuestKeys:
		if err := host.ReceivePublicKey(ctx); err != nil {
			return err
		}
	}

	pt, err := encode(fhe, cfg)
	if err != nil {
		return err
	}
	if err := host.SendPlaintext(ctx, pt); err != nil {
		return err
	}
	log.Info("value sent", zap.String("mode", cfg.Mode))

	if cfg.Mode != modeShared {
		return nil
	}
	ct, err := host.ReceiveCiphertext(ctx)
	if err != nil {
		return err
	}
	return report(fhe, cfg, ct, log)
}

func runGuest(ctx context.Context, cfg Config, fhe *afhe.Context, tr exchange.Transport, log *zap.Logger) error {
	// The host may already have sent its parameters, so the guest inbox is
	// left alone.
	_, _, mode, err := cfg.Context.Resolve()
	if err != nil {
		return err
	}

	guest := exchange.NewGuest(fhe, tr, exchange.WithLogger(log), exchange.WithCompression(mode))
	if err := guest.Join(ctx); err != nil {
		return err
	}

	switch cfg.Mode {
	case modeShared:
		if err := guest.ImportSecretKey(ctx); err != nil {
			return err
		}
	case modeGuestKeys:
		if err := guest.GenerateOwnKeys(); err != nil {
			return err
		}
		if err := guest.SharePublicKey(ctx); err != nil {
			return err
		}
	}

	ct, err := guest.ReceiveCiphertext(ctx)
	if err != nil {
		return err
	}
	if err := report(fhe, cfg, ct, log); err != nil {
		return err
	}
	if cfg.Mode != modeShared || cfg.Add == "" {
		return nil
	}

	pt, err := fhe.NewPlaintext(cfg.Add)
	if err != nil {
		return err
	}
	sum, err := fhe.AddPlain(ct, pt)
	if err != nil {
		return err
	}
	return guest.SendCiphertext(ctx, sum)
}

// encode builds the plaintext the host sends: the polynomial --value for
// bfv/bgv, or --real in every slot for ckks.
func encode(fhe *afhe.Context, cfg Config) (*afhe.Plaintext, error) {
	if fhe.Scheme() == afhe.SchemeCKKS {
		return fhe.EncodeDoubleValue(cfg.Real)
	}
	return fhe.NewPlaintext(cfg.Value)
}

// report decrypts ct and prints it. For ckks the precision against --real is
// logged too.
func report(fhe *afhe.Context, cfg Config, ct *afhe.Ciphertext, log *zap.Logger) error {
	pt, err := fhe.Decrypt(ct)
	if err != nil {
		return err
	}
	if fhe.Scheme() != afhe.SchemeCKKS {
		hex, err := pt.Hex()
		if err != nil {
			return err
		}
		fmt.Println(hex)
		return nil
	}

	got, err := fhe.DecodeDouble(pt)
	if err != nil {
		return err
	}
	want := make([]float64, len(got))
	for i := range want {
		want[i] = cfg.Real
	}
	ps, err := afhe.MeasurePrecision(want, got)
	if err != nil {
		return err
	}
	log.Info("ckks precision",
		zap.Float64("mean_error", ps.Mean),
		zap.Float64("max_error", ps.Max),
		zap.Float64("bits", ps.Bits),
	)
	fmt.Println(got[0])
	return nil
}
