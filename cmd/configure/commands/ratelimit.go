package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/benvon/pasfoto/internal/config"
	"github.com/benvon/pasfoto/internal/ratelimit"
	"github.com/spf13/cobra"
)

const storeTimeout = 5 * time.Second

// windowStore reads and clears durable upload windows
type windowStore interface {
	Inspect(ctx context.Context, key string, now time.Time) (ratelimit.Window, error)
	Reset(ctx context.Context, key string) error
}

// NewRatelimitCmd creates the ratelimit command with status and reset subcommands.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect or reset upload quotas",
		Long:  "Inspect or reset a client's upload window in the durable rate limit store.",
	}
	cmd.AddCommand(newRatelimitStatusCmd())
	cmd.AddCommand(newRatelimitResetCmd())
	return cmd
}

func newRatelimitStatusCmd() *cobra.Command {
	var identifier string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current upload window for a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDurableStore(cmd.Context(), identifier, func(ctx context.Context, store windowStore, key string, policy ratelimit.Policy) error {
				return printStatus(ctx, cmd.OutOrStdout(), store, key, identifier, policy, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&identifier, "identifier", "", "Client address as seen by the server (required)")
	_ = cmd.MarkFlagRequired("identifier")
	return cmd
}

func newRatelimitResetCmd() *cobra.Command {
	var identifier string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the upload window for a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDurableStore(cmd.Context(), identifier, func(ctx context.Context, store windowStore, key string, _ ratelimit.Policy) error {
				if err := store.Reset(ctx, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Upload window for %s cleared.\n", ratelimit.NormalizeIdentifier(identifier))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&identifier, "identifier", "", "Client address as seen by the server (required)")
	_ = cmd.MarkFlagRequired("identifier")
	return cmd
}

// withDurableStore connects to the store configured for the server and
// resolves the key the configured driver uses for identifier.
func withDurableStore(ctx context.Context, identifier string, fn func(context.Context, windowStore, string, ratelimit.Policy) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.RateLimit.DurableConfigured() {
		return fmt.Errorf("durable rate limit store is not configured; in-memory windows live only inside the server process")
	}
	key, err := storeKey(cfg.RateLimit.DurableDriver, identifier)
	if err != nil {
		return err
	}

	client, err := ratelimit.NewRedisClient(cfg.RateLimit.RedisURL, cfg.RateLimit.RedisToken)
	if err != nil {
		return err
	}
	counter := ratelimit.NewRedisCounter(client)
	defer func() { _ = counter.Close() }()

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	policy := ratelimit.Policy{MaxRequests: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window}
	return fn(ctx, counter, key, policy)
}

// storeKey returns the Redis key holding identifier's window under driver
func storeKey(driver, identifier string) (string, error) {
	key := ratelimit.DefaultKeyPrefix + ratelimit.NormalizeIdentifier(identifier)
	switch strings.TrimSpace(driver) {
	case "", ratelimit.DriverScript:
		return key, nil
	case ratelimit.DriverUlule:
		return ratelimit.UluleStoreKey(key), nil
	default:
		return "", fmt.Errorf("unsupported durable driver: %s", driver)
	}
}

func printStatus(ctx context.Context, out io.Writer, store windowStore, key, identifier string, policy ratelimit.Policy, now time.Time) error {
	w, err := store.Inspect(ctx, key, now)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Identifier: %s\n", ratelimit.NormalizeIdentifier(identifier))
	fmt.Fprintf(out, "Key: %s\n", key)
	if w.ResetAt.IsZero() && w.Count == 0 {
		fmt.Fprintf(out, "No active window (%d uploads available)\n", policy.MaxRequests)
		return nil
	}
	count := w.Count
	if count > policy.MaxRequests {
		count = policy.MaxRequests
	}
	fmt.Fprintf(out, "Used: %d/%d\n", count, policy.MaxRequests)
	fmt.Fprintf(out, "Remaining: %d\n", policy.MaxRequests-count)
	if !w.ResetAt.IsZero() {
		fmt.Fprintf(out, "Resets at: %s (in %s)\n", w.ResetAt.UTC().Format(time.RFC3339), w.ResetAt.Sub(now).Round(time.Second))
	}
	return nil
}
