// Command migrate применяет встроенные SQL-миграции к PostgreSQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "SHOP_POSTGRES_DSN"
)

// migrator — операции хранилища, которые нужны CLI.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.MigrationState, error)
	Close() error
}

type openFunc func(ctx context.Context, dsn string) (migrator, error)

func openPostgres(ctx context.Context, dsn string) (migrator, error) {
	return postgres.Open(ctx, dsn)
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(openPostgres, os.Getenv).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open openFunc, getenv func(string) string) *cobra.Command {
	var (
		dsn     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the shop PostgreSQL schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "overall timeout")

	// withStore открывает хранилище с учётом --dsn и таймаута.
	withStore := func(cmd *cobra.Command, fn func(ctx context.Context, store migrator) error) error {
		resolved := strings.TrimSpace(dsn)
		if resolved == "" {
			resolved = strings.TrimSpace(getenv(envPostgresDSN))
		}
		if resolved == "" {
			return errors.New(envPostgresDSN + " (or --dsn) is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		store, err := open(ctx, resolved)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		defer store.Close()

		return fn(ctx, store)
	}

	cmd.AddCommand(newUpCmd(withStore), newDownCmd(withStore), newStatusCmd(withStore))
	return cmd
}

type storeRunner func(cmd *cobra.Command, fn func(ctx context.Context, store migrator) error) error

func newUpCmd(withStore storeRunner) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations (all by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 0 {
				return errors.New("--steps must be >= 0")
			}
			return withStore(cmd, func(ctx context.Context, store migrator) error {
				if err := store.MigrateUp(ctx, steps); err != nil {
					return fmt.Errorf("migrate up failed: %w", err)
				}
				return printState(ctx, cmd.OutOrStdout(), store, "migrate up ok")
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply (0 = all)")
	return cmd
}

func newDownCmd(withStore storeRunner) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations (one by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				return errors.New("--steps must be > 0")
			}
			return withStore(cmd, func(ctx context.Context, store migrator) error {
				if err := store.MigrateDown(ctx, steps); err != nil {
					return fmt.Errorf("migrate down failed: %w", err)
				}
				return printState(ctx, cmd.OutOrStdout(), store, "migrate down ok")
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newStatusCmd(withStore storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the applied version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store migrator) error {
				return printState(ctx, cmd.OutOrStdout(), store, "migration status")
			})
		},
	}
}

func printState(ctx context.Context, w io.Writer, store migrator, prefix string) error {
	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}

	_, _ = fmt.Fprintf(w, "%s: version=%d applied=%d pending=%d\n", prefix, state.Version, state.Applied, len(state.Pending))
	for _, m := range state.Pending {
		_, _ = fmt.Fprintf(w, "  pending %04d %s\n", m.Version, m.Name)
	}
	for _, m := range state.Modified {
		_, _ = fmt.Fprintf(w, "  modified %04d %s (file changed after apply)\n", m.Version, m.Name)
	}
	return nil
}
