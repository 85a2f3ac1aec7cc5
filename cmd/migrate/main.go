// migrate manages the vox-chat database schema and default data.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"time"

	"vox-chat/config"
	"vox-chat/internal/repository"
	"vox-chat/pkg/database"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Vox Chat database CLI",
		SilenceUsage:  true,
	}
	root.AddCommand(
		buildUpCmd(),
		buildStatusCmd(),
		buildSeedCmd(),
		buildResetCmd(),
	)
	return root
}

// withDB opens the configured database for the duration of fn.
func withDB(cmd *cobra.Command, fn func(ctx context.Context, db *sql.DB, gw *repository.SQLGateway) error) error {
	cfg := config.LoadConfig()
	db, dialect, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	return fn(ctx, db, repository.NewSQLGateway(db, dialect))
}

func buildUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create missing tables and columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, db *sql.DB, _ *repository.SQLGateway) error {
				if err := database.Migrate(ctx, db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
				return nil
			})
		},
	}
}

func buildStatusCmd() *cobra.Command {
	var logins int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show row counts and recent logins",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, db *sql.DB, gw *repository.SQLGateway) error {
				out := cmd.OutOrStdout()
				counts, err := database.Counts(ctx, db)
				if err != nil {
					return err
				}
				tables := make([]string, 0, len(counts))
				for t := range counts {
					tables = append(tables, t)
				}
				sort.Strings(tables)
				for _, t := range tables {
					fmt.Fprintf(out, "%-12s %d\n", t, counts[t])
				}

				if logins <= 0 {
					return nil
				}
				recent, err := gw.RecentLogins(ctx, logins)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "\nRecent logins:")
				for _, l := range recent {
					fmt.Fprintf(out, "  %s  %-20s %s\n", l.LoginTime.Format(time.RFC3339), l.Username, l.IPAddress)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&logins, "logins", 10, "Number of recent logins to show (0 to skip)")
	return cmd
}

func buildSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert default roles and channels into empty tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, db *sql.DB, gw *repository.SQLGateway) error {
				if err := database.Migrate(ctx, db); err != nil {
					return err
				}
				res, err := database.Seed(ctx, gw)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d roles and %d channels\n", res.Roles, res.Channels)
				return nil
			})
		},
	}
}

func buildResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop all tables, recreate them and seed defaults (DANGEROUS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("reset drops every table; rerun with --force to confirm")
			}
			return withDB(cmd, func(ctx context.Context, db *sql.DB, gw *repository.SQLGateway) error {
				if err := database.Reset(ctx, db); err != nil {
					return err
				}
				if err := database.Migrate(ctx, db); err != nil {
					return err
				}
				if _, err := database.Seed(ctx, gw); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Database reset")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm dropping all data")
	return cmd
}
