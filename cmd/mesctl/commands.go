package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-mes/internal/app"
	"github.com/odyssey-erp/odyssey-mes/internal/auth"
	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/rbac"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/statuses"
	"github.com/odyssey-erp/odyssey-mes/jobs"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mesctl",
		Short:         "Operations tooling for the odyssey MES",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(orgCmd(), apiKeyCmd(), jobsCmd())
	return root
}

func withPool(ctx context.Context, fn func(*pgxpool.Pool) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(pool)
}

func parseUUIDFlag(cmd *cobra.Command, name string) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString(name)
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s must be a uuid: %w", name, err)
	}
	return id, nil
}

func orgCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "org", Short: "Tenant provisioning"}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Register an organisation and seed its default statuses and admin role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			orgID, err := parseUUIDFlag(cmd, "org")
			if err != nil {
				return err
			}
			adminRaw, _ := cmd.Flags().GetString("admin")
			var admin uuid.UUID
			if adminRaw != "" {
				if admin, err = parseUUIDFlag(cmd, "admin"); err != nil {
					return err
				}
			}
			name, _ := cmd.Flags().GetString("name")
			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				if _, err := pool.Exec(cmd.Context(), `INSERT INTO organizations (id, name) VALUES ($1, $2)
					ON CONFLICT (id) DO NOTHING`, orgID, name); err != nil {
					return fmt.Errorf("create organization: %w", err)
				}
				svc := statuses.NewService(statuses.NewRepository(pool), statuses.NewEngine(nil), nil)
				if err := svc.Seed(cmd.Context(), orgID); err != nil {
					return err
				}
				roleID, err := rbac.NewService(pool).SeedRole(cmd.Context(), orgID, admin, "admin", shared.AllScopes())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded org %s (admin role %s)\n", orgID, roleID)
				return nil
			})
		},
	}
	seed.Flags().String("org", "", "organisation id")
	seed.Flags().String("name", "default", "organisation display name")
	seed.Flags().String("admin", "", "user id to grant the admin role")
	_ = seed.MarkFlagRequired("org")

	cmd.AddCommand(seed)
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "API key management"}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for a service user; the key is printed once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			orgID, err := parseUUIDFlag(cmd, "org")
			if err != nil {
				return err
			}
			userID, err := parseUUIDFlag(cmd, "user")
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				raw, key, err := auth.NewAPIKeyStore(pool).Create(cmd.Context(), orgID, userID, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "id:  %s\nkey: %s\n", key.ID, raw)
				return nil
			})
		},
	}
	create.Flags().String("org", "", "organisation id")
	create.Flags().String("user", "", "user id the key acts for")
	create.Flags().String("name", "integration", "label for the key")
	_ = create.MarkFlagRequired("org")
	_ = create.MarkFlagRequired("user")

	cmd.AddCommand(create)
	return cmd
}

// taskFor builds the task behind a job name accepted by `jobs enqueue`.
func taskFor(name string, orgID *uuid.UUID, retentionHours int) (*asynq.Task, error) {
	switch name {
	case jobs.TaskDashboardWarmup, "dashboard-warmup":
		return jobs.NewDashboardWarmupTask(orgID)
	case jobs.TaskLPExpiryScan, "lp-expiry-scan":
		return jobs.NewLPExpiryScanTask(orgID)
	case jobs.TaskIdempotencyCleanup, "idempotency-cleanup":
		return jobs.NewIdempotencyCleanupTask(retentionHours)
	default:
		return nil, fmt.Errorf("unsupported job %q", name)
	}
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Background job helpers"}

	enqueue := &cobra.Command{
		Use:   "enqueue <job>",
		Short: "Enqueue dashboard-warmup, lp-expiry-scan or idempotency-cleanup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var orgID *uuid.UUID
			if raw, _ := cmd.Flags().GetString("org"); raw != "" {
				id, err := parseUUIDFlag(cmd, "org")
				if err != nil {
					return err
				}
				orgID = &id
			}
			hours, _ := cmd.Flags().GetInt("retention-hours")
			task, err := taskFor(args[0], orgID, hours)
			if err != nil {
				return err
			}
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			defer client.Close()
			info, err := client.Enqueue(cmd.Context(), task)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	enqueue.Flags().String("org", "", "limit the job to one organisation")
	enqueue.Flags().Int("retention-hours", 0, "override idempotency key retention")

	cmd.AddCommand(enqueue)
	return cmd
}
