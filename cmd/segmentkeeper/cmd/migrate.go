package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/segmentkeeper/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|status]",
	Short: "Apply or inspect database migrations",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	action := "up"
	if len(args) == 1 {
		action = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	out := cmd.OutOrStdout()
	switch action {
	case "up":
		if err := db.MigrateUp(database); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Fprintln(out, "migrations applied")
		return nil
	case "status":
		statuses, err := db.MigrateStatus(database)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		for _, s := range statuses {
			if !s.Applied {
				fmt.Fprintf(out, "%-40s pending\n", s.ID)
				continue
			}
			applied := "unknown"
			if s.AppliedAt != nil {
				applied = s.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%-40s applied %s (%dms)\n", s.ID, applied, s.ExecutionMs)
		}
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q (expected up or status)", action)
	}
}
