package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/dashingest/internal/database"
	"github.com/jmylchreest/dashingest/internal/database/migrations"
)

var migrateDownSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database schema commands",
	Long: `Inspect and change the database schema version. serve applies pending
migrations on start; these commands work without a running server.`,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(func(m *migrations.Migrator) error {
			return printMigrationStatus(cmd, m)
		})
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(func(m *migrations.Migrator) error {
			applied, err := m.Up(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the newest applied migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if migrateDownSteps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		return withMigrator(func(m *migrations.Migrator) error {
			reverted, err := m.Down(cmd.Context(), migrateDownSteps)
			for _, v := range reverted {
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", v)
			}
			if err != nil {
				return err
			}
			if len(reverted) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
			}
			return nil
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateStatusCmd, migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}

// withMigrator opens the configured database and hands fn a migrator
// holding every registered migration.
func withMigrator(fn func(m *migrations.Migrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := database.New(cfg.Database, slog.Default(), nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	m := migrations.NewMigrator(db.DB, slog.Default())
	m.RegisterAll(migrations.AllMigrations())
	return fn(m)
}

func printMigrationStatus(cmd *cobra.Command, m *migrations.Migrator) error {
	statuses, err := m.Status(cmd.Context())
	if err != nil {
		return err
	}
	renderMigrationStatus(cmd.OutOrStdout(), statuses)
	return nil
}

func renderMigrationStatus(w io.Writer, statuses []migrations.MigrationStatus) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Version", "Description", "Applied", "Reversible"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)

	for _, s := range statuses {
		applied := "pending"
		if s.AppliedAt != nil {
			applied = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
		reversible := "yes"
		if !s.Reversible {
			reversible = "no"
		}
		table.Append([]string{s.Version, s.Description, applied, reversible})
	}
	table.Render()
}
