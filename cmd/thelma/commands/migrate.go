package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/helixyte/TheLMA-sub008/pkg/config"
	"github.com/helixyte/TheLMA-sub008/pkg/stores"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the rack database schema",
		Long: `Apply or roll back the schema migrations of the rack database.

Other commands migrate the database up on start; this command is for
explicit upgrades, roll backs and inspection.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRawStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			return printVersion(store)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRawStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.MigrateDown(cmd.Context()); err != nil {
				return fmt.Errorf("failed to roll back database: %w", err)
			}
			log.Info().Msg("Database rolled back")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRawStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			return printVersion(store)
		},
	})

	return cmd
}

// openRawStore opens the database without migrating it.
func openRawStore(cmd *cobra.Command) (*stores.SQLiteStore, error) {
	cfg, err := config.LoadAppConfig(configPath)
	if err != nil {
		return nil, err
	}
	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Init(cmd.Context()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialise database: %w", err)
	}
	log.Debug().Str("path", cfg.Database.Path).Msg("Database opened")
	return store, nil
}

func printVersion(store *stores.SQLiteStore) error {
	version, dirty, err := store.SchemaVersion()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]interface{}{"version": version, "dirty": dirty})
	}
	log.Info().
		Uint("version", version).
		Bool("dirty", dirty).
		Msg("Schema version")
	return nil
}
