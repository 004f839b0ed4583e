package cli

import (
	"context"
	"fmt"

	"benchmark-verifier/internal/database"
	"benchmark-verifier/internal/verification"
	"github.com/spf13/cobra"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "seed <engine>",
		Short:     "Create and fill the world and fortune tables",
		Long:      "Drop and recreate the reference world and fortune data of one database engine.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: Engines,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), rootOpts, args[0])
		},
	}

	return cmd
}

func runSeed(ctx context.Context, opts *RootOptions, engine string) error {
	wait, err := opts.Config.WaitPolicy()
	if err != nil {
		return err
	}
	db, err := NewVerifier(engine, opts.Config.Databases.DSN(engine), wait, opts.Logger)
	if err != nil {
		return err
	}
	seeder, ok := db.(database.Seeder)
	if !ok {
		return &verification.ConfigurationError{Field: "database", Reason: fmt.Sprintf("%s cannot be seeded", engine)}
	}

	messages := verification.NewMessages(engine)
	if err := db.WaitForDatabaseToBeAvailable(ctx, messages); err != nil {
		return err
	}

	opts.Logger.Info("seeding database", "engine", engine, "world_rows", database.WorldRows, "fortunes", len(database.CanonicalFortunes))
	if err := seeder.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed %s: %w", engine, err)
	}
	opts.Logger.Info("database seeded", "engine", engine)
	return nil
}
