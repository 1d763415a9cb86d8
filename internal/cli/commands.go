package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"wbpmisueso/internal/aimodel"
	"wbpmisueso/internal/auth"
	"wbpmisueso/internal/cache"
	"wbpmisueso/internal/database"
	"wbpmisueso/internal/media"
	"wbpmisueso/internal/schema"

	"github.com/spf13/cobra"
)

// DefaultTestPassword is the password given to seeded role accounts.
const DefaultTestPassword = "test1234"

func newReconcileSchemaCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "reconcile_schema",
		Short: "Ensure the ledger columns and budget index exist on the running database",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			db, err := openDB(cmd, cfg)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if migrate {
				if err := database.Migrate(db); err != nil {
					return err
				}
			}
			if err := schema.New(db, slog.Default()).EnsureCoreColumns(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema reconciled")
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply model migrations before reconciling")
	return cmd
}

func newResetDatabaseCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset_database",
		Short: "DANGER: delete every row of every application table",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return usagef("refusing to reset without --yes")
			}
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			db, err := openDB(cmd, cfg)
			if err != nil {
				return err
			}
			defer database.Close(db)

			tables, err := database.Reset(cmd.Context(), db)
			if err != nil {
				return err
			}

			// persisted cache entries outlive the reset
			if cfg.CacheBackend == "badger" && cfg.CacheDir != "" {
				backend, err := cache.New(cache.Options{Backend: cfg.CacheBackend, Dir: cfg.CacheDir, Logger: slog.Default()})
				if err != nil {
					slog.Warn("failed to open cache for flush", "error", err)
				} else {
					cache.NewInvalidator(backend, slog.Default()).ClearAll()
					backend.Close()
				}
			}

			out := cmd.OutOrStdout()
			for _, t := range tables {
				fmt.Fprintf(out, "flushed %s\n", t)
			}
			fmt.Fprintf(out, "reset %d tables\n", len(tables))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the irreversible reset")
	return cmd
}

func newCleanMediaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean_media [dir]",
		Short: "Remove all uploaded files under the media root",
		Args:  args(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			dir := cfg.MediaRoot
			if len(a) == 1 {
				dir = a[0]
			}

			res, err := media.Clean(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d files and %d directories from %s\n", res.Files, res.Dirs, dir)
			return nil
		},
	}
}

func newCreateTestUsersCommand() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "create_test_users",
		Short: "Create one account per role, skipping emails that already exist",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(password) < 6 {
				return usagef("--password must be at least 6 characters")
			}
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			db, err := openDB(cmd, cfg)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.Migrate(db); err != nil {
				return err
			}
			created, skipped, err := auth.NewService(db).SeedRoleUsers(cmd.Context(), password)
			out := cmd.OutOrStdout()
			for _, e := range created {
				fmt.Fprintf(out, "created %s\n", e)
			}
			for _, e := range skipped {
				fmt.Fprintf(out, "skipped %s (exists)\n", e)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d created, %d skipped\n", len(created), len(skipped))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", DefaultTestPassword, "password for the created accounts")
	return cmd
}

func newDownloadModelCommand() *cobra.Command {
	var name, cacheDir string
	cmd := &cobra.Command{
		Use:   "download_ai_model",
		Short: "Fetch the sentence-embedding model into the local model cache",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			if name == "" {
				name = cfg.ModelName
			}
			if cacheDir == "" {
				cacheDir = cfg.ModelCacheDir
			}

			loader := aimodel.NewLoader(aimodel.Options{
				BaseURL: cfg.ModelBaseURL,
				Org:     cfg.ModelOrg,
				Logger:  slog.Default(),
			})
			dir, err := loader.EnsureModel(cmd.Context(), name, cacheDir)
			if err != nil {
				var ferr *aimodel.ModelFetchError
				if errors.As(err, &ferr) {
					slog.Error("model provisioning failed; analytics stays unavailable", "model", ferr.Model, "file", ferr.File)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model %s ready at %s\n", name, dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "model name (default MODEL_NAME)")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "model cache directory (default MODEL_CACHE_DIR)")
	return cmd
}
