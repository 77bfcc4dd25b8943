// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/verdigris-dev/verdigris/internal/config"
	vderr "github.com/verdigris-dev/verdigris/pkg/errors"
)

// NewRootCmd creates the root verdigris command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "verdigris",
		Short:         "Store, search, and validate engineering knowledge",
		Long:          "Verdigris keeps short observations about a codebase in a local knowledge base, retrieves them by meaning rather than keywords, and scores beliefs against the accumulated evidence.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initViper(cmd); err != nil {
				return err
			}
			setupLogging(cmd)
			config.WarnInsecurePermissions(viper.ConfigFileUsed())
			return nil
		},
	}

	// Global flags. These map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("base-dir", "", "path to the knowledge base directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newSubmitCmd(),
		newSearchCmd(),
		newValidateCmd(),
		newExplainCmd(),
		newRebuildCmd(),
		newMigrateCmd(),
		newPruneCmd(),
		newStatusCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return vderr.Errorf(vderr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// Auto-discover verdigris.yaml from standard locations.
		// Note: SetConfigType is intentionally omitted. When set, Viper
		// falls back to trying the bare config name without extension,
		// which collides with the ./verdigris binary in the project root.
		v.SetConfigName("verdigris")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/verdigris")
		v.AddConfigPath("/etc/verdigris")
		// No config file is fine. Defaults and env vars still apply;
		// parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return vderr.Errorf(vderr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			// No config found anywhere. Bootstrap a default into
			// ~/.config/verdigris/.
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return vderr.Errorf(vderr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	// Bind persistent flags to viper keys.
	if err := v.BindPFlag("base_dir", cmd.Root().PersistentFlags().Lookup("base-dir")); err != nil {
		return vderr.Errorf(vderr.CodeCLISetupFailure, "binding base-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return vderr.Errorf(vderr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}

// setupLogging installs the default slog handler on stderr, honoring the
// configured level and the --verbose override.
func setupLogging(cmd *cobra.Command) {
	level := config.ParseLogLevel(viper.GetString("log_level"))
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
