package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gosuda/drawchat/config"
	"github.com/gosuda/drawchat/prefs"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change local preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPrefs(func(s *prefs.Store) error {
			settings, err := s.Settings()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(settings)
		})
	},
}

var prefsGetCmd = &cobra.Command{
	Use:       "get <key>",
	Short:     "Print one preference",
	Args:      cobra.ExactArgs(1),
	ValidArgs: prefs.Keys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPrefs(func(s *prefs.Store) error {
			v, err := s.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		})
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPrefs(func(s *prefs.Store) error {
			return s.Set(args[0], args[1])
		})
	},
}

func init() {
	prefsCmd.AddCommand(prefsGetCmd, prefsSetCmd)
}

// withPrefs opens the preference store named by the config and flags.
func withPrefs(fn func(*prefs.Store) error) error {
	cfg, err := config.Load(flagConfig, flagEnvFile)
	if err != nil {
		return err
	}
	if flagDataPath != "" {
		cfg.Client.DataPath = flagDataPath
	}
	if cfg.Client.DataPath == "" {
		fmt.Fprintln(os.Stderr, "no data path configured; preferences are not persisted")
	}
	s, err := openPrefs(cfg.Client.DataPath)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer s.Close()
	return fn(s)
}
