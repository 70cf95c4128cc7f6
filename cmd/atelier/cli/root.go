package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"atelier/internal/startup"
)

// skipConfig marks commands that run without loading the config.
const skipConfig = "skip-config"

// NewRootCommand builds the atelier command tree.
func NewRootCommand() *cobra.Command {
	a := newApp()

	cmd := &cobra.Command{
		Use:   "atelier",
		Short: "Tag-driven media catalog",
		Long: `Atelier indexes directories of audio and video into a tagged catalog
and serves it over HTTP with filtering, bulk editing, playlists and backups.`,
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return a.load()
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default is ./atelier.yaml)")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print JSON even on a terminal")

	_ = a.v.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.Version = fmt.Sprintf("%s (%s)", startup.Version, startup.Commit)

	cmd.AddCommand(
		newServeCommand(a),
		newScanCommand(a),
		newMountCommand(a),
		newQueryCommand(a),
		newTagsCommand(a),
		newBackupCommand(a),
		newPlaylistCommand(a),
		newThumbnailsCommand(a),
		newProbeCommand(a),
		newConfigCommand(a),
		newVersionCommand(a),
	)

	return cmd
}
