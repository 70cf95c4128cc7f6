package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"atelier/internal/startup"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print build information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			info := startup.GetBuildInfo()
			if a.asJSON {
				return a.printJSON(info)
			}
			fmt.Fprintf(a.out, "atelier %s\n", info.Version)
			fmt.Fprintf(a.out, "  commit:  %s\n", info.Commit)
			fmt.Fprintf(a.out, "  built:   %s\n", info.BuildTime)
			fmt.Fprintf(a.out, "  go:      %s %s/%s\n", info.GoVersion, info.OS, info.Arch)
			return nil
		},
	}
}
