package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"atelier/internal/startup"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management utilities",
	}
	cmd.AddCommand(newConfigGenerateCommand(a), newConfigShowCommand(a))
	return cmd
}

func newConfigGenerateCommand(a *app) *cobra.Command {
	var (
		output    string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a config file with every default",
		Long: `Write a config file holding every setting at its default value.
Use --output - to print it instead.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var buf bytes.Buffer
			if err := startup.WriteYAML(&buf, startup.DefaultConfig()); err != nil {
				return err
			}
			if output == "-" {
				_, err := a.out.Write(buf.Bytes())
				return err
			}

			if _, err := os.Stat(output); err == nil && !overwrite {
				return fmt.Errorf("%s already exists, use --overwrite to replace it", output)
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("failed to write config file %s: %w", output, err)
			}
			fmt.Fprintf(a.out, "Generated %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "atelier.yaml", "file to write, or - for stdout")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.asJSON {
				return a.printJSON(a.cfg)
			}
			return startup.WriteYAML(a.out, *a.cfg)
		},
	}
}
