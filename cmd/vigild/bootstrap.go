// Command vigild runs the Vigil daemon in the foreground, for service
// managers that supervise the process themselves.
package main

import (
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/config"
	"vigil/internal/daemonrun"
)

type daemonFlags struct {
	configPath  string
	logLevel    string
	development bool
}

func newRootCommand() *cobra.Command {
	flags := &daemonFlags{}
	cmd := &cobra.Command{
		Use:           "vigild",
		Short:         "Run the Vigil analysis daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, flags.options())
		},
	}
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&flags.development, "dev", false, "Human-readable console logs")
	return cmd
}

func (f *daemonFlags) options() daemonrun.Options {
	return daemonrun.Options{
		LogLevel:    strings.TrimSpace(f.logLevel),
		Development: f.development,
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, _, _, err := config.Load(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
