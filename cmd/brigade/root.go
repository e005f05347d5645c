package main

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/brigade/config"
	"github.com/hupe1980/brigade/logging"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "brigade",
		Short: "In-process multi-agent task orchestration",
		Long: `brigade runs workflows of dependent tasks across a team of agents.

Workflows are YAML documents listing steps, the task type each step creates,
the agent role it targets and the steps it depends on. The built-in agents
cover business strategy, allergen audits and memory extraction.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newRunCmd(flags))

	return cmd
}

// loadConfig reads the config file and applies flag overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		if _, err := logging.ParseLevel(f.logLevel); err != nil {
			return nil, err
		}
		cfg.Logging.Level = f.logLevel
	}
	return cfg, nil
}
