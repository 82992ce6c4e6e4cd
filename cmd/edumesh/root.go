package main

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/edumesh/config"
	"github.com/hupe1980/edumesh/logging"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "edumesh",
		Short: "Curriculum-aware tutoring agent",
		Long: `edumesh answers student questions from the textbooks of their curriculum.

Start a conversation with a message of the form
  BOARD-grade-GRADE-SUBJECT. Question: QUESTION
for example "CBSE-grade-10-Science. Question: What is photosynthesis?".
The tutor shows the matching textbook passages, asks for an explanation
style and remembers the curriculum for the rest of the session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML or TOML config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(flags),
		newAskCmd(flags),
		newStateCmd(flags),
		newCorpusIDCmd(),
	)

	return cmd
}

// loadConfig applies the persistent flags on top of the loaded config.
func (f *rootFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.logLevel != "" {
		if _, err := logging.ParseLevel(f.logLevel); err != nil {
			return config.Config{}, err
		}
		cfg.Logging.Level = f.logLevel
	}
	return cfg, nil
}
