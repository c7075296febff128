// Package cmd holds the phaseline CLI commands.
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/phaseline/internal/agent"
	"github.com/felixgeelhaar/phaseline/internal/config"
	"github.com/felixgeelhaar/phaseline/internal/errors"
	"github.com/felixgeelhaar/phaseline/internal/log"
	"github.com/felixgeelhaar/phaseline/internal/store"
	"github.com/felixgeelhaar/phaseline/internal/ux"
	"github.com/felixgeelhaar/phaseline/internal/workspace"
)

var (
	cfgFile    string
	formatFlag string
	verbose    bool

	cfg          *config.Config
	outputFormat ux.Format
)

var rootCmd = &cobra.Command{
	Use:   "phaseline",
	Short: "Phase-driven build pipeline with bounded review gates",
	Long: `phaseline coordinates a multi-step build pipeline: an external planner
splits a feature request into phases, and each phase is driven through
implementation, review, test authoring, test execution, and validation by
external agents, with bounded corrective-retry gates and durable state so an
interrupted run resumes exactly where it left off.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		log.SetDefaultLogger(log.New(log.Config{
			Level:  log.ParseLevel(level),
			Format: log.ParseFormat(cfg.Log.Format),
			Output: os.Stderr,
		}))

		outputFormat, err = ux.ParseFormat(formatFlag)
		return err
	},
}

// ExecuteContext runs the root command with the given context
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".phaseline/config.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "text", "output format (text, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newStore builds the plan store under the configured state directory
func newStore() *store.Store {
	return store.New(cfg.StateDir)
}

// newWorkspace builds the workspace rooted at the current directory
func newWorkspace() (*workspace.Workspace, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return workspace.New(root, cfg.Checks), nil
}

// newGateway builds the agent gateway selected by the config
func newGateway() (agent.Gateway, error) {
	switch cfg.Agent.Mode {
	case "command":
		root, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		commands := make(map[agent.Role][]string, len(cfg.Agent.Commands))
		for role, argv := range cfg.Agent.Commands {
			commands[agent.Role(role)] = argv
		}
		return agent.NewCommandGateway(commands, root), nil
	case "openai":
		key := os.Getenv(cfg.Agent.APIKeyEnv)
		if key == "" {
			return nil, errors.New(errors.ErrCodeConfigInvalid,
				"no API key found for the openai agent mode").
				WithSuggestion("Set " + cfg.Agent.APIKeyEnv + " in the environment").
				WithSuggestion("Or switch agent.mode to \"command\" in the config")
		}
		return agent.NewOpenAIGateway(key, cfg.Agent.Model)
	default:
		return nil, errors.New(errors.ErrCodeConfigInvalid, "unknown agent mode "+cfg.Agent.Mode)
	}
}

func formatter() *ux.Formatter {
	return ux.NewFormatter(os.Stdout, outputFormat)
}
