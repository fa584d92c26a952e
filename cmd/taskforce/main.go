package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/nidhogg/taskforce/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/taskforce.yaml"

// cli carries what every subcommand needs after flag parsing.
type cli struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	logger     *zap.Logger
}

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "taskforce",
		Short: "Run tasks through ReAct agents and a supervising orchestrator",
		Long: `taskforce runs natural-language tasks through tool-using agents.

  taskforce run "list the files in /tmp"        # general agent
  taskforce route "fetch https://example.com"   # pick one specialized agent
  taskforce orchestrate "gather and summarize"  # supervisor over all agents
  taskforce serve                               # HTTP API`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file (default $CONFIG_PATH or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	root.AddCommand(newServeCommand(c))
	root.AddCommand(newRunCommand(c))
	root.AddCommand(newRouteCommand(c))
	root.AddCommand(newOrchestrateCommand(c))
	root.AddCommand(newBatchCommand(c))
	root.AddCommand(newChatCommand(c))
	root.AddCommand(newSessionsCommand(c))
	return root
}

func (c *cli) load() error {
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.Load(c.configPath)
	} else {
		cfg, err = config.LoadFromEnv(defaultConfigPath)
	}
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	logger, err := config.NewLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	c.cfg, c.logger = cfg, logger
	return nil
}
