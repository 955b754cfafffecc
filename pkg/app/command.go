package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"campus-issue-reporting/pkg/config"
	"campus-issue-reporting/pkg/logger"
)

// Runner does the work of one subcommand with the loaded config. ctx is cancelled on
// SIGINT/SIGTERM.
type Runner func(ctx context.Context, cfg *config.Config) error

type Commands struct {
	Serve   Runner
	Migrate Runner
}

// NewRootCommand builds the CLI every service binary shares: `serve`, plus `migrate` when the
// service owns a schema.
func NewRootCommand(name, short string, cmds Commands) *cobra.Command {
	var (
		configPath string
		cfg        *config.Config
	)

	root := &cobra.Command{
		Use:           name,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := logger.Init(cfg.Logger); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	run := func(r Runner) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return r(ctx, cfg)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the " + name,
		RunE:  run(cmds.Serve),
	})
	if cmds.Migrate != nil {
		root.AddCommand(&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the " + name + " schema and indexes",
			RunE:  run(cmds.Migrate),
		})
	}

	return root
}

func Execute(root *cobra.Command) {
	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.Fatal("command failed", "command", root.Name(), "error", err)
	}
}
