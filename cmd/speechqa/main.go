package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"speechqa/internal/config"
	"speechqa/internal/console"
	"speechqa/internal/logger"
	"speechqa/internal/tui"
)

type options struct {
	configPath string
	useTUI     bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "speechqa",
		Short: "Ask questions about a speech transcript",
		Long: `speechqa indexes a single text document and answers questions about it
with a local language model.

The index is built on first run and reused afterwards. Delete the persist
directory to rebuild it after editing the document.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (defaults to ./config.yaml or ~/.config/speechqa/config.yaml)")
	cmd.Flags().BoolVar(&opts.useTUI, "tui", false, "Use the full-screen terminal UI instead of the plain prompt")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print debug output to stderr")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, opts *options) error {
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetVerbose(opts.verbose)

	cfg, source, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if source == "" {
		logger.Debug("no config file found, using defaults")
	} else {
		logger.Debug("config loaded from %s", source)
	}

	app, err := newApp(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer app.Close()

	pipeline, err := app.Pipeline(ctx)
	if err != nil {
		return err
	}
	app.CheckModel(ctx)

	if opts.useTUI {
		m := tui.New(ctx, pipeline, cfg.Title)
		_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	}
	return console.NewREPL(pipeline, cmd.InOrStdin(), cmd.OutOrStdout(), cfg.Title).Run(ctx)
}

func loadConfig(path string) (*config.AppConfig, string, error) {
	if path == "" {
		return config.LoadDefault()
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
