package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/gengallery/internal/common"
	"github.com/jo-hoe/gengallery/internal/core"
)

type app struct {
	configPath string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "gallery",
		Short: "Manage the image gallery from the command line",
		Long: `gallery works on the same store as the gallery server.

Examples:
  gallery list
  gallery add picture.png
  gallery export 2024-01-01T00:00:00.000Z -o picture.png
  gallery delete 2024-01-01T00:00:00.000Z
  gallery generate --model "Stable Diffusion" a lighthouse at dusk`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is $CONFIG_PATH or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newListCommand(a),
		newAddCommand(a),
		newExportCommand(a),
		newDeleteCommand(a),
		newGenerateCommand(a),
	)
	return rootCmd
}

// run opens the gallery for the duration of fn.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, coreService *core.CoreService) error) (err error) {
	configPath := a.configPath
	if configPath == "" {
		configPath = common.ConfigPath()
	}
	config, err := common.LoadServiceConfig(configPath)
	if err != nil {
		return err
	}

	level := config.LogLevel
	if a.verbose {
		level = "debug"
	}
	slog.SetDefault(common.NewLogger(os.Stderr, level))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	coreService, err := core.NewCoreService(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, coreService.Close())
	}()

	return fn(ctx, coreService)
}
