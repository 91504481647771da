package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/gengallery/internal/core"
)

func newListCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, coreService *core.CoreService) error {
				items, err := coreService.Load(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(items)
				}

				tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTHUMBNAIL")
				for _, item := range items {
					thumbnail := "ok"
					if item.ThumbnailFallback {
						thumbnail = "unavailable"
					}
					fmt.Fprintf(tw, "%s\t%s\n", item.ID, thumbnail)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newAddCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add [file]",
		Short: "Store an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			return a.run(cmd, func(ctx context.Context, coreService *core.CoreService) error {
				id, err := coreService.AddImage(ctx, data)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

func newExportCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export [id]",
		Short: "Write the original bytes of an image to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, coreService *core.CoreService) error {
				// export reads from the loaded gallery
				if _, err := coreService.Load(ctx); err != nil {
					return err
				}
				export, err := coreService.Export(ctx, args[0])
				if err != nil {
					return err
				}

				path := output
				if path == "" {
					path = export.Filename
				}
				if err := os.WriteFile(path, export.Data, 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default is image-<id>.<ext>)")
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, coreService *core.CoreService) error {
				return coreService.Remove(ctx, args[0])
			})
		},
	}
}

func newGenerateCommand(a *app) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate an image from a prompt and store it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			return a.run(cmd, func(ctx context.Context, coreService *core.CoreService) error {
				id, err := coreService.Generate(ctx, model, prompt)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model name or path")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
