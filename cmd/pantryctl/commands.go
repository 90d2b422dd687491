package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pantry/pkg/app"
	"pantry/pkg/config"
	"pantry/pkg/inventory"
	"pantry/pkg/logger"
)

type rootOptions struct {
	configPath string
	driver     string
	sqlitePath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "pantryctl",
		Short:         "Manage pantry inventory counts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("PANTRY_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.driver, "driver", "", "override store.driver")
	root.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite-path", "", "override store.sqlite.path")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newListCmd(opts),
		newAddCmd(opts),
		newRemoveCmd(opts),
		newSetCmd(opts),
		newExportCmd(opts),
	)
	return root
}

// withService loads config, opens the store, refreshes and runs fn.
func withService(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, svc *inventory.Service) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.driver != "" {
		cfg.Store.Driver = opts.driver
	}
	if opts.sqlitePath != "" {
		cfg.Store.SQLite.Path = opts.sqlitePath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.NewNop()
	if opts.verbose {
		log = logger.New(cmd.ErrOrStderr(), logger.LevelDebug, "pantryctl", nil)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeStore, err := app.NewService(ctx, cfg, log, nil)
	defer func() { _ = closeStore() }()
	if err != nil {
		return err
	}
	if err := svc.Refresh(ctx); err != nil {
		return err
	}
	return fn(ctx, svc)
}

func printItems(w io.Writer, items []inventory.Item) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tQUANTITY")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%d\n", it.Name, it.Quantity)
	}
	return tw.Flush()
}

func printResult(w io.Writer, item inventory.Item, removed bool) {
	if removed {
		fmt.Fprintf(w, "%s removed\n", item.Name)
		return
	}
	fmt.Fprintf(w, "%s: %d\n", item.Name, item.Quantity)
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items, optionally filtered by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *inventory.Service) error {
				return printItems(cmd.OutOrStdout(), svc.Filter(query))
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "case-insensitive name filter")
	return cmd
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME",
		Short: "Increment an item, creating it at 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *inventory.Service) error {
				item, err := svc.Increment(ctx, args[0])
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), item, false)
				return nil
			})
		},
	}
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Decrement an item, deleting it at zero",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *inventory.Service) error {
				item, removed, err := svc.Decrement(ctx, args[0])
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), item, removed)
				return nil
			})
		},
	}
}

func newSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME QUANTITY",
		Short: "Overwrite an item's quantity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := inventory.ParseQuantity(args[1])
			if err != nil {
				return err
			}
			return withService(cmd, opts, func(ctx context.Context, svc *inventory.Service) error {
				item, removed, err := svc.SetQuantity(ctx, args[0], q)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), item, removed)
				return nil
			})
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the inventory as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *inventory.Service) error {
				csv := svc.CSV()
				if out == "" || out == "-" {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), csv)
					return err
				}
				if err := os.WriteFile(out, []byte(csv), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file ("+inventory.CSVFileName+" style), - for stdout")
	return cmd
}
