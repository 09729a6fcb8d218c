package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"pharmacy_inventory/internal/inventory"
	"pharmacy_inventory/internal/server"
	"pharmacy_inventory/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

func newInitCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the inventory tables if they are missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withService(cmd, func(ctx context.Context, svc *inventory.Service) error {
				fmt.Fprintln(cmd.OutOrStdout(), "Database initialized")
				return nil
			})
		},
	}
}

func newSeedCommand(rt *runtime) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the sample medications",
		Long: `Load the sample medications into an empty inventory.

With --force every existing product is replaced by the sample set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withService(cmd, func(ctx context.Context, svc *inventory.Service) error {
				n, err := svc.Seed(ctx, force)
				if err != nil {
					return userFacing(err)
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Inventory already has products, use --force to replace them")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Initialized database with %d sample products\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace existing products")
	return cmd
}

const sortFlag = "sort"

func newListCommand(rt *runtime) *cobra.Command {
	listFlags := map[string]cobraflags.Flag{
		sortFlag: &cobraflags.StringFlag{
			Name:  sortFlag,
			Value: "",
			Usage: "Sort by name, price or quantity (default: insertion order)",
		},
	}
	var desc bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sortKey := listFlags[sortFlag].GetString()
			return rt.withService(cmd, func(ctx context.Context, svc *inventory.Service) error {
				list, err := svc.List(ctx, sortKey, desc)
				if err != nil {
					return userFacing(err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPRICE\tQUANTITY")
				for _, p := range list {
					fmt.Fprintf(w, "%d\t%s\t%.2f\t%d\n", p.ID, p.Name, p.Price, p.Quantity)
				}
				return w.Flush()
			})
		},
	}
	cobraflags.RegisterMap(cmd, listFlags)
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	return cmd
}

func newAddCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME PRICE QUANTITY",
		Short: "Add a product",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withService(cmd, func(ctx context.Context, svc *inventory.Service) error {
				p, err := svc.AddProduct(ctx, args[0], args[1], args[2])
				if err != nil {
					return userFacing(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (id %d): %d at %.2f\n", p.Name, p.ID, p.Quantity, p.Price)
				return nil
			})
		},
	}
}

func newSetCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME QUANTITY",
		Short: "Set the quantity of a product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withService(cmd, func(ctx context.Context, svc *inventory.Service) error {
				qty, err := svc.SetQuantity(ctx, args[0], args[1])
				if err != nil {
					return userFacing(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s quantity set to %d\n", args[0], qty)
				return nil
			})
		},
	}
}

func newNamesCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "names",
		Short: "Print product names alphabetically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withService(cmd, func(ctx context.Context, svc *inventory.Service) error {
				names, err := svc.Names(ctx)
				if err != nil {
					return userFacing(err)
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			})
		},
	}
}

func newShowCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withService(cmd, func(ctx context.Context, svc *inventory.Service) error {
				p, err := svc.Get(ctx, args[0])
				if err != nil {
					return userFacing(err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Name:     %s\n", p.Name)
				fmt.Fprintf(out, "Price:    %.2f\n", p.Price)
				fmt.Fprintf(out, "Quantity: %d\n", p.Quantity)
				fmt.Fprintf(out, "Created:  %s\n", p.CreatedDate.Format(timeLayout))
				return nil
			})
		},
	}
}

func newHistoryCommand(rt *runtime) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history NAME",
		Short: "Show audited stock changes of a product, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withService(cmd, func(ctx context.Context, svc *inventory.Service) error {
				if _, err := svc.Get(ctx, args[0]); err != nil {
					return userFacing(err)
				}
				audits, err := svc.History(ctx, args[0], limit)
				if err != nil {
					return userFacing(err)
				}
				if len(audits) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No recorded changes")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "WHEN\tKIND\tDELTA\tQUANTITY")
				for _, a := range audits {
					fmt.Fprintf(w, "%s\t%s\t%+d\t%d\n", a.OccurredAt.Local().Format(timeLayout), a.Kind, a.Delta, a.Quantity)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", store.DefaultAuditLimit, "maximum rows to show")
	return cmd
}

func newAdjustCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "adjust",
		Short: "Interactively add or remove stock",
		Long: `Start an interactive loop that applies quantity changes.

Each change is a signed delta added to the current quantity; the result
must stay between 0 and 999999.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withService(cmd, func(ctx context.Context, svc *inventory.Service) error {
				return RunAdjustLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), svc)
			})
		},
	}
}

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := rt.loadConfig(cmd)
			if err != nil {
				return err
			}
			if code := server.Run(cfg); code != 0 {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}
}
