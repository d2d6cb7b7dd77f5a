package storectl

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"Storefront/internal/cart"
	"Storefront/internal/catalog"
)

var (
	errNotInCart = errors.New("product is not in the cart")
	errEmptyCart = errors.New("cart is empty")
)

// StockError reports a local cart quantity the catalog cannot cover.
type StockError struct {
	ProductID string
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("only %d of %s in stock", e.Available, e.ProductID)
}

func newCartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the local cart",
	}
	cmd.AddCommand(
		newCartShowCmd(a),
		newCartAddCmd(a),
		newCartUpdateCmd(a),
		newCartRemoveCmd(a),
		newCartClearCmd(a),
	)
	return cmd
}

func newCartShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the local cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := a.local(cmd.Context())
			if err != nil {
				return err
			}
			c, err := cart.Get(cmd.Context(), store, a.log, a.cfg.Cart)
			if err != nil {
				return err
			}
			return a.printCart(c)
		},
	}
}

func newCartAddCmd(a *app) *cobra.Command {
	var variants map[string]string
	cmd := &cobra.Command{
		Use:   "add <product_id> [quantity]",
		Short: "Add a product to the local cart",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			qty := 1
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n <= 0 {
					return fmt.Errorf("quantity must be a positive integer, got %q", args[1])
				}
				qty = n
			}

			api, err := a.api(ctx, false)
			if err != nil {
				return err
			}
			p, err := api.GetProduct(ctx, args[0])
			if errors.Is(err, catalog.ErrClientNotFound) {
				return fmt.Errorf("no such product %q", args[0])
			}
			if err != nil {
				return fmt.Errorf("get product %s: %w", args[0], err)
			}
			if err := p.ValidateSelection(variants); err != nil {
				return err
			}

			store, _, err := a.local(ctx)
			if err != nil {
				return err
			}
			item := cart.Item{ProductID: p.ID, Name: p.Name, PriceCents: p.PriceCents, ImageURL: p.ImageURL}
			c, err := store.Update(ctx, a.cfg.Cart, func(c *cart.Cart) error {
				if c.Quantity(p.ID)+qty > p.Stock {
					return &StockError{ProductID: p.ID, Available: p.Stock}
				}
				return c.Add(item, qty, variants)
			})
			if err != nil {
				return err
			}
			return a.printCart(c)
		},
	}
	cmd.Flags().StringToStringVar(&variants, "variant", nil, "variant selection as id=option, repeatable")
	return cmd
}

func newCartUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update <product_id> <quantity>",
		Short: "Set the quantity of every line of a product (0 removes it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity must be an integer, got %q", args[1])
			}
			store, _, err := a.local(cmd.Context())
			if err != nil {
				return err
			}
			c, err := store.Update(cmd.Context(), a.cfg.Cart, func(c *cart.Cart) error {
				found, err := c.UpdateQuantity(args[0], qty)
				if err != nil {
					return err
				}
				if !found {
					return errNotInCart
				}
				return nil
			})
			if err != nil {
				return err
			}
			return a.printCart(c)
		},
	}
}

func newCartRemoveCmd(a *app) *cobra.Command {
	var variants map[string]string
	cmd := &cobra.Command{
		Use:   "remove <product_id>",
		Short: "Remove a product, or one variant line with --variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := a.local(cmd.Context())
			if err != nil {
				return err
			}
			c, err := store.Update(cmd.Context(), a.cfg.Cart, func(c *cart.Cart) error {
				var removed bool
				if len(variants) > 0 {
					removed = c.RemoveLine(cart.KeyOf(args[0], variants))
				} else {
					removed = c.Remove(args[0])
				}
				if !removed {
					return errNotInCart
				}
				return nil
			})
			if err != nil {
				return err
			}
			return a.printCart(c)
		},
	}
	cmd.Flags().StringToStringVar(&variants, "variant", nil, "remove only the line with this selection (id=option)")
	return cmd
}

func newCartClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the local cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := a.local(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), a.cfg.Cart); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "cart cleared")
			return nil
		},
	}
}

func (a *app) printCart(c *cart.Cart) error {
	v := c.View()
	if len(v.Items) == 0 {
		fmt.Fprintln(a.out, "cart is empty")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tNAME\tVARIANTS\tQTY\tPRICE\tSUBTOTAL")
	for _, l := range v.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			l.ProductID, l.Name, formatVariants(l.Variants), l.Quantity,
			formatCents(l.PriceCents), formatCents(l.SubtotalCents))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "items: %d  total: %s\n", v.TotalItems, formatCents(v.TotalPriceCents))
	return nil
}

func formatVariants(v map[string]string) string {
	if len(v) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(v))
	for k, opt := range v {
		parts = append(parts, k+"="+opt)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
