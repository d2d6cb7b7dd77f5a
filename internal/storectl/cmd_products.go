package storectl

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProductsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Browse the catalog",
	}
	cmd.AddCommand(newProductsListCmd(a), newProductsGetCmd(a))
	return cmd
}

func newProductsListCmd(a *app) *cobra.Command {
	var (
		category string
		featured bool
		limit    int
		after    string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.api(cmd.Context(), false)
			if err != nil {
				return err
			}
			page, err := api.ListProducts(cmd.Context(), category, featured, limit, after)
			if err != nil {
				return fmt.Errorf("list products: %w", err)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK")
			for _, p := range page.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Category, formatCents(p.PriceCents), p.Stock)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if page.NextCursor != "" {
				fmt.Fprintf(a.out, "next page: --after %s\n", page.NextCursor)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&category, "category", "", "filter by category slug")
	f.BoolVar(&featured, "featured", false, "only featured products")
	f.IntVar(&limit, "limit", 0, "page size")
	f.StringVar(&after, "after", "", "cursor from a previous page")
	return cmd
}

func newProductsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <product_id>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.api(cmd.Context(), false)
			if err != nil {
				return err
			}
			p, err := api.GetProduct(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get product %s: %w", args[0], err)
			}

			fmt.Fprintf(a.out, "%s  %s\n", p.ID, p.Name)
			fmt.Fprintf(a.out, "price:    %s\n", formatCents(p.PriceCents))
			fmt.Fprintf(a.out, "stock:    %d\n", p.Stock)
			if p.Category != "" {
				fmt.Fprintf(a.out, "category: %s\n", p.Category)
			}
			if p.Description != "" {
				fmt.Fprintf(a.out, "\n%s\n", p.Description)
			}
			if len(p.Variants) > 0 {
				fmt.Fprintln(a.out, "\nvariants:")
				vs := p.Variants
				sort.Slice(vs, func(i, j int) bool { return vs[i].ID < vs[j].ID })
				for _, v := range vs {
					fmt.Fprintf(a.out, "  %s (%s): %s\n", v.ID, v.Name, strings.Join(v.Options, ", "))
				}
			}
			return nil
		},
	}
}
