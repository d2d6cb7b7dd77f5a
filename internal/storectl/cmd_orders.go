package storectl

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"Storefront/internal/cart"
	"Storefront/internal/order"
)

func newCheckoutCmd(a *app) *cobra.Command {
	var (
		addr    order.Address
		payment string
		idemKey string
	)
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for the local cart",
		Long: "checkout sends the local cart with its expected total to the order service. " +
			"The local cart is cleared only when the order is accepted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			api, err := a.api(ctx, true)
			if err != nil {
				return err
			}
			store, _, err := a.local(ctx)
			if err != nil {
				return err
			}
			c, err := cart.Get(ctx, store, a.log, a.cfg.Cart)
			if err != nil {
				return err
			}
			if c.Len() == 0 {
				return errEmptyCart
			}

			if missing := addr.Normalize().Missing(); len(missing) > 0 {
				return fmt.Errorf("shipping address incomplete: %v", missing)
			}
			if idemKey == "" {
				idemKey = uuid.NewString()
			}

			o, err := api.PlaceOrder(ctx, checkoutRequest(c, addr, payment), idemKey)
			if err != nil {
				var apiErr *APIError
				if errors.As(err, &apiErr) && apiErr.Message == "total mismatch" {
					return fmt.Errorf("prices changed since the items were added, re-add them and retry: %w", err)
				}
				return fmt.Errorf("place order: %w", err)
			}

			if err := store.Delete(ctx, a.cfg.Cart); err != nil {
				a.log.Warn("order placed but local cart not cleared", zap.String("order_id", o.ID), zap.Error(err))
				fmt.Fprintf(a.out, "warning: order placed but local cart was not cleared: %v\n", err)
			}
			fmt.Fprintf(a.out, "order %s %s, total %s\n", o.ID, o.Status, formatCents(o.TotalCents))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr.FullName, "name", "", "recipient full name")
	f.StringVar(&addr.Street, "street", "", "street address")
	f.StringVar(&addr.City, "city", "", "city")
	f.StringVar(&addr.State, "state", "", "state or region")
	f.StringVar(&addr.PostalCode, "postal-code", "", "postal code")
	f.StringVar(&addr.Country, "country", "", "country")
	f.StringVar(&addr.Phone, "phone", "", "contact phone")
	f.StringVar(&payment, "payment", "", "payment method to record")
	f.StringVar(&idemKey, "idempotency-key", "", "reuse a key to make a retried checkout safe (random by default)")
	return cmd
}

func checkoutRequest(c *cart.Cart, addr order.Address, payment string) PlaceRequest {
	lines := c.Lines()
	req := PlaceRequest{
		Items:           make([]PlaceLine, 0, len(lines)),
		ShippingAddress: addr.Normalize(),
		PaymentMethod:   payment,
	}
	for _, l := range lines {
		req.Items = append(req.Items, PlaceLine{ProductID: l.ProductID, Quantity: l.Quantity, Variants: l.Variants})
	}
	total := c.TotalPriceCents()
	req.TotalCents = &total
	return req
}

func newOrdersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Show your orders",
	}
	cmd.AddCommand(newOrdersListCmd(a), newOrdersGetCmd(a))
	return cmd
}

func newOrdersListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.api(cmd.Context(), true)
			if err != nil {
				return err
			}
			orders, err := api.ListOrders(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list orders: %w", err)
			}
			if len(orders) == 0 {
				fmt.Fprintln(a.out, "no orders")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tITEMS\tTOTAL\tCREATED")
			for _, o := range orders {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					o.ID, o.Status, len(o.Items), formatCents(o.TotalCents), o.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of orders")
	return cmd
}

func newOrdersGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <order_id>",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.api(cmd.Context(), true)
			if err != nil {
				return err
			}
			o, err := api.GetOrder(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get order %s: %w", args[0], err)
			}

			fmt.Fprintf(a.out, "order %s  %s\n", o.ID, o.Status)
			fmt.Fprintf(a.out, "placed %s, payment %s\n", o.CreatedAt.Local().Format(time.DateTime), o.PaymentMethod)
			ad := o.ShippingAddress
			fmt.Fprintf(a.out, "ship to %s, %s, %s %s\n", ad.FullName, ad.Street, ad.PostalCode, ad.City)

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PRODUCT\tNAME\tVARIANTS\tQTY\tPRICE")
			for _, it := range o.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					it.ProductID, it.Name, formatVariants(it.Variants), it.Quantity, formatCents(it.PriceCents))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "total: %s\n", formatCents(o.TotalCents))
			return nil
		},
	}
}
