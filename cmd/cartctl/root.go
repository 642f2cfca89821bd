package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/cartsync/internal/config"
	domcart "example.com/cartsync/internal/domain/cart"
	"example.com/cartsync/internal/infra/cartapi"
	"example.com/cartsync/internal/infra/logger"
	"example.com/cartsync/internal/infra/metrics"
	"example.com/cartsync/internal/usecase/cartsync"
)

const tokenEnv = "CARTSYNC_TOKEN"

type app struct {
	cfg     config.SyncConfig
	token   string
	verbose bool

	logger  *zap.Logger
	client  *cartapi.Client
	cache   *cartsync.Cache
	metrics *metrics.SyncMetrics
}

func newApp(cfg *config.SyncConfig) *app {
	return &app{cfg: *cfg}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cartctl",
		Short:        "Inspect and edit a shopping cart through the sync cache",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.BaseURL, "api-url", a.cfg.BaseURL, "cart API base URL")
	flags.StringVar(&a.token, "token", os.Getenv(tokenEnv), "bearer token (defaults to $"+tokenEnv+")")
	flags.DurationVar(&a.cfg.Timeout, "timeout", a.cfg.Timeout, "per-request timeout")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log sync requests")
	flags.StringVar(&a.cfg.MetricsFile, "metrics-file", a.cfg.MetricsFile, "write sync counters to this file in Prometheus text format")

	root.AddCommand(
		a.loginCmd(),
		a.showCmd(),
		a.addCmd(),
		a.setCmd(),
		a.rmCmd(),
	)
	return root
}

func (a *app) setup() {
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	a.logger = logger.New(logger.Config{Level: level, Encoding: "console"})
	a.client = cartapi.NewClient(cartapi.Config{
		BaseURL:             a.cfg.BaseURL,
		Timeout:             a.cfg.Timeout,
		BreakerMaxRequests:  a.cfg.BreakerMaxRequests,
		BreakerInterval:     a.cfg.BreakerInterval,
		BreakerTimeout:      a.cfg.BreakerTimeout,
		BreakerMinRequests:  a.cfg.BreakerMinRequests,
		BreakerFailureRatio: a.cfg.BreakerFailureRatio,
	}, a.logger)
	a.metrics = metrics.NewSync("cartctl")
	a.cache = cartsync.NewCache(a.client, cartsync.Options{
		Logger:   a.logger,
		Recorder: a.metrics,
		Timeout:  a.cfg.Timeout,
	})
}

// flushMetrics writes the sync counters when a metrics file is configured.
// It runs after failed commands too.
func (a *app) flushMetrics() error {
	if a.metrics == nil || a.cfg.MetricsFile == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	a.logger.Debug("sync metrics written", zap.String("path", a.cfg.MetricsFile))
	return nil
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for a bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cache.Load(cmd.Context(), a.token); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout())
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add PRODUCT_ID [QUANTITY]",
		Short: "Add a product, or more of it, to the cart",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity := int64(1)
			if len(args) == 2 {
				q, err := parseQuantity(args[1])
				if err != nil {
					return err
				}
				quantity = q
			}

			ctx := cmd.Context()
			if err := a.cache.Load(ctx, a.token); err != nil {
				return err
			}
			ref, err := a.productRef(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.cache.AddItem(ctx, a.token, ref, quantity); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout())
		},
	}
}

func (a *app) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set PRODUCT_ID QUANTITY",
		Short: "Set the quantity of a product already in the cart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := parseQuantity(args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			line, err := a.loadLine(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.cache.UpdateQuantity(ctx, a.token, line.ID, quantity); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout())
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm PRODUCT_ID",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			line, err := a.loadLine(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.cache.RemoveItem(ctx, a.token, line.ID); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout())
		},
	}
}

// productRef reuses the cart's snapshot when the product is already in the
// cart and asks the catalog otherwise.
func (a *app) productRef(ctx context.Context, productID string) (domcart.ProductRef, error) {
	if line, ok := a.cache.LineForProduct(productID); ok {
		return line.Product, nil
	}
	return a.client.Product(ctx, productID)
}

func (a *app) loadLine(ctx context.Context, productID string) (domcart.LineItem, error) {
	if a.token == "" {
		return domcart.LineItem{}, domcart.ErrUnauthenticated
	}
	if err := a.cache.Load(ctx, a.token); err != nil {
		return domcart.LineItem{}, err
	}
	line, ok := a.cache.LineForProduct(productID)
	if !ok {
		return domcart.LineItem{}, fmt.Errorf("product %s: %w", productID, domcart.ErrItemNotFound)
	}
	return line, nil
}

func (a *app) print(out io.Writer) error {
	items := a.cache.Items()
	if len(items) == 0 {
		_, err := fmt.Fprintln(out, "cart is empty")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tPRODUCT\tTITLE\tQTY\tPRICE\tSUBTOTAL")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%.2f\n",
			it.ID, it.Product.ID, it.Product.Title, it.Quantity, it.Product.Price, it.Subtotal())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "items: %d  total: %.2f\n", a.cache.Count(), a.cache.Total())
	return err
}

func parseQuantity(s string) (int64, error) {
	q, err := strconv.ParseInt(s, 10, 64)
	if err != nil || q < 1 {
		return 0, fmt.Errorf("quantity %q: %w", s, domcart.ErrInvalidQuantity)
	}
	return q, nil
}
