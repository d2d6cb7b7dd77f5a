package storectl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"Storefront/internal/cart"
	"Storefront/pkg/kit"
)

type app struct {
	out io.Writer

	configPath string
	apiURL     string
	dataFile   string
	cartName   string
	verbose    bool

	cfg      Config
	log      *zap.Logger
	store    *cart.SQLiteStore
	sessions *Sessions
}

// Execute runs the storectl command tree with args and writes command
// output to out.
func Execute(ctx context.Context, out io.Writer, args []string) error {
	a := &app{out: out, log: zap.NewNop()}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "storectl",
		Short:         "Storefront command line client",
		Long:          "storectl browses the catalog, keeps a local cart and places orders through the storefront gateway.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", defaultConfigPath(), "config file")
	pf.StringVar(&a.apiURL, "api-url", "", "gateway base URL")
	pf.StringVar(&a.dataFile, "data-file", "", "local sqlite file for the cart and session")
	pf.StringVar(&a.cartName, "cart", "", "name of the local cart")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newProductsCmd(a),
		newCartCmd(a),
		newCheckoutCmd(a),
		newOrdersCmd(a),
		newMigrateCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = a.apiURL
	}
	if flags.Changed("data-file") {
		cfg.DataFile = a.dataFile
	}
	if flags.Changed("cart") {
		cfg.Cart = a.cartName
	}
	a.cfg = cfg

	if a.verbose {
		a.log = kit.NewLeveledLogger("storectl", "debug")
	}
	return nil
}

// local opens the cart database on first use.
func (a *app) local(ctx context.Context) (*cart.SQLiteStore, *Sessions, error) {
	if a.store != nil {
		return a.store, a.sessions, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.DataFile), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := cart.OpenSQLite(ctx, a.cfg.DataFile, a.log)
	if err != nil {
		return nil, nil, err
	}
	sessions, err := NewSessions(ctx, store.DB())
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	a.log.Debug("opened local store", zap.String("path", a.cfg.DataFile))
	a.store, a.sessions = store, sessions
	return store, sessions, nil
}

// api returns a gateway client, authenticated when authed is set.
func (a *app) api(ctx context.Context, authed bool) (*API, error) {
	if !authed {
		return NewAPI(a.cfg.APIURL, ""), nil
	}
	_, sessions, err := a.local(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := sessions.Current(ctx, a.cfg.APIURL)
	if err != nil {
		return nil, err
	}
	return NewAPI(a.cfg.APIURL, sess.Token), nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close local store", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
