// Package cli is the portal command line host: it keeps the portal's
// storage in a local BBolt file and runs page loads in the terminal.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/axa-poc/portalauth/app"
	"github.com/axa-poc/portalauth/browser"
	"github.com/axa-poc/portalauth/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/kirsle/configdir"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	config   string
	db       string
	logLevel string
}

// Options configure NewRootCommand.
type Options struct {
	// Out receives command output; os.Stdout when nil.
	Out io.Writer

	// Open is called with addresses outside the portal origin; the system
	// browser when nil.
	Open func(url string) error
}

// env is everything a command needs for one page load.
type env struct {
	cfg      *Config
	logger   hclog.Logger
	provider *oidc.Provider
	host     *Host
	origin   string
	out      io.Writer
}

func (e *env) close() {
	e.provider.Done()
	if err := e.host.Close(); err != nil {
		e.logger.Warn("unable to close storage", "error", err)
	}
}

// visit loads href, or the portal origin when href is empty.
func (e *env) visit(ctx context.Context, href string) (*app.Page, error) {
	if href == "" {
		href = e.origin + "/"
	}
	return e.host.Visit(ctx, e.provider, href, app.WithLogger(e.logger))
}

func (e *env) follow(ctx context.Context) error {
	_, err := e.host.Follow(ctx, e.provider, app.WithLogger(e.logger))
	return err
}

// NewRootCommand builds the portal command tree.
func NewRootCommand(o Options) *cobra.Command {
	if o.Out == nil {
		o.Out = os.Stdout
	}
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "portal",
		Short: "Sign in to the AXA portal from a terminal",
		Long: `portal runs the portal's sign-in flow against the configured identity
provider and keeps the resulting session in a local storage file.

Configuration is read from --config (default: the per-user config dir),
then PORTAL_* environment variables, which may come from a .env file.

Examples:
  # Start a login; the provider page opens in the system browser
  portal login

  # Complete it with the address the provider redirected to
  portal open 'http://localhost:3000/#access_token=...'

  # Show the session
  portal status
`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.config, "config", "", "config file (default is "+DefaultConfigPath()+")")
	root.PersistentFlags().StringVar(&flags.db, "db", "", "storage file (overrides the config)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "trace, debug, info, warn or error")

	newEnv := func() (*env, error) {
		return buildEnv(flags, o)
	}
	root.AddCommand(
		newLoginCommand(newEnv),
		newOpenCommand(newEnv),
		newStatusCommand(newEnv),
		newLogoutCommand(newEnv),
		newRenewCommand(newEnv),
		newFetchCommand(newEnv),
		newGoCommand(newEnv),
		newStorageCommand(flags, o),
	)
	return root
}

func loadConfig(flags *rootFlags) (*Config, error) {
	cfg, err := LoadConfig(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.db != "" {
		cfg.DB = flags.db
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, nil
}

func newLogger(cfg *Config) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "portal",
		Level:  cfg.Level(),
		Output: os.Stderr,
	})
}

func buildEnv(flags *rootFlags, o Options) (*env, error) {
	const op = "cli.buildEnv"
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	oc, err := cfg.OIDCConfig()
	if err != nil {
		return nil, err
	}
	loc, err := browser.NewLocation(oc.RedirectUrl)
	if err != nil {
		return nil, fmt.Errorf("%s: redirect_url: %w", op, err)
	}
	p, err := oidc.NewProvider(oc)
	if err != nil {
		return nil, err
	}
	if err := configdir.MakePath(filepath.Dir(cfg.DB)); err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to create storage dir: %w", op, err)
	}
	h, err := NewHost(cfg.DB, loc.Origin(), o.Out, o.Open, logger.Named("host"))
	if err != nil {
		p.Done()
		return nil, err
	}
	return &env{
		cfg:      cfg,
		logger:   logger,
		provider: p,
		host:     h,
		origin:   loc.Origin(),
		out:      o.Out,
	}, nil
}
