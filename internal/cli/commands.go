package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/axa-poc/portalauth/app"
	"github.com/axa-poc/portalauth/router"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// maxFetchBody caps how much of a fetched response is printed.
const maxFetchBody = 64 << 10

type envFunc func() (*env, error)

// withPage builds an env, loads href (the portal origin when empty) and
// runs fn on the loaded page.  Timers started by fn finish, and the
// same-origin pages fn redirects to are loaded, before the command returns.
func withPage(cmd *cobra.Command, newEnv envFunc, href string, fn func(ctx context.Context, e *env, page *app.Page) error) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	page, err := e.visit(ctx, href)
	if err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	if err := fn(ctx, e, page); err != nil {
		return err
	}
	if err := e.host.Wait(ctx); err != nil {
		return err
	}
	return e.follow(ctx)
}

func newLoginCommand(newEnv envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Start a login at the identity provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPage(cmd, newEnv, "", func(ctx context.Context, e *env, page *app.Page) error {
				e.host.Do(func() { page.Manager.Login(ctx) })
				fmt.Fprintln(e.out, "after signing in, run: portal open '<address the provider redirected to>'")
				return nil
			})
		},
	}
}

func newOpenCommand(newEnv envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "open <url>",
		Short: "Load a portal address, e.g. the provider's redirect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPage(cmd, newEnv, args[0], func(_ context.Context, e *env, page *app.Page) error {
				if page.StartupErr != nil {
					fmt.Fprintf(e.out, "authentication %s: %s\n", page.Outcome, page.StartupErr)
				}
				return nil
			})
		},
	}
}

func newStatusCommand(newEnv envFunc) *cobra.Command {
	var claims bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPage(cmd, newEnv, "", func(_ context.Context, e *env, page *app.Page) error {
				return printStatus(e.out, page, claims)
			})
		},
	}
	cmd.Flags().BoolVar(&claims, "claims", false, "print the decoded id_token claims")
	return cmd
}

func printStatus(out io.Writer, page *app.Page, claims bool) error {
	m := page.Manager
	role := m.GetUserRole()
	fmt.Fprintf(out, "authenticated: %t\n", m.IsAuthenticated())
	fmt.Fprintf(out, "role: %s (%s)\n", role, router.RoleDisplayName(role))
	if exp := m.GetExpiresAt(); !exp.IsZero() {
		fmt.Fprintf(out, "expires: %s\n", exp.UTC().Format(time.RFC3339))
	}
	profile := m.GetUserProfile()
	for _, k := range []string{"name", "email"} {
		if v, ok := profile[k].(string); ok {
			fmt.Fprintf(out, "%s: %s\n", k, v)
		}
	}
	fmt.Fprintf(out, "portal: %s\n", page.Router.PortalLink())
	if !claims {
		return nil
	}
	data, err := yaml.Marshal(m.DecodeToken(m.GetIdToken()))
	if err != nil {
		return fmt.Errorf("cli.printStatus: unable to encode claims: %w", err)
	}
	fmt.Fprint(out, string(data))
	return nil
}

func newLogoutCommand(newEnv envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the session and log out at the identity provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPage(cmd, newEnv, "", func(ctx context.Context, e *env, page *app.Page) error {
				var err error
				e.host.Do(func() { err = page.Manager.Logout(ctx) })
				return err
			})
		},
	}
}

func newRenewCommand(newEnv envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "renew",
		Short: "Renew the tokens from the provider session without a prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPage(cmd, newEnv, "", func(ctx context.Context, e *env, page *app.Page) error {
				var err error
				e.host.Do(func() { _, err = page.Manager.RenewTokens(ctx) })
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "renewed, expires: %s\n", page.Manager.GetExpiresAt().UTC().Format(time.RFC3339))
				return nil
			})
		},
	}
}

func newFetchCommand(newEnv envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url>",
		Short: "GET a url with the session's access token attached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPage(cmd, newEnv, "", func(ctx context.Context, e *env, page *app.Page) error {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, args[0], nil)
				if err != nil {
					return err
				}
				resp, err := page.Client().Do(req)
				if err != nil {
					return err
				}
				defer resp.Body.Close()
				fmt.Fprintln(e.out, resp.Status)
				_, err = io.Copy(e.out, io.LimitReader(resp.Body, maxFetchBody))
				return err
			})
		},
	}
}

func newGoCommand(newEnv envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "go <view>",
		Short: "Navigate to a view, running its entry check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPage(cmd, newEnv, "", func(ctx context.Context, e *env, page *app.Page) error {
				var err error
				e.host.Do(func() { err = page.Router.Go(ctx, args[0]) })
				if errors.Is(err, router.ErrTransitionRejected) {
					fmt.Fprintf(e.out, "%s rejected\n", args[0])
					return nil
				}
				return err
			})
		},
	}
}

func newStorageCommand(flags *rootFlags, o Options) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "List (or clear) the keys of both storage scopes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			h, err := NewHost(cfg.DB, "", o.Out, o.Open, newLogger(cfg).Named("host"))
			if err != nil {
				return err
			}
			defer h.Close()
			if reset {
				return h.Reset()
			}
			durable, tab, err := h.Keys()
			if err != nil {
				return err
			}
			sort.Strings(durable)
			sort.Strings(tab)
			for _, k := range durable {
				fmt.Fprintf(o.Out, "local %s\n", k)
			}
			for _, k := range tab {
				fmt.Fprintf(o.Out, "session %s\n", k)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "remove every key")
	return cmd
}
