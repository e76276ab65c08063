// Package auth is the session manager: it starts logins, completes them from
// the callback handoff or the address bar, keeps the session and role, and
// sends the user to their portal without looping.
package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/axa-poc/portalauth/browser"
	"github.com/axa-poc/portalauth/callback"
	"github.com/axa-poc/portalauth/jwt"
	"github.com/axa-poc/portalauth/oidc"
	"github.com/axa-poc/portalauth/session"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// LandingView is the public view users are sent to when authentication
// fails.
const LandingView = "home"

// DefaultExpiresIn is the session lifetime used when the provider reports
// none, or one that isn't usable.
const DefaultExpiresIn = 3600 * time.Second

// Outcome is what HandleAuthentication did.
type Outcome int

const (
	// OutcomeNone means there was nothing to process.
	OutcomeNone Outcome = iota

	// OutcomeAuthenticated means a session was established and the portal
	// navigation is scheduled.
	OutcomeAuthenticated

	// OutcomeIgnored means a benign provider error was swallowed.
	OutcomeIgnored

	// OutcomeFailed means a provider error sent the user to the landing
	// view.
	OutcomeFailed

	// OutcomeAborted means the saved session did not read back as
	// authenticated.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeFailed:
		return "failed"
	case OutcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Host is the set of browser capabilities a Manager runs against.
type Host struct {
	// Durable holds the session and the login transaction.
	Durable browser.Storage
	// Tab holds the callback handoff.
	Tab browser.Storage

	Location   browser.Location
	Scheduler  browser.Scheduler
	Redirector browser.Redirector
	Navigator  browser.Navigator
}

// Manager owns the authentication state machine.
type Manager struct {
	provider Provider
	config   *oidc.Config

	store   *session.Store
	handoff *session.HandoffStore
	tx      *transactionStore

	location   browser.Location
	scheduler  browser.Scheduler
	redirector browser.Redirector
	navigator  browser.Navigator

	guard  *guard
	delays Delays
	txTTL  time.Duration
	logger hclog.Logger
}

// NewManager creates a Manager.
// Supported options: WithLogger, WithDelays, WithTransactionTTL,
// WithMaxRedirectAttempts
func NewManager(p Provider, h Host, opt ...Option) (*Manager, error) {
	const op = "auth.NewManager"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	case p.Config() == nil:
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	case h.Location == nil:
		return nil, fmt.Errorf("%s: location is nil: %w", op, ErrNilParameter)
	case h.Scheduler == nil:
		return nil, fmt.Errorf("%s: scheduler is nil: %w", op, ErrNilParameter)
	case h.Redirector == nil:
		return nil, fmt.Errorf("%s: redirector is nil: %w", op, ErrNilParameter)
	case h.Navigator == nil:
		return nil, fmt.Errorf("%s: navigator is nil: %w", op, ErrNilParameter)
	}
	store, err := session.NewStore(h.Durable)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	handoff, err := session.NewHandoffStore(h.Tab)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getManagerOpts(opt...)
	return &Manager{
		provider:   p,
		config:     p.Config(),
		store:      store,
		handoff:    handoff,
		tx:         &transactionStore{storage: h.Durable},
		location:   h.Location,
		scheduler:  h.Scheduler,
		redirector: h.Redirector,
		navigator:  h.Navigator,
		guard:      newGuard(opts.withMaxAttempts),
		delays:     opts.withDelays,
		txTTL:      opts.withTransactionTTL,
		logger:     opts.withLogger,
	}, nil
}

// Login starts a login transaction and redirects to the provider's
// authorization page.  Failures are logged, never returned.
func (m *Manager) Login(ctx context.Context) {
	const op = "auth.(Manager).Login"
	m.logger.Info("initiating login", "op", op, "authenticated", m.IsAuthenticated())
	st, err := m.tx.begin(m.txTTL, m.scheduler.Now)
	if err != nil {
		m.logger.Error("unable to start login transaction", "op", op, "error", err)
		return
	}
	authURL, err := m.provider.AuthURL(ctx, st, oidc.WithNow(m.scheduler.Now))
	if err != nil {
		m.logger.Error("unable to build authorization url", "op", op, "error", err)
		return
	}
	if err := m.redirector.Redirect(ctx, authURL); err != nil {
		m.logger.Error("unable to redirect to authorization url", "op", op, "error", err)
	}
}

// Logout clears the session, the handoff and any pending login, then
// redirects to the provider's logout endpoint.  The redirect happens even
// when clearing fails; every failure is returned.
func (m *Manager) Logout(ctx context.Context) error {
	const op = "auth.(Manager).Logout"
	var retErr *multierror.Error
	if err := m.store.Clear(); err != nil {
		retErr = multierror.Append(retErr, err)
	}
	if err := m.handoff.Clear(); err != nil {
		retErr = multierror.Append(retErr, err)
	}
	if err := m.tx.clear(); err != nil {
		retErr = multierror.Append(retErr, err)
	}
	m.logger.Info("local session cleared, redirecting to provider logout", "op", op)
	logoutURL, err := m.provider.LogoutURL()
	if err != nil {
		retErr = multierror.Append(retErr, err)
	} else if err := m.redirector.Redirect(ctx, logoutURL); err != nil {
		retErr = multierror.Append(retErr, err)
	}
	if err := retErr.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Startup is the page load check: authentication is handled when the
// address is the callback route and a fragment was handed off, or when the
// handoff's process flag is set.
func (m *Manager) Startup(ctx context.Context) (Outcome, error) {
	const op = "auth.(Manager).Startup"
	onCallback := m.onCallbackRoute()
	hasFragment := m.handoff.HasFragment()
	shouldProcess := m.handoff.ShouldProcess()
	m.logger.Debug("callback check", "op", op, "on_callback", onCallback, "stored_fragment", hasFragment, "should_process", shouldProcess)
	if !(onCallback && hasFragment) && !shouldProcess {
		return OutcomeNone, nil
	}
	return m.HandleAuthentication(ctx)
}

func (m *Manager) onCallbackRoute() bool {
	route := m.config.CallbackRoute
	if i := strings.Index(route, "#"); i >= 0 {
		return strings.Contains(m.location.Hash(), route[i:])
	}
	return browser.Route(m.location) == route
}

// HandleAuthentication completes a login.  A handoff whose process flag is
// set wins over the address bar fragment.  The flag is cleared before
// parsing and the stored fragment right after.
func (m *Manager) HandleAuthentication(ctx context.Context) (Outcome, error) {
	const op = "auth.(Manager).HandleAuthentication"
	var (
		result   *callback.Result
		parseErr error
	)
	if h, ok := m.handoff.Read(); ok && h.ShouldProcess {
		m.logger.Debug("using stored callback fragment", "op", op)
		if err := m.handoff.ClearFlag(); err != nil {
			m.logger.Warn("unable to clear process flag", "op", op, "error", err)
		}
		result, parseErr = callback.Parse(h.Fragment)
		if err := m.handoff.ClearFragment(); err != nil {
			m.logger.Warn("unable to clear stored fragment", "op", op, "error", err)
		}
	} else {
		m.logger.Debug("no stored fragment, parsing address bar", "op", op)
		if segment, ok := callback.Extract(m.location.Hash()); ok {
			result, parseErr = callback.Parse("#" + segment)
		}
	}
	if result != nil || parseErr != nil {
		if err := m.checkTransaction(ctx, result); err != nil {
			result, parseErr = nil, err
		}
	}

	switch {
	case result != nil && result.AccessToken != "" && result.IdToken != "":
		return m.establish(ctx, result)
	case parseErr != nil:
		var authErr *callback.AuthenErrorResponse
		if errors.As(parseErr, &authErr) && authErr.IsBenign() {
			m.logger.Debug("ignoring parse error, no callback data present", "op", op, "code", authErr.Code)
			return OutcomeIgnored, nil
		}
		m.logger.Error("authentication error, going to landing view", "op", op, "error", parseErr)
		m.scheduler.AfterFunc(0, func() { m.goLanding(ctx) })
		return OutcomeFailed, fmt.Errorf("%s: %w", op, parseErr)
	default:
		m.logger.Debug("no authorization response to process", "op", op)
		return OutcomeNone, nil
	}
}

// checkTransaction consumes the pending login transaction and matches a
// token response against it.  Mismatches are reported as invalid_token, and
// id_token verification failures as invalid_signature.
func (m *Manager) checkTransaction(ctx context.Context, r *callback.Result) error {
	const op = "auth.(Manager).checkTransaction"
	st, ok, err := m.tx.consume()
	if err != nil {
		m.logger.Warn("unable to consume login transaction", "op", op, "error", err)
	}
	if r == nil || r.IdToken == "" {
		return nil
	}
	if !ok {
		if r.State != "" || m.config.VerifyIdTokens {
			return callback.NewAuthenErrorResponse(callback.ErrCodeInvalidToken, "no pending login transaction for this response")
		}
		return nil
	}
	if r.State != st.Id() {
		return callback.NewAuthenErrorResponse(callback.ErrCodeInvalidToken, "state does not match")
	}
	if st.IsExpired(oidc.WithNow(m.scheduler.Now)) {
		return callback.NewAuthenErrorResponse(callback.ErrCodeInvalidToken, "login transaction expired")
	}
	if m.config.VerifyIdTokens {
		err := m.provider.VerifyIdToken(ctx, oidc.IdToken(r.IdToken), st.Nonce(), oidc.WithNow(m.scheduler.Now))
		switch {
		case errors.Is(err, oidc.ErrInvalidNonce):
			return callback.NewAuthenErrorResponse(callback.ErrCodeInvalidToken, "nonce does not match")
		case err != nil:
			return callback.NewAuthenErrorResponse(callback.ErrCodeInvalidSignature, err.Error())
		}
		return nil
	}
	if err := oidc.CheckNonce(oidc.IdToken(r.IdToken), st.Nonce()); err != nil {
		return callback.NewAuthenErrorResponse(callback.ErrCodeInvalidToken, "nonce does not match")
	}
	return nil
}

// establish persists a token response, resolves the role and fetches the
// profile before scheduling the portal navigation.
func (m *Manager) establish(ctx context.Context, r *callback.Result) (Outcome, error) {
	const op = "auth.(Manager).establish"
	if err := m.persist(r); err != nil {
		m.logger.Error("unable to save session", "op", op, "error", err)
	}

	role := m.roleOf(r.IdToken)
	if err := m.store.SetRole(role); err != nil {
		m.logger.Error("unable to save role", "op", op, "error", err)
	}
	m.logger.Info("role resolved", "op", op, "role", role, "claim", m.config.RoleClaim())

	if !m.IsAuthenticated() {
		m.logger.Error("CRITICAL: session saved but does not read back as authenticated", "op", op)
		return OutcomeAborted, fmt.Errorf("%s: %w", op, ErrSessionNotPersisted)
	}

	var profile map[string]interface{}
	if err := m.provider.UserInfo(ctx, oidc.AccessToken(r.AccessToken), &profile); err != nil {
		m.logger.Warn("unable to fetch user profile, continuing without it", "op", op, "error", err)
		m.scheduler.AfterFunc(m.delays.ProfileFailure, func() { m.RedirectToPortal(ctx) })
		return OutcomeAuthenticated, nil
	}
	if err := m.store.SetProfile(profile); err != nil {
		m.logger.Warn("unable to save user profile", "op", op, "error", err)
	}
	m.scheduler.AfterFunc(m.delays.ProfileSuccess, func() { m.RedirectToPortal(ctx) })
	return OutcomeAuthenticated, nil
}

// persist saves the tokens and expiry of r.
func (m *Manager) persist(r *callback.Result) error {
	now := m.scheduler.Now()
	return m.store.Save(session.Session{
		AccessToken: r.AccessToken,
		IdToken:     r.IdToken,
		ExpiresAt:   ExpiresAt(now, r.ExpiresIn),
	})
}

func (m *Manager) roleOf(idToken string) session.Role {
	claims := jwt.Decode(idToken, jwt.WithLogger(m.logger))
	v, _ := claims[m.config.RoleClaim()].(string)
	switch r := session.Role(v); {
	case r.Known():
		return r
	case v != "":
		m.logger.Warn("unrecognised role claim, using default role", "role", v, "default", session.DefaultRole)
	}
	return session.DefaultRole
}

// ExpiresAt returns the absolute expiry for a lifetime of expiresIn seconds
// reported at now.  Missing or unusable lifetimes default to
// DefaultExpiresIn, and the result is always strictly after now.
func ExpiresAt(now time.Time, expiresIn int64) time.Time {
	lifetime := DefaultExpiresIn
	if expiresIn > 0 && expiresIn <= int64(math.MaxInt64/int64(time.Second)) {
		lifetime = time.Duration(expiresIn) * time.Second
	}
	at := now.Add(lifetime)
	if !at.After(now) {
		at = now.Add(DefaultExpiresIn)
	}
	return at
}

// IsAuthenticated reports whether the stored session is usable now.
func (m *Manager) IsAuthenticated() bool {
	return m.store.Read().Authenticated(m.scheduler.Now())
}

// GetUserRole returns the stored role, defaulting to customer.
func (m *Manager) GetUserRole() session.Role {
	return m.store.Role()
}

func (m *Manager) GetAccessToken() string { return m.store.Read().AccessToken }
func (m *Manager) GetIdToken() string     { return m.store.Read().IdToken }

// GetExpiresAt returns the stored session expiry, or the zero time.
func (m *Manager) GetExpiresAt() time.Time { return m.store.Read().ExpiresAt }

// GetUserProfile returns the stored profile, or nil.
func (m *Manager) GetUserProfile() map[string]interface{} {
	return m.store.Read().Profile
}

// DecodeToken returns the unverified claims of token, for display.
func (m *Manager) DecodeToken(token string) map[string]interface{} {
	return jwt.Decode(token, jwt.WithLogger(m.logger))
}

// GuardState returns a snapshot of the redirect guard.
func (m *Manager) GuardState() GuardState {
	return m.guard.state()
}

// RedirectToPortal navigates to the view of the current role.  Reentrant
// calls while a navigation is in flight are ignored, and after too many
// attempts the user is sent to the landing view instead.
func (m *Manager) RedirectToPortal(ctx context.Context) {
	const op = "auth.(Manager).RedirectToPortal"
	attempt, res := m.guard.acquire()
	switch res {
	case acquireBusy:
		m.logger.Warn("already redirecting, skipping", "op", op)
		return
	case acquireExhausted:
		m.logger.Error("max redirect attempts reached, going to landing view", "op", op, "attempt", attempt, "max", m.guard.maxAttempts)
		m.goLanding(ctx)
		return
	}

	if !m.IsAuthenticated() {
		m.logger.Warn("not authenticated, re-checking shortly", "op", op, "delay", m.delays.AuthRetry)
		m.guard.release()
		m.scheduler.AfterFunc(m.delays.AuthRetry, func() {
			if !m.IsAuthenticated() {
				m.logger.Error("still not authenticated, going to landing view", "op", op)
				m.guard.recheckFailed()
				m.goLanding(ctx)
				return
			}
			m.RedirectToPortal(ctx)
		})
		return
	}

	role := m.GetUserRole()
	view := m.config.PortalView(string(role))
	m.logger.Info("redirecting to portal", "op", op, "view", view, "role", role, "attempt", attempt, "max", m.guard.maxAttempts)
	m.scheduler.AfterFunc(m.delays.PreNavigate, func() {
		if err := m.navigator.Go(ctx, view); err != nil {
			// attempts are kept so repeated failures reach the ceiling
			m.logger.Error("portal navigation failed", "op", op, "view", view, "error", err)
			m.guard.release()
			return
		}
		m.guard.done()
		m.scheduler.AfterFunc(m.delays.Settle, m.guard.settle)
	})
}

func (m *Manager) goLanding(ctx context.Context) {
	const op = "auth.(Manager).goLanding"
	if err := m.navigator.Go(ctx, LandingView); err != nil {
		m.logger.Error("unable to navigate to landing view", "op", op, "error", err)
	}
}

// RenewTokens silently re-authenticates against the provider session and
// saves the new tokens.
func (m *Manager) RenewTokens(ctx context.Context) (*callback.Result, error) {
	const op = "auth.(Manager).RenewTokens"
	st, err := oidc.NewState(m.txTTL, oidc.WithNow(m.scheduler.Now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result, err := m.provider.CheckSession(ctx, st, oidc.WithNow(m.scheduler.Now))
	if err != nil {
		m.logger.Error("unable to renew tokens", "op", op, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := m.persist(result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
