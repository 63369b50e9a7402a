package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/aerosense-dev/aerosense/internal/cli/client"
	"github.com/aerosense-dev/aerosense/internal/cli/nav"
	"github.com/aerosense-dev/aerosense/internal/cli/notify"
)

const (
	msgLoginFailed    = "An error occurred during login"
	msgMissingLogin   = "Please enter your email and password"
	msgSignupFailed   = "An error occurred during registration"
	msgEmailTaken     = "This email address is already registered. Please use a different email or login."
	msgMissingSignup  = "Please fill in your name, email and password"
	msgSessionChanged = "Your session changed while signing in. Please try again."
	msgRefreshFailed  = "Could not load your profile"
)

var (
	ErrAlreadyStarted = errors.New("session: startup validation already ran")
	// ErrSuperseded is returned when a sign-in finished after the session
	// had already changed identity; its result was discarded.
	ErrSuperseded = errors.New("session: sign-in superseded by a newer session change")
)

// Backend is the slice of the API the controller needs
type Backend interface {
	Login(ctx context.Context, email, password string) (*client.LoginResponse, error)
	Signup(ctx context.Context, fullName, email, password string) error
	Profile(ctx context.Context) (*client.User, error)
}

// Options tunes timing of the controller
type Options struct {
	// ValidationTimeout bounds the startup profile fetch
	ValidationTimeout time.Duration
	// AutoLoginDelay is the wait between a successful sign-up and the
	// first automatic sign-in attempt; it also seeds the retry backoff.
	AutoLoginDelay time.Duration
	// AutoLoginRetries is how many extra sign-in attempts follow the first
	AutoLoginRetries uint64
}

// DefaultOptions returns the production timings
func DefaultOptions() Options {
	return Options{
		ValidationTimeout: 10 * time.Second,
		AutoLoginDelay:    500 * time.Millisecond,
		AutoLoginRetries:  2,
	}
}

// Controller drives the session state machine:
// Uninitialized -> Validating -> {Authenticated, Anonymous}.
type Controller struct {
	store     *Store
	api       Backend
	navigator nav.Navigator
	notifier  notify.Notifier
	logger    zerolog.Logger
	opts      Options

	startOnce sync.Once
}

// NewController wires a controller. Zero option fields take defaults.
func NewController(store *Store, api Backend, navigator nav.Navigator, notifier notify.Notifier, logger zerolog.Logger, opts Options) *Controller {
	def := DefaultOptions()
	if opts.ValidationTimeout <= 0 {
		opts.ValidationTimeout = def.ValidationTimeout
	}
	if opts.AutoLoginDelay <= 0 {
		opts.AutoLoginDelay = def.AutoLoginDelay
	}
	return &Controller{
		store:     store,
		api:       api,
		navigator: navigator,
		notifier:  notifier,
		logger:    logger,
		opts:      opts,
	}
}

// Store returns the store the controller writes to
func (c *Controller) Store() *Store {
	return c.store
}

// Start loads the persisted token and validates it against the profile
// endpoint. It runs at most once per controller; later calls return
// ErrAlreadyStarted. Validation failures end in the anonymous state and
// are not returned.
func (c *Controller) Start(ctx context.Context) (State, error) {
	first := false
	c.startOnce.Do(func() { first = true })
	if !first {
		return c.store.Snapshot().State(), ErrAlreadyStarted
	}

	token, err := c.store.Init()
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to read persisted token")
		return c.store.Snapshot().State(), nil
	}
	if token == "" {
		c.logger.Debug().Msg("No persisted token, starting anonymous")
		return c.store.Snapshot().State(), nil
	}

	vctx, cancel := context.WithTimeout(ctx, c.opts.ValidationTimeout)
	defer cancel()

	user, err := c.api.Profile(vctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error fetching user profile")
		c.store.InvalidateToken(token)
		c.store.FinishLoading()
		return c.store.Snapshot().State(), nil
	}

	if !c.store.Hydrate(token, user) {
		c.logger.Debug().Msg("Discarding stale profile response")
	}
	c.store.FinishLoading()
	return c.store.Snapshot().State(), nil
}

// Refresh re-fetches the profile and replaces the user wholesale
func (c *Controller) Refresh(ctx context.Context) error {
	token := c.store.Token()
	if token == "" {
		return ErrAccessDenied
	}

	user, err := c.api.Profile(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error refreshing user profile")
		rej := client.Reject(err, msgRefreshFailed)
		c.notifier.Notify(notify.Failure("Error", rej.Message))
		return rej
	}
	if !c.store.Hydrate(token, user) {
		c.logger.Debug().Msg("Discarding stale profile response")
	}
	return nil
}

// SignIn authenticates with email and password. On success the session
// is authenticated and the dashboard opens; on failure the session is
// unchanged and a *client.Rejection is returned.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	return c.signIn(ctx, email, password, true)
}

func (c *Controller) signIn(ctx context.Context, email, password string, notifyFailure bool) error {
	if strings.TrimSpace(email) == "" || password == "" {
		rej := client.Reject(&client.ValidationError{Field: "email", Message: msgMissingLogin}, msgMissingLogin)
		if notifyFailure {
			c.notifier.Notify(notify.Failure("Login failed", rej.Message))
		}
		return rej
	}

	c.logger.Debug().Str("email", email).Msg("Attempting login")

	epoch := c.store.Epoch()
	resp, err := c.api.Login(ctx, email, password)
	if err != nil {
		c.logger.Error().Err(err).Str("email", email).Str("kind", client.KindOf(err).String()).Msg("Login error")
		rej := client.Reject(err, msgLoginFailed)
		if notifyFailure {
			c.notifier.Notify(notify.Failure("Login failed", rej.Message))
		}
		return rej
	}

	ok, err := c.store.SetIfEpoch(epoch, resp.Token, &resp.User)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to persist session")
		rej := client.Reject(fmt.Errorf("persist session: %w", err), msgLoginFailed)
		if notifyFailure {
			c.notifier.Notify(notify.Failure("Login failed", rej.Message))
		}
		return rej
	}
	if !ok {
		c.logger.Warn().Str("email", email).Msg("Discarding sign-in result, session changed meanwhile")
		if notifyFailure {
			c.notifier.Notify(notify.Failure("Login failed", msgSessionChanged))
		}
		return ErrSuperseded
	}

	c.logger.Debug().
		Str("user_id", resp.User.ID).
		Bool("has_profile", resp.User.Profile != nil).
		Msg("User data set in session")

	c.notifier.Notify(notify.Success("Login successful", "Welcome back to AeroSense Dashboard"))
	c.navigator.Navigate(nav.RouteDashboard, nil)
	return nil
}

// SignUp registers an account and then signs in with the same
// credentials. A failed automatic sign-in routes to the sign-in page and
// is not returned; only registration failures are.
func (c *Controller) SignUp(ctx context.Context, fullName, email, password string) error {
	if strings.TrimSpace(fullName) == "" || strings.TrimSpace(email) == "" || password == "" {
		rej := client.Reject(&client.ValidationError{Field: "fullName", Message: msgMissingSignup}, msgMissingSignup)
		c.notifier.Notify(notify.Failure("Registration failed", rej.Message))
		return rej
	}

	if err := c.api.Signup(ctx, fullName, email, password); err != nil {
		c.logger.Error().Err(err).Str("email", email).Msg("Signup error")

		rej := client.Reject(err, msgSignupFailed)
		if rej.Kind == client.KindConflict {
			rej.Message = msgEmailTaken
		}
		c.notifier.Notify(notify.Failure("Registration failed", rej.Message))
		return rej
	}

	c.notifier.Notify(notify.Success("Registration successful", "Account created successfully!"))

	if err := c.autoSignIn(ctx, email, password); err != nil {
		c.logger.Error().Err(err).Str("email", email).Msg("Auto-login failed after registration")
		c.navigator.Navigate(nav.RouteSignIn, nil)
	}
	return nil
}

// autoSignIn waits for the backend to make the new account readable and
// signs in, retrying with exponential backoff while the failure looks
// like propagation lag.
func (c *Controller) autoSignIn(ctx context.Context, email, password string) error {
	timer := time.NewTimer(c.opts.AutoLoginDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
	}

	backoff := retry.WithMaxRetries(c.opts.AutoLoginRetries, retry.NewExponential(c.opts.AutoLoginDelay))

	var last error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.signIn(ctx, email, password, false)
		if err == nil {
			return nil
		}
		last = err
		if retryableAutoLogin(err) {
			c.logger.Debug().Err(err).Msg("Automatic sign-in not yet possible, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if last == nil {
			last = err
		}
		c.notifier.Notify(notify.Failure("Login failed", client.MessageOf(last, msgLoginFailed)))
	}
	return err
}

// retryableAutoLogin reports whether a failed sign-in right after sign-up
// may succeed later: the account not being visible yet surfaces as a 401
// or 404, and transport or server errors are transient.
func retryableAutoLogin(err error) bool {
	if errors.Is(err, ErrSuperseded) {
		return false
	}
	switch client.KindOf(err) {
	case client.KindTransport:
		return !errors.Is(err, context.Canceled)
	case client.KindUnauthenticated:
		return true
	case client.KindBackend:
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr.Status == http.StatusNotFound || httpErr.Status >= http.StatusInternalServerError
		}
	}
	return false
}

// SignOut clears the persisted token and the session and opens the
// sign-in page. It cannot fail from the user's point of view.
func (c *Controller) SignOut() {
	changed, err := c.store.Clear()
	if err != nil {
		c.logger.Error().Err(err).Msg("Error signing out")
	}
	if !changed {
		c.logger.Debug().Msg("Sign-out on an empty session")
	}

	c.navigator.Navigate(nav.RouteSignIn, nil)
	c.notifier.Notify(notify.Success("Logged out", "You have been logged out successfully"))
}
