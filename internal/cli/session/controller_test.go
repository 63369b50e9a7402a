package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosense-dev/aerosense/internal/cli/client"
	"github.com/aerosense-dev/aerosense/internal/cli/nav"
	"github.com/aerosense-dev/aerosense/internal/cli/notify"
)

// fakeBackend lets each test script the API responses
type fakeBackend struct {
	mu           sync.Mutex
	loginFn      func(ctx context.Context, email, password string) (*client.LoginResponse, error)
	signupFn     func(ctx context.Context, fullName, email, password string) error
	profileFn    func(ctx context.Context) (*client.User, error)
	loginCalls   int
	signupCalls  int
	profileCalls int
}

func (f *fakeBackend) Login(ctx context.Context, email, password string) (*client.LoginResponse, error) {
	f.mu.Lock()
	f.loginCalls++
	fn := f.loginFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("unexpected login")
	}
	return fn(ctx, email, password)
}

func (f *fakeBackend) Signup(ctx context.Context, fullName, email, password string) error {
	f.mu.Lock()
	f.signupCalls++
	fn := f.signupFn
	f.mu.Unlock()
	if fn == nil {
		return errors.New("unexpected signup")
	}
	return fn(ctx, fullName, email, password)
}

func (f *fakeBackend) Profile(ctx context.Context) (*client.User, error) {
	f.mu.Lock()
	f.profileCalls++
	fn := f.profileFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("unexpected profile")
	}
	return fn(ctx)
}

func (f *fakeBackend) calls() (login, signup, profile int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.signupCalls, f.profileCalls
}

type harness struct {
	slot     *memSlot
	store    *Store
	api      *fakeBackend
	router   *nav.Router
	notes    *notify.Recorder
	ctrl     *Controller
	loadings []bool
}

func newHarness(t *testing.T, persisted string) *harness {
	t.Helper()

	h := &harness{
		slot:   &memSlot{token: persisted},
		api:    &fakeBackend{},
		router: nav.NewRouter(nav.RouteHome, zerolog.Nop()),
		notes:  &notify.Recorder{},
	}
	h.store = NewStore(h.slot, zerolog.Nop())
	h.store.Subscribe(func(s Session) { h.loadings = append(h.loadings, s.Loading) })
	h.ctrl = NewController(h.store, h.api, h.router, h.notes, zerolog.Nop(), Options{
		ValidationTimeout: time.Second,
		AutoLoginDelay:    time.Millisecond,
		AutoLoginRetries:  2,
	})
	return h
}

func (h *harness) lastNote(t *testing.T) notify.Notification {
	t.Helper()
	n, ok := h.notes.Last()
	require.True(t, ok, "expected a notification")
	return n
}

func validUser() *client.User {
	return &client.User{ID: "u1", FullName: "Ada Farmer", Email: "a@b.com"}
}

func TestStart_NoTokenIsAnonymous(t *testing.T) {
	h := newHarness(t, "")

	state, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAnonymous, state)

	_, _, profile := h.api.calls()
	assert.Zero(t, profile)
}

func TestStart_ValidTokenHydrates(t *testing.T) {
	h := newHarness(t, "persisted")
	h.api.profileFn = func(ctx context.Context) (*client.User, error) { return validUser(), nil }

	state, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, state)
	assert.Equal(t, "persisted", h.store.Token())
	assert.Equal(t, "u1", h.store.Snapshot().User.ID)

	// loading goes true once and false once
	assert.Equal(t, []bool{true, false}, h.loadings)
}

func TestStart_RejectedTokenIsCleared(t *testing.T) {
	h := newHarness(t, "expired")
	h.api.profileFn = func(ctx context.Context) (*client.User, error) {
		return nil, &client.HTTPError{Status: http.StatusUnauthorized, Message: "Invalid or expired token"}
	}

	state, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAnonymous, state)
	assert.Empty(t, h.slot.Token())
	assert.Equal(t, []bool{true, false}, h.loadings)
}

func TestStart_RunsOnce(t *testing.T) {
	h := newHarness(t, "persisted")
	h.api.profileFn = func(ctx context.Context) (*client.User, error) { return validUser(), nil }

	_, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)
	state, err := h.ctrl.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Equal(t, StateAuthenticated, state)

	_, _, profile := h.api.calls()
	assert.Equal(t, 1, profile)
}

func TestStart_TimeoutIsFailedValidation(t *testing.T) {
	h := newHarness(t, "persisted")
	h.ctrl.opts.ValidationTimeout = 20 * time.Millisecond
	h.api.profileFn = func(ctx context.Context) (*client.User, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	state, err := h.ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAnonymous, state)
	assert.False(t, h.store.Snapshot().Loading)
	assert.Empty(t, h.slot.Token())
}

func TestStart_ProfileAfterSignOutIsDiscarded(t *testing.T) {
	h := newHarness(t, "persisted")

	called := make(chan struct{})
	release := make(chan struct{})
	h.api.profileFn = func(ctx context.Context) (*client.User, error) {
		close(called)
		<-release
		return validUser(), nil
	}

	done := make(chan State)
	go func() {
		state, _ := h.ctrl.Start(context.Background())
		done <- state
	}()

	<-called
	h.ctrl.SignOut()
	close(release)

	assert.Equal(t, StateAnonymous, <-done)
	assert.Nil(t, h.store.Snapshot().User)
	assert.Empty(t, h.slot.Token())
}

func TestSignIn_Success(t *testing.T) {
	h := newHarness(t, "")
	_, _ = h.ctrl.Start(context.Background())
	h.api.loginFn = func(ctx context.Context, email, password string) (*client.LoginResponse, error) {
		return &client.LoginResponse{Token: "backend-token", User: *validUser()}, nil
	}

	require.NoError(t, h.ctrl.SignIn(context.Background(), "a@b.com", "secret123"))

	assert.Equal(t, StateAuthenticated, h.store.Snapshot().State())
	assert.Equal(t, "backend-token", h.slot.Token())
	assert.Equal(t, "backend-token", h.store.Token())
	assert.Equal(t, "Login successful", h.lastNote(t).Title)
	assert.Equal(t, nav.RouteDashboard, h.router.Location().Route)
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	h := newHarness(t, "")
	_, _ = h.ctrl.Start(context.Background())
	h.api.loginFn = func(ctx context.Context, email, password string) (*client.LoginResponse, error) {
		return nil, &client.HTTPError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	}

	err := h.ctrl.SignIn(context.Background(), "a@b.com", "wrong")
	require.Error(t, err)

	var rej *client.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, client.KindUnauthenticated, rej.Kind)

	assert.Equal(t, StateAnonymous, h.store.Snapshot().State())
	note := h.lastNote(t)
	assert.Equal(t, "Invalid credentials", note.Description)
	assert.Equal(t, notify.VariantDestructive, note.Variant)
	assert.NotEqual(t, nav.RouteDashboard, h.router.Location().Route)
}

func TestSignIn_GenericMessage(t *testing.T) {
	h := newHarness(t, "")
	h.api.loginFn = func(ctx context.Context, email, password string) (*client.LoginResponse, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	require.Error(t, h.ctrl.SignIn(context.Background(), "a@b.com", "pw"))
	assert.Equal(t, msgLoginFailed, h.lastNote(t).Description)
}

func TestSignIn_EmptyFieldsNeverCallBackend(t *testing.T) {
	h := newHarness(t, "")

	err := h.ctrl.SignIn(context.Background(), "", "pw")
	assert.Equal(t, client.KindValidation, client.KindOf(err))
	login, _, _ := h.api.calls()
	assert.Zero(t, login)
}

func TestSignIn_SupersededResultDiscarded(t *testing.T) {
	h := newHarness(t, "")
	_, _ = h.ctrl.Start(context.Background())

	called := make(chan struct{})
	release := make(chan struct{})
	h.api.loginFn = func(ctx context.Context, email, password string) (*client.LoginResponse, error) {
		close(called)
		<-release
		return &client.LoginResponse{Token: "late", User: *validUser()}, nil
	}

	errc := make(chan error)
	go func() { errc <- h.ctrl.SignIn(context.Background(), "a@b.com", "pw") }()

	<-called
	require.NoError(t, h.store.Set("other", &client.User{ID: "u9"}))
	close(release)

	assert.ErrorIs(t, <-errc, ErrSuperseded)
	assert.Equal(t, "other", h.slot.Token())
	assert.Equal(t, "u9", h.store.Snapshot().User.ID)
}

func TestSignUp_Conflict(t *testing.T) {
	h := newHarness(t, "")
	h.api.signupFn = func(ctx context.Context, fullName, email, password string) error {
		return &client.HTTPError{Status: http.StatusConflict, Message: "duplicate key"}
	}

	err := h.ctrl.SignUp(context.Background(), "Ada Farmer", "a@b.com", "secret123")
	var rej *client.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, client.KindConflict, rej.Kind)
	assert.Equal(t, msgEmailTaken, rej.Message)
	assert.Equal(t, msgEmailTaken, h.lastNote(t).Description)

	login, _, _ := h.api.calls()
	assert.Zero(t, login)
}

func TestSignUp_BackendMessage(t *testing.T) {
	h := newHarness(t, "")
	h.api.signupFn = func(ctx context.Context, fullName, email, password string) error {
		return &client.HTTPError{Status: http.StatusBadRequest, Message: "Password too weak"}
	}

	err := h.ctrl.SignUp(context.Background(), "Ada", "a@b.com", "x")
	require.Error(t, err)
	assert.Equal(t, "Password too weak", h.lastNote(t).Description)
}

func TestSignUp_AutoLogin(t *testing.T) {
	h := newHarness(t, "")
	_, _ = h.ctrl.Start(context.Background())
	h.api.signupFn = func(ctx context.Context, fullName, email, password string) error { return nil }
	h.api.loginFn = func(ctx context.Context, email, password string) (*client.LoginResponse, error) {
		return &client.LoginResponse{Token: "fresh", User: *validUser()}, nil
	}

	require.NoError(t, h.ctrl.SignUp(context.Background(), "Ada Farmer", "a@b.com", "secret123"))
	assert.Equal(t, StateAuthenticated, h.store.Snapshot().State())
	assert.Equal(t, nav.RouteDashboard, h.router.Location().Route)

	titles := []string{}
	for _, n := range h.notes.All() {
		titles = append(titles, n.Title)
	}
	assert.Equal(t, []string{"Registration successful", "Login successful"}, titles)
}

func TestSignUp_AutoLoginRetriesTransientFailures(t *testing.T) {
	h := newHarness(t, "")
	_, _ = h.ctrl.Start(context.Background())
	h.api.signupFn = func(ctx context.Context, fullName, email, password string) error { return nil }

	attempts := 0
	h.api.loginFn = func(ctx context.Context, email, password string) (*client.LoginResponse, error) {
		attempts++
		if attempts == 1 {
			return nil, &client.HTTPError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
		}
		return &client.LoginResponse{Token: "fresh", User: *validUser()}, nil
	}

	require.NoError(t, h.ctrl.SignUp(context.Background(), "Ada", "a@b.com", "secret123"))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, StateAuthenticated, h.store.Snapshot().State())
}

func TestSignUp_AutoLoginFailureRoutesToSignIn(t *testing.T) {
	h := newHarness(t, "")
	_, _ = h.ctrl.Start(context.Background())
	h.api.signupFn = func(ctx context.Context, fullName, email, password string) error { return nil }
	h.api.loginFn = func(ctx context.Context, email, password string) (*client.LoginResponse, error) {
		return nil, &client.HTTPError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	}

	require.NoError(t, h.ctrl.SignUp(context.Background(), "Ada", "a@b.com", "secret123"))

	assert.Equal(t, StateAnonymous, h.store.Snapshot().State())
	assert.Equal(t, nav.RouteSignIn, h.router.Location().Route)
	assert.NotContains(t, h.router.History(), nav.RouteDashboard)

	login, _, _ := h.api.calls()
	assert.Equal(t, 3, login, "first attempt plus two retries")
}

func TestSignUp_AutoLoginStopsOnClientError(t *testing.T) {
	h := newHarness(t, "")
	h.api.signupFn = func(ctx context.Context, fullName, email, password string) error { return nil }
	h.api.loginFn = func(ctx context.Context, email, password string) (*client.LoginResponse, error) {
		return nil, &client.HTTPError{Status: http.StatusBadRequest, Message: "Malformed"}
	}

	require.NoError(t, h.ctrl.SignUp(context.Background(), "Ada", "a@b.com", "secret123"))
	login, _, _ := h.api.calls()
	assert.Equal(t, 1, login)
	assert.Equal(t, nav.RouteSignIn, h.router.Location().Route)
}

func TestSignOut_Idempotent(t *testing.T) {
	h := newHarness(t, "")
	_, _ = h.ctrl.Start(context.Background())
	before := h.store.Snapshot()

	h.ctrl.SignOut()
	h.ctrl.SignOut()

	assert.Equal(t, before, h.store.Snapshot())
	assert.Equal(t, nav.RouteSignIn, h.router.Location().Route)
	assert.Equal(t, "Logged out", h.lastNote(t).Title)
	assert.Equal(t, notify.VariantDefault, h.lastNote(t).Variant)
}

func TestSignOut_ClearsSession(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.store.Set("tok", validUser()))

	h.ctrl.SignOut()
	assert.Equal(t, StateAnonymous, h.store.Snapshot().State())
	assert.Empty(t, h.slot.Token())
}

func TestRefresh_ReplacesUser(t *testing.T) {
	h := newHarness(t, "")
	assert.ErrorIs(t, h.ctrl.Refresh(context.Background()), ErrAccessDenied)

	require.NoError(t, h.store.Set("tok", validUser()))
	before := h.store.Snapshot().User
	h.api.profileFn = func(ctx context.Context) (*client.User, error) {
		return &client.User{ID: "u1", FullName: "Ada Grower", Email: "a@b.com", Profile: &client.Profile{Role: "Agronomist"}}, nil
	}

	require.NoError(t, h.ctrl.Refresh(context.Background()))
	after := h.store.Snapshot().User
	assert.Equal(t, "Ada Grower", after.FullName)
	assert.Equal(t, "Ada Farmer", before.FullName, "old record is not mutated")
}

func TestRefresh_FailureKeepsUserAndNotifies(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.store.Set("tok", validUser()))
	h.api.profileFn = func(ctx context.Context) (*client.User, error) {
		return nil, &client.HTTPError{Status: http.StatusInternalServerError}
	}

	err := h.ctrl.Refresh(context.Background())
	var rej *client.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, msgRefreshFailed, rej.Message)
	assert.Equal(t, notify.Failure("Error", msgRefreshFailed), h.lastNote(t))
	assert.Equal(t, "Ada Farmer", h.store.Snapshot().User.FullName)
}
