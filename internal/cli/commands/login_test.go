package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosense-dev/aerosense/internal/cli/auth"
	"github.com/aerosense-dev/aerosense/internal/cli/client"
	"github.com/aerosense-dev/aerosense/internal/cli/config"
	"github.com/aerosense-dev/aerosense/internal/cli/nav"
	"github.com/aerosense-dev/aerosense/internal/cli/notify"
	"github.com/aerosense-dev/aerosense/internal/cli/session"
)

// mockTokenStore is a simple in-memory token store for testing
type mockTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{
		tokens: make(map[string]string),
	}
}

func (m *mockTokenStore) SaveToken(server, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[server] = token
	return nil
}

func (m *mockTokenStore) LoadToken(server string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, exists := m.tokens[server]
	if !exists {
		return "", auth.ErrNotAuthenticated
	}
	return token, nil
}

func (m *mockTokenStore) DeleteToken(server string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, server)
	return nil
}

func (m *mockTokenStore) get(server string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[server]
}

type testApp struct {
	*App
	out      *bytes.Buffer
	recorder *notify.Recorder
}

// newTestApp wires an app against serverURL the way loadApp does, with
// in-memory tokens and recorded notifications
func newTestApp(t *testing.T, serverURL string, tokens auth.TokenStore) *testApp {
	t.Helper()

	out := &bytes.Buffer{}
	recorder := &notify.Recorder{}
	logger := zerolog.Nop()

	app := newApp(
		&config.Server{Alias: "local", URL: serverURL},
		config.Timings{ValidationTimeout: 5 * time.Second, AutoLoginDelay: time.Millisecond},
		out,
		appOptions{tokens: tokens, notifier: recorder, logger: &logger},
	)
	return &testApp{App: app, out: out, recorder: recorder}
}

// noInput is a non-interactive prompter with nothing to read
func noInput(out *bytes.Buffer) *prompter {
	return newPrompter(strings.NewReader(""), out)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func clearCredentialEnv(t *testing.T) {
	t.Setenv(EnvEmail, "")
	t.Setenv(EnvPassword, "")
}

func TestRunLogin_NonInteractiveRequiresCredentials(t *testing.T) {
	clearCredentialEnv(t)
	app := newTestApp(t, "http://127.0.0.1:0", newMockTokenStore())

	err := runLogin(context.Background(), app.App, noInput(app.out), app.out, "", "")
	assert.ErrorContains(t, err, "email is required")

	err = runLogin(context.Background(), app.App, noInput(app.out), app.out, "ada@farm.io", "")
	assert.ErrorContains(t, err, "password is required")
}

func TestRunLogin_UsesEnvironment(t *testing.T) {
	var got client.LoginRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token": "tok-1",
			"user":  map[string]string{"id": "u1", "fullName": "Ada Farmer", "email": "ada@farm.io"},
		})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	t.Setenv(EnvEmail, "ada@farm.io")
	t.Setenv(EnvPassword, "secret123")

	tokens := newMockTokenStore()
	app := newTestApp(t, ts.URL, tokens)

	require.NoError(t, runLogin(context.Background(), app.App, noInput(app.out), app.out, "", ""))
	assert.Equal(t, client.LoginRequest{Email: "ada@farm.io", Password: "secret123"}, got)
	assert.Equal(t, "tok-1", tokens.get(ts.URL))
	assert.Equal(t, nav.RouteDashboard, app.Router.Location().Route)
	assert.Contains(t, app.out.String(), "User: Ada Farmer (ada@farm.io)")
}

func TestRunLogin_InvalidCredentials(t *testing.T) {
	clearCredentialEnv(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	tokens := newMockTokenStore()
	app := newTestApp(t, ts.URL, tokens)

	err := runLogin(context.Background(), app.App, noInput(app.out), app.out, "ada@farm.io", "wrong")

	var rej *client.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "Invalid credentials", rej.Message)
	assert.Empty(t, tokens.get(ts.URL))
	assert.Equal(t, session.StateAnonymous, app.Store.Snapshot().State())

	last, ok := app.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, notify.Failure("Login failed", "Invalid credentials"), last)
}

func TestRunLogin_StaleTokenIsReplaced(t *testing.T) {
	clearCredentialEnv(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid or expired token"})
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token": "fresh",
			"user":  map[string]string{"id": "u1", "fullName": "Ada Farmer", "email": "ada@farm.io"},
		})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	tokens := newMockTokenStore()
	require.NoError(t, tokens.SaveToken(ts.URL, "expired"))
	app := newTestApp(t, ts.URL, tokens)

	require.NoError(t, runLogin(context.Background(), app.App, noInput(app.out), app.out, "ada@farm.io", "secret123"))
	assert.Equal(t, "fresh", tokens.get(ts.URL))
	assert.True(t, app.Store.Snapshot().Authenticated())
}

func TestRunSignup_EmailTaken(t *testing.T) {
	clearCredentialEnv(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "User already exists"})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	app := newTestApp(t, ts.URL, newMockTokenStore())

	err := runSignup(context.Background(), app.App, noInput(app.out), app.out, "Ada Farmer", "ada@farm.io", "secret123")

	var rej *client.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, client.KindConflict, rej.Kind)
	assert.Equal(t, session.StateAnonymous, app.Store.Snapshot().State())
}

func TestRunSignup_AutoLoginFailureSuggestsLogin(t *testing.T) {
	clearCredentialEnv(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Account pending approval"})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	app := newTestApp(t, ts.URL, newMockTokenStore())

	require.NoError(t, runSignup(context.Background(), app.App, noInput(app.out), app.out, "Ada Farmer", "ada@farm.io", "secret123"))
	assert.Contains(t, app.out.String(), "Run 'aerosense login'")
	assert.Equal(t, nav.RouteSignIn, app.Router.Location().Route)
}

func TestRunSignup_InteractiveConfirmMismatch(t *testing.T) {
	clearCredentialEnv(t)
	app := newTestApp(t, "http://127.0.0.1:0", newMockTokenStore())

	p := newPrompter(strings.NewReader("secret123\nsecret124\n"), app.out)
	p.interactive = true

	err := runSignup(context.Background(), app.App, p, app.out, "Ada Farmer", "ada@farm.io", "")
	assert.ErrorIs(t, err, errPasswordMismatch)
	assert.Contains(t, app.out.String(), "Confirm password: ")
}

func TestRunAccount_RedirectsWithoutToken(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:0", newMockTokenStore())

	err := runAccount(context.Background(), app.App, app.out, false)
	assert.ErrorIs(t, err, session.ErrAccessDenied)

	loc := app.Router.Location()
	assert.Equal(t, nav.RouteSignIn, loc.Route)
	assert.Equal(t, nav.GuardState{From: nav.RouteAccount}, loc.State)
}

func TestRunLogout_ClearsToken(t *testing.T) {
	tokens := newMockTokenStore()
	require.NoError(t, tokens.SaveToken("http://127.0.0.1:0", "tok-1"))
	app := newTestApp(t, "http://127.0.0.1:0", tokens)

	runLogout(app.App)
	runLogout(app.App)

	assert.Empty(t, tokens.get("http://127.0.0.1:0"))
	assert.Equal(t, nav.RouteSignIn, app.Router.Location().Route)
	last, ok := app.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, "Logged out", last.Title)
}
