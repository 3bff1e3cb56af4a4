package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/crm-admin-client/internal/testutil"
	"github.com/Sternrassler/crm-admin-client/pkg/client"
	"github.com/Sternrassler/crm-admin-client/pkg/listctl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNavigator struct {
	routes []string
}

func (n *recordingNavigator) Navigate(route string) {
	n.routes = append(n.routes, route)
}

type fixture struct {
	mock  *testutil.MockCRM
	store *MemoryStore
	nav   *recordingNavigator
	auth  *Authenticator
	api   *client.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mock := testutil.NewMockCRM()
	t.Cleanup(mock.Close)
	mock.AddUser(testutil.MockUser{ID: "u1", Email: "ana@crm.local", Name: "Ana", Role: "admin", Password: "s3cret"})
	mock.RequireAuth(true)

	f := &fixture{mock: mock, store: NewMemoryStore(), nav: &recordingNavigator{}}

	cfg := client.DefaultConfig(mock.URL(), nil)
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	api, err := client.New(cfg)
	require.NoError(t, err)

	a, err := New(Config{Backend: NewHTTPBackend(api), Store: f.store, Navigator: f.nav})
	require.NoError(t, err)

	// The client authenticates with the session the Authenticator holds.
	cfg.Tokens = a
	f.api, err = client.New(cfg)
	require.NoError(t, err)

	f.auth = a
	return f
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Store: NewMemoryStore()})
	assert.EqualError(t, err, "backend is required")

	_, err = New(Config{Backend: NewHTTPBackend(nil)})
	assert.EqualError(t, err, "store is required")
}

func TestLogin_PersistsSessionAndNavigates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.auth.Login(ctx, " ana@crm.local ", "s3cret")
	require.NoError(t, err)

	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "Ana", session.User.Name)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)
	assert.Equal(t, []string{RouteAfterLogin}, f.nav.routes)

	stored, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Token, stored.Token)

	// Authenticated calls now succeed.
	leads := client.NewResource[map[string]any, int64](f.api, "/leads")
	_, err = leads.List(ctx, listctl.Query{Page: 1, PageSize: 20})
	assert.NoError(t, err)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Login(context.Background(), "ana@crm.local", "wrong")

	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	assert.Empty(t, f.nav.routes)
	_, err = f.store.Load(context.Background())
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestLogin_MissingFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Login(context.Background(), "  ", "pw")

	assert.True(t, errors.Is(err, listctl.ErrValidation))
	assert.Equal(t, listctl.KindValidation, listctl.Classify(err))
	assert.Zero(t, f.mock.RequestCount("POST /auth/login"), "no request for invalid input")
}

func TestLogout_ClearsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Login(ctx, "ana@crm.local", "s3cret")
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx))

	_, err = f.auth.Current(ctx)
	assert.True(t, errors.Is(err, ErrNoSession))
	assert.Equal(t, []string{RouteAfterLogin, RouteAfterLogout}, f.nav.routes)
	assert.Equal(t, 1, f.mock.RequestCount("POST /auth/logout"))

	leads := client.NewResource[map[string]any, int64](f.api, "/leads")
	_, err = leads.List(ctx, listctl.Query{Page: 1, PageSize: 20})
	assert.True(t, client.IsUnauthorized(err))
}

func TestLogout_WithoutSession(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.auth.Logout(context.Background()))
	assert.Zero(t, f.mock.RequestCount("POST /auth/logout"))
	assert.Equal(t, []string{RouteAfterLogout}, f.nav.routes)
}

func TestCurrent_ExpiredSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Save(ctx, &Session{Token: "old", ExpiresAt: time.Now().Add(-time.Second)}))

	_, err := f.auth.Current(ctx)
	assert.True(t, errors.Is(err, ErrSessionExpired))

	_, err = f.store.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoSession), "expired session is cleared")
}

func TestToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.auth.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token, "no session means anonymous")

	require.NoError(t, f.store.Save(ctx, &Session{Token: "abc"}))
	token, err = f.auth.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, f.store.Save(ctx, &Session{Token: "abc", ExpiresAt: time.Now().Add(-time.Minute)}))
	_, err = f.auth.Token(ctx)
	assert.True(t, errors.Is(err, ErrSessionExpired))
}

func TestNavigatorFunc(t *testing.T) {
	var got string
	NavigatorFunc(func(route string) { got = route }).Navigate("/x")
	assert.Equal(t, "/x", got)
}
