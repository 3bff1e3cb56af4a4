package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/crm-admin-client/pkg/client"
	"github.com/Sternrassler/crm-admin-client/pkg/listctl"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Default routes handed to the Navigator.
const (
	RouteAfterLogin  = "/dashboard"
	RouteAfterLogout = "/login"
)

// Backend performs the login and logout calls.
type Backend interface {
	Login(ctx context.Context, email, password string) (token string, user User, err error)
	Logout(ctx context.Context, token string) error
}

// Navigator moves the presentation layer to a route after login and logout.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// Config configures an Authenticator.
type Config struct {
	Backend   Backend
	Store     Store
	Navigator Navigator

	AfterLogin  string
	AfterLogout string

	// Now is the clock used for expiry checks.
	Now func() time.Time
}

// Authenticator owns the session lifecycle. It implements client.TokenSource.
type Authenticator struct {
	backend Backend
	store   Store
	nav     Navigator
	routes  [2]string
	now     func() time.Time
	logger  zerolog.Logger
}

var _ client.TokenSource = (*Authenticator)(nil)

// New creates an Authenticator. Backend and Store are required.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.AfterLogin == "" {
		cfg.AfterLogin = RouteAfterLogin
	}
	if cfg.AfterLogout == "" {
		cfg.AfterLogout = RouteAfterLogout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Authenticator{
		backend: cfg.Backend,
		store:   cfg.Store,
		nav:     cfg.Navigator,
		routes:  [2]string{cfg.AfterLogin, cfg.AfterLogout},
		now:     cfg.Now,
		logger:  log.With().Str("component", "auth").Logger(),
	}, nil
}

// Login exchanges credentials for a session, persists it and navigates to
// the post-login route. Any previous session is cleared first.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", listctl.ErrValidation)
	}

	if err := a.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear previous session: %w", err)
	}

	token, user, err := a.backend.Login(ctx, email, password)
	if err != nil {
		a.logger.Warn().Err(err).Str("email", email).Msg("Login failed")
		return nil, err
	}

	now := a.now()
	session := &Session{Token: token, User: user, CreatedAt: now}
	if exp, err := TokenExpiry(token); err != nil {
		a.logger.Debug().Err(err).Msg("Token carries no readable expiry")
	} else {
		session.ExpiresAt = exp
	}

	if err := a.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	a.logger.Info().
		Str("user", user.Email).
		Time("expires_at", session.ExpiresAt).
		Msg("Logged in")

	if a.nav != nil {
		a.nav.Navigate(a.routes[0])
	}
	return session, nil
}

// Logout tells the API (best effort), clears the stored session and
// navigates to the post-logout route.
func (a *Authenticator) Logout(ctx context.Context) error {
	session, err := a.store.Load(ctx)
	if err != nil && !errors.Is(err, ErrNoSession) {
		a.logger.Warn().Err(err).Msg("Failed to load session before logout")
	}
	if session != nil && !session.Expired(a.now()) {
		if err := a.backend.Logout(ctx, session.Token); err != nil {
			a.logger.Warn().Err(err).Msg("Server-side logout failed")
		}
	}

	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	a.logger.Info().Msg("Logged out")

	if a.nav != nil {
		a.nav.Navigate(a.routes[1])
	}
	return nil
}

// Current returns the stored session. Expired sessions are cleared and
// reported as ErrSessionExpired.
func (a *Authenticator) Current(ctx context.Context) (*Session, error) {
	session, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if session.Expired(a.now()) {
		if err := a.store.Clear(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to clear expired session")
		}
		return nil, ErrSessionExpired
	}
	return session, nil
}

// Token implements client.TokenSource. Without a session it returns an
// empty token so unauthenticated calls such as login still go out.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	session, err := a.Current(ctx)
	switch {
	case errors.Is(err, ErrNoSession):
		return "", nil
	case err != nil:
		return "", err
	}
	return session.Token, nil
}

// HTTPBackend calls POST /auth/login and POST /auth/logout.
type HTTPBackend struct {
	client *client.Client
}

// NewHTTPBackend uses c for the auth endpoints.
func NewHTTPBackend(c *client.Client) *HTTPBackend {
	return &HTTPBackend{client: c}
}

func (b *HTTPBackend) Login(ctx context.Context, email, password string) (string, User, error) {
	body := map[string]string{"email": email, "password": password}

	var out struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	if err := b.client.Send(ctx, http.MethodPost, "/auth/login", nil, body, &out); err != nil {
		if client.IsUnauthorized(err) {
			return "", User{}, ErrInvalidCredentials
		}
		return "", User{}, fmt.Errorf("login: %w", err)
	}
	if out.Token == "" {
		return "", User{}, fmt.Errorf("login: response carried no token")
	}
	return out.Token, out.User, nil
}

// Logout revokes token on the server.
func (b *HTTPBackend) Logout(ctx context.Context, token string) error {
	req, err := b.client.NewRequest(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	resp.Body.Close()
	return nil
}
