package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/crm-admin-client/pkg/auth"
	"github.com/Sternrassler/crm-admin-client/pkg/client"
	"github.com/Sternrassler/crm-admin-client/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds what the commands share once configuration is resolved.
type App struct {
	Config Config

	API   *client.Client
	Auth  *auth.Authenticator
	Redis *redis.Client

	out    io.Writer
	errOut io.Writer
	logger zerolog.Logger

	// anon serves the login and logout calls.
	anon *client.Client
}

// newApp wires configuration to the API client, session store and
// authenticator. Redis is optional unless the session lives there.
func newApp(ctx context.Context, cfg Config, store auth.Store, out, errOut io.Writer) (*App, error) {
	logging.Setup(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: errOut})

	app := &App{
		Config: cfg,
		out:    out,
		errOut: errOut,
		logger: logging.NewLogger("crmctl"),
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			if cfg.SessionStore == StoreRedis {
				return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
			}
			app.logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, continuing without cache")
		} else {
			app.Redis = rdb
		}
	}

	if store == nil {
		var err error
		if store, err = app.sessionStore(); err != nil {
			app.Close()
			return nil, err
		}
	}

	anon, err := client.New(app.clientConfig(nil))
	if err != nil {
		app.Close()
		return nil, err
	}
	app.anon = anon

	authenticator, err := auth.New(auth.Config{
		Backend:   auth.NewHTTPBackend(anon),
		Store:     store,
		Navigator: auth.NavigatorFunc(app.navigate),
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Auth = authenticator

	api, err := client.New(app.clientConfig(authenticator))
	if err != nil {
		app.Close()
		return nil, err
	}
	app.API = api

	return app, nil
}

func (a *App) clientConfig(tokens client.TokenSource) client.Config {
	cfg := client.DefaultConfig(a.Config.BaseURL, a.Redis)
	cfg.Timeout = a.Config.Timeout
	cfg.Tokens = tokens
	return cfg
}

func (a *App) sessionStore() (auth.Store, error) {
	switch a.Config.SessionStore {
	case StoreMemory:
		return auth.NewMemoryStore(), nil
	case StoreRedis:
		return auth.NewRedisStore(a.Redis, a.Config.Profile), nil
	default:
		path := a.Config.SessionPath
		if path == "" {
			var err error
			if path, err = auth.DefaultSessionPath(); err != nil {
				return nil, err
			}
		}
		return auth.NewFileStore(path), nil
	}
}

// navigate turns route changes into hints on stderr.
func (a *App) navigate(route string) {
	switch route {
	case auth.RouteAfterLogin:
		fmt.Fprintln(a.errOut, "Next: crmctl dashboard")
	case auth.RouteAfterLogout:
		fmt.Fprintln(a.errOut, "Run crmctl login to sign in again.")
	default:
		a.logger.Debug().Str("route", route).Msg("Navigate")
	}
}

// Close releases the API clients and Redis.
func (a *App) Close() {
	if a.API != nil {
		a.API.Close()
	}
	if a.anon != nil {
		a.anon.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}
