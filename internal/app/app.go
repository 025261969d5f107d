// Package app assembles the stores, token client and authorization service from config.
package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-azure-oauth2-client/auth"
	"github.com/jrsteele09/go-azure-oauth2-client/clients"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/config"
	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/sealer"
	"github.com/jrsteele09/go-azure-oauth2-client/server"
	"github.com/jrsteele09/go-azure-oauth2-client/states"
	"github.com/jrsteele09/go-azure-oauth2-client/storage/memstore"
	"github.com/jrsteele09/go-azure-oauth2-client/storage/redisstore"
	"github.com/jrsteele09/go-azure-oauth2-client/storage/sqlstore"
	"github.com/jrsteele09/go-azure-oauth2-client/token"
	"github.com/jrsteele09/go-azure-oauth2-client/token/idtoken"
	"github.com/jrsteele09/go-azure-oauth2-client/users"
)

// App owns every long-lived dependency. Close releases them.
type App struct {
	Config  config.Config
	Auth    *auth.AuthorizationService
	Tokens  *token.Client
	Clients clients.Repo
	States  states.Repo
	Users   users.Repo

	sql     *sqlstore.Store
	closers []func() error
}

// New opens the configured stores and builds the authorization service. It does not
// touch the schema; call Bootstrap or Migrate for that.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.openStores(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Tokens = token.NewClient(
		token.WithLoginBaseURL(cfg.GetLoginBaseURL()),
		token.WithGraphBaseURL(cfg.GetGraphBaseURL()),
		token.WithTimeout(cfg.GetHTTPTimeout()),
	)

	options := []auth.AuthorizationServiceOption{
		auth.WithLogger(log.Logger),
		auth.WithCallbackURL(server.CallbackURL(cfg.GetBaseURL())),
		auth.WithLoginBaseURL(cfg.GetLoginBaseURL()),
		auth.WithDefaultScope(cfg.GetDefaultScope()),
		auth.WithStateTTL(cfg.GetStateTTL()),
		auth.WithRefreshInterval(cfg.GetRefreshInterval()),
	}
	if cfg.GetVerifyIDToken() {
		options = append(options, auth.WithIDTokenVerifier(idtoken.NewVerifier(cfg.GetLoginBaseURL())))
	}

	service, err := auth.NewAuthorizationService(auth.Repos{
		Clients: a.Clients,
		States:  a.States,
		Users:   a.Users,
	}, a.Tokens, options...)
	if err != nil {
		_ = a.Close()
		return nil, errors.Wrap(err, "[app.New] authorization service")
	}
	a.Auth = service
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	key, err := a.Config.GetSecretKey()
	if err != nil {
		return errors.Wrap(err, "[app] secret key")
	}
	seal, err := sealer.New(key)
	if err != nil {
		return errors.Wrap(err, "[app] sealer")
	}

	switch driver := a.Config.GetStorageDriver(); driver {
	case config.StorageDriverMemory:
		store := memstore.New()
		a.Clients, a.States, a.Users = store.Clients(), store.States(), store.Users()
	case config.StorageDriverSQLite, config.StorageDriverPostgres:
		var store *sqlstore.Store
		if driver == config.StorageDriverSQLite {
			store, err = sqlstore.OpenSQLite(ctx, a.Config.GetSQLitePath(), sqlstore.WithSealer(seal))
		} else {
			store, err = sqlstore.OpenPostgres(ctx, a.Config.GetDatabaseURL(), sqlstore.WithSealer(seal))
		}
		if err != nil {
			return err
		}
		a.sql = store
		a.closers = append(a.closers, store.Close)
		a.Clients, a.States, a.Users = store.Clients(), store.States(), store.Users()
	default:
		return errors.Wrapf(apperrors.ErrConfiguration, "[app] unknown storage driver %q", driver)
	}

	switch stateStore := a.Config.GetStateStore(); stateStore {
	case config.StateStoreSQL:
	case config.StateStoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.Config.GetRedisAddr(),
			Password: a.Config.GetRedisPassword(),
			DB:       a.Config.GetRedisDB(),
		})
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrapf(err, "[app] redis ping %s", a.Config.GetRedisAddr())
		}
		a.States = redisstore.NewStateRepo(rdb)
	default:
		return errors.Wrapf(apperrors.ErrConfiguration, "[app] unknown state store %q", stateStore)
	}

	if ttl := a.Config.GetClientCacheTTL(); ttl > 0 {
		a.Clients = clients.NewCachedRepo(a.Clients, ttl)
	}
	return nil
}

// Migrate applies pending schema migrations. The memory driver has no schema.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	if a.sql == nil {
		return nil, nil
	}
	return a.sql.Migrate(ctx)
}

// SyncClients loads a registrations file into the clients store.
func (a *App) SyncClients(ctx context.Context, path string) (created, updated int, err error) {
	registrations, err := clients.LoadFile(path)
	if err != nil {
		return 0, 0, err
	}
	return clients.Sync(ctx, a.Clients, registrations, time.Now())
}

// Bootstrap migrates the schema and loads the configured registrations file, if any.
func (a *App) Bootstrap(ctx context.Context) error {
	applied, err := a.Migrate(ctx)
	if err != nil {
		return errors.Wrap(err, "[app.Bootstrap] migrate")
	}
	for _, name := range applied {
		log.Info().Str("migration", name).Msg("migration applied")
	}

	if path := a.Config.GetClientsFile(); path != "" {
		created, updated, err := a.SyncClients(ctx, path)
		if err != nil {
			return errors.Wrap(err, "[app.Bootstrap] clients file")
		}
		log.Info().Str("file", path).Int("created", created).Int("updated", updated).Msg("client registrations loaded")
	}
	return nil
}

func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
