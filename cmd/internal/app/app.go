// Package app wires the server runtime: config, logging, stores, the HTTP
// surface and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"expertly/cmd/identity"
	authapi "expertly/cmd/internal/auth/api"
	"expertly/cmd/internal/auth/session"
	"expertly/cmd/internal/chat"
	chatapi "expertly/cmd/internal/chat/api"
	"expertly/cmd/internal/realtime"
	"expertly/cmd/internal/translate"
)

// App owns the wired server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool
	rdb       *redis.Client

	accounts  identity.Store
	chatStore chat.Store
	chatSvc   *chat.Service
	presence  realtime.PresenceStore

	sessions *session.Manager
	auth     *authapi.Handler
	chatAPI  *chatapi.Handler
	ws       *realtime.WSGateway
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogPretty)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}

	sessCfg, err := cfg.SessionConfig(log)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.sessions, err = session.NewManager(sessCfg, a.accounts, log)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	translateCfg, err := translate.LoadConfig()
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.chatSvc = chat.NewService(a.chatStore, a.accounts, translate.New(translateCfg), log)

	authCfg, err := authapi.LoadConfig()
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.auth = authapi.NewHandler(log, authCfg, a.accounts, a.sessions)
	a.chatAPI = chatapi.NewHandler(log, a.chatSvc, a.accounts, a.sessions, a.presence)
	a.ws = realtime.NewWSGateway(log, realtime.NewHub(log), a.sessions, a.chatSvc, identity.NewResolver(a.accounts), a.presence)

	return a, nil
}

// initStores picks Postgres-backed persistence when a database is configured
// and in-memory stores otherwise, plus Redis-backed presence when available.
func (a *App) initStores(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		a.accounts = identity.NewMemoryStore()
		a.chatStore = chat.NewMemoryStore()
	} else {
		pool, err := NewDBPool(ctx, a.cfg)
		if err != nil {
			return err
		}
		a.dbPool = pool
		a.dbEnabled = true
		a.log.Info("db.enabled.postgres_store")

		accounts := identity.NewPostgresStore(pool)
		if err := accounts.EnsureSchema(ctx); err != nil {
			a.closeResources()
			return err
		}
		a.accounts = accounts

		chatStore := chat.NewPostgresStore(pool)
		if err := chatStore.EnsureSchema(ctx); err != nil {
			a.closeResources()
			return err
		}
		a.chatStore = chatStore
	}

	if a.cfg.RedisAddr == "" {
		a.presence = realtime.NewMemoryPresence()
	} else {
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			a.closeResources()
			return err
		}
		a.rdb = rdb
		a.presence = realtime.NewRedisPresence(rdb)
		a.log.Info("presence.redis", "addr", a.cfg.RedisAddr)
	}
	return nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	a.registerHTTP(mux)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.closeResources()
	a.log.Info("server.stopped")
	return nil
}

func (a *App) closeResources() {
	if a.rdb != nil {
		_ = a.rdb.Close()
		a.rdb = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
