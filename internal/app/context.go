package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"precedent/internal/cache"
	"precedent/internal/changes"
	"precedent/internal/config"
	"precedent/internal/db"
	"precedent/internal/engine"
	"precedent/internal/logger"
	"precedent/internal/migrate"
	"precedent/internal/repo"
	"precedent/internal/session"
)

// Options select the workspace and the ambient services for one process.
type Options struct {
	Workspace string
	// ActorID, when set, is the session actor for CLI invocations.
	ActorID string
	LogMode string
	// Config overrides the workspace precedent.yml.
	Config *config.Config
}

// Context is an opened workspace: database, config, change bus, read cache and
// the engine wired on top of them.
type Context struct {
	Workspace string
	DB        *sql.DB
	Repo      repo.Repo
	Config    *config.Config
	Log       *logger.Logger
	Bus       changes.Bus
	Cache     *cache.Store
	Engine    engine.Engine

	// ctx scopes background work such as the redis forwarder; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	detach func()
}

// Open migrates the workspace database and wires the engine. The caller must
// Close the returned Context.
func Open(ctx context.Context, opts Options) (*Context, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadOptional(opts.Workspace)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	mode := opts.LogMode
	if mode == "" {
		mode = cfg.Log.Mode
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	fail := func(err error, closers ...func() error) (*Context, error) {
		for _, c := range closers {
			c()
		}
		cancel()
		log.Sync()
		return nil, err
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return fail(err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		return fail(fmt.Errorf("migrate: %w", err), conn.Close)
	}
	r := repo.New(conn)

	bus, err := openBus(runCtx, cfg, log)
	if err != nil {
		return fail(err, conn.Close)
	}
	store, err := cache.New(r, cfg.Cache.Size, log)
	if err != nil {
		return fail(err, bus.Close, conn.Close)
	}

	e := engine.New(store, store, cfg)
	e.Changes = bus
	e.Log = log.With("component", "engine")
	if actor := strings.TrimSpace(opts.ActorID); actor != "" {
		e.Session = session.Static(actor)
	}

	return &Context{
		Workspace: opts.Workspace,
		DB:        conn,
		Repo:      r,
		Config:    cfg,
		Log:       log,
		Bus:       bus,
		Cache:     store,
		Engine:    e,
		ctx:       runCtx,
		cancel:    cancel,
		detach:    store.Attach(bus),
	}, nil
}

func openBus(ctx context.Context, cfg *config.Config, log *logger.Logger) (changes.Bus, error) {
	switch cfg.Bus.Kind {
	case "", "local":
		return changes.NewLocal(), nil
	case "redis":
		b, err := changes.NewRedis(ctx, changes.RedisConfig{Addr: cfg.Bus.Addr, Channel: cfg.Bus.Channel}, log)
		if err != nil {
			return nil, err
		}
		if err := b.Start(ctx); err != nil {
			b.Close()
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown bus kind %q", cfg.Bus.Kind)
}

func (c *Context) Close() error {
	if c == nil {
		return nil
	}
	if c.detach != nil {
		c.detach()
	}
	if c.cancel != nil {
		c.cancel()
	}
	var errs []error
	if c.Bus != nil {
		errs = append(errs, c.Bus.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	c.Log.Sync()
	return errors.Join(errs...)
}
