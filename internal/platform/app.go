package platform

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/todosync/pkg/adapters/fs"
	"github.com/aretw0/todosync/pkg/adapters/staging"
	"github.com/aretw0/todosync/pkg/core"
	"github.com/aretw0/todosync/pkg/todotxt"
)

// App is an assembled engine with the resources it owns.
type App struct {
	Config  *Config
	Engine  *core.Engine
	Router  *core.Router
	Primary *fs.Store
	Done    *fs.Store // nil without donefile
	Staging *staging.Dir

	closers []io.Closer
}

// Assemble opens the stores, builds every configured backend and wires them
// into an engine. Any failure closes what was opened so far.
func Assemble(cfg *Config, opts ...Option) (_ *App, err error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	router, err := app.buildRouter(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.Router = router

	formatter := todotxt.New()
	storeOpts := []fs.Option{fs.WithLogger(logger)}
	if o.polling {
		storeOpts = append(storeOpts, fs.WithPolling())
	}

	app.Primary, err = fs.Open(cfg.TodoFile, formatter, append(storeOpts, fs.WithCreate())...)
	if err != nil {
		return nil, fmt.Errorf("primary store: %w", err)
	}
	app.closers = append(app.closers, app.Primary)

	engineCfg := core.EngineConfig{
		Primary:          app.Primary,
		Router:           router,
		Tick:             cfg.Tick,
		Staleness:        cfg.Staleness,
		Strip:            cfg.Strip,
		PropagateDeletes: cfg.PropagateDeletes,
		Logger:           logger,
		Now:              o.now,
	}

	if cfg.DoneFile != "" {
		if err := touch(cfg.DoneFile); err != nil {
			return nil, fmt.Errorf("done store: %w", err)
		}
		app.Done, err = fs.Open(cfg.DoneFile, formatter, append(storeOpts, fs.WithReadOnly())...)
		if err != nil {
			return nil, fmt.Errorf("done store: %w", err)
		}
		app.closers = append(app.closers, app.Done)
		engineCfg.Watched = []core.WatchedStore{app.Done}
	}

	if cfg.PostDir != "" {
		app.Staging, err = staging.NewDir(cfg.PostDir, cfg.PostMask, formatter, logger)
		if err != nil {
			return nil, fmt.Errorf("staging: %w", err)
		}
		engineCfg.Batches = []core.BatchSource{app.Staging}
	}

	app.Engine, err = core.NewEngine(engineCfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) buildRouter(cfg *Config, logger *slog.Logger) (*core.Router, error) {
	router := core.NewRouter(core.WithRouterLogger(logger), core.WithFetchTimeout(cfg.FetchTimeout))
	for _, s := range cfg.Sources {
		b, err := NewBackend(s, logger)
		if err != nil {
			return nil, err
		}
		if c, ok := b.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
		if err := router.Add(s.ID, b); err != nil {
			return nil, err
		}
		if s.Default {
			if err := router.SetDefault(s.ID); err != nil {
				return nil, fmt.Errorf("source %s: %w", s.ID, err)
			}
		}
		logger.Debug("source registered", "source", s.ID, "type", s.Type, "default", s.Default)
	}
	return router, nil
}

// Close releases stores and backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
