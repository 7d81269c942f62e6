package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/repoagent/application"
	"github.com/felixgeelhaar/repoagent/domain/cache"
	domainconfig "github.com/felixgeelhaar/repoagent/domain/config"
	"github.com/felixgeelhaar/repoagent/domain/run"
	infraconfig "github.com/felixgeelhaar/repoagent/infrastructure/config"
	"github.com/felixgeelhaar/repoagent/infrastructure/llm"
	"github.com/felixgeelhaar/repoagent/infrastructure/logging"
	"github.com/felixgeelhaar/repoagent/infrastructure/observability"
	"github.com/felixgeelhaar/repoagent/infrastructure/repo"
	"github.com/felixgeelhaar/repoagent/infrastructure/resilience"
	"github.com/felixgeelhaar/repoagent/infrastructure/storage/badger"
	"github.com/felixgeelhaar/repoagent/infrastructure/storage/filesystem"
	"github.com/felixgeelhaar/repoagent/infrastructure/storage/memory"
	"github.com/felixgeelhaar/repoagent/infrastructure/storage/redis"
	"github.com/felixgeelhaar/repoagent/infrastructure/storage/sqlite"
)

const readerCacheSize = 256

// runtime holds the components shared by every loop of one command.
type runtime struct {
	config    *domainconfig.AgentConfig
	settings  *infraconfig.Settings
	logger    *logging.Logger
	telemetry *observability.Provider
	model     *llm.Client
	snapshot  *repo.Snapshot
	reader    *repo.Reader
	watcher   *repo.Watcher
	executor  *resilience.Executor
	cache     cache.Cache
	store     run.Store
	sink      *application.CheckpointSink
	closers   []func(context.Context) error
}

// bootstrapMode selects which parts of the runtime a command needs.
type bootstrapMode int

const (
	modeRepository bootstrapMode = iota
	modeStore
	modeAgent
)

// bootstrap builds the runtime. Components are closed in reverse order of
// creation by Close, also when bootstrap itself fails halfway.
func (a *App) bootstrap(ctx context.Context, mode bootstrapMode) (rt *runtime, err error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	settings, err := infraconfig.NewBuilder(cfg).Build()
	if err != nil {
		return nil, err
	}

	logCfg := settings.Logging
	logCfg.Output = a.stderr
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	rt = &runtime{config: cfg, settings: settings, logger: logger, telemetry: observability.Nop()}
	rt.onClose(func(context.Context) error { return logger.Close() })
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	if mode == modeStore {
		rt.store, err = rt.openStore()
		return rt, err
	}

	if err = rt.openRepository(ctx); err != nil {
		return rt, err
	}
	if mode == modeRepository {
		return rt, nil
	}

	if settings.Observability != nil {
		provider, perr := observability.New(settings.Observability...)
		if perr != nil {
			return rt, fmt.Errorf("failed to set up telemetry: %w", perr)
		}
		rt.telemetry = provider
		rt.onClose(provider.Shutdown)
	}

	rt.model, err = llm.NewClientFromConfig(cfg.Model, logger)
	if err != nil {
		return rt, fmt.Errorf("failed to create model client: %w", err)
	}
	rt.executor = resilience.NewExecutorWithOptions(settings.Executor...)

	if rt.cache, err = rt.openCache(); err != nil {
		return rt, err
	}
	if rt.store, err = rt.openStore(); err != nil {
		return rt, err
	}
	rt.sink = application.NewCheckpointSink(rt.store, application.CheckpointConfig{}, logger)
	return rt, nil
}

func (rt *runtime) onClose(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases every component.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func (rt *runtime) openRepository(ctx context.Context) error {
	root := rt.config.Repository.Root
	idx, err := repo.Build(ctx, root, rt.settings.Index)
	if err != nil {
		return fmt.Errorf("failed to index repository %s: %w", root, err)
	}
	rt.snapshot = repo.NewSnapshot(idx)
	rt.reader, err = repo.NewReader(rt.snapshot, readerCacheSize)
	if err != nil {
		return err
	}
	rt.logger.Info().
		Add(logging.Path(idx.Root())).
		Add(logging.Int("files", idx.FileCount())).
		Add(logging.Str("revision", idx.Revision())).
		Msg("repository indexed")

	if !rt.config.Repository.Watch {
		return nil
	}
	w, err := repo.NewWatcher(rt.snapshot, rt.settings.Index, repo.WithWatcherLogger(rt.logger))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	rt.watcher = w
	rt.onClose(func(context.Context) error { return w.Stop() })
	return nil
}

func (rt *runtime) openCache() (cache.Cache, error) {
	c := rt.config.Cache
	switch c.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return memory.NewCache(memory.WithMaxSize(c.Size)), nil
	case "badger":
		bc, err := badger.NewCache(badger.DefaultConfig(), badger.WithDir(c.Dir), badger.WithKeyPrefix(c.KeyPrefix))
		if err != nil {
			return nil, fmt.Errorf("failed to open badger cache: %w", err)
		}
		rt.onClose(func(context.Context) error { return bc.Close() })
		return bc, nil
	case "redis":
		rc, err := redis.NewCache(redis.DefaultConfig(),
			redis.WithAddress(c.Addr),
			redis.WithPassword(c.Password),
			redis.WithDB(c.DB),
			redis.WithKeyPrefix(c.KeyPrefix),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis cache: %w", err)
		}
		rt.onClose(func(context.Context) error { return rc.Close() })
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", c.Driver)
	}
}

func (rt *runtime) openStore() (run.Store, error) {
	s := rt.config.Storage
	switch s.Driver {
	case "memory":
		return memory.NewRunStore(), nil
	case "", "file":
		fs, err := filesystem.NewRunStore(s.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		return fs, nil
	case "sqlite":
		ss, err := sqlite.NewRunStore(sqlite.DefaultConfig(), sqlite.WithDSN(s.DSN))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		rt.onClose(func(context.Context) error { return ss.Close() })
		return ss, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", s.Driver)
	}
}

// newLoop builds a fresh loop for the named agent.
func (rt *runtime) newLoop(agentName string) (*application.ControlLoop, error) {
	profile, err := application.NewProfile(agentName, application.AgentDeps{
		Reader:    rt.reader,
		ListDepth: rt.settings.ListDepth,
		Explore:   rt.settings.Explore,
	})
	if err != nil {
		return nil, err
	}

	opts := []application.Option{
		application.WithProfile(profile),
		application.WithModel(rt.model),
		application.WithParser(llm.NewParser(rt.settings.Parser...)),
		application.WithExecutor(rt.executor),
		application.WithMaxIterations(rt.settings.MaxIterations),
		application.WithRetry(rt.settings.Retry),
		application.WithLogger(rt.logger),
		application.WithTelemetry(rt.telemetry),
		application.WithRepository(rt.snapshot),
	}
	if rt.cache != nil {
		opts = append(opts, application.WithCache(rt.cache, rt.settings.CacheTTL))
	}
	if rt.sink != nil {
		opts = append(opts, application.WithCheckpoints(rt.sink, rt.settings.CheckpointEvery))
	}
	return application.New(opts...)
}

// newAsker builds the single-call agents over the runtime's model.
func (rt *runtime) newAsker() (*application.Asker, error) {
	return application.NewAsker(application.AskerConfig{
		Model:     rt.model,
		Reader:    rt.reader,
		Decoder:   llm.NewParser(rt.settings.Parser...),
		Retry:     rt.settings.Retry,
		ListDepth: rt.settings.ListDepth,
		Logger:    rt.logger,
		Telemetry: rt.telemetry,
	})
}
