// Package main is the command-line entry point of the progression engine.
//
// Every subcommand runs one operation against the configured store and prints
// its result as JSON:
//
//	progress migrate | rollback | migrations
//	progress seed
//	progress register <user>
//	progress declare <user> <module> <pillar> <text...>
//	progress complete <user> <mission>
//	progress overview [-fresh] <user>
//	progress script <file|->
//
// With STORE_DRIVER=memory the catalogue is seeded on start and state lives
// for one invocation; "script" runs many subcommands against it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dividis/progress-engine/config"
	"github.com/dividis/progress-engine/internal/application/command"
	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/application/query"
	"github.com/dividis/progress-engine/internal/application/uow"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/profile"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/infrastructure/catalog"
	"github.com/dividis/progress-engine/internal/infrastructure/messaging"
	"github.com/dividis/progress-engine/internal/infrastructure/observability"
	"github.com/dividis/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/dividis/progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/dividis/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/dividis/progress-engine/pkg/circuitbreaker"
	"github.com/dividis/progress-engine/pkg/logger"
	"github.com/dividis/progress-engine/pkg/timeutil"
)

// Exit codes by error kind.
const (
	exitOK = iota
	exitInternal
	exitUsage
	exitNotFound
	exitDenied
	exitInvalidTransition
)

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(exitUsage)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, flag.Args(), os.Stdout, os.Stderr))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: progress <command> [args]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "commands:")
	for _, name := range commandNames() {
		fmt.Fprintf(os.Stderr, "  %-16s %s\n", name, commands[name].help)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	spec, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitInternal
	}

	a, err := bootstrap(ctx, cfg, spec, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "startup: %v\n", err)
		return exitInternal
	}
	defer a.close()

	if err := a.dispatch(ctx, args); err != nil {
		return a.report(err)
	}
	return exitOK
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING
// ══════════════════════════════════════════════════════════════════════════════

type app struct {
	cfg *config.Config
	log *logger.Logger
	out io.Writer

	conn  *postgres.Connection
	store uow.Store

	catalog *catalog.Catalog
	rules   *module.Registry
	titles  *profile.TitleBook

	bus       *messaging.InMemoryEventBus
	cache     *redis.Cache
	overview  *redis.OverviewCache
	forwarder *redis.EventForwarder

	commands command.Deps
	queries  query.Deps

	closers []func()
}

func bootstrap(ctx context.Context, cfg *config.Config, spec commandSpec, stdout, stderr io.Writer) (*app, error) {
	a := &app{
		cfg:    cfg,
		out:    stdout,
		rules:  module.NewRegistry(),
		titles: profile.NewTitleBook(nil, profile.DefaultTitle),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Logging and tracing
	// ─────────────────────────────────────────────────────────────────────────
	a.log = logger.New(logger.Options{
		Output:    stderr,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    logger.Format(cfg.Observability.LogFormat),
		AddCaller: cfg.IsDevelopment(),
	}).With(logger.String("app", cfg.App.Name), logger.String("env", string(cfg.App.Environment)))
	a.closers = append(a.closers, func() { _ = a.log.Sync() })

	shutdown, err := observability.Setup(ctx, observability.Config{
		Enabled:     cfg.Observability.OTelEnabled,
		Endpoint:    cfg.Observability.OTelEndpoint,
		ServiceName: cfg.Observability.OTelServiceName,
		Environment: string(cfg.App.Environment),
		SampleRatio: cfg.Observability.OTelSampleRatio,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			a.log.Warn("tracer shutdown failed", logger.Err(err))
		}
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Store
	// ─────────────────────────────────────────────────────────────────────────
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig(cfg.Store.DatabaseURL)
		pgCfg.MaxConns = cfg.Store.MaxConns
		pgCfg.MinConns = cfg.Store.MinConns
		pgCfg.MaxConnLifetime = cfg.Store.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Store.ConnMaxIdleTime
		pgCfg.ConnectRetry.OnRetry = func(attempt int, err error, delay time.Duration) {
			a.log.Warn("database not ready", logger.Int("attempt", attempt), logger.Duration("retry_in", delay), logger.Err(err))
		}

		conn, err := postgres.Open(ctx, pgCfg)
		if err != nil {
			a.close()
			return nil, err
		}
		a.conn = conn
		a.closers = append(a.closers, conn.Close)
		a.store = postgres.NewStore(conn)

		if cfg.Store.AutoMigrate && !spec.migrations {
			n, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				a.close()
				return nil, err
			}
			if n > 0 {
				a.log.Info("applied migrations", logger.Int("count", n))
			}
		}
	case config.DriverMemory:
		a.store = memory.NewStore()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Catalogue
	// ─────────────────────────────────────────────────────────────────────────
	if spec.catalog || cfg.Store.Driver == config.DriverMemory {
		opts := catalog.DefaultOptions()
		opts.DefaultMissionXP = cfg.Progression.DefaultMissionXP
		opts.DefaultAchievementXP = cfg.Progression.DefaultAchievementXP

		c, err := catalog.Load(cfg.Catalog.Path, opts)
		if err != nil {
			a.close()
			return nil, err
		}
		if err := c.Validate(); err != nil {
			a.close()
			return nil, err
		}
		c.Apply(a.rules, a.titles)
		a.catalog = c

		if cfg.Store.Driver == config.DriverMemory {
			if _, err := catalog.Seed(ctx, a.store, c); err != nil {
				a.close()
				return nil, err
			}
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Events
	// ─────────────────────────────────────────────────────────────────────────
	a.bus = messaging.NewInMemoryEventBus(messaging.Config{Logger: a.log})
	a.closers = append(a.closers, func() { _ = a.bus.Close() })

	if cfg.Redis.Enabled {
		rc := redis.DefaultConfig()
		rc.Host = cfg.Redis.Host
		rc.Port = cfg.Redis.Port
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.PoolSize = cfg.Redis.PoolSize

		cache, err := redis.NewCache(ctx, rc)
		if err != nil {
			a.close()
			return nil, err
		}
		a.cache = cache
		a.closers = append(a.closers, func() { _ = cache.Close() })
		breaker := circuitbreaker.New("redis", circuitbreaker.Config{
			FailureThreshold: cfg.Redis.BreakerThreshold,
			CoolDown:         cfg.Redis.BreakerCoolDown,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				a.log.Warn("circuit breaker state changed",
					logger.String("breaker", name), logger.String("from", from.String()), logger.String("to", to.String()))
			},
		})
		a.overview = redis.NewOverviewCache(cache, cfg.Redis.OverviewTTL).WithBreaker(breaker)
		a.forwarder = redis.NewEventForwarder(cache, cfg.Redis.EventsChannel, a.log)
	}

	sinks := []messaging.Sink{messaging.EventLogger(a.log)}
	if a.overview != nil {
		sinks = append(sinks, a.overview, a.forwarder)
	}
	if err := messaging.Attach(a.bus, sinks...); err != nil {
		a.close()
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Handlers
	// ─────────────────────────────────────────────────────────────────────────
	engine := progression.NewEngine(a.rules, progression.Config{
		DeclarationBaseXP: cfg.Progression.BaseDeclarationXP,
		DeclarationStepXP: cfg.Progression.DeclarationXPStep,
	})
	clock := timeutil.SystemClock{}

	a.commands = command.Deps{
		Store:     a.store,
		Engine:    engine,
		Publisher: a.bus,
		Clock:     clock,
		Logger:    a.log,
	}
	a.queries = query.Deps{
		Store:              a.store,
		Engine:             engine,
		Publisher:          a.bus,
		Clock:              clock,
		Logger:             a.log,
		Titles:             a.titles,
		Location:           cfg.App.Location,
		WeeklyStreakTarget: cfg.Progression.WeeklyStreakTarget,
	}
	return a, nil
}

func (a *app) overviewCache() query.OverviewCache {
	if a.overview == nil {
		return nil
	}
	return a.overview
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// report logs a failed command and maps it to an exit code.
func (a *app) report(err error) int {
	kind := shared.KindOf(err)
	fields := []logger.Field{logger.String("kind", kind), logger.Err(err)}

	var denial *module.DenialError
	if errors.As(err, &denial) {
		fields = append(fields,
			logger.ModuleID(denial.ModuleID),
			logger.Int("xp_shortfall", denial.Decision.XPShortfall),
		)
	}

	switch {
	case errors.Is(err, errUsage):
		a.log.Warn("bad invocation", logger.Err(err))
		return exitUsage
	case shared.IsValidation(err):
		a.log.Info("rejected", fields...)
		return exitUsage
	case shared.IsNotFound(err):
		a.log.Info("rejected", fields...)
		return exitNotFound
	case shared.IsPermissionDenied(err):
		a.log.Info("denied", fields...)
		return exitDenied
	case shared.IsInvalidTransition(err):
		a.log.Info("rejected", fields...)
		return exitInvalidTransition
	default:
		a.log.Error("command failed", fields...)
		return exitInternal
	}
}
