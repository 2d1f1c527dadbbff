package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/internal/httpapi"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/mail"
	"github.com/MrEthical07/goGate/metrics/export/prometheus"
	"github.com/MrEthical07/goGate/notify"
	"github.com/MrEthical07/goGate/permission"
	"github.com/MrEthical07/goGate/store/memory"
	"github.com/MrEthical07/goGate/store/redisstore"
	"github.com/MrEthical07/goGate/store/sqlstore"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds every long-lived resource so shutdown can release them in order.
type app struct {
	engine    *goGate.Engine
	handler   *httpapi.Server
	telemetry *telemetry
	closers   []io.Closer
}

func (a *app) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.telemetry != nil {
		_ = a.telemetry.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func wire(ctx context.Context, cfg FileConfig, logger *zap.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	engineCfg, err := cfg.engineConfig(os.ReadFile)
	if err != nil {
		return fail(err)
	}
	seeds, err := cfg.seedRoles()
	if err != nil {
		return fail(err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}
	}

	b := goGate.New().WithConfig(engineCfg).WithLogger(logger)

	// -------- STORE / ROLES / AUDIT --------
	switch cfg.Store.Backend {
	case "memory":
		rm, err := roleManager(seeds)
		if err != nil {
			return fail(err)
		}
		b.WithStore(memory.New()).WithRoleRegistry(rm).WithAuditSink(goGate.NewZapSink(logger))
	case "redis":
		if rdb == nil {
			return fail(errors.New("store redis requires redis.addr"))
		}
		rm, err := roleManager(seeds)
		if err != nil {
			return fail(err)
		}
		b.WithStore(redisstore.New(rdb, cfg.Store.Prefix)).WithRoleRegistry(rm).WithAuditSink(goGate.NewZapSink(logger))
	case "postgres":
		db, err := openPostgres(ctx, cfg.Store)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, db)
		roles := sqlstore.NewRoleRegistry(db)
		for _, r := range seeds {
			if err := roles.PutRole(ctx, r); err != nil {
				return fail(fmt.Errorf("seed role %s: %w", r.Name, err))
			}
		}
		b.WithStore(sqlstore.New(db)).WithRoleRegistry(roles).WithAuditSink(sqlstore.NewAuditSink(db))
	default:
		return fail(fmt.Errorf("unknown store backend %q", cfg.Store.Backend))
	}

	// -------- MAIL / NOTIFY --------
	switch cfg.Mail.Sender {
	case "log":
		b.WithEmailSender(mail.NewLogSender(logger))
	case "redis":
		if rdb == nil {
			return fail(errors.New("mail sender redis requires redis.addr"))
		}
		b.WithEmailSender(mail.NewRedisQueue(rdb, cfg.Mail.QueueKey, cfg.Mail.QueueMax))
	default:
		return fail(fmt.Errorf("unknown mail sender %q", cfg.Mail.Sender))
	}
	if rdb != nil {
		b.WithNotifier(notify.NewPublisher(rdb, cfg.Redis.NotifyChannel))
	}

	engine, err := b.Build()
	if err != nil {
		return fail(fmt.Errorf("build engine: %w", err))
	}
	a.engine = engine

	// -------- HTTP --------
	opts := []httpapi.Option{httpapi.WithLogger(logger)}
	if cfg.Throttle.Enabled {
		rc := rate.Config{
			PerSecond: cfg.Throttle.PerSecond,
			Burst:     cfg.Throttle.Burst,
			Window:    cfg.Throttle.Window.Duration,
		}
		if cfg.Throttle.Shared && rdb != nil {
			opts = append(opts, httpapi.WithLimiter(rate.NewRedis(rdb, cfg.Store.Prefix+":rl", rc)))
		} else {
			opts = append(opts, httpapi.WithLimiter(rate.NewLocal(rc)))
		}
	}
	a.handler = httpapi.New(engine, opts...)

	// -------- METRICS --------
	if cfg.Server.MetricsPath != "" {
		a.handler.Handle("GET "+cfg.Server.MetricsPath, prometheus.New(engine).Handler())
	}
	if cfg.Metrics.OTelInterval.Duration > 0 {
		tel, err := newTelemetry(engine, cfg.Metrics.OTelInterval.Duration, logger)
		if err != nil {
			return fail(fmt.Errorf("otel metrics: %w", err))
		}
		a.telemetry = tel
	}

	return a, nil
}

func roleManager(seeds []permission.Role) (*permission.RoleManager, error) {
	rm := permission.NewRoleManager()
	for _, r := range seeds {
		if err := rm.PutRole(r); err != nil {
			return nil, fmt.Errorf("seed role %s: %w", r.Name, err)
		}
	}
	return rm, nil
}

func openPostgres(ctx context.Context, cfg StoreConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store postgres requires a dsn (GOGATE_DSN)")
	}
	db, err := sqlstore.Open(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := sqlstore.Migrate(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}
