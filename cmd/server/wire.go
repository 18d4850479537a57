package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"idverify/internal/identityverification/cache"
	"idverify/internal/identityverification/events"
	"idverify/internal/identityverification/execution"
	"idverify/internal/identityverification/handler"
	"idverify/internal/identityverification/httpexec"
	"idverify/internal/identityverification/management"
	idvmetrics "idverify/internal/identityverification/metrics"
	"idverify/internal/identityverification/prehook"
	"idverify/internal/identityverification/resolver"
	"idverify/internal/identityverification/seed"
	"idverify/internal/identityverification/service"
	appstore "idverify/internal/identityverification/store/application"
	configstore "idverify/internal/identityverification/store/configuration"
	resultstore "idverify/internal/identityverification/store/result"
	jwttoken "idverify/internal/jwt_token"
	"idverify/internal/platform/config"
	"idverify/internal/platform/metrics"
	"idverify/internal/platform/postgres"
	redisclient "idverify/internal/platform/redis"
	httptransport "idverify/internal/transport/http"
)

type application struct {
	router  http.Handler
	closers []closer
}

func (a *application) close(log *slog.Logger) {
	closeAll(log, a.closers)
}

type stores struct {
	configs      management.Store
	applications service.ApplicationStore
	results      service.ResultStore
}

// wire builds every component from cfg. Resources opened before a failure
// are released before returning the error.
func wire(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.close(log)
		}
	}()
	checks := map[string]httptransport.HealthCheck{}

	st, err := buildStores(ctx, cfg.Database, log, app, checks)
	if err != nil {
		return nil, err
	}
	prehooks := prehook.New()
	if cfg.SeedConfigDir != "" {
		n, err := seed.Load(ctx, cfg.SeedConfigDir, st.configs, prehooks, log, time.Now())
		if err != nil {
			return nil, fmt.Errorf("seed configurations: %w", err)
		}
		log.Info("seeded verification configurations", "count", n, "dir", cfg.SeedConfigDir)
	}

	idvMetrics := idvmetrics.New()
	backend, err := buildCacheBackend(ctx, cfg, log, app, checks)
	if err != nil {
		return nil, err
	}
	configs := cache.New(st.configs, backend, cache.WithLogger(log), cache.WithMetrics(idvMetrics))

	publisher, err := buildPublisher(cfg.Events, log)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closer{name: "events", fn: publisher.Close})

	dispatcher := execution.NewDispatcher(
		httpexec.New(httpexec.WithLogger(log), httpexec.WithMetrics(idvMetrics)),
		resolver.New(log),
	)
	svc, err := service.New(configs, st.applications, st.results, dispatcher,
		service.WithLogger(log),
		service.WithMetrics(idvMetrics),
		service.WithEventPublisher(publisher),
		service.WithPreHookValidator(prehooks),
	)
	if err != nil {
		return nil, err
	}
	mgmt, err := management.New(st.configs,
		management.WithLogger(log),
		management.WithInvalidator(configs),
		management.WithPreHookValidator(prehooks),
	)
	if err != nil {
		return nil, err
	}

	jwtValidator := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience))
	if cfg.AdminAPIToken == "" {
		log.Warn("ADMIN_API_TOKEN is empty; management API will reject every request")
	}

	app.router = httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Metrics:        metrics.New(),
		RequestTimeout: cfg.RequestTimeout,
		CORSOrigins:    cfg.CORSOrigins,
		Verification:   handler.New(svc, log, jwtValidator),
		Management:     handler.NewManagement(mgmt, log, cfg.AdminAPIToken),
		HealthChecks:   checks,
	})
	return app, nil
}

func buildStores(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger, app *application, checks map[string]httptransport.HealthCheck) (stores, error) {
	if cfg.URL == "" {
		log.Info("DATABASE_URL is empty; using in-memory stores")
		return stores{
			configs:      configstore.NewInMemory(),
			applications: appstore.NewInMemory(),
			results:      resultstore.NewInMemory(),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return stores{}, err
	}
	app.closers = append(app.closers, closer{name: "postgres", fn: func(context.Context) error { return db.Close() }})
	checks["postgres"] = db.PingContext

	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return stores{}, err
		}
	}
	return stores{
		configs:      configstore.NewPostgres(db),
		applications: appstore.NewPostgres(db),
		results:      resultstore.NewPostgres(db),
	}, nil
}

func buildCacheBackend(ctx context.Context, cfg config.Server, log *slog.Logger, app *application, checks map[string]httptransport.HealthCheck) (cache.Backend, error) {
	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return cache.NewLocal(cfg.Cache.ConfigTTL), nil
	}
	log.Info("caching verification configurations in redis")
	app.closers = append(app.closers, closer{name: "redis", fn: func(context.Context) error { return client.Close() }})
	checks["redis"] = client.Health
	return cache.NewRedis(client.Client, cfg.Cache.ConfigTTL), nil
}

func buildPublisher(cfg config.EventsConfig, log *slog.Logger) (*events.Publisher, error) {
	var sink events.Sink
	switch strings.ToLower(cfg.Broker) {
	case "kafka":
		s, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		sink = s
	case "amqp":
		s, err := events.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		sink = s
	default:
		sink = events.NewLogSink(log)
	}
	return events.NewPublisher(sink, events.WithLogger(log)), nil
}
