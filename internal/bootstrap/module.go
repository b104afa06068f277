package bootstrap

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"licenselink/internal/bootstrap/config"
	"licenselink/internal/bootstrap/database"
	"licenselink/internal/bootstrap/logging"
	domainlinking "licenselink/internal/domain/linking"
	cacheinfra "licenselink/internal/infrastructure/cache"
	"licenselink/internal/infrastructure/messaging/natsbus"
	"licenselink/internal/infrastructure/metrics"
	sqliterepo "licenselink/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "licenselink/internal/infrastructure/persistence/sqlite/uow"
	"licenselink/internal/ports"
	"licenselink/internal/usecase/intake"
	"licenselink/internal/usecase/linking"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(providePolicy),
	fx.Provide(provideRegistry),
	fx.Provide(provideMetrics),
	fx.Provide(provideBus),
	fx.Provide(providePublisher),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewRecordRepository,
			fx.As(new(ports.RecordRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewLinkRepository,
			fx.As(new(ports.LinkRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewSQLiteCache,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(provideLinking),
	fx.Provide(provideIntake),
	fx.Provide(provideApp),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func providePolicy(ctx context.Context, cfg config.Config) (domainlinking.Policy, error) {
	return config.LoadPolicy(logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")), cfg.Linking)
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

// provideBus connects to NATS when configured and yields nil otherwise.
func provideBus(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*nats.Conn, error) {
	if !cfg.Messaging.Enabled() {
		return nil, nil
	}

	conn, err := natsbus.Connect(ctx, cfg.Messaging.NATSURL, cfg.App.Name)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return conn.Drain()
		},
	})
	return conn, nil
}

func providePublisher(cfg config.Config, conn *nats.Conn, m *metrics.Metrics) ports.RecordEventPublisher {
	if conn == nil {
		return nil
	}
	return countingPublisher{next: natsbus.NewPublisher(conn, cfg.Messaging.Subject), metrics: m}
}

type countingPublisher struct {
	next    ports.RecordEventPublisher
	metrics *metrics.Metrics
}

func (p countingPublisher) PublishRecordInserted(ctx context.Context, recordID uint64) error {
	err := p.next.PublishRecordInserted(ctx, recordID)
	p.metrics.ObserveEventPublished(err)
	return err
}

type linkingParams struct {
	fx.In

	Config  config.Config
	Policy  domainlinking.Policy
	Records ports.RecordRepository
	Links   ports.LinkRepository
	UoW     ports.UnitOfWork
	Cache   ports.Cache
	Metrics *metrics.Metrics
}

func provideLinking(p linkingParams) (*linking.Service, error) {
	loc, err := p.Config.Linking.Location()
	if err != nil {
		return nil, err
	}
	return linking.NewService(p.Records, p.Links, p.UoW, p.Cache, p.Metrics, p.Policy, linking.Config{
		Workers:  p.Config.Linking.Workers,
		Location: loc,
	})
}

func provideIntake(records ports.RecordRepository, linker *linking.Service, publisher ports.RecordEventPublisher) *intake.Service {
	return intake.NewService(records, linker, publisher)
}

type appParams struct {
	fx.In

	Config   config.Config
	DB       *gorm.DB
	Policy   domainlinking.Policy
	Linking  *linking.Service
	Intake   *intake.Service
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Bus      *nats.Conn
}

func provideApp(p appParams) *App {
	return &App{
		Config:   p.Config,
		DB:       p.DB,
		Policy:   p.Policy,
		Linking:  p.Linking,
		Intake:   p.Intake,
		Metrics:  p.Metrics,
		Registry: p.Registry,
		Bus:      p.Bus,
	}
}
