package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"licenselink/internal/bootstrap/config"
	"licenselink/internal/bootstrap/logging"
	domainlinking "licenselink/internal/domain/linking"
	"licenselink/internal/errs"
	"licenselink/internal/infrastructure/metrics"
	"licenselink/internal/infrastructure/persistence/sqlite/model"
	"licenselink/internal/usecase/intake"
	"licenselink/internal/usecase/linking"
)

type App struct {
	Config   config.Config
	DB       *gorm.DB
	Policy   domainlinking.Policy
	Linking  *linking.Service
	Intake   *intake.Service
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	// Bus is nil when messaging.nats_url is empty.
	Bus *nats.Conn
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := a.DB.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}
