package main

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	auditpersistence "github.com/meridianlife/agency-sdk/modules/audit/persistence"
	commissionpersistence "github.com/meridianlife/agency-sdk/modules/commission/infrastructure/persistence"
	commissioncontrollers "github.com/meridianlife/agency-sdk/modules/commission/presentation/controllers"
	commissionservices "github.com/meridianlife/agency-sdk/modules/commission/services"
	orgpersistence "github.com/meridianlife/agency-sdk/modules/org/infrastructure/persistence"
	orgcontrollers "github.com/meridianlife/agency-sdk/modules/org/presentation/controllers"
	orgservices "github.com/meridianlife/agency-sdk/modules/org/services"
	"github.com/meridianlife/agency-sdk/pkg/composables"
	"github.com/meridianlife/agency-sdk/pkg/configuration"
	"github.com/meridianlife/agency-sdk/pkg/eventbus"
	"github.com/meridianlife/agency-sdk/pkg/logging"
	"github.com/meridianlife/agency-sdk/pkg/middleware"
	"github.com/meridianlife/agency-sdk/pkg/server"
)

func main() {
	conf := configuration.Use()
	logger := conf.Logger()

	ctx := context.Background()
	if conf.OpenTelemetry.Enabled {
		shutdown := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.Endpoint)
		defer shutdown()
	}

	if err := applyMigrations(conf, logger); err != nil {
		logger.WithError(err).Fatal("failed to apply migrations")
	}

	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		logger.WithError(err).Fatal("failed to create database pool")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.WithError(err).Fatal("database is unreachable")
	}

	app := buildApp(pool, logger, conf)

	logger.WithField("address", conf.SocketAddress).Info("listening")
	if err := app.Start(conf.SocketAddress); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

func buildApp(pool *pgxpool.Pool, logger *logrus.Logger, conf *configuration.Configuration) *server.HTTPServer {
	bus := eventbus.NewEventPublisher(logger)
	transactor := composables.NewPoolTransactor(pool)

	trail := auditpersistence.NewAuditRepository()
	orgs := orgpersistence.NewOrgRepository()
	members := commissionpersistence.NewMembershipRepository()
	cases := commissionpersistence.NewCaseRepository()

	cycles := orgservices.NewCycleDetector(orgs, conf.HierarchyMaxDepth)
	hierarchy := orgservices.NewHierarchyService(orgs, trail, cycles, transactor, bus, conf.HierarchyMaxDepth)
	splits := commissionservices.NewSplitService(members, trail, transactor, bus)
	membership := commissionservices.NewMemberService(members, trail, transactor, bus)
	preview := commissionservices.NewPreviewService(members, cases)
	splitConfig := commissionservices.NewConfigService(members, trail)

	controllers := []server.Controller{
		orgcontrollers.NewOrgAPIController(hierarchy),
		commissioncontrollers.NewCommissionAPIController(splits, membership, preview, splitConfig),
	}

	app := server.NewHTTPServer(
		controllers,
		middleware.RequestLogger(logger),
		middleware.ProvidePool(pool),
		middleware.ProvideActor(),
	)
	if conf.Prometheus.Enabled {
		app.Router().Handle(conf.Prometheus.Path, promhttp.Handler()).Methods(http.MethodGet)
	}
	return app
}

func applyMigrations(conf *configuration.Configuration, logger *logrus.Logger) error {
	db, err := sql.Open("postgres", conf.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("failed to close migration connection")
		}
	}()

	goose.SetLogger(logger)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, conf.MigrationsDir)
}
