//go:build wireinject
// +build wireinject

package di

import (
	"CandlePull/internal/domain/repository"
	internalrepo "CandlePull/internal/repository"
	"CandlePull/pkg/config"
	"CandlePull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Concrete exchange sources and catalog providers are supplied by the caller.
// Wire will generate the implementation of this function.
func InitializeApp(
	cfg *config.Config,
	sources []repository.CandleSource,
	providers []repository.CatalogProvider,
) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideCache,

		// Repositories
		ProvideCandleStore,
		wire.Bind(new(repository.CandleStore), new(*internalrepo.ClickHouseCandleStore)),
		ProvideMetaStore,
		ProvidePublisher,

		// Engine services
		ProvideProxyPool,
		ProvideRateLimiters,
		ProvideRetrier,

		// Use cases
		ProvideScheduler,
		ProvideSession,
		ProvideReportTracker,
		ProvideLifecycle,

		// Ops surface
		ProvideProgressHub,
		ProvideStatusHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
