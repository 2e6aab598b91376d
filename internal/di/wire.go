//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/Rajchodisetti/price-alerts/internal/config"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Root) (*App, func(), error) {
	wire.Build(
		// Quote layer
		ProvideFetcher,
		ProvideAnalytics,

		// Infrastructure
		ProvideStore,
		ProvidePublisher,
		ProvideTelegramClient,
		ProvideNotifier,

		// Chat and scheduling
		ProvideBot,
		ProvideUpdateHandler,
		ProvideEvaluator,

		// HTTP surface and lifecycle
		ProvideServer,
		ProvideApp,
	)
	return &App{}, nil, nil
}
