package main

import (
	"flag"
	"log"
	"os"

	"CandlePull/internal/di"
	"CandlePull/internal/domain/repository"
	"CandlePull/pkg/config"
)

// Exchange adapters are linked in at this assembly point by deployments; the
// engine itself stays protocol-agnostic.
func exchangeSources(cfg *config.Config) []repository.CandleSource {
	return nil
}

func catalogProviders(cfg *config.Config) []repository.CatalogProvider {
	return nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s exchanges=%v", cfg.Environment, cfg.Priority)

	app, err := di.InitializeApp(cfg, exchangeSources(cfg), catalogProviders(cfg))
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	log.Printf("clickhouse: connected and schema ready - db: %s", cfg.ClickHouse.Database)
	if cfg.Kafka.Enabled {
		log.Printf("kafka: sink enabled brokers=%v topic=%s", cfg.Kafka.Brokers, cfg.Kafka.CandleTopic)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
