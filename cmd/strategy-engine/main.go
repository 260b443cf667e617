package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/alerts"
	"github.com/flowforge/strategy-engine/internal/chainadapter"
	"github.com/flowforge/strategy-engine/internal/clock"
	"github.com/flowforge/strategy-engine/internal/config"
	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/internal/persistence"
	"github.com/flowforge/strategy-engine/internal/portfolio"
	"github.com/flowforge/strategy-engine/internal/protocoladapter"
	"github.com/flowforge/strategy-engine/internal/risk"
	"github.com/flowforge/strategy-engine/internal/scanner"
	"github.com/flowforge/strategy-engine/internal/strategy"
	"github.com/flowforge/strategy-engine/pkg/redis"
)

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := cfg.Logging.BuildLogger()
	defer logger.Sync()

	redisClient, err := redis.NewClient(cfg.Redis.Build())
	if err != nil {
		logger.Fatal("failed to create redis client", zap.Error(err))
	}
	defer redisClient.Close()

	// Protocol adapters and per-chain transaction adapters are registered
	// here in a real deployment via concrete implementations of
	// protocoladapter.ProtocolAdapter and chainadapter.Adapter — each
	// backed by deployment-specific RPC/signer infrastructure (the
	// threshold-signature SignerClient contract, consensus providers,
	// UTXO indexers) that lives outside this module's scope. Likewise
	// scanner.Source, alerts.PriceFeed, and alerts.MarketConditions are
	// contracts satisfied by market-data integrations supplied at deploy
	// time; none are constructed here.
	protocols := protocoladapter.NewRegistry()
	adapters := map[domain.ChainId]chainadapter.Adapter{}

	registry := prometheus.NewRegistry()

	clk := clock.Real{}
	manager := strategy.NewManager()
	coordinator := strategy.NewCoordinator()
	riskEngine := risk.NewEngine()
	portfolioStore := portfolio.NewStore()
	scan := scanner.NewScanner(logger, nil, scanner.QualityFilter{
		MaxRiskScore:      cfg.Scan.MaxRiskScore,
		MinAPYThreshold:   cfg.Scan.MinAPYThreshold,
		MinLiquidityScore: cfg.Scan.MinLiquidityScore,
	}, redisClient).WithMetrics(scanner.NewMetrics(registry))

	deps := &strategy.Deps{
		Protocols: protocols,
		Adapters:  adapters,
		Portfolio: portfolioStore,
		KeyFor: func(chain domain.ChainId, userID string) domain.SignatureKey {
			return domain.SignatureKey{
				KeyName:        userID,
				DerivationPath: domain.DerivationPath("strategy-engine", chain, userID),
			}
		},
	}

	engine := strategy.NewEngine(
		logger, clk, manager, coordinator, scan, riskEngine, portfolioStore, deps,
		cfg.RiskLimits.Build(), cfg.Retry.Build(),
	).WithMetrics(strategy.NewMetrics(registry))

	alertStore := alerts.NewStore()

	persistenceStore := persistence.NewStore(logger, redisClient, clk, cfg.Persistence.SnapshotInterval, manager, portfolioStore, alertStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := persistenceStore.Load(ctx); err != nil {
		logger.Fatal("failed to restore persisted snapshot", zap.Error(err))
	}
	persistenceStore.Start(ctx)

	scanTicker := time.NewTicker(cfg.Scan.PollInterval)
	defer scanTicker.Stop()

	// alerts.NewEngine also drives off this same tick once a PriceFeed and
	// MarketConditions implementation are wired in; omitted here since
	// both are deployment-specific market-data integrations outside this
	// module's scope.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-scanTicker.C:
				engine.ExecuteDueStrategies(ctx, now)
			}
		}
	}()

	logger.Info("strategy engine started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down strategy engine")
	cancel()
	persistenceStore.Stop(context.Background())
}

func configPath() string {
	if p := os.Getenv("STRATEGY_ENGINE_CONFIG"); p != "" {
		return p
	}
	return "config/config.yaml"
}
