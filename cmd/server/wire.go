package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/aggregator"
	"solana-entry-gate/internal/config"
	"solana-entry-gate/internal/execution"
	"solana-entry-gate/internal/marketdata"
	"solana-entry-gate/internal/metadata"
	"solana-entry-gate/internal/monitor"
	"solana-entry-gate/internal/notify"
	"solana-entry-gate/internal/observation"
	"solana-entry-gate/internal/orchestrator"
	"solana-entry-gate/internal/risk"
	"solana-entry-gate/internal/solana"
	"solana-entry-gate/internal/storage"
	chstore "solana-entry-gate/internal/storage/clickhouse"
	"solana-entry-gate/internal/storage/memory"
	"solana-entry-gate/internal/storage/migrations"
	pgstore "solana-entry-gate/internal/storage/postgres"
	redisstore "solana-entry-gate/internal/storage/redis"
	"solana-entry-gate/internal/wallet"
	"solana-entry-gate/internal/walletgraph"
)

// stores bundles the persistence backends and their connections.
type stores struct {
	positions   storage.PositionStore
	audit       storage.AuditStore
	processed   storage.ProcessedTokenStore
	checkpoints storage.CheckpointStore
	riskResults storage.RiskResultStore

	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores opens PostgreSQL for positions and audit, ClickHouse for
// checkpoint and risk analytics, and Redis for the processed-token set.
// ClickHouse and Redis are optional; memory stores stand in when unset.
func openStores(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (*stores, error) {
	if cfg.UseMemory {
		logger.Warn("using in-memory storage, state is lost on restart")
		return &stores{
			positions:   memory.NewPositionStore(),
			audit:       memory.NewAuditStore(),
			processed:   memory.NewProcessedTokenStore(),
			checkpoints: memory.NewCheckpointStore(),
			riskResults: memory.NewRiskResultStore(),
		}, nil
	}

	st := &stores{}
	ok := false
	defer func() {
		if !ok {
			st.Close()
		}
	}()

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	st.closers = append(st.closers, pool.Close)
	if cfg.Postgres.RunMigrations {
		applied, err := migrations.RunPostgresMigrations(ctx, pool, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.WithField("applied", len(applied)).Info("postgres migrations complete")
	}
	st.positions = pgstore.NewPositionStore(pool)
	st.audit = pgstore.NewAuditStore(pool)

	if cfg.ClickHouse.DSN != "" {
		var conn *chstore.Conn
		if cfg.ClickHouse.RunMigrations {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN, logger)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickHouse.DSN)
		}
		if err != nil {
			return nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		st.closers = append(st.closers, func() { conn.Close() })
		st.checkpoints = chstore.NewCheckpointStore(conn)
		st.riskResults = chstore.NewRiskResultStore(conn)
	} else {
		logger.Info("clickhouse not configured, analytics kept in memory")
		st.checkpoints = memory.NewCheckpointStore()
		st.riskResults = memory.NewRiskResultStore()
	}

	if cfg.Redis.Addr != "" {
		rc, err := redisstore.New(ctx, redisstore.ClientConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		st.closers = append(st.closers, func() { rc.Close() })
		st.processed = redisstore.NewProcessedTokenStore(rc, cfg.UserID)
	} else {
		logger.Warn("redis not configured, processed tokens are not persisted")
		st.processed = memory.NewProcessedTokenStore()
	}

	ok = true
	return st, nil
}

func buildSigner(cfg *config.Config, rpc solana.RPCClient) (wallet.Signer, error) {
	switch cfg.Signer.Mode {
	case "keypair":
		s, err := wallet.NewKeypairSigner(cfg.Signer.PrivateKey, rpc)
		if err != nil {
			return nil, fmt.Errorf("keypair signer: %w", err)
		}
		return s, nil
	case "remote":
		return wallet.NewRemoteSigner(cfg.Signer.RemoteURL, cfg.Signer.RemoteAPIKey, cfg.Signer.WalletAddress, cfg.Solana.Timeout.Duration), nil
	default:
		return nil, nil
	}
}

func buildOrchestrator(cfg *config.Config, st *stores, logger *logrus.Entry) (*orchestrator.Orchestrator, error) {
	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL,
		solana.WithTimeout(cfg.Solana.Timeout.Duration),
		solana.WithMaxRetries(cfg.Solana.MaxRetries),
	)
	router := aggregator.New(aggregator.Options{
		HTTP:     cfg.Aggregator.Upstream("aggregator"),
		QuoteTTL: cfg.Execution.QuoteTTL.Duration,
	})
	market := marketdata.NewHTTPClient(marketdata.Options{
		HTTP: cfg.MarketData.Upstream("market_data"),
	})
	graph := walletgraph.NewHTTPClient(cfg.WalletGraph.Upstream("wallet_graph"))
	resolver := metadata.NewResolver(rpc, logger)

	signer, err := buildSigner(cfg, rpc)
	if err != nil {
		return nil, err
	}
	if signer == nil {
		logger.Warn("no signer configured, executions will fail prerequisites")
	}

	execCfg := cfg.Execution.Domain()

	gate := risk.NewAggregator(risk.Options{
		Checks:                 risk.NewChecks(cfg.Risk.Policy(), graph, market, execCfg.BuyAmountSOL),
		Threshold:              cfg.Risk.Threshold,
		CheckTimeout:           cfg.Risk.CheckTimeout.Duration,
		DataUnavailablePenalty: cfg.Risk.DataUnavailablePenalty,
		UserID:                 cfg.UserID,
		Audit:                  st.audit,
		Results:                st.riskResults,
		Logger:                 logger,
	})

	machine := execution.NewMachine(execution.Options{
		Router:          router,
		Signer:          signer,
		RPC:             rpc,
		Decimals:        resolver,
		Prices:          market,
		UserID:          cfg.UserID,
		PollInterval:    cfg.Execution.PollInterval.Duration,
		MaxPollAttempts: cfg.Execution.MaxPollAttempts,
		Logger:          logger,
	})

	var observer orchestrator.Observer
	if cfg.Observation.Enabled {
		observer = observation.New(market, router, observation.Config{
			Delay:              cfg.Observation.Delay.Duration,
			HighLiquidityUSD:   cfg.Observation.HighLiquidityUSD,
			MaxLiquidityChange: cfg.Observation.MaxLiquidityChange,
			MaxQuoteDeviation:  cfg.Observation.MaxQuoteDeviation,
		}, logger)
	}

	var supervisor orchestrator.Supervisor
	if cfg.Monitor.Enabled {
		mon, err := monitor.New(monitor.Options{
			Quoter:       router,
			Market:       market,
			Registry:     monitor.NewRegistry(),
			Schedule:     cfg.Monitor.Schedule(),
			ProbeTimeout: cfg.Monitor.ProbeTimeout.Duration,
			SlippageBps:  cfg.Execution.SlippageBps,
			Checkpoints:  st.checkpoints,
			Audit:        st.audit,
			UserID:       cfg.UserID,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("monitor: %w", err)
		}
		supervisor = mon
	}

	senders := []notify.Sender{notify.NewLogSender(logger)}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}

	return orchestrator.New(orchestrator.Options{
		Gate:               gate,
		Observer:           observer,
		Quoter:             router,
		Executor:           machine,
		Supervisor:         supervisor,
		Metadata:           resolver,
		Balances:           rpc,
		Positions:          st.positions,
		Audit:              st.audit,
		Processed:          st.processed,
		Notifier:           notify.NewNotifier(logger, senders...),
		UserID:             cfg.UserID,
		Execution:          execCfg,
		Cooldown:           cfg.Orchestrator.Cooldown.Duration,
		AbortOnInstability: cfg.Observation.AbortOnInstability,
		FeeReserveSOL:      cfg.Execution.FeeReserve(),
		Logger:             logger,
	}), nil
}
