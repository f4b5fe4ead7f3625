// Package main evaluates one candidate against the risk gate and prints the
// per-check report without trading.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/config"
	"solana-entry-gate/internal/feed"
	"solana-entry-gate/internal/marketdata"
	"solana-entry-gate/internal/risk"
	"solana-entry-gate/internal/walletgraph"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	candidatePath := flag.String("candidate", "", "JSON file with a feed candidate message")
	mint := flag.String("mint", "", "Token mint address")
	venue := flag.String("venue", "raydium", "Trading venue")
	liquidity := flag.Float64("liquidity", 0, "Reported liquidity in USD")
	deployer := flag.String("deployer", "", "Deployer wallet address")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	jsonOut := flag.Bool("json", false, "Print the decision as JSON")
	flag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	log := logrus.NewEntry(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	msg := feed.CandidateMessage{
		Address:      *mint,
		Venue:        *venue,
		LiquidityUSD: *liquidity,
		Deployer:     *deployer,
		CanBuy:       true,
		CanSell:      true,
		IsTradeable:  true,
	}
	if *candidatePath != "" {
		raw, err := os.ReadFile(*candidatePath)
		if err != nil {
			log.WithError(err).Fatal("read candidate")
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.WithError(err).Fatal("decode candidate")
		}
	}
	cand, err := msg.ToCandidate()
	if err != nil {
		log.WithError(err).Fatal("invalid candidate")
	}

	market := marketdata.NewHTTPClient(marketdata.Options{HTTP: cfg.MarketData.Upstream("market_data")})
	graph := walletgraph.NewHTTPClient(cfg.WalletGraph.Upstream("wallet_graph"))

	buySOL, err := parseBuyAmount(cfg.Execution.BuyAmountSOL)
	if err != nil {
		log.WithError(err).Fatal("execution config")
	}

	gate := risk.NewAggregator(risk.Options{
		Checks:                 risk.NewChecks(cfg.Risk.Policy(), graph, market, buySOL),
		Threshold:              cfg.Risk.Threshold,
		CheckTimeout:           cfg.Risk.CheckTimeout.Duration,
		DataUnavailablePenalty: cfg.Risk.DataUnavailablePenalty,
		UserID:                 cfg.UserID,
		Logger:                 log,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	d := gate.Evaluate(ctx, cand)

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			log.WithError(err).Fatal("encode decision")
		}
	} else if err := writeReport(os.Stdout, cand, d); err != nil {
		log.WithError(err).Fatal("render report")
	}

	if !d.Admitted {
		os.Exit(2)
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\nExit status is 2 when the candidate is rejected.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}
