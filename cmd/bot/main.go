package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/ulid/v2"

	"github.com/Slugpotato/pi-trading-demo/internal/broker"
	"github.com/Slugpotato/pi-trading-demo/internal/config"
	"github.com/Slugpotato/pi-trading-demo/internal/engine"
	"github.com/Slugpotato/pi-trading-demo/internal/ledger"
	"github.com/Slugpotato/pi-trading-demo/internal/md"
	"github.com/Slugpotato/pi-trading-demo/internal/portfolio"
	"github.com/Slugpotato/pi-trading-demo/internal/risk"
	"github.com/Slugpotato/pi-trading-demo/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	runID := ulid.Make().String()
	evals, err := engine.NewEvalLogger(cfg.EvalsPath, runID)
	if err != nil {
		log.Fatalf("evaluation logger error: %v", err)
	}
	defer func() {
		if err := evals.Close(); err != nil {
			log.Printf("failed to close evaluation logger: %v", err)
		}
	}()

	book, err := ledger.Open(cfg.LedgerDBPath, cfg.LedgerTextPath)
	if err != nil {
		log.Fatalf("trade ledger error: %v", err)
	}
	defer func() {
		if err := book.Close(); err != nil {
			log.Printf("failed to close trade ledger: %v", err)
		}
	}()

	clock, err := session.NewClock(cfg.SessionZone)
	if err != nil {
		log.Fatalf("session clock error: %v", err)
	}

	brokerClient := broker.New(cfg.APIKey, cfg.APISecret, cfg.BaseURL)
	dataClient := md.New(cfg.DataKey, cfg.DataSecret)
	inspector := portfolio.NewInspector(brokerClient, clock, cfg.OrderResultLimit)
	failures := engine.NewFailureLog(cfg.FailureLogPath)
	bot := engine.New(cfg, brokerClient, dataClient, inspector, risk.Gate{}, book, evals, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		log.Printf("shutdown signal received")
		cancel()
	}()

	log.Printf("starting bot run_id=%s watchlist=%v profit_target=%.4f session=%s-%s %s kill_switch=%v",
		runID, cfg.Watchlist, cfg.ProfitTarget, cfg.SessionStart, cfg.SessionEnd, cfg.SessionZone, cfg.KillSwitch)

	if err := bot.RunLoop(ctx, failures); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("run loop stopped: %v", err)
	}

	log.Printf("bot shutdown complete")
}
