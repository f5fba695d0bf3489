package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/recaplabs/recap/internal/chat"
	"github.com/recaplabs/recap/internal/config"
	"github.com/recaplabs/recap/internal/db"
	"github.com/recaplabs/recap/internal/dispatch"
	"github.com/recaplabs/recap/internal/dummy"
	"github.com/recaplabs/recap/internal/openai"
	"github.com/recaplabs/recap/internal/ops"
	"github.com/recaplabs/recap/internal/store"
	"github.com/recaplabs/recap/internal/summary"
	"github.com/recaplabs/recap/internal/telegram"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[recap] %v", err)
	}

	st := store.New(cfg.Capacity)
	opts := dispatch.Options{
		DefaultWindow:  cfg.DefaultWindow,
		TrackTopics:    cfg.TrackTopics,
		PollTimeout:    cfg.PollTimeout,
		SleepSeconds:   cfg.SleepSeconds,
		DropPending:    cfg.DropPending,
		SummarizeRPS:   cfg.SummarizeRPS,
		SummarizeBurst: cfg.SummarizeBurst,
	}

	if cfg.DBPath != "" {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			log.Fatalf("[recap] %v", err)
		}
		defer database.Close()
		if err := db.InitSchema(database); err != nil {
			log.Fatalf("[recap] failed to init schema: %v", err)
		}
		rootID, err := db.LogEvent(database, nil, db.EventProcessStarted, map[string]any{
			"pid":      os.Getpid(),
			"gateway":  cfg.Gateway,
			"provider": cfg.Provider,
			"capacity": cfg.Capacity,
		})
		if err != nil {
			log.Printf("[recap] failed to log process.started: %v", err)
		}
		opts.EventLog = database
		opts.RootEventID = rootID
	}

	gateway, err := newGateway(&cfg)
	if err != nil {
		log.Fatalf("[recap] failed to init gateway: %v", err)
	}
	summarizer, err := newSummarizer(&cfg)
	if err != nil {
		log.Fatalf("[recap] failed to init summarizer: %v", err)
	}

	registry := prometheus.NewRegistry()
	opts.Metrics = ops.NewMetrics(registry)
	if cfg.OpsAddr != "" {
		go func() {
			log.Printf("ops endpoint listening on %s", cfg.OpsAddr)
			if err := http.ListenAndServe(cfg.OpsAddr, ops.Handler(registry, st)); err != nil {
				log.Printf("[recap] ops endpoint: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf(
		"recap running gateway=%s provider=%s model=%s capacity=%d window=%d",
		cfg.Gateway,
		cfg.Provider,
		cfg.OpenAIModel,
		cfg.Capacity,
		cfg.DefaultWindow,
	)

	dispatch.New(st, gateway, summarizer, opts).Run(ctx)
	log.Printf("recap stopped")
}

func newGateway(cfg *config.Config) (chat.Gateway, error) {
	switch cfg.Gateway {
	case "telegram":
		// The HTTP timeout must outlast the long poll itself.
		return telegram.NewClient(cfg.TelegramAPIBase, time.Duration(cfg.PollTimeout+20)*time.Second), nil
	case "dummy":
		return dummy.NewGateway(cfg.DummyPollScript, cfg.DummySendScript)
	default:
		return nil, fmt.Errorf("unsupported gateway: %s", cfg.Gateway)
	}
}

func newSummarizer(cfg *config.Config) (summary.Summarizer, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIChatCompURL, cfg.OpenAIModel, cfg.SystemPrompt, 120*time.Second), nil
	case "dummy":
		return dummy.NewSummarizer(cfg.DummySummaryScript)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
