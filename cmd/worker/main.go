package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"

	"megabot.app/onboarding/common/id"
	"megabot.app/onboarding/common/llm"
	"megabot.app/onboarding/common/logger"
	"megabot.app/onboarding/common/otel"
	"megabot.app/onboarding/core/config"
	"megabot.app/onboarding/core/db"
	"megabot.app/onboarding/internal/brain"
	"megabot.app/onboarding/internal/catalog"
	"megabot.app/onboarding/internal/gateway"
	"megabot.app/onboarding/internal/onboarding"
	"megabot.app/onboarding/internal/queue"
	"megabot.app/onboarding/internal/service"
	"megabot.app/onboarding/internal/store"
	"megabot.app/onboarding/internal/worker"
)

func main() {
	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "megabot worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	// Different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	// REST only: the server process owns the gateway connection.
	session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create discord session", "error", err)
		os.Exit(1)
	}
	botUser, err := session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve bot user", "error", err)
		os.Exit(1)
	}
	discord := gateway.NewDiscord(session, gateway.DiscordConfig{
		GuildID:    cfg.Discord.GuildID,
		CategoryID: cfg.Discord.OnboardingCategoryID,
		BotUserID:  botUser.ID,
	})

	cat, err := catalog.LoadOrDefault(cfg.Onboarding.CatalogPath)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load onboarding catalog", "error", err)
		os.Exit(1)
	}
	holder := catalog.NewHolder(cat)

	var catalogWatcher *catalog.Watcher
	if cfg.Onboarding.CatalogPath != "" {
		catalogWatcher = catalog.NewWatcher(cfg.Onboarding.CatalogPath, holder)
		go func() {
			if err := catalogWatcher.Run(ctx); err != nil {
				slog.ErrorContext(ctx, "catalog watcher stopped", "error", err)
			}
		}()
	}

	var interpreter onboarding.Interpreter
	if cfg.OpenAI.Enabled() {
		llmClient, err := llm.New(llm.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create llm client", "error", err)
			os.Exit(1)
		}
		interpreter = brain.NewTaskInterpreter(llmClient)
		slog.InfoContext(ctx, "llm interpreter enabled", "model", llmClient.Model())
	} else {
		slog.InfoContext(ctx, "llm interpreter disabled, using keyword matching")
	}

	services := service.NewServices(
		store.NewStores(database.Queries()),
		service.NewTxRunner(database),
		discord,
		holder,
		interpreter,
		queue.NewCompletionPublisher(redisClient, cfg.Pipeline.CompletionStream),
		cfg.Onboarding,
	)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    1, // one message at a time keeps each channel's messages ordered
		Block:        5 * time.Second,
		MaxAttempts:  3,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	registry := worker.NewOnboardingRegistry(services.Onboarding())
	w := worker.New(consumer, registry, worker.Config{
		MaxAttempts: 3,
	})

	reclaimer := worker.NewReclaimer(redisClient, worker.ReclaimerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	reaper := worker.NewReaperScheduler(services.Reaper(), cfg.Onboarding.ReaperInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go reclaimer.Run(ctx)
	go reaper.Run(ctx)

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Quick loops first, then the worker which may be mid-task
	reaper.Stop()
	reclaimer.Stop()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	cancelRun()
	if catalogWatcher != nil {
		<-catalogWatcher.Done()
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
 __  __ ___ ___   _   ___  ___ _____
|  \/  | __/ __| /_\ | _ )/ _ \_   _|
| |\/| | _| (_ |/ _ \| _ \ (_) || |
|_|  |_|___\___/_/ \_\___/\___/ |_|   worker
`
