// Package main (in worker-subfolder) runs the stats worker that consumes job events
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnendingLoop/Colorizer/internal/config"
	"github.com/UnendingLoop/Colorizer/internal/kafka"
	"github.com/UnendingLoop/Colorizer/internal/repository"
	"github.com/UnendingLoop/Colorizer/internal/repository/memory"
	"github.com/UnendingLoop/Colorizer/internal/worker"
	kafkago "github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	// инициализировать конфиг/ считать энвы
	cfg, err := config.Load("./.env")
	if err != nil {
		log.Fatalf("Failed to load config: %s\nExiting app...", err)
	}

	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	if cfg.KafkaBroker == "" {
		zlog.Logger.Fatal().Msg("KAFKA_BROKER is required for the worker")
	}

	// Listening to interruptions through context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []closer

	// подключиться к базе
	var stats repository.StatsRepo
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		zlog.Logger.Warn().Msg("Using in-memory stats store: counters are not shared with the API")
		stats = memory.NewStatsRepo()
	default:
		dbConn, err := repository.ConnectWithRetries(cfg.PostgresDSN, 5, 10*time.Second)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("Failed to connect to DB")
		}
		closers = append(closers, closer{name: "DB", close: dbConn.Master.Close})
		stats = repository.NewPostgresStatsRepo(dbConn)
	}

	// ждем пока кафка раздуплится
	if err := kafka.WaitKafkaReady(ctx, cfg.KafkaBroker, 30, 5*time.Second); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Kafka is not ready")
	}
	if err := kafka.InitKafkaTopics(ctx, cfg.KafkaBroker, 10, 5*time.Second, cfg.KafkaTopic); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Failed to init Kafka topics")
	}

	// подключиться к кафке как читатель
	queue := make(chan kafkago.Message)
	retryStrategy := retry.Strategy{
		Attempts: 5,
		Delay:    2 * time.Second,
		Backoff:  1.5,
	}
	cons := wbfkafka.NewConsumer([]string{cfg.KafkaBroker}, cfg.KafkaTopic, cfg.KafkaGroupID)
	closers = append(closers, closer{name: "Kafka-consumer", close: cons.Close})

	cons.StartConsuming(ctx, queue, retryStrategy)

	// Собираем воедино все что нужно воркеру и запускаем его
	statsWorker := worker.NewWorkerInstance(stats, queue, cons, retryStrategy)
	go func() {
		// непримененное событие не коммитится: останавливаемся, после рестарта оно придёт снова
		if err := statsWorker.StartWorker(ctx); err != nil {
			zlog.Logger.Error().Err(err).Msg("Stats worker stopped")
		}
		stop()
	}()
	zlog.Logger.Info().Str("topic", cfg.KafkaTopic).Str("group", cfg.KafkaGroupID).Msg("Stats worker started")

	// Waiting for interruption to stop context to start Graceful shutdown
	<-ctx.Done()

	shutdown(closers)
	zlog.Logger.Info().Msg("Exiting worker...")
}
