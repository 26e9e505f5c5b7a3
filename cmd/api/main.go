// Package main (in api-subfolder) provides launch of the whole application except worker
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnendingLoop/Colorizer/internal/config"
	"github.com/UnendingLoop/Colorizer/internal/inference"
	"github.com/UnendingLoop/Colorizer/internal/kafka"
	"github.com/UnendingLoop/Colorizer/internal/mwlogger"
	"github.com/UnendingLoop/Colorizer/internal/repository"
	"github.com/UnendingLoop/Colorizer/internal/repository/jobcache"
	"github.com/UnendingLoop/Colorizer/internal/repository/memory"
	"github.com/UnendingLoop/Colorizer/internal/service"
	"github.com/UnendingLoop/Colorizer/internal/storage"
	"github.com/UnendingLoop/Colorizer/internal/transport"
	"github.com/UnendingLoop/Colorizer/internal/worker"
	"github.com/go-redis/redis/v8"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"
)

const (
	serviceName    = "Colorizer"
	serviceVersion = "1.0.0"
)

func main() {
	// инициализировать конфиг/ считать энвы
	cfg, err := config.Load("./.env")
	if err != nil {
		log.Fatalf("Failed to load config: %s\nExiting app...", err)
	}

	// стартуем логгер
	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// готовим заранее слушатель прерываний - контекст для всего приложения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []closer

	// хранилище записей и счётчиков
	var (
		jobRepo   repository.JobRepo
		statsRepo repository.StatsRepo
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		zlog.Logger.Warn().Msg("Using in-memory record store: history is lost on restart")
		jobRepo, statsRepo = memory.NewJobRepo(), memory.NewStatsRepo()
	default:
		dbConn, err := repository.ConnectWithRetries(cfg.PostgresDSN, 5, 10*time.Second)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("Failed to connect to DB")
		}
		if err := repository.MigrateWithRetries(dbConn.Master, cfg.MigrationsPath, 10, 15*time.Second); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		closers = append(closers, closer{name: "DB", close: dbConn.Master.Close})
		jobRepo, statsRepo = repository.NewPostgresJobRepo(dbConn), repository.NewPostgresStatsRepo(dbConn)
	}

	// кэш истории в redis - опционален
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			zlog.Logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis is unreachable, history cache disabled")
			_ = client.Close()
		} else {
			jobRepo = jobcache.New(jobRepo, jobcache.NewRedisCache(client), cfg.CacheTTL)
			closers = append(closers, closer{name: "Redis", close: client.Close})
		}
	}

	// подключиться к хранилищу картинок
	strg, err := storage.NewImgStorage(ctx, cfg, 10, 10*time.Second)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Failed to init image storage")
	}

	// события по job'ам: кафка если задана, иначе сразу в счётчики
	var pub service.EventPublisher
	if cfg.KafkaBroker != "" {
		if err := kafka.WaitKafkaReady(ctx, cfg.KafkaBroker, 30, 5*time.Second); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("Kafka is not ready")
		}
		if err := kafka.InitKafkaTopics(ctx, cfg.KafkaBroker, 10, 5*time.Second, cfg.KafkaTopic); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("Failed to init Kafka topics")
		}
		producer := wbfkafka.NewProducer([]string{cfg.KafkaBroker}, cfg.KafkaTopic)
		closers = append(closers, closer{name: "Kafka-producer", close: producer.Close})
		pub = producer
	} else {
		zlog.Logger.Info().Msg("KAFKA_BROKER is empty, job events are applied in-process")
		pub = worker.NewLocalPublisher(statsRepo)
	}

	if !cfg.DeleteRequireOwner {
		zlog.Logger.Warn().Msg("DELETE_REQUIRE_OWNER=false: any caller may delete any colorization")
	}

	// создаем экземпляры сервисов
	opts := service.OptionsFromConfig(cfg)
	colorizer := service.NewColorizeService(jobRepo, strg, inference.New(cfg.Inference), pub, opts)
	history := service.NewHistoryService(jobRepo, statsRepo, strg, opts)

	// cоздаем экземпляр хендлера HTTP
	handlers := transport.NewHandler(colorizer, history,
		transport.Info{Name: serviceName, Version: serviceVersion},
		cfg.PublicBaseURL, cfg.APIBasePath, cfg.MaxFileSize)

	// сетапим сервер
	engine := newRouter(cfg.GinMode, cfg.APIBasePath, handlers, cfg.MaxFileSize)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           mwlogger.NewMWLogger(engine),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Inference.Timeout + 30*time.Second, // ответ на /colorize ждёт inference целиком
	}

	// Server launch
	go func() {
		zlog.Logger.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("Server running")
		err := srv.ListenAndServe()
		if err != nil {
			switch {
			case errors.Is(err, http.ErrServerClosed):
				zlog.Logger.Info().Msg("Server gracefully stopping...")
			default:
				zlog.Logger.Error().Err(err).Msg("Server stopped")
				stop()
			}
		}
	}()

	// ждем отмены контекста для запуска грейсфул закрытия соединений
	<-ctx.Done()

	shutdown(srv, cfg.Inference.Timeout, closers)
	zlog.Logger.Info().Msg("Exiting API...")
}
