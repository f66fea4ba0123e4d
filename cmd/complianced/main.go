package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/clearlane/compliance-engine/api"
	"github.com/clearlane/compliance-engine/internal/audit"
	"github.com/clearlane/compliance-engine/internal/compliance/engine"
	"github.com/clearlane/compliance-engine/internal/compliance/findings"
	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/internal/compliance/semantic"
	"github.com/clearlane/compliance-engine/internal/compliance/velocity"
	"github.com/clearlane/compliance-engine/internal/config"
	"github.com/clearlane/compliance-engine/internal/database"
	"github.com/clearlane/compliance-engine/internal/messaging"
	"github.com/clearlane/compliance-engine/internal/trading/limits"
	"github.com/clearlane/compliance-engine/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := cfg.Logging.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		logLevel = env
	}
	zapLogger, err := logger.New(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.NewPostgres(cfg.Database.DSN,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}

	redisClient, err := database.NewRedis(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	ctx := context.Background()

	auditSvc, err := audit.NewService(db, zapLogger, cfg.Audit.QueueSize)
	if err != nil {
		zapLogger.Fatal("Failed to create audit service", zap.Error(err))
	}
	auditSvc.Start()

	ruleStore := rules.NewStore(db, zapLogger, auditSvc)
	ruleStore.SetCacheTTL(cfg.Engine.RuleCacheTTL)
	if err := ruleStore.Migrate(ctx); err != nil {
		zapLogger.Fatal("Failed to migrate rule table", zap.Error(err))
	}

	findingStore := findings.NewStore(db)
	if err := findingStore.Migrate(ctx); err != nil {
		zapLogger.Fatal("Failed to migrate finding table", zap.Error(err))
	}

	limitStore, err := limits.NewStore(db, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to migrate trading limit tables", zap.Error(err))
	}

	var bus messaging.Bus = messaging.NewMemoryBus(zapLogger)
	var kafkaPublisher *messaging.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := messaging.DefaultKafkaConfig()
		kafkaCfg.Brokers = cfg.Kafka.Brokers
		if cfg.Kafka.Topic != "" {
			kafkaCfg.Topic = cfg.Kafka.Topic
		}
		kafkaPublisher = messaging.NewKafkaPublisher(kafkaCfg, zapLogger)
		bus = messaging.NewMirroredBus(messaging.NewMemoryBus(zapLogger), kafkaPublisher, zapLogger)
		zapLogger.Info("kafka event publishing enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", kafkaCfg.Topic))
	}

	recorder := findings.NewRecorder(findingStore, bus, auditSvc, zapLogger)

	velocityStore := velocity.NewRedisStore(redisClient, zapLogger)

	var provider semantic.Provider
	if cfg.Semantic.BaseURL != "" {
		provider = semantic.NewHTTPProvider(cfg.Semantic.BaseURL, cfg.Semantic.APIKey, cfg.Semantic.Timeout)
	} else {
		zapLogger.Warn("no embedding service configured, semantic rules use literal matching only")
	}

	evaluators := []engine.Evaluator{
		engine.NewThresholdEvaluator(),
		engine.NewPatternEvaluator(),
		engine.NewKeywordEvaluator(),
		engine.NewCombinationEvaluator(),
		engine.NewVelocityEvaluator(velocityStore, cfg.Engine.VelocityTimeout, zapLogger),
		engine.NewSemanticEvaluator(provider, cfg.Semantic.Timeout, zapLogger),
	}
	eng := engine.NewEngine(evaluators, cfg.Engine.PassTimeout, zapLogger)

	complianceSvc := engine.NewService(zapLogger, ruleStore, eng, recorder, velocityStore, cfg.Engine.FailOpenBlocking)

	limitChecker := limits.NewChecker(limitStore, zapLogger)

	server, err := api.NewServer(zapLogger, cfg.Server, complianceSvc, ruleStore, findingStore, limitChecker)
	if err != nil {
		zapLogger.Fatal("Failed to create API server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			zapLogger.Error("API server failed", zap.Error(err))
		}
	case sig := <-sigCh:
		zapLogger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("API server shutdown failed", zap.Error(err))
	}
	if err := auditSvc.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Audit service shutdown failed", zap.Error(err))
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			zapLogger.Error("Kafka publisher close failed", zap.Error(err))
		}
	}
	if err := redisClient.Close(); err != nil {
		zapLogger.Error("Redis close failed", zap.Error(err))
	}
}
