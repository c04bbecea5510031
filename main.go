package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rick-api/config"
	"rick-api/handlers"
	"rick-api/services"
	"rick-api/store"
	"rick-api/workflows"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("server exited cleanly")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn, err := cfg.DSN()
	if err != nil {
		return err
	}

	// Connect to the conversation store and create the schema
	conversations, err := store.Open(ctx, cfg.DBDriver, dsn)
	if err != nil {
		return err
	}
	defer conversations.Close()
	if cfg.DBDriver == config.DriverPostgres {
		conversations.DB().SetMaxOpenConns(cfg.DBMaxOpenConns)
		conversations.DB().SetConnMaxLifetime(cfg.DBConnLifetime)
	}
	logger.Info("connected to conversation store", zap.String("driver", cfg.DBDriver))

	completer, err := newCompleter(cfg)
	if err != nil {
		return err
	}

	chatWorkflows := workflows.NewChatWorkflows(conversations, completer, logger)

	var turns handlers.TurnRunner = chatWorkflows
	if cfg.DBOSEnabled {
		dbosCtx, err := dbos.NewDBOSContext(context.Background(), dbos.Config{
			DatabaseURL: dsn,
			AppName:     cfg.DBOSAppName,
		})
		if err != nil {
			return fmt.Errorf("initialize DBOS: %w", err)
		}

		// Register workflows with DBOS (must be before Launch)
		chatWorkflows.Register(dbosCtx)

		if err := dbos.Launch(dbosCtx); err != nil {
			return fmt.Errorf("launch DBOS: %w", err)
		}
		defer dbos.Shutdown(dbosCtx, cfg.ShutdownTimeout)
		logger.Info("DBOS initialized - durable turns enabled")

		turns = workflows.NewDurableTurns(dbosCtx, chatWorkflows)
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	chatHandler := handlers.NewChatHandler(conversations, turns, logger)
	router := handlers.NewRouter(handlers.RouterConfig{
		APISecret:      cfg.APISecret,
		CORSOrigins:    cfg.CORSOrigins,
		MetricsEnabled: cfg.MetricsEnabled,
	}, chatHandler, logger)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("llm_provider", cfg.LLMProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newCompleter(cfg *config.Config) (services.Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		anthropicService, err := services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.AnthropicURL, cfg.LLMModel, cfg.LLMTimeout)
		if err != nil {
			return nil, err
		}
		return anthropicService, nil
	default:
		return services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel, cfg.LLMTimeout), nil
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
