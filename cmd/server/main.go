package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/converse-chat/converse/internal/api"
	"github.com/converse-chat/converse/internal/cache"
	"github.com/converse-chat/converse/internal/completion"
	"github.com/converse-chat/converse/internal/config"
	"github.com/converse-chat/converse/internal/core"
	"github.com/converse-chat/converse/internal/db"
	"github.com/converse-chat/converse/internal/observ"
	"github.com/converse-chat/converse/internal/repository/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Startup has no deadline: take as long as the database needs.
	ctx := context.Background()

	if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	identity, err := cache.NewIdentityCache(cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer identity.Close()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	pool := database.Pool()
	userRepo := postgres.NewUserStore(pool)
	threadRepo := postgres.NewThreadStore(pool)
	messageRepo := postgres.NewMessageStore(pool)

	completer := completion.New(cfg.OpenAIAPIKey, logger)
	chatService := core.NewChatService(threadRepo, messageRepo, completer, logger)

	router := api.NewRouter(cfg, api.Handlers{
		Auth:   api.NewAuthHandler(userRepo, identity, cfg, logger),
		Chat:   api.NewChatHandler(chatService, cfg.ClientURL, logger),
		Thread: api.NewThreadHandler(threadRepo, messageRepo, logger),
		Voice:  api.NewVoiceHandler(completer, cfg.UploadDir, logger),
		Health: database.Health,
	})

	logger.Info("starting converse",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	return router.Run(":" + cfg.Port)
}
