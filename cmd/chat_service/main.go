package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pawtograder/platform-sub008/internal/chat/app"
	"github.com/pawtograder/platform-sub008/internal/chat/repository"
	"github.com/pawtograder/platform-sub008/internal/chat/router"
	"github.com/pawtograder/platform-sub008/pkg/config"
	"github.com/pawtograder/platform-sub008/pkg/database"
	"github.com/pawtograder/platform-sub008/pkg/logger"
	test_tool "github.com/pawtograder/platform-sub008/pkg/test_tool"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLog)
	// 非 production 開啟 debug log
	logger.Log.SetDebugMode(!config.IsProduction())

	cfg, err := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAML)
	if err != nil {
		logger.Log.Fatal("load config failed", zap.Error(err))
	}
	if config.EnvConfig.ChatServicePort != "" {
		cfg.Port = config.EnvConfig.ChatServicePort
	}
	engine := cfg.Engine.WithDefaults()

	test_tool.StartPprof(":6060")

	// 1. 建立 Mongo 連線 (存訊息)
	ctx := context.Background()
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval) * time.Second,
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("host", cfg.MongoSQL.Host),
			zap.Error(err),
		)
	}

	// 2. 建立 Redis 連線 (Pub/Sub)
	redisClient, err := newRedis(cfg.Redis)
	if err != nil {
		logger.Log.Fatal("connect redis failed", zap.Error(err))
	}

	// 3. 初始化 Repository
	roomRepo := repository.NewMongoChatRepository(mongo.Database)
	msgRepo := repository.NewMongoChatMessageRepository(mongo.Database)
	modRepo := repository.NewMongoModerationRepository(mongo.Database)
	pub := repository.NewRedisPubSub(redisClient)

	// 4. 初始化 UseCases
	roomUC := app.NewRoomUseCase(roomRepo, modRepo, msgRepo)
	messageUC := app.NewMessageUseCase(msgRepo, pub)

	// 5. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLog), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Log.Fatal("Failed to open access log", zap.Error(err))
	}

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, app.NewChatWebsocketHandler(roomUC, messageUC, engine))

	port := ":" + cfg.Port
	go func() {
		logger.Log.Info("Chat Service listening", zap.String("port", port))
		if err := r.Listen(port); err != nil {
			logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
		}
	}()

	// 收到 SIGINT/SIGTERM 後關閉所有連線
	wait := gfshutdown.GracefulShutdown(ctx, shutdownTimeout, map[string]gfshutdown.Operation{
		"fiber": func(ctx context.Context) error {
			return r.ShutdownWithContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Close()
		},
		"mongo": func(ctx context.Context) error {
			return mongo.Close(ctx)
		},
		"access_log": func(ctx context.Context) error {
			return file.Close()
		},
	})
	code := <-wait
	logger.Log.Info("chat service stopped", zap.Int("exit_code", code))
	logger.Log.Sync()
	os.Exit(code)
}

// newRedis redis.addr 有值時走單節點, 否則從 .env 讀 sentinel
func newRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr != "" {
		return database.NewRedisSingleClient(cfg.Addr, cfg.RedisDB)
	}
	masterName, sentinel := config.GetRedisSetting()
	return database.NewRedisClient(masterName, sentinel, cfg.RedisDB)
}
