package main

import (
	"context"
	"net/http"
	"time"

	"meshline/backend/internal/api/handler"
	"meshline/backend/internal/chathub"
	"meshline/backend/internal/config"
	"meshline/backend/internal/media"
	"meshline/backend/internal/models"
	"meshline/backend/internal/notify"
	"meshline/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(log *zap.Logger) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(config.DatabaseDSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr(),
		Password: config.RedisPassword(),
		DB:       0,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Connection{},
		&models.Message{},
		&models.ConversationState{},
		&models.AbuseAudit{},
	)
	if err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	log.Info("database and redis connections established, migrations complete")
	return db, rdb
}

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file loaded")
	}

	db, rdb := setupDependencies(log)
	store := storage.NewService(db, rdb, log)

	hub := chathub.NewManager(store, log)
	typing := chathub.NewTypingTracker(store, config.TypingIdleWindow, log)
	uploads := media.NewService(config.UploadEndpoint(), config.UploadAPIKey(), config.UploadAPISecret(), log)

	notifier, err := notify.NewService(config.TelegramBotToken(), store, log)
	if err != nil {
		log.Fatal("failed to start notification bridge", zap.Error(err))
	}

	go hub.Run()
	go hub.ListenEvents(context.Background())

	r := gin.Default()
	h := handler.New(hub, store, typing, uploads, notifier, config.JWTSecret(), log)

	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)

	authed := r.Group("/", h.RequireAuth)
	authed.POST("/connections", h.RequestConnection)
	authed.POST("/connections/decide", h.DecideConnection)
	authed.POST("/conversations/:key/messages", h.SendMessage)
	authed.GET("/conversations/:key/messages", h.GetMessages)
	authed.POST("/conversations/:key/typing", h.SetTyping)
	authed.GET("/ws", h.Subscribe)
	authed.POST("/uploads", h.StartUpload)
	authed.GET("/uploads/:id", h.GetUpload)
	authed.DELETE("/uploads/:id", h.CancelUpload)

	server := &http.Server{
		Addr:           config.ListenAddr(),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Info("listening", zap.String("addr", server.Addr))
	log.Fatal("server stopped", zap.Error(server.ListenAndServe()))
}
