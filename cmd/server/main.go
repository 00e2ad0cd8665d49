package main

import (
	"context"
	"errors"
	"flag"
	"go-dm/internal/chat"
	"go-dm/internal/config"
	"go-dm/internal/db"
	"go-dm/internal/friend"
	"go-dm/internal/kv"
	myMiddleware "go-dm/internal/middleware"
	"go-dm/internal/realtime"
	"go-dm/internal/user"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Config & Flags
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config: %v", err)
	}
	addr := flag.String("addr", cfg.Addr, "http service address")
	flag.Parse()

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("❌ Logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, *addr, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, addr string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Redis (pub/sub always, storage unless STORE=rest)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	var exec kv.Executor
	switch cfg.Store {
	case config.StoreREST:
		exec = kv.NewRESTExecutor(cfg.RESTURL, cfg.RESTToken, nil)
	default:
		exec = kv.NewRedisExecutor(redisClient)
	}
	store := kv.NewClient(exec)
	logger.Info("key-value store ready", zap.String("store", cfg.Store), zap.Bool("transactions", store.SupportsTransactions()))

	// 3. User directory
	var users user.Store
	switch cfg.UserDirectory {
	case config.DirectoryPostgres:
		database, err := db.NewDatabase(cfg.DBDSN)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.AutoMigrate(ctx); err != nil {
			return err
		}
		logger.Info("connected to postgres")
		users = user.NewSQLDirectory(database.Conn)
	default:
		users = user.NewKVDirectory(store)
	}

	// 4. Features
	publisher := realtime.NewPublisher(redisClient, logger)
	hub := realtime.NewHub(redisClient, logger)

	graph := friend.NewGraph(store, users, publisher, logger)
	chatService := chat.NewService(chat.NewRepository(store), graph, users, publisher, logger)

	chatHandler := chat.NewHandler(chatService, logger)
	friendHandler := friend.NewHandler(graph, users, logger)
	userHandler := user.NewHandler(users, myMiddleware.UserFromContext, logger)
	wsHandler := realtime.NewHandler(hub, cfg.AllowedOrigins, logger)
	sessions := myMiddleware.NewSessionMiddleware(cfg.JWTSecret, logger)

	// 5. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// History hides whether a conversation exists, so a missing session is a 404 there.
	r.With(sessions.Resolve).Get("/api/chats/{chatId}/messages", chatHandler.GetChatHistory)

	r.Group(func(r chi.Router) {
		r.Use(sessions.Require)

		r.Post("/api/users/me", userHandler.Register)
		r.Get("/api/users/me", userHandler.Me)

		r.Post("/api/message/send", chatHandler.Send)

		r.Get("/api/friends", friendHandler.List)
		r.Get("/api/friends/requests", friendHandler.Requests)
		r.Post("/api/friends/add", friendHandler.Add)
		r.Post("/api/friends/accept", friendHandler.Accept)
		r.Post("/api/friends/deny", friendHandler.Deny)

		r.Get("/ws", wsHandler.ServeWs)
	})

	srv := &http.Server{Addr: addr, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return hub.SubscribeToRedis(gctx)
	})
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
