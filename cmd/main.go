package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-service/config"
	appuser "github.com/oksasatya/go-user-service/internal/application"
	"github.com/oksasatya/go-user-service/internal/container"
	"github.com/oksasatya/go-user-service/internal/domain/repository"
	"github.com/oksasatya/go-user-service/internal/infrastructure/cache"
	"github.com/oksasatya/go-user-service/internal/infrastructure/memory"
	pginfra "github.com/oksasatya/go-user-service/internal/infrastructure/postgres"
	"github.com/oksasatya/go-user-service/internal/infrastructure/search"
	"github.com/oksasatya/go-user-service/internal/interface/middleware"
	"github.com/oksasatya/go-user-service/internal/router"
	"github.com/oksasatya/go-user-service/pkg/helpers"
	"github.com/oksasatya/go-user-service/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)
	gin.SetMode(cfg.GinMode)
	validation.Init()

	ctx := context.Background()

	c, err := buildContainer(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("startup failed")
	}
	defer c.Close()

	// Gin engine and global middleware
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP(cfg.TrustProxyHeaders))
	r.Use(cors.New(corsConfig(cfg)))
	if cfg.HTTPLogEnabled {
		r.Use(middleware.AccessLog(logger))
	}

	reg := router.NewRegistry(r, cfg.APIPrefix)
	router.InitModules(reg, c)
	reg.RegisterAll()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.WithFields(logrus.Fields{"port": cfg.Port, "store": cfg.StoreDriver}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	logger.Info("server exited properly")
}

// buildContainer opens the store and the optional backends. Optional backends that
// fail to connect are logged and left disabled; the store is mandatory.
func buildContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*container.Container, error) {
	c := &container.Container{Config: cfg, Logger: logger}

	var repo repository.UserRepository
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory user store; data is lost on restart")
		repo = memory.NewUserRepository()
	default:
		pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), pginfra.PoolOptions{
			MaxConns:    cfg.DBMaxConns,
			MinConns:    cfg.DBMinConns,
			MaxConnLife: cfg.DBMaxConnLife,
		})
		if err != nil {
			return nil, err
		}
		c.Pool = pool
		if err := pginfra.RunMigrations(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
			c.Close()
			return nil, err
		}
		repo = pginfra.NewUserRepository(pool)
	}

	svc := appuser.NewService(repo, helpers.NewBcryptHasher(cfg.BcryptCost), logger)

	if cfg.RedisEnabled {
		rdb, err := helpers.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			helpers.LogWarn(logger, "redis unavailable; cache and rate limit disabled", err, logrus.Fields{"addr": cfg.RedisAddr})
		} else {
			c.Redis = rdb
			svc.Cache = cache.NewUserCache(rdb, cfg.UserCacheTTL)
		}
	}

	if cfg.SearchEnabled {
		es, err := search.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			helpers.LogWarn(logger, "elasticsearch client init failed; search disabled", err, nil)
		} else {
			c.ES = es
			svc.Index = search.NewUserIndex(es, cfg.ESUsersIndex)
		}
	}

	if cfg.EventsEnabled {
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQUserEventsQueue)
		if err != nil {
			helpers.LogWarn(logger, "rabbitmq unavailable; user events disabled", err, nil)
		} else {
			c.Publisher = pub
			svc.Events = pub
		}
	}

	c.Users = svc
	return c, nil
}

func corsConfig(cfg *config.Config) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:        12 * time.Hour,
	}
	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		cc.AllowOrigins = origins
		cc.AllowCredentials = true
	} else {
		cc.AllowAllOrigins = true
	}
	return cc
}
