package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/DhruvWebDev/Deploify/internal/app/migrate"
	"github.com/DhruvWebDev/Deploify/internal/binding"
	"github.com/DhruvWebDev/Deploify/internal/blob"
	"github.com/DhruvWebDev/Deploify/internal/coordinator"
	httpx "github.com/DhruvWebDev/Deploify/internal/http"
	"github.com/DhruvWebDev/Deploify/internal/logs"
	"github.com/DhruvWebDev/Deploify/internal/provision"
	"github.com/DhruvWebDev/Deploify/internal/repository/postgres"
	"github.com/DhruvWebDev/Deploify/internal/slug"
	"github.com/DhruvWebDev/Deploify/internal/staticsite"
	"github.com/DhruvWebDev/Deploify/internal/stream"
	"github.com/DhruvWebDev/Deploify/internal/workspace"
	"github.com/DhruvWebDev/Deploify/internal/ws"
	"github.com/DhruvWebDev/Deploify/pkg/config"
	"github.com/DhruvWebDev/Deploify/pkg/logger"
)

func main() {
	cfg := config.LoadCoordinatorConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("redis ping failed", "error", err)
		os.Exit(1)
	}

	publisher, err := stream.NewRedisPublisher(redisClient, cfg.LogTopic)
	if err != nil {
		log.Error("failed to configure log publisher", "error", err)
		os.Exit(1)
	}
	consumerName := fmt.Sprintf("api-%s", uuid.NewString()[:8])
	source, err := stream.NewRedisConsumer(redisClient, cfg.LogTopic, cfg.LogConsumerGroup, consumerName)
	if err != nil {
		log.Error("failed to configure log consumer", "error", err)
		os.Exit(1)
	}
	defer source.Close()

	hub := ws.NewHub()
	logSvc := logs.New(publisher, repo, hub, log)
	logConsumer := logs.NewConsumer(source, repo, log, cfg.LogBatchSize, cfg.LogBlockTimeout)
	go logConsumer.Run(ctx)

	bindings, err := binding.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Error("failed to configure binding store", "error", err)
		os.Exit(1)
	}

	blobs, err := blob.NewS3Store(ctx, cfg.BlobBucket, cfg.BlobRegion)
	if err != nil {
		log.Error("failed to configure blob store", "error", err)
		os.Exit(1)
	}

	docker, err := provision.NewDockerClient(cfg.DockerHost)
	if err != nil {
		log.Error("failed to connect to docker", "error", err)
		os.Exit(1)
	}
	provisioner := provision.New(docker, bindings, logSvc, log, cfg.RuntimeImage, cfg.AppPort)

	workspaces, err := workspace.New(cfg.WorkspaceRoot)
	if err != nil {
		log.Error("failed to prepare workspace root", "error", err)
		os.Exit(1)
	}
	staticBuilder := staticsite.New(workspaces, blobs, bindings, logSvc, log)

	coordinatorSvc := coordinator.New(repo, repo, provisioner, staticBuilder, logSvc, slug.NewGenerator(), hub, log, cfg.TeardownOnFailure, cfg.ProvisionTimeout)

	router := httpx.NewRouter(log, coordinatorSvc, hub, cfg.DefaultBranchRef, pool.Ping)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
