package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DhruvWebDev/Deploify/internal/binding"
	"github.com/DhruvWebDev/Deploify/internal/blob"
	"github.com/DhruvWebDev/Deploify/internal/router"
	"github.com/DhruvWebDev/Deploify/pkg/config"
	"github.com/DhruvWebDev/Deploify/pkg/logger"
)

func main() {
	cfg := config.LoadRouterConfig()
	log := logger.New("router", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	handler := router.New(bindings, blobs, cfg.PlatformDomain, cfg.ProxyTimeout, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("traffic router starting", "addr", cfg.Addr, "platform_domain", cfg.PlatformDomain)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("traffic router stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
