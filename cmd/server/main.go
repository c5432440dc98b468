package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bakkal/backoffice/internal/cache"
	"bakkal/backoffice/internal/config"
	"bakkal/backoffice/internal/httpapi"
	"bakkal/backoffice/internal/notify"
	"bakkal/backoffice/internal/service"
	"bakkal/backoffice/internal/store"
	"bakkal/backoffice/internal/store/memory"
	pgstore "bakkal/backoffice/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Store
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("store: postgres")
	} else {
		repo = memory.NewSeeded(cfg.DefaultPartition)
		closers = append(closers, repo.Close)
		log.Printf("store: in-memory, seeded partition %q", cfg.DefaultPartition)
	}

	discounts := fallbackDiscountCache(cfg)
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisDiscountCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), falling back to %T", err, discounts)
		} else {
			discounts = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Printf("cache: %T", discounts)
	}

	sinks := notify.Multi{notify.LogSink{}}
	var telegram *notify.TelegramSink
	if cfg.TelegramEnabled() {
		sink, err := notify.NewTelegramSink(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("telegram unavailable (%v), notifications go to the log only", err)
		} else {
			telegram = sink
			sinks = append(sinks, sink)
			log.Println("notify: telegram")
		}
	}

	svc := service.New(repo, discounts, sinks, service.Options{
		DefaultPartition: cfg.DefaultPartition,
		CostMethod:       cfg.CostMethod,
		MarkupPercent:    cfg.DefaultMarkupPercent,
		DefaultVATRate:   cfg.DefaultVATRate,
		DiscountTTL:      time.Duration(cfg.DiscountCacheTTLSeconds) * time.Second,
	})
	auth := httpapi.NewAuthenticator(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	// No WriteTimeout: /watch streams stay open for the life of the client.
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("back-office listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	// Closing the store ends open watch streams so Shutdown can drain.
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if telegram != nil {
		telegram.Close()
	}

	log.Println("server stopped")
}

// fallbackDiscountCache is used when redis is absent. A shared postgres store
// may serve several instances, so an in-process cache there would go stale.
func fallbackDiscountCache(cfg config.Config) cache.DiscountCache {
	if cfg.DatabaseURL != "" {
		return cache.NoopDiscountCache{}
	}
	return cache.NewMemoryDiscountCache()
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.DefaultPartition == "" {
		return fmt.Errorf("DEFAULT_PARTITION must not be empty")
	}
	return nil
}
