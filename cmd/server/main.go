package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hongminglow/nova-be/internal/auth"
	"github.com/hongminglow/nova-be/internal/codes"
	"github.com/hongminglow/nova-be/internal/config"
	"github.com/hongminglow/nova-be/internal/contentfilter"
	"github.com/hongminglow/nova-be/internal/envelope"
	"github.com/hongminglow/nova-be/internal/metrics"
	"github.com/hongminglow/nova-be/internal/moderation"
	"github.com/hongminglow/nova-be/internal/ratelimit"
	"github.com/hongminglow/nova-be/internal/retention"
	"github.com/hongminglow/nova-be/internal/server"
	"github.com/hongminglow/nova-be/internal/storage"
	"github.com/hongminglow/nova-be/internal/storage/memory"
	"github.com/hongminglow/nova-be/internal/storage/postgres"
	"github.com/hongminglow/nova-be/internal/verification"
)

func main() {
	loadLocalEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	defer store.Close()

	cipher, err := envelope.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("init envelope cipher: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var (
		limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
		locker  retention.Locker  = &retention.LocalLocker{}
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		limiter = ratelimit.NewRedisLimiter(rdb, "nova:ratelimit")
		locker = retention.NewRedisLocker(rdb, "nova:sweeper:lock", cfg.SweepLockTTL)
		log.Printf("using redis at %s for rate limits and sweep lock", cfg.RedisAddr)
	}

	ledger := verification.NewLedger(store, store)
	issuer := codes.NewIssuer(store, store, store, ledger, m, codes.Config{
		FriendCodeTTL: cfg.FriendCodeTTL,
		SchoolCodeTTL: cfg.SchoolCodeTTL,
	})
	gate := moderation.NewGate(store, contentfilter.NewKeywordFilter(cfg.BlockedTerms), m)

	sweeper := retention.NewSweeper(store, locker, m, retention.Config{
		Interval:               cfg.SweepInterval,
		PostArchiveAfter:       cfg.PostArchiveAfter,
		ProfileChangeRetention: cfg.ProfileChangeRetention,
	})
	stopSweeper, err := sweeper.Start(ctx)
	if err != nil {
		log.Fatalf("start sweeper: %v", err)
	}

	srv := server.New(cfg, server.Deps{
		Store:    store,
		Tokens:   auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL),
		Cipher:   cipher,
		Limiter:  limiter,
		Ledger:   ledger,
		Issuer:   issuer,
		Gate:     gate,
		Metrics:  m,
		Gatherer: registry,
	})

	go func() {
		log.Printf("NOVA backend listening on %s (storage=%s)", cfg.HTTPAddress(), cfg.StorageDriver)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
	stopSweeper()
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	if cfg.StorageDriver == config.DriverMemory {
		log.Println("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	}
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}
}
