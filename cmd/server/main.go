package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/georgeshao/clinic-crm/internal/adsapi"
	"github.com/georgeshao/clinic-crm/internal/api"
	"github.com/georgeshao/clinic-crm/internal/broadcast"
	"github.com/georgeshao/clinic-crm/internal/cache"
	"github.com/georgeshao/clinic-crm/internal/config"
	"github.com/georgeshao/clinic-crm/internal/ratelimit"
	"github.com/georgeshao/clinic-crm/internal/session"
	"github.com/georgeshao/clinic-crm/internal/storage"
	"github.com/georgeshao/clinic-crm/internal/storage/pebbledb"
	"github.com/georgeshao/clinic-crm/internal/storage/sqlite"
	"github.com/georgeshao/clinic-crm/internal/storage/supabase"
	"github.com/georgeshao/clinic-crm/internal/whatsapp"
	"github.com/georgeshao/clinic-crm/internal/whatsapp/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
	}

	// Broadcasts always reach local SSE clients; with redis they also reach
	// the other instances.
	hub := broadcast.NewHub(0)
	var broadcaster broadcast.Broadcaster = hub
	if rdb != nil {
		publisher := broadcast.NewRedisPublisher(rdb, cfg.RedisChannel)
		broadcaster = broadcast.Multi{hub, publisher}
		go func() {
			if err := publisher.Relay(ctx, hub); err != nil {
				log.Printf("[broadcast] Relay stopped: %v", err)
			}
		}()
	}

	// Ads client
	cacheType, sessionType := cache.StoreTypeMemory, session.StoreTypeFile
	if rdb != nil {
		cacheType, sessionType = cache.StoreTypeRedis, session.StoreTypeRedis
	}
	adsCache, err := cache.NewStore(cacheType, cache.WithRedisClient(rdb))
	if err != nil {
		log.Fatalf("Failed to initialize ads cache: %v", err)
	}
	if mem, ok := adsCache.(*cache.Memory); ok {
		go sweepCache(ctx, mem, cfg.CacheTTL)
	}
	ads := adsapi.New(adsapi.Config{
		BaseURL:     cfg.AdsBaseURL,
		AccessToken: cfg.AdsAccessToken,
		AccountID:   cfg.AdsAccountID,
		CountryCode: cfg.AdsCountryCode,
		MaxWorkers:  cfg.AdsMaxWorkers,
		CacheTTL:    cfg.CacheTTL,
		Limiter: ratelimit.Config{
			MinDelay:       cfg.AdsMinDelay,
			EscalatedDelay: cfg.AdsThrottledDelay,
		},
	}, adsCache)
	if !cfg.AdsConfigured() {
		log.Println("Ads API credentials missing, ads endpoints will answer 503")
	}

	// WhatsApp
	credentials, err := session.NewStore(sessionType,
		session.WithDir(cfg.WhatsAppSessionDir),
		session.WithRedisClient(rdb),
	)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}
	wa := whatsapp.New(
		whatsapp.Config{ReconnectDelay: cfg.WhatsAppReconnectDelay},
		transport.New(transport.Config{
			SessionDir: credentials.Dir(),
			LogLevel:   cfg.WhatsAppLogLevel,
		}),
		store,
		store,
		credentials,
		broadcaster,
	)
	if cfg.WhatsAppAutoConnect {
		saved, err := credentials.Load(ctx)
		switch {
		case err != nil:
			log.Printf("[whatsapp] Failed to read saved session: %v", err)
		case saved == nil:
			log.Println("[whatsapp] No saved session, pairing will need a QR scan")
		default:
			log.Println("[whatsapp] Resuming saved session")
		}
		go func() {
			if err := wa.Connect(ctx); err != nil {
				log.Printf("[whatsapp] Auto-connect failed: %v", err)
			}
		}()
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	// Setup routes
	api.SetupRoutes(app, api.NewHandler(store, ads, wa, hub, broadcaster), cfg.JWTSecret)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		wa.Disconnect(context.Background())
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	// Start server
	log.Printf("Starting clinic CRM server on %s (storage: %s)", cfg.Addr(), cfg.StorageDriver)
	if err := app.Listen(cfg.Addr()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.StoragePebble:
		store, err := pebbledb.New(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageSupabase:
		store, err := supabase.New(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseKey})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := sqlite.New(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// sweepCache drops expired ads responses so the memory cache does not grow
// with every distinct query seen over the life of the process.
func sweepCache(ctx context.Context, mem *cache.Memory, every time.Duration) {
	if every <= 0 {
		every = cache.DefaultTTL
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mem.Sweep(); n > 0 {
				log.Printf("[cache] Swept %d expired entries, %d left", n, mem.Len())
			}
		}
	}
}
