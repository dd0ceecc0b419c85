package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"runtime"

	"adslots/internal/allocator"
	"adslots/internal/auth"
	"adslots/internal/cache"
	"adslots/internal/db"
	"adslots/internal/domain/storage"
	"adslots/internal/mailer"
	"adslots/internal/notifications"
	"adslots/internal/payments"
	"adslots/internal/ratelimiter"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a console zap logger with colored levels.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(os.Stdout),
		zapcore.InfoLevel,
	)
	return zap.New(core).Sugar(), nil
}

var version = "1.0.0"

//	@title			Ad Slots API
//	@description	Partner advertisement slot booking: availability, bookings, payments and moderation.

//	@contact.name	API Support
//	@contact.email	support@adslots.local

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
//	@description

func main() {
	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal(err)
	}

	// Database
	pool, err := db.New(db.Config{
		Addr:        cfg.DB.Addr,
		MaxConns:    cfg.DB.MaxConns,
		MinConns:    cfg.DB.MinConns,
		MaxIdleTime: cfg.DB.MaxIdleTime,
	})
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()
	logger.Info("database connection pool established")

	store := storage.NewContainer(pool)

	// Projection cache
	var projectionCache allocator.Cache
	if cfg.Redis.Addr != "" {
		rdb := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := rdb.Ping(context.Background()); err != nil {
			logger.Fatalw("redis unreachable", "addr", cfg.Redis.Addr, "error", err)
		}
		defer rdb.Close()
		projectionCache = rdb
		logger.Infow("projection cache", "backend", "redis", "addr", cfg.Redis.Addr)
	} else {
		projectionCache = cache.NewMemory()
		logger.Infow("projection cache", "backend", "memory")
	}

	// Cloudinary for banner uploads
	var cld *cloudinary.Cloudinary
	if cfg.CloudinaryURL != "" {
		cld, err = cloudinary.NewFromURL(cfg.CloudinaryURL)
		if err != nil {
			logger.Fatal(err)
		}
	}

	// Payment providers
	httpClient := &http.Client{Timeout: cfg.Payments.Timeout}
	gateways := payments.NewManager(cfg.Payments.Timeout)
	if cfg.Payments.Khalti.SecretKey != "" {
		gateways.Register(payments.NewKhaltiAdapter(payments.KhaltiConfig{
			SecretKey:    cfg.Payments.Khalti.SecretKey,
			ReturnURL:    cfg.Payments.Khalti.ReturnURL,
			WebsiteURL:   cfg.Payments.Khalti.WebsiteURL,
			IsProduction: cfg.Payments.Khalti.Production,
		}, httpClient))
	}
	var esewa *payments.EsewaAdapter
	if cfg.Payments.Esewa.SecretKey != "" {
		esewa = payments.NewEsewaAdapter(payments.EsewaConfig{
			MerchantCode: cfg.Payments.Esewa.MerchantCode,
			SecretKey:    cfg.Payments.Esewa.SecretKey,
			SuccessURL:   cfg.Payments.Esewa.SuccessURL,
			FailureURL:   cfg.Payments.Esewa.FailureURL,
			IsProduction: cfg.Payments.Esewa.Production,
		}, httpClient)
		gateways.Register(esewa)
	}

	refs, err := payments.NewReferences(cfg.Payments.ReferenceSalt)
	if err != nil {
		logger.Fatal(err)
	}

	// Owner notifications
	var mail mailer.Client
	if cfg.Mail.MailtrapAPIKey != "" {
		mailtrap, err := mailer.NewMailTrapClient(cfg.Mail.MailtrapAPIKey, cfg.Mail.FromEmail)
		if err != nil {
			logger.Fatal(err)
		}
		mail = mailtrap
	}
	dispatcher := notifications.NewDispatcher(
		notifications.NewExpoSender(cfg.ExpoAccessToken),
		mail,
		store.PushTokens,
		store.Users,
		logger,
	)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := allocator.NewService(allocator.Config{
		Layout: allocator.Layout{
			TotalSlots: cfg.Slots.Total,
			PaidSlots:  cfg.Slots.Paid,
		},
		HoldWindow:        cfg.Slots.HoldWindow,
		DefaultDailyPrice: cfg.Slots.DefaultDailyPrice,
		Currency:          cfg.Slots.Currency,
		ProjectionTTL:     cfg.Slots.ProjectionTTL,
	}, allocator.Deps{
		Store:      store,
		Gateways:   gateways,
		References: refs,
		Logger:     logger,
		Metrics:    allocator.NewMetrics(registry),
		Cache:      projectionCache,
		Notifier:   dispatcher,
	})

	jwtAuthenticator := auth.NewJWTAuthenticator(cfg.Auth.TokenSecret, cfg.Auth.Issuer, cfg.Auth.Issuer)

	app := &application{
		config:        cfg,
		logger:        logger,
		store:         store,
		allocator:     svc,
		cld:           cld,
		esewa:         esewa,
		authenticator: jwtAuthenticator,
		registry:      registry,
		notifier:      dispatcher,
		rateLimiter: ratelimiter.New(ratelimiter.Config{
			RequestsPerSecond: cfg.RateLimiter.RequestsPerSecond,
			Burst:             cfg.RateLimiter.Burst,
			Enabled:           cfg.RateLimiter.Enabled,
		}),
	}

	//Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		st := pool.Stat()
		return map[string]any{
			"total_conns":    st.TotalConns(),
			"idle_conns":     st.IdleConns(),
			"acquired_conns": st.AcquiredConns(),
			"max_conns":      st.MaxConns(),
		}
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.sweepEvery(ctx, cfg.Slots.SweepInterval)
	app.pruneRateLimiterEvery(ctx)

	mux := app.mount()

	if err := app.run(mux); err != nil {
		logger.Fatal(err)
	}
}
