package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adslots/docs" //this is required to generate swagger docs
	"adslots/internal/allocator"
	"adslots/internal/auth"
	"adslots/internal/domain/storage"
	"adslots/internal/notifications"
	"adslots/internal/payments"
	"adslots/internal/ratelimiter"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type application struct {
	config        config
	store         *storage.Container
	allocator     *allocator.Service
	logger        *zap.SugaredLogger
	cld           *cloudinary.Cloudinary
	esewa         *payments.EsewaAdapter
	authenticator auth.Authenticator
	rateLimiter   *ratelimiter.Limiter
	registry      *prometheus.Registry
	notifier      *notifications.Dispatcher
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{app.config.FrontendURL, "https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if app.config.RateLimiter.Enabled {
		r.Use(app.RateLimiterMiddleware)
	}

	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)
		r.With(app.BasicAuthMiddleware()).Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))

		docsURL := fmt.Sprintf("%s/swagger/doc.json", app.config.Addr)
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docsURL)))

		// Public display surface
		r.Route("/slots", func(r chi.Router) {
			r.Get("/", app.listSlotsHandler)
			r.Get("/active", app.activeSlotsHandler)
		})

		// Provider callbacks
		r.Route("/payments", func(r chi.Router) {
			r.Get("/khalti/return", app.khaltiReturnHandler)
			r.Get("/esewa/return", app.esewaReturnHandler)
			r.Post("/webhook", app.paymentWebhookHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)

			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", app.createBookingHandler)
				r.Get("/", app.listMyBookingsHandler)
				r.Route("/{bookingID}", func(r chi.Router) {
					r.Get("/", app.getMyBookingHandler)
					r.Post("/payment", app.startPaymentHandler)
					r.Post("/confirm", app.confirmPaymentHandler)
				})
			})

			r.Route("/advertisements", func(r chi.Router) {
				r.Get("/me", app.myAdvertisementHandler)
				r.Post("/banner", app.uploadBannerHandler)
			})

			r.Route("/users/push-tokens", func(r chi.Router) {
				r.Post("/", app.savePushTokenHandler)
				r.Delete("/", app.removePushTokenHandler)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware, app.RequireAdmin)

			r.Route("/advertisements", func(r chi.Router) {
				r.Get("/", app.adminListAdvertisementsHandler)
				r.Patch("/{adID}/status", app.adminModerateAdvertisementHandler)
				r.Delete("/{adID}", app.adminDeleteAdvertisementHandler)
			})

			r.Route("/bookings", func(r chi.Router) {
				r.Get("/", app.adminListBookingsHandler)
				r.Get("/{bookingID}/payment-logs", app.adminPaymentLogsHandler)
				r.Post("/{bookingID}/activate", app.adminActivateBookingHandler)
				r.Post("/{bookingID}/cancel", app.adminCancelBookingHandler)
			})

			r.Route("/overrides", func(r chi.Router) {
				r.Get("/", app.adminListOverridesHandler)
				r.Put("/{slot}", app.adminSetOverrideHandler)
				r.Delete("/{slot}", app.adminRemoveOverrideHandler)
			})

			r.Route("/pricing", func(r chi.Router) {
				r.Get("/", app.adminPricingHandler)
				r.Put("/cells", app.adminSetPriceCellHandler)
				r.Put("/rates/{slot}", app.adminSetDailyRateHandler)
			})

			r.Post("/sweep", app.adminSweepHandler)
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	// Docs
	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.Host = app.config.APIURL
	docs.SwaggerInfo.BasePath = "/v1"

	srv := &http.Server{
		Addr:         app.config.Addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.Addr, "env", app.config.Env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	// let in-flight owner notifications finish
	if app.notifier != nil {
		app.notifier.Wait()
	}

	app.logger.Infow("server has stopped", "addr", app.config.Addr, "env", app.config.Env)

	return nil
}
