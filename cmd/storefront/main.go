package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/electrovision/storefront/internal/auth"
	"github.com/electrovision/storefront/internal/cart"
	"github.com/electrovision/storefront/internal/catalog"
	"github.com/electrovision/storefront/internal/checkout"
	"github.com/electrovision/storefront/internal/config"
	"github.com/electrovision/storefront/internal/db"
	"github.com/electrovision/storefront/internal/fulfillment"
	"github.com/electrovision/storefront/internal/httpx"
	"github.com/electrovision/storefront/internal/mail"
	"github.com/electrovision/storefront/internal/metrics"
	"github.com/electrovision/storefront/internal/order"
	"github.com/electrovision/storefront/internal/user"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pg.Close()

	if err := pg.Migrate(cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	users := user.NewPGRepo(pg.Pool)
	products := catalog.NewPGRepo(pg.Pool)
	carts := cart.NewPGRepo(pg.Pool)
	orders := order.NewPGRepo(pg.Pool)

	var notifier mail.Notifier = mail.NopNotifier{}
	if cfg.SMTPUser != "" {
		notifier = mail.NewMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			FromName: cfg.MailFrom,
		})
	} else {
		log.Warn().Msg("MAIL_USER not set, order confirmations disabled")
	}

	initiator := checkout.NewInitiator(
		checkout.NewStripeSessions(cfg.StripeSecretKey),
		products, carts, cfg.FrontendBaseURL,
	)
	engine := fulfillment.NewEngine(
		fulfillment.NewPGStore(pg.Pool),
		notifier, cfg.StripeWebhookSecret, cfg.FulfillTimeout,
	)

	srvMetrics := metrics.NewServerMetrics()

	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(), srvMetrics.Middleware())
	r.Use(auth.SessionMiddleware(cfg.SessionSecret))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", metrics.Handler())

	// The webhook consumes the raw body for signature verification.
	fulfillment.NewHandler(engine).Register(r)
	auth.NewHandlers(cfg, users).Register(r)

	catalog.NewHandlers(products).Register(r.Group("/api/product"))

	authed := r.Group("/api", auth.RequireUser())
	cart.NewHandlers(carts, products).Register(authed)
	order.NewHandlers(orders).Register(authed)
	checkout.NewHandlers(initiator).Register(authed)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("storefront listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}
