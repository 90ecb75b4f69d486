package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/tour-booking/internal/booking"
	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/database"
	"github.com/iliyamo/tour-booking/internal/handler"
	"github.com/iliyamo/tour-booking/internal/mail"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/notify"
	"github.com/iliyamo/tour-booking/internal/payment"
	"github.com/iliyamo/tour-booking/internal/queue"
	"github.com/iliyamo/tour-booking/internal/repository"
	"github.com/iliyamo/tour-booking/internal/router"
)

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("err", err))
		os.Exit(1)
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Error("database", slog.Any("err", err))
		os.Exit(1)
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Error("migrate", slog.Any("err", err))
			os.Exit(1)
		}
		log.Info("schema applied")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unreachable, cache and rate limiter disabled")
	} else {
		defer rdb.Close()
	}

	pub, err := queue.NewPublisher(cfg.RabbitURL, cfg.EventsExchange)
	if err != nil {
		log.Warn("rabbitmq not reachable yet, events will retry on publish", slog.Any("err", err))
	}
	defer pub.Close()

	opts := booking.Options{
		DefaultCapacity:    cfg.Booking.DefaultCapacity,
		CancellationCutoff: cfg.Booking.CancellationCutoff,
		Logger:             log,
	}
	var checkout handler.CheckoutCreator
	stripe := payment.New(payment.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookKey,
		Currency:      cfg.StripeCurrency,
		SiteURL:       cfg.PublicSiteURL,
	}, log)
	if stripe != nil {
		opts.Payments = stripe
		checkout = stripe
	} else {
		log.Warn("stripe not configured, checkout and refunds disabled")
	}

	dispatcher := notify.NewDispatcher(pub, log, cfg.NotifyOutbox)
	dispatched := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatched)
	}()

	ledger := booking.NewLedger(repository.NewBookingStore(db), dispatcher, opts)
	listener := booking.NewListener(ledger, log)

	tours := repository.NewTourRepo(db)
	notifications := repository.NewNotificationRepo(db)

	if cfg.NotifyWorker {
		consumer := queue.NewConsumer(queue.ConsumerConfig{
			URL:        cfg.RabbitURL,
			Exchange:   cfg.EventsExchange,
			Queue:      cfg.NotifyQueue,
			DeadLetter: cfg.NotifyDLX,
			Keys:       queue.AllKeys,
			Prefetch:   cfg.NotifyPrefetch,
		}, log)
		worker := notify.NewWorker(notifications, mail.NewSMTPSender(cfg.SMTP, log), log)
		go func() {
			if err := consumer.Run(ctx, worker.Delivery); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("notification worker stopped", slog.Any("err", err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)
	tourHandler := handler.NewTourHandler(tours, ledger.Resolver(), log)

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db)), cfg.JWTSecret)
	router.RegisterCatalog(e, tourHandler, cache)
	router.RegisterBookings(e, handler.NewBookingHandler(ledger, tours, checkout, cfg.JWTSecret, log), cfg.JWTSecret, limiter)
	router.RegisterMerchant(e, handler.NewMerchantHandler(ledger, log), tourHandler, cfg.JWTSecret)
	router.RegisterPayments(e, handler.NewWebhookHandler(cfg.StripeWebhookKey, listener, log))
	router.RegisterNotifications(e, handler.NewNotificationHandler(notifications, log), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", slog.Any("err", err))
	}
	dispatcher.Close()
	select {
	case <-dispatched:
	case <-shutdownCtx.Done():
		log.Warn("booking events still queued at exit")
	}
}
