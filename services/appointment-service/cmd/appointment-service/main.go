package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/traindesk/traindesk/libs/clockx"
	"github.com/traindesk/traindesk/libs/config"
	"github.com/traindesk/traindesk/libs/db"
	"github.com/traindesk/traindesk/libs/httpx"
	"github.com/traindesk/traindesk/libs/kafkax"
	otelx "github.com/traindesk/traindesk/libs/otel"
	"github.com/traindesk/traindesk/libs/runtime"
	"github.com/traindesk/traindesk/services/appointment-service/internal/booking"
	"github.com/traindesk/traindesk/services/appointment-service/internal/handlers"
	"github.com/traindesk/traindesk/services/appointment-service/internal/outbox"
	"github.com/traindesk/traindesk/services/appointment-service/internal/reminder"
	"github.com/traindesk/traindesk/services/appointment-service/internal/series"
	"github.com/traindesk/traindesk/services/appointment-service/internal/storage"
	"github.com/traindesk/traindesk/services/appointment-service/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "appointment-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository()
	store := storage.NewPG(pool, outboxRepo)
	reminderRepo := storage.NewReminders(pool)
	workspaces := storage.NewWorkspaces(pool)
	clock := clockx.System()

	notifier := outbox.NewEscalationNotifier(pool, outboxRepo, logger)
	lifecycle := reminder.NewLifecycle(reminderRepo, workspaces, clock, logger, notifier)
	bookings := booking.NewService(store, workspaces, clock, logger)
	seriesSvc := series.NewService(store, bookings, clock, logger)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	runner := sweeper.NewRunner(lifecycle, logger, config.Duration("SWEEP_INTERVAL", time.Minute))
	go runner.Run(ctx)

	rdb := redis.NewClient(&redis.Options{Addr: config.String("REDIS_ADDR", "localhost:6379")})
	defer rdb.Close()
	limiter := httpx.NewRedisRateLimiter(rdb,
		config.Int("RATE_LIMIT_PER_WINDOW", 120),
		config.Duration("RATE_LIMIT_WINDOW", time.Minute),
		service)
	limit := limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))

	validate := validator.New()
	apptHandler := handlers.NewAppointmentHandler(bookings, validate, logger)
	seriesHandler := handlers.NewSeriesHandler(seriesSvc, validate, logger)
	reminderHandler := handlers.NewReminderHandler(lifecycle, validate, logger)
	sweepHandler := handlers.NewSweepHandler(lifecycle, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
		runtime.ReadyCheck{Name: "redis", Check: httpx.ReadyCheck(rdb)},
	)

	mux.Handle("/v1/appointments", splitByMethod(apptHandler.List, limit(http.HandlerFunc(apptHandler.Create))))
	mux.Handle("/v1/appointments/reschedule", limit(http.HandlerFunc(apptHandler.Reschedule)))
	mux.Handle("/v1/appointments/cancel", limit(http.HandlerFunc(apptHandler.Cancel)))
	mux.Handle("/v1/appointments/status", limit(http.HandlerFunc(apptHandler.Transition)))
	mux.Handle("/v1/appointments/outbound", limit(http.HandlerFunc(apptHandler.SetOutbound)))
	mux.Handle("/v1/series", limit(http.HandlerFunc(seriesHandler.Create)))
	mux.Handle("/v1/series/update", limit(http.HandlerFunc(seriesHandler.Update)))
	mux.Handle("/v1/series/status", limit(http.HandlerFunc(seriesHandler.SetStatus)))
	mux.HandleFunc("/v1/reminders", reminderHandler.List)
	mux.HandleFunc("/v1/reminders/requeue", reminderHandler.Requeue)
	mux.HandleFunc("/v1/reminders/mark-sent", reminderHandler.MarkSent)
	mux.HandleFunc("/v1/reminders/mark-failed", reminderHandler.MarkFailed)
	mux.HandleFunc("/v1/reminders/mark-opened", reminderHandler.MarkOpened)
	mux.HandleFunc("/internal/sweeps/prepare-ready", sweepHandler.PrepareReady)
	mux.HandleFunc("/internal/sweeps/mark-missed", sweepHandler.MarkMissed)
	mux.HandleFunc("/internal/sweeps/retry-failed", sweepHandler.RetryFailed)
	mux.HandleFunc("/internal/sweeps/escalate-stale", sweepHandler.EscalateStale)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(30*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// splitByMethod keeps rate limiting on the mutating verb of a path that
// serves both reads and writes.
func splitByMethod(get http.HandlerFunc, post http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			get(w, r)
			return
		}
		post.ServeHTTP(w, r)
	})
}
