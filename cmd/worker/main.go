package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/israelwong/promediamx-sub002/cmd/mainconfig"
	"github.com/israelwong/promediamx-sub002/internal/agenda"
	appconfig "github.com/israelwong/promediamx-sub002/internal/config"
	"github.com/israelwong/promediamx-sub002/internal/conversation"
	"github.com/israelwong/promediamx-sub002/internal/dispatch"
	"github.com/israelwong/promediamx-sub002/internal/funcs"
	"github.com/israelwong/promediamx-sub002/internal/leads"
	"github.com/israelwong/promediamx-sub002/internal/messaging"
	"github.com/israelwong/promediamx-sub002/internal/notify"
	"github.com/israelwong/promediamx-sub002/internal/observability/metrics"
	"github.com/israelwong/promediamx-sub002/internal/offers"
	"github.com/israelwong/promediamx-sub002/internal/payments"
	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dispatch worker", "env", cfg.Env, "port", cfg.Port)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	dispatchMetrics := metrics.NewDispatchMetrics(prometheus.DefaultRegisterer)

	taskRepo := dispatch.NewRepository(pool)
	agendaRepo := agenda.NewRepository(pool)
	leadRepo := leads.NewRepository(pool)
	offerRepo := offers.NewRepository(pool)
	turnStore := conversation.NewStore(pool)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, falling back to UTC", "timezone", cfg.Timezone, "error", err)
		loc = time.UTC
	}
	resolver := agenda.NewResolver(loc, agenda.WithGuardWindow(cfg.SlotGuardWindow))
	arbiter := agenda.NewArbiter(agendaRepo, agendaRepo, logger, agenda.WithArbiterMetrics(dispatchMetrics))
	assembler := conversation.NewAssembler(turnStore, logger, conversation.WithLookback(cfg.ContextLookback))

	var notifier notify.EmailSender
	if s := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); s != nil {
		notifier = s
	}

	var checkout payments.CheckoutClient
	if c := payments.NewHTTPCheckoutClient(payments.CheckoutConfig{
		Endpoint:   cfg.CheckoutBaseURL,
		APIKey:     cfg.CheckoutAPIKey,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
	}, logger); c != nil {
		checkout = c
	}

	var sender messaging.Sender
	if cfg.ChannelDeliveryURL != "" {
		sender = messaging.NewWebhookSender(cfg.ChannelDeliveryURL, cfg.ChannelDeliveryToken, logger)
	} else {
		logger.Warn("CHANNEL_DELIVERY_URL not set, outbound messages will be dropped")
	}

	registry := funcs.NewRegistry(
		funcs.NewListServices(agendaRepo, logger),
		funcs.NewCheckAvailability(agendaRepo, resolver, arbiter, logger),
		funcs.NewBookAppointment(agendaRepo, leadRepo, assembler, resolver, arbiter, logger),
		funcs.NewConfirmAppointment(agendaRepo, leadRepo, resolver, arbiter, notifier, logger),
		funcs.NewCancelAppointment(agendaRepo, assembler, resolver, logger),
		funcs.NewConfirmCancellation(agendaRepo, leadRepo, notifier, logger),
		funcs.NewRescheduleAppointment(agendaRepo, assembler, resolver, arbiter, logger),
		funcs.NewConfirmReschedule(agendaRepo, leadRepo, resolver, arbiter, notifier, logger),
		funcs.NewShowOffer(offerRepo, logger),
		funcs.NewAcceptOffer(offerRepo, logger),
		funcs.NewStartPayment(checkout, logger),
	)

	dispatcher := dispatch.NewDispatcher(
		taskRepo,
		taskRepo,
		registry,
		sender,
		turnStore,
		logger,
		dispatch.WithDispatchMetrics(dispatchMetrics),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var worker *dispatch.Worker
	var publisher *dispatch.Publisher
	if cfg.UseMemoryQueue {
		logger.Info("using in-memory task queue")
		queue := dispatch.NewMemoryQueue(64)
		publisher = dispatch.NewPublisher(queue)
		worker = dispatch.NewWorker(dispatcher, queue, logger, dispatch.WithWorkerCount(cfg.WorkerCount))
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		queue := dispatch.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TaskQueueURL)
		publisher = dispatch.NewPublisher(queue)
		worker = dispatch.NewWorker(dispatcher, queue, logger, dispatch.WithWorkerCount(cfg.WorkerCount))
	}

	worker.Start(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	// Re-enqueue hook for operators: puts an existing task back on the queue.
	r.Post("/internal/dispatch/{taskID}", func(w http.ResponseWriter, req *http.Request) {
		taskID, err := uuid.Parse(chi.URLParam(req, "taskID"))
		if err != nil {
			http.Error(w, "invalid task id", http.StatusBadRequest)
			return
		}
		if err := publisher.Publish(req.Context(), taskID); err != nil {
			logger.Error("failed to enqueue task", "task_id", taskID, "error", err)
			http.Error(w, "enqueue failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down dispatch worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("dispatch worker stopped")
	case <-shutdownCtx.Done():
		logger.Error("worker shutdown timed out", "error", shutdownCtx.Err())
	}
}
