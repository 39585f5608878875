package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/markazapp/markaz-admin-api/internal/handler"
	"github.com/markazapp/markaz-admin-api/internal/models"
	"github.com/markazapp/markaz-admin-api/internal/repository"
	"github.com/markazapp/markaz-admin-api/internal/router"
	"github.com/markazapp/markaz-admin-api/internal/service"
	"github.com/markazapp/markaz-admin-api/pkg/cache"
	"github.com/markazapp/markaz-admin-api/pkg/config"
	"github.com/markazapp/markaz-admin-api/pkg/database"
	"github.com/markazapp/markaz-admin-api/pkg/logger"
	"github.com/markazapp/markaz-admin-api/pkg/notify/email"
	"github.com/markazapp/markaz-admin-api/pkg/notify/whatsapp"
	"github.com/markazapp/markaz-admin-api/pkg/stripeclient"
)

// @title Markaz Admin API
// @version 1.0.0
// @description Administration API for Mahad and Dugsi programs.
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching and dedup disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	// Repositories.
	users := repository.NewUserRepository(db)
	persons := repository.NewPersonRepository(db)
	contacts := repository.NewContactRepository(db)
	profiles := repository.NewProfileRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	batches := repository.NewBatchRepository(db)
	families := repository.NewFamilyRepository(db)
	billing := repository.NewBillingRepository(db)
	attendance := repository.NewAttendanceRepository(db)
	checkIns := repository.NewCheckInRepository(db)
	notifications := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// One Stripe client per program account.
	mahadStripe := stripeclient.New(cfg.Stripe.Mahad)
	dugsiStripe := stripeclient.New(cfg.Stripe.Dugsi)
	gateways := map[models.Program]*stripeclient.Client{
		models.ProgramMahad: mahadStripe,
		models.ProgramDugsi: dugsiStripe,
	}

	whatsappClient := whatsapp.New(cfg.WhatsApp)
	emailClient := email.New(cfg.Email)

	// Services.
	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "markaz-admin-api",
	})
	metricsSvc := service.NewMetricsService()
	personSvc := service.NewPersonService(persons, contacts, validate, logr)
	lookupSvc := service.NewLookupService(persons, contacts, cacheRepo, logr)
	profileSvc := service.NewProfileService(
		profiles,
		enrollments,
		billing,
		cancelersFrom(gateways),
		users,
		validate,
		logr,
	)
	enrollmentSvc := service.NewEnrollmentService(enrollments, profiles, batches, validate, logr)
	batchSvc := service.NewBatchService(batches, enrollments, profiles, validate, logr)
	familySvc := service.NewFamilyService(families, profiles, validate, logr)
	billingSvc := service.NewBillingService(
		billing,
		profiles,
		gatewaysFrom(gateways),
		users,
		logr,
		cfg.Billing.SyncWorkers,
		cfg.Billing.SyncRetries,
	)
	duplicateSvc := service.NewDuplicateService(profiles, enrollments, billing, users, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendance, enrollments, validate, logr)
	checkInSvc := service.NewCheckInService(checkIns, validate, logr)
	notificationSvc := service.NewNotificationService(
		notifications,
		cacheRepo,
		whatsappClient,
		emailClient,
		cfg.Notifications.DedupWindow,
		cfg.Notifications.SendDelay,
		validate,
		logr,
	)
	exportSvc := service.NewExportService(batches, enrollments, profiles, persons, contacts, attendance, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	billingSvc.Start(ctx)
	defer billingSvc.Stop()

	handlers := router.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Person:       handler.NewPersonHandler(personSvc, lookupSvc),
		Profile:      handler.NewProfileHandler(profileSvc, duplicateSvc),
		Enrollment:   handler.NewEnrollmentHandler(enrollmentSvc),
		Batch:        handler.NewBatchHandler(batchSvc),
		Family:       handler.NewFamilyHandler(familySvc),
		Billing:      handler.NewBillingHandler(billingSvc, verifiersFrom(gateways)),
		Attendance:   handler.NewAttendanceHandler(attendanceSvc),
		CheckIn:      handler.NewCheckInHandler(checkInSvc),
		Notification: handler.NewNotificationHandler(notificationSvc),
		Export:       handler.NewExportHandler(exportSvc),
		Metrics:      handler.NewMetricsHandler(metricsSvc, db),
	}

	engine := router.New(cfg, logr, authSvc, metricsSvc, users, handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func gatewaysFrom(clients map[models.Program]*stripeclient.Client) map[models.Program]service.StripeGateway {
	out := make(map[models.Program]service.StripeGateway, len(clients))
	for program, c := range clients {
		out[program] = c
	}
	return out
}

func cancelersFrom(clients map[models.Program]*stripeclient.Client) map[models.Program]service.SubscriptionCanceler {
	out := make(map[models.Program]service.SubscriptionCanceler, len(clients))
	for program, c := range clients {
		out[program] = c
	}
	return out
}

func verifiersFrom(clients map[models.Program]*stripeclient.Client) map[models.Program]handler.WebhookVerifier {
	out := make(map[models.Program]handler.WebhookVerifier, len(clients))
	for program, c := range clients {
		out[program] = c
	}
	return out
}
