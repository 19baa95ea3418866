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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/gpconsultingargentina/personal-trainer-api/api/swagger"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/handler"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/middleware"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/repository"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/service"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/cache"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/config"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/database"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/logger"
	corsmiddleware "github.com/gpconsultingargentina/personal-trainer-api/pkg/middleware/cors"
	reqidmiddleware "github.com/gpconsultingargentina/personal-trainer-api/pkg/middleware/requestid"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/notify"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/storage"
)

// @title Personal Trainer API
// @version 1.0.0
// @description Booking, credit ledger and payment management for a personal-training studio
// @BasePath /api/v1
// @schemes http

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
	defer db.Close() //nolint:errcheck

	var cacheStore *cache.Store
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, dashboard cache disabled", "error", err)
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheStore = cache.NewStore(redisClient, "pt:")
	}

	proofStore, err := storage.NewLocalStorage(cfg.Storage.ProofsDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare proofs storage", "error", err)
	}
	proofSigner := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	proofRepo := repository.NewPaymentProofRepository(db)
	couponRepo := repository.NewCouponRepository(db)
	inviteRepo := repository.NewRegistrationTokenRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, inviteRepo, studentRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})
	studentSvc := service.NewStudentService(studentRepo, inviteRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, validate, logr)
	creditSvc := service.NewCreditService(creditRepo, studentRepo, validate, logr, service.CreditServiceConfig{
		ValidityDays: cfg.Credits.ValidityDays,
	})
	bookingSvc := service.NewBookingService(bookingRepo, classRepo, studentRepo,
		service.NewPolicyConfig(cfg.Booking), metricsSvc, validate, logr)
	paymentSvc := service.NewPaymentService(proofRepo, couponRepo, creditSvc, studentRepo,
		proofStore, proofSigner, validate, logr)
	couponSvc := service.NewCouponService(couponRepo, validate, logr)
	dashboardSvc := service.NewDashboardService(dashboardRepo, proofRepo, cacheStore, logr, service.DashboardServiceConfig{
		CacheTTL: cfg.Dashboard.CacheTTL,
	})

	var senders []notify.Sender
	if cfg.Notifications.EmailEnabled && cfg.Notifications.SendGridAPIKey != "" {
		senders = append(senders, notify.NewEmailSender(cfg.Notifications.SendGridAPIKey,
			cfg.Notifications.FromName, cfg.Notifications.FromEmail))
	}
	if cfg.Notifications.WhatsAppEnabled && cfg.Notifications.WhatsAppGateway != "" {
		senders = append(senders, notify.NewWhatsAppSender(cfg.Notifications.WhatsAppGateway,
			cfg.Notifications.WhatsAppToken))
	}
	reminderSvc := service.NewReminderService(bookingRepo, senders, metricsSvc, service.ReminderServiceConfig{
		FirstOffset:  cfg.Notifications.ReminderFirst,
		SecondOffset: cfg.Notifications.ReminderSecond,
		Workers:      cfg.Notifications.WorkerConcurrency,
		MaxRetries:   cfg.Notifications.WorkerRetries,
	}, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Notifications.Enabled {
		reminderSvc.Start(ctx)
		defer reminderSvc.Stop()
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	classHandler := handler.NewClassHandler(classSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	creditHandler := handler.NewCreditHandler(creditSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, proofStore, proofSigner, cfg.Storage.MaxFileSize)
	couponHandler := handler.NewCouponHandler(couponSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	cronHandler := handler.NewCronHandler(creditSvc, reminderSvc, metricsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/register", authHandler.CompleteRegistration)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))

	trainerOnly := middleware.RequireRoles(models.RoleTrainer)
	selfOrTrainer := middleware.RBAC(string(models.RoleTrainer), middleware.SelfRole)

	students := secured.Group("/students")
	{
		students.GET("", trainerOnly, studentHandler.List)
		students.POST("", trainerOnly, studentHandler.Create)
		students.GET("/:id", selfOrTrainer, studentHandler.Get)
		students.PUT("/:id", trainerOnly, studentHandler.Update)
		students.POST("/:id/invite", trainerOnly, studentHandler.CreateInvite)
		students.GET("/:id/credits", selfOrTrainer, creditHandler.Summary)
		students.GET("/:id/credits/batches", selfOrTrainer, creditHandler.Batches)
		students.GET("/:id/credits/transactions", selfOrTrainer, creditHandler.Transactions)
		students.GET("/:id/credits/statement", selfOrTrainer, creditHandler.Statement)
	}

	secured.GET("/frequencies", studentHandler.Frequencies)
	secured.PUT("/frequencies", trainerOnly, studentHandler.UpsertFrequency)

	classes := secured.Group("/classes")
	{
		classes.GET("", classHandler.List)
		classes.GET("/:id", classHandler.Get)
		classes.POST("", trainerOnly, classHandler.Create)
		classes.PUT("/:id", trainerOnly, classHandler.Update)
		classes.POST("/bulk", trainerOnly, classHandler.BulkGenerate)
		classes.POST("/:id/complete", trainerOnly, classHandler.Complete)
		classes.POST("/:id/cancel", trainerOnly, classHandler.Cancel)
	}

	bookings := secured.Group("/bookings")
	{
		bookings.GET("", bookingHandler.List)
		bookings.POST("", bookingHandler.Create)
		bookings.GET("/:id", bookingHandler.Get)
		bookings.POST("/:id/attendance", trainerOnly, bookingHandler.MarkAttendance)
		bookings.POST("/:id/cancel", bookingHandler.Cancel)
	}

	credits := secured.Group("/credits")
	{
		credits.POST("", trainerOnly, creditHandler.Grant)
		credits.POST("/adjust", trainerOnly, creditHandler.Adjust)
	}

	payments := secured.Group("/payments")
	{
		payments.POST("", paymentHandler.Upload)
		payments.GET("", paymentHandler.List)
		payments.GET("/:id", trainerOnly, paymentHandler.Get)
		payments.POST("/:id/review", trainerOnly, paymentHandler.Review)
		payments.GET("/:id/download-url", trainerOnly, paymentHandler.DownloadURL)
	}
	// Signed-token download needs no JWT: the token itself authorizes.
	api.GET("/payments/download", paymentHandler.Download)

	coupons := secured.Group("/coupons", trainerOnly)
	{
		coupons.POST("", couponHandler.Create)
		coupons.GET("", couponHandler.List)
		coupons.GET("/:code/validate", couponHandler.Validate)
		coupons.DELETE("/:code", couponHandler.Deactivate)
	}

	if cfg.Dashboard.Enabled {
		secured.GET("/dashboard", trainerOnly, dashboardHandler.Trainer)
	}

	cron := api.Group("/cron", middleware.CronSecret(cfg.Cron.Secret))
	{
		cron.POST("/expire-credits", cronHandler.ExpireCredits)
		cron.POST("/reminders", cronHandler.Reminders)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
