package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-scheduler/api/swagger"
	"github.com/noah-isme/campus-scheduler/internal/handler"
	internalmiddleware "github.com/noah-isme/campus-scheduler/internal/middleware"
	"github.com/noah-isme/campus-scheduler/internal/models"
	"github.com/noah-isme/campus-scheduler/internal/repository"
	"github.com/noah-isme/campus-scheduler/internal/service"
	"github.com/noah-isme/campus-scheduler/pkg/cache"
	"github.com/noah-isme/campus-scheduler/pkg/config"
	"github.com/noah-isme/campus-scheduler/pkg/database"
	"github.com/noah-isme/campus-scheduler/pkg/jobs"
	"github.com/noah-isme/campus-scheduler/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-scheduler/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-scheduler/pkg/middleware/requestid"
	"github.com/noah-isme/campus-scheduler/pkg/storage"
)

// @title Campus Scheduler API
// @version 1.0.0
// @description Room occupation, conflict checking and booking engine
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	readiness := map[string]handler.ReadinessCheck{}

	var db *sqlx.DB
	var store repository.Store
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer db.Close() //nolint:errcheck
		store = repository.NewPostgresStore(db)
		readiness["postgres"] = db.PingContext
	case config.StoreDriverMemory, "":
		store = repository.NewMemoryStore()
	default:
		logr.Fatal("unknown store driver", zap.String("driver", cfg.StoreDriver))
	}

	metricsSvc := service.NewMetricsService()
	validate := service.NewValidator()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, query cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	if redisClient != nil {
		defer cacheRepo.Close() //nolint:errcheck
		readiness["redis"] = cacheRepo.Ping
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.QueryCache.TTL, logr, cfg.QueryCache.Enabled && cacheRepo.Enabled())

	gridOpts, err := gridDefaults(cfg.Timetable)
	if err != nil {
		logr.Fatal("invalid grid configuration", zap.Error(err))
	}

	roomSvc := service.NewRoomService(store, cacheSvc, metricsSvc, validate, logr)
	occupationSvc := service.NewOccupationService(store, cacheSvc, metricsSvc, validate, logr)
	bookingSvc := service.NewBookingService(store, cacheSvc, metricsSvc, service.BookingServiceConfig{CheckOnSubmit: cfg.Booking.CheckOnSubmit}, validate, logr)
	querySvc := service.NewQueryService(store, cacheSvc, metricsSvc, service.QueryServiceConfig{
		Grid:            gridOpts,
		TimelineMaxDays: cfg.Timetable.TimelineMaxDays,
		CacheTTL:        cfg.QueryCache.TTL,
	}, logr)

	if cfg.Seed.File != "" {
		result, err := service.NewSeedLoader(roomSvc, occupationSvc, logr).LoadFile(ctx, cfg.Seed.File)
		if err != nil {
			logr.Fatal("failed to load seed file", zap.String("file", cfg.Seed.File), zap.Error(err))
		}
		logr.Info("seed file loaded", zap.String("file", cfg.Seed.File), zap.Int("rooms", result.RoomsCreated), zap.Int("occupations", result.OccupationsCreated))
	}

	var exportHandler *handler.ExportHandler
	if cfg.Exports.Enabled {
		exportHandler, err = startExports(ctx, cfg, db, querySvc, roomSvc, validate, metricsSvc, logr)
		if err != nil {
			logr.Fatal("failed to start export pipeline", zap.Error(err))
		}
	}

	var auth internalmiddleware.TokenValidator
	if cfg.JWT.Enabled {
		auth = service.NewTokenVerifier(cfg.JWT.Secret)
	} else {
		logr.Warn("AUTH_ENABLED=false, admin routes are open")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, handler.RouterConfig{
		APIPrefix:   cfg.APIPrefix,
		Auth:        auth,
		Logger:      logr,
		Rooms:       handler.NewRoomHandler(roomSvc, querySvc),
		Occupations: handler.NewOccupationHandler(occupationSvc, querySvc),
		Bookings:    handler.NewBookingHandler(bookingSvc, logr),
		Timetable:   handler.NewTimetableHandler(querySvc),
		Exports:     exportHandler,
		Ops:         handler.NewMetricsHandler(metricsSvc, readiness, logr),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// startExports wires the export job store, worker queue and cleanup
// schedule. Jobs live in postgres when the store does, otherwise in memory.
func startExports(ctx context.Context, cfg *config.Config, db *sqlx.DB, query *service.QueryService, rooms *service.RoomService, validate *validator.Validate, metrics *service.MetricsService, logr *zap.Logger) (*handler.ExportHandler, error) {
	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exporter := service.NewExportService(query, rooms, files, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, nil, nil, nil)

	var jobStore service.ExportJobStore
	if db != nil {
		jobStore = repository.NewExportJobRepository(db)
	} else {
		jobStore = repository.NewMemoryExportJobRepository()
	}

	worker := service.NewExportWorker(jobStore, exporter, metrics, logr)
	queue := jobs.NewQueue("timetable-exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 5 * time.Second,
		JobTimeout: 2 * time.Minute,
		Logger:     logr,
		OnGiveUp:   worker.GiveUp,
	})
	queue.Start(ctx)

	jobSvc := service.NewExportJobService(jobStore, queue, exporter, validate, metrics, logr, service.ExportJobServiceConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupSchedule: cfg.Exports.CleanupSchedule,
	})
	if err := jobSvc.StartCleanup(ctx); err != nil {
		queue.Stop()
		return nil, err
	}
	jobSvc.RecoverPendingJobs(ctx)
	go func() {
		<-ctx.Done()
		queue.Stop()
	}()
	return handler.NewExportHandler(jobSvc), nil
}

func gridDefaults(cfg config.TimetableConfig) (models.GridOptions, error) {
	start, err := models.ParseClock(cfg.GridDayStart)
	if err != nil {
		return models.GridOptions{}, fmt.Errorf("GRID_DAY_START: %w", err)
	}
	end, err := models.ParseClock(cfg.GridDayEnd)
	if err != nil {
		return models.GridOptions{}, fmt.Errorf("GRID_DAY_END: %w", err)
	}
	return models.GridOptions{DayStart: start, DayEnd: end, SlotMinutes: cfg.GridSlotMinutes}, nil
}
