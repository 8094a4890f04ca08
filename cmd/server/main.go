package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/event"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/locker"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/seed"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

// stores is the storage wiring chosen by STORE_DRIVER.
type stores struct {
	sessions   service.SessionStore
	accounts   service.AccountDirectory
	catalog    service.ExamCatalog
	violations service.ViolationStore
	status     service.StatusWriter
}

// pgStatus joins the two postgres repositories that own the active flags.
type pgStatus struct {
	*repository.AccountRepository
	*repository.ExamRepository
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Proctor")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis (optional) ───────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	switch {
	case errors.Is(err, database.ErrRedisDisabled):
		log.Warn().Msg("REDIS_URL not set, using in-process locks and queues (single instance only)")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	default:
		defer rdb.Close()
	}

	var (
		locks  locker.Locker
		queue  event.Queue
		events event.Broadcaster
	)
	if rdb != nil {
		locks = locker.NewRedisLocker(rdb, cfg.ClaimTTL, log)
		queue = event.NewRedisQueue(rdb)
		events = event.NewRedisBroadcaster(rdb)
	} else {
		locks = locker.NewKeyedMutex()
		queue = event.NewMemoryQueue(4096)
		events = event.NewMemoryBroadcaster()
	}

	// ─── Storage ───────────────────────────────────────────────────────
	var st stores
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := repository.NewMemoryStore()
		st = stores{sessions: mem.Sessions(), accounts: mem, catalog: mem, violations: mem, status: mem}

		hasher := service.NewAuthService(cfg, nil)
		res, err := seed.Run(ctx, mem, hasher.HashPassword, seed.DefaultOptions)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to seed memory store")
		}
		log.Info().
			Str("exam_id", res.ExamID.String()).
			Str("admin", res.AdminEmail).
			Strs("students", res.StudentEmails).
			Msg("Memory store seeded with demo data")

	default:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		examRepo := repository.NewExamRepository(pool)
		accountRepo := repository.NewAccountRepository(pool)
		st = stores{
			sessions:   repository.NewExamSessionRepository(pool),
			accounts:   accountRepo,
			catalog:    examRepo,
			violations: repository.NewViolationRepository(pool),
			status:     pgStatus{accountRepo, examRepo},
		}
		if rdb != nil {
			st.catalog = prewarmedCatalog(ctx, examRepo, rdb, cfg, log)
		}
	}

	// ─── Initialize Services ──────────────────────────────────────────
	clock := service.SystemClock{}
	authService := service.NewAuthService(cfg, st.accounts)
	sessionService := service.NewExamSessionService(st.sessions, st.accounts, st.catalog, locks, events, clock, log)
	submissionService := service.NewSubmissionService(st.sessions, st.catalog, locks, queue, clock, cfg, log)
	proctorService := service.NewProctorService(st.sessions, submissionService, queue, events, clock, cfg.ProctorAutoSubmit, log)
	adminService := service.NewAdminService(st.status, st.catalog, st.accounts, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, log),
		StudentPortal: handler.NewStudentPortalHandler(sessionService, submissionService, proctorService, log),
		Session:       handler.NewSessionHandler(sessionService, submissionService, log),
		Admin:         handler.NewAdminHandler(sessionService, adminService, log),
		WS:            handler.NewWSHandler(sessionService, submissionService, proctorService, log, cfg.AllowedOrigins),
		Monitor:       handler.NewMonitorHandler(events, sessionService, st.violations, log),
		System:        handler.NewSystemHandler(queue, locks, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	startWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workerCtx)
		}()
	}

	startWorker(worker.NewNotificationWorker(queue, events, log).Start)
	startWorker(worker.NewViolationWorker(st.violations, queue, log).Start)
	startWorker(worker.NewExpiryWorker(st.sessions, submissionService, clock, cfg.ExpiryGrace, cfg.ExpirySweepInterval, log).Start)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests. In-flight submits get the full wait bound.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.SubmitWaitTimeout+5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for their buffers to flush.
	workerCancel()
	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Workers did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// prewarmedCatalog wraps the exam repository with the Redis cache and loads
// every active exam before traffic arrives.
func prewarmedCatalog(ctx context.Context, examRepo *repository.ExamRepository, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) service.ExamCatalog {
	cached := repository.NewCachedExamCatalog(examRepo, rdb, cfg.ExamCacheTTL, log)

	ids, err := examRepo.ListActiveIDs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
		return cached
	}
	for _, id := range ids {
		if err := cached.Warm(ctx, id); err != nil {
			log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam prewarm failed")
		}
	}
	log.Info().Int("exams", len(ids)).Msg("Exam cache prewarmed")
	return cached
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
