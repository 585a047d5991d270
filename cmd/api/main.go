package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"qrattend/internal/attendance"
	"qrattend/internal/cloudinary"
	"qrattend/internal/config"
	"qrattend/internal/httpapi"
	"qrattend/internal/logger"
	"qrattend/internal/queue"
	"qrattend/internal/store"
	"qrattend/internal/store/memory"
	"qrattend/internal/store/postgres"
	"qrattend/internal/store/sqlite"
	"qrattend/internal/validator"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("api server failed")
	}
}

// backends holds the storage selected by configuration.
type backends struct {
	directory attendance.RegistryStore
	ledger    attendance.Ledger
	cache     attendance.SummaryCache
	guards    attendance.GuardFactory
	queue     queue.Queue
	health    map[string]httpapi.HealthCheck
	closers   []func() error
}

func (b *backends) close(log zerolog.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close backend")
		}
	}
}

func openBackends(ctx context.Context, cfg config.App, log zerolog.Logger) (*backends, error) {
	b := &backends{health: map[string]httpapi.HealthCheck{}}

	var pg *postgres.Repository
	if cfg.DirectoryBackend == "postgres" || cfg.LedgerBackend == "postgres" {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.health["db"] = db.Healthy
		pg = postgres.NewRepository(db.Client)
	}

	switch cfg.DirectoryBackend {
	case "postgres":
		b.directory = pg
	case "memory":
		b.directory = memory.New()
		log.Warn().Msg("directory backend is in-memory; records are lost on restart")
	default:
		return nil, fmt.Errorf("unknown DIRECTORY_BACKEND %q", cfg.DirectoryBackend)
	}

	switch cfg.LedgerBackend {
	case "postgres":
		b.ledger = pg
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		w := sqlite.NewWorker(db)
		b.closers = append(b.closers, db.Close, func() error { w.Close(); return nil })
		b.health["ledger"] = func(ctx context.Context) bool { return db.PingContext(ctx) == nil }
		b.ledger = sqlite.NewLedger(db, w)
	case "memory":
		b.ledger = memory.NewLedger()
		log.Warn().Msg("ledger backend is in-memory; attendance is lost on restart")
	default:
		return nil, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.LedgerBackend)
	}

	needRedis := cfg.DedupBackend == "redis" || cfg.QueueBackend == "redis" || cfg.SummaryCacheTTL > 0
	var rdb *store.Redis
	if needRedis {
		rdb = store.NewRedis(cfg.RedisAddr)
		b.closers = append(b.closers, rdb.Close)
		b.health["redis"] = rdb.Healthy
		if !rdb.Healthy(ctx) {
			log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable at startup")
		}
	}

	if cfg.SummaryCacheTTL > 0 {
		b.cache = store.NewSummaryCache(rdb.Client, cfg.SummaryCacheTTL)
	}

	switch cfg.DedupBackend {
	case "redis":
		b.guards = store.RedisGuards(rdb.Client, cfg.ScanSessionTTL)
	case "memory", "":
		b.guards = attendance.MemoryGuards
	default:
		return nil, fmt.Errorf("unknown DEDUP_BACKEND %q", cfg.DedupBackend)
	}

	switch cfg.QueueBackend {
	case "redis":
		b.queue = queue.NewRedisQueue(rdb.Client, queue.DefaultKey, log)
	case "memory":
		b.queue = queue.NewInMemory(64)
	case "none", "":
	default:
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}
	return b, nil
}

func run(cfg config.App, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close(log)

	loc := cfg.Location()
	v := validator.New(cfg.InstitutionEmailDomain)

	var uploader attendance.ImageUploader
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("cloudinary configured")
	} else {
		log.Info().Msg("cloudinary not configured, QR codes are stored as data URLs")
	}

	var pub attendance.Publisher
	if b.queue != nil {
		pub = queue.RecordedPublisher{Q: b.queue}
	}

	registry := attendance.NewRegistry(attendance.RegistryDeps{
		Store:    b.directory,
		Validate: v,
		Uploader: uploader,
		QRSize:   cfg.QRImageSize,
		Logger:   log,
	})
	recorder := attendance.NewRecorder(attendance.RecorderDeps{
		Ledger:    b.ledger,
		Cache:     b.cache,
		Publisher: pub,
		Location:  loc,
		Logger:    log,
	})
	sessions := attendance.NewSessions(attendance.SessionDeps{
		Directory: b.directory,
		Policy: attendance.Policy{
			RequireEnrollment: cfg.RequireEnrollment,
			MaxTokenAge:       cfg.QRMaxAge,
		},
		Guards:   b.guards,
		Recorder: recorder,
		Notifier: attendance.LogNotifier{Log: log.With().Str("component", "scanner").Logger()},
		TTL:      cfg.ScanSessionTTL,
		Logger:   log,
	})
	svc := attendance.NewService(attendance.Deps{
		Registry: registry,
		Store:    b.directory,
		Ledger:   b.ledger,
		Cache:    b.cache,
		Sessions: sessions,
		Location: loc,
		Logger:   log,
	})

	go sessions.RunSweeper(ctx, time.Minute)

	// Without an external broker the api process refreshes summaries itself.
	if mq, ok := b.queue.(*queue.InMemory); ok {
		go func() {
			_ = queue.ConsumeRecorded(ctx, mq, func(ctx context.Context, evt attendance.Event) error {
				_, err := svc.RefreshSummary(ctx, evt.CourseID, evt.StudentID)
				return err
			}, log)
		}()
	}

	r := httpapi.NewRouter(httpapi.Deps{
		Service:         svc,
		Registry:        registry,
		Validator:       v,
		Logger:          log,
		JWTSigningKey:   cfg.JWTSigningKey,
		JWTIssuer:       cfg.JWTIssuer,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Health:          b.health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("starting api server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down api server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("api server exited")
	return nil
}
