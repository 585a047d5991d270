package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/logger"
	"qrattend/internal/queue"
	"qrattend/internal/store"
	"qrattend/internal/store/postgres"
	"qrattend/internal/store/sqlite"
)

// Worker consumes recorded-event messages and refreshes the cached summary
// of each affected (course, student) pair.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat).With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" {
		log.Fatal().Str("queue_backend", cfg.QueueBackend).Msg("worker needs QUEUE_BACKEND=redis")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()
	repo := postgres.NewRepository(db.Client)

	var ledger attendance.Ledger = repo
	if cfg.LedgerBackend == "sqlite" {
		sdb, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Msg("sqlite open failed")
		}
		defer sdb.Close()
		w := sqlite.NewWorker(sdb)
		defer w.Close()
		ledger = sqlite.NewLedger(sdb, w)
	}

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable, will keep retrying")
	}

	svc := attendance.NewService(attendance.Deps{
		Store:    repo,
		Ledger:   ledger,
		Cache:    store.NewSummaryCache(rdb.Client, cfg.SummaryCacheTTL),
		Location: cfg.Location(),
		Logger:   log,
	})

	q := queue.NewRedisQueue(rdb.Client, queue.DefaultKey, log)
	log.Info().Str("queue", queue.DefaultKey).Msg("worker started, waiting for messages")

	err = queue.ConsumeRecorded(ctx, q, func(ctx context.Context, evt attendance.Event) error {
		sum, err := svc.RefreshSummary(ctx, evt.CourseID, evt.StudentID)
		if err != nil {
			return err
		}
		log.Info().
			Str("course_id", evt.CourseID).
			Str("student_id", evt.StudentID).
			Int("attended", sum.AttendedCount).
			Int("percentage", sum.AttendancePercentage).
			Msg("summary refreshed")
		return nil
	}, log)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("worker stopped with error")
		return
	}
	log.Info().Msg("worker stopped")
}
