package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"classtracker/internal/billing"
	"classtracker/internal/config"
	"classtracker/internal/logging"
	"classtracker/internal/metrics"
	"classtracker/internal/queue"
	"classtracker/internal/store"
)

// The worker consumes payment events and reconciles each student's
// denormalized lifetime total against the payment log. It never mutates
// balances; a mismatch is logged and counted so someone can look at it.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classtracker:payments")
	}

	billingStore := billing.NewPostgresStore(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started, waiting for payment events")
	for msg := range messages {
		if msg.Type != "payment" {
			continue
		}
		studentID := msg.Body

		st, err := billingStore.GetStudent(ctx, studentID)
		if err != nil {
			logger.Warn("fetch student failed", zap.String("student_id", studentID), zap.Error(err))
			continue
		}
		payments, err := billingStore.ListPaymentsForStudent(ctx, studentID)
		if err != nil {
			logger.Warn("fetch payments failed", zap.String("student_id", studentID), zap.Error(err))
			continue
		}

		logged := decimal.Zero
		for _, p := range payments {
			logged = logged.Add(p.Amount)
		}
		if !logged.Equal(st.TotalCollected) {
			metrics.ReconcileMismatchesTotal.Inc()
			logger.Error("lifetime total disagrees with payment log",
				zap.String("student_id", studentID),
				zap.String("total_collected", st.TotalCollected.String()),
				zap.String("payment_log_sum", logged.String()))
			continue
		}
		logger.Debug("ledger reconciled",
			zap.String("student_id", studentID),
			zap.String("total_collected", st.TotalCollected.String()))
	}

	logger.Info("worker stopped")
}
