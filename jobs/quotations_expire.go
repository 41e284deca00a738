package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// QuotationExpirer expires overdue quotations.
type QuotationExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// QuotationExpiryJob marks submitted quotations past valid_until as expired.
type QuotationExpiryJob struct {
	Quotations QuotationExpirer
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewQuotationExpiryJob wires dependencies for the expiry handler.
func NewQuotationExpiryJob(quotations QuotationExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *QuotationExpiryJob {
	return &QuotationExpiryJob{Quotations: quotations, Logger: logger, Metrics: metrics}
}

// Handle processes quotation expiry tasks.
func (j *QuotationExpiryJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Quotations == nil {
		return errors.New("quotation expiry: handler not configured")
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskQuotationsExpire)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	count, err := j.Quotations.ExpireOverdue(ctx)
	if err != nil {
		loggerOrDefault(j.Logger).Error("expire quotations", slog.Any("error", err))
		return err
	}
	metricsOrDefault(j.Metrics).AddItems(TaskQuotationsExpire, int64(count))
	loggerOrDefault(j.Logger).Info("completed quotation expiry", slog.Int("expired", count), slog.Duration("duration", time.Since(start)))
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
