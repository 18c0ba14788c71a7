package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ignite/kpi-rollup/internal/backfill"
	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/observability"
	"github.com/ignite/kpi-rollup/internal/rollup"
)

// Reader is the part of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Recalculator re-runs the rollups of a date range.
type Recalculator interface {
	Recalculate(ctx context.Context, tenantID, metricCode string, start, end time.Time) (*backfill.RecalcReport, error)
}

// Correction is the payload published when daily actuals are edited after
// the fact.
type Correction struct {
	TenantID   string `json:"tenant_id"`
	MetricCode string `json:"metric_code"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

// Outcome label for events that can never succeed.
const outcomeRejected = "rejected"

// CorrectionConsumer recalculates summaries for every correction event on
// the topic. Malformed and permanently invalid events are committed so they
// cannot block the partition. A transient failure is retried in place with
// backoff; offsets are positional, so the next message is only fetched once
// the current one succeeded or was rejected.
type CorrectionConsumer struct {
	reader    Reader
	recalc    Recalculator
	baseDelay time.Duration
	maxDelay  time.Duration
}

// ConsumerOption configures a CorrectionConsumer.
type ConsumerOption func(*CorrectionConsumer)

// WithRetryBackoff sets the first retry delay and the cap for both
// recalculation retries and fetch errors.
func WithRetryBackoff(base, ceiling time.Duration) ConsumerOption {
	return func(c *CorrectionConsumer) {
		c.baseDelay = base
		c.maxDelay = ceiling
	}
}

// NewCorrectionConsumer creates a consumer.
func NewCorrectionConsumer(reader Reader, recalc Recalculator, opts ...ConsumerOption) *CorrectionConsumer {
	c := &CorrectionConsumer{
		reader:    reader,
		recalc:    recalc,
		baseDelay: time.Second,
		maxDelay:  time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes messages until ctx is cancelled or the reader is closed.
func (c *CorrectionConsumer) Run(ctx context.Context) error {
	log.Println("[CorrectionConsumer] Starting")
	fetchFailures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, io.EOF) {
				log.Println("[CorrectionConsumer] Reader closed")
				return nil
			}
			fetchFailures++
			log.Printf("[CorrectionConsumer] Fetch error (attempt %d): %v", fetchFailures, err)
			if err := sleepCtx(ctx, c.backoff(fetchFailures)); err != nil {
				return err
			}
			continue
		}
		fetchFailures = 0

		corr, start, end, err := decodeCorrection(msg.Value)
		if err != nil {
			log.Printf("[CorrectionConsumer] Dropping malformed message (partition=%d, offset=%d): %v", msg.Partition, msg.Offset, err)
			observability.RecordCorrection(outcomeRejected)
			c.commit(ctx, msg)
			continue
		}

		if err := c.apply(ctx, msg, corr, start, end); err != nil {
			return err
		}
	}
}

// apply recalculates one correction, retrying transient failures until the
// correction succeeds, is rejected, or ctx ends. Only a ctx error is returned.
func (c *CorrectionConsumer) apply(ctx context.Context, msg kafka.Message, corr Correction, start, end time.Time) error {
	for attempt := 1; ; attempt++ {
		report, err := c.recalc.Recalculate(ctx, corr.TenantID, corr.MetricCode, start, end)
		if err == nil {
			if report.ErrorCount > 0 {
				log.Printf("[CorrectionConsumer] Recalculated %s/%s %s..%s with %d period errors (job=%s)",
					corr.TenantID, corr.MetricCode, corr.StartDate, corr.EndDate, report.ErrorCount, report.JobID)
			}
			observability.RecordCorrection(observability.OutcomeSuccess)
			c.commit(ctx, msg)
			return nil
		}
		if permanent(err) {
			log.Printf("[CorrectionConsumer] Rejecting correction for %s/%s: %v", corr.TenantID, corr.MetricCode, err)
			observability.RecordCorrection(outcomeRejected)
			c.commit(ctx, msg)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		delay := c.backoff(attempt)
		log.Printf("[CorrectionConsumer] Recalculation failed for %s/%s (offset=%d, attempt %d), retrying in %s: %v",
			corr.TenantID, corr.MetricCode, msg.Offset, attempt, delay, err)
		observability.RecordCorrection(observability.OutcomeError)
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
}

// backoff doubles baseDelay per attempt, capped at maxDelay.
func (c *CorrectionConsumer) backoff(attempt int) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	delay := time.Duration(1<<uint(attempt-1)) * c.baseDelay
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close closes the underlying reader.
func (c *CorrectionConsumer) Close() error {
	return c.reader.Close()
}

func (c *CorrectionConsumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Printf("[CorrectionConsumer] Commit error (offset=%d): %v", msg.Offset, err)
	}
}

func decodeCorrection(value []byte) (Correction, time.Time, time.Time, error) {
	var corr Correction
	if err := json.Unmarshal(value, &corr); err != nil {
		return corr, time.Time{}, time.Time{}, fmt.Errorf("decode: %w", err)
	}
	if corr.TenantID == "" || corr.MetricCode == "" {
		return corr, time.Time{}, time.Time{}, errors.New("tenant_id and metric_code are required")
	}
	start, err := domain.ParseDate(corr.StartDate)
	if err != nil {
		return corr, time.Time{}, time.Time{}, fmt.Errorf("start_date: %w", err)
	}
	end := start
	if corr.EndDate != "" {
		if end, err = domain.ParseDate(corr.EndDate); err != nil {
			return corr, time.Time{}, time.Time{}, fmt.Errorf("end_date: %w", err)
		}
	}
	if end.Before(start) {
		return corr, time.Time{}, time.Time{}, errors.New("end_date before start_date")
	}
	return corr, start, end, nil
}

func permanent(err error) bool {
	return errors.Is(err, rollup.ErrUnknownTenant) ||
		errors.Is(err, rollup.ErrUnknownMetric) ||
		errors.Is(err, rollup.ErrInvalidPeriod)
}
