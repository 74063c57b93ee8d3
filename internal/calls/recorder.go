package calls

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"callhub/internal/metrics"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// RecorderConfig controls the asynchronous history writer.
type RecorderConfig struct {
	QueueSize int
	Workers   int

	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries uint64
	BaseDelay  time.Duration

	// AttemptTimeout bounds a single Append call.
	AttemptTimeout time.Duration
}

func (c RecorderConfig) withDefaults() RecorderConfig {
	out := c
	if out.QueueSize <= 0 {
		out.QueueSize = 1024
	}
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = 100 * time.Millisecond
	}
	if out.AttemptTimeout <= 0 {
		out.AttemptTimeout = 5 * time.Second
	}
	return out
}

// Recorder writes finished calls to the repository off the signaling path.
//
// Record never blocks: a full queue or a closed recorder drops the record,
// logs it and counts it. Writes that keep failing after the configured
// retries are logged and counted as well; history loss is preferred over
// stalling live calls.
type Recorder struct {
	repo    Repository
	cfg     RecorderConfig
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan Record
	wg     sync.WaitGroup
	clock  func() time.Time
}

func NewRecorder(repo Repository, cfg RecorderConfig, log *slog.Logger, m *metrics.Metrics) *Recorder {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		repo:    repo,
		cfg:     cfg,
		log:     log.With("component", "call_recorder"),
		metrics: m,
		queue:   make(chan Record, cfg.QueueSize),
		clock:   time.Now,
	}
	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.work()
	}
	return r
}

// Record enqueues a finished call. Missing ids and timestamps are filled in.
func (r *Recorder) Record(rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.clock().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(rec, "recorder closed")
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.drop(rec, "queue full")
	}
}

// Close stops accepting records and waits for queued ones to be written or
// for ctx to expire.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) work() {
	defer r.wg.Done()
	for rec := range r.queue {
		if err := r.persist(context.Background(), rec); err != nil {
			r.metrics.PersistFailed()
			r.log.Error("call history write failed",
				"call_id", rec.CallID,
				"caller", rec.Caller,
				"receiver", rec.Receiver,
				"status", rec.Status,
				"err", err,
			)
		}
	}
}

func (r *Recorder) persist(ctx context.Context, rec Record) error {
	b := retry.WithMaxRetries(r.cfg.MaxRetries, retry.NewExponential(r.cfg.BaseDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()

		err := r.repo.Append(attemptCtx, rec)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInvalidRecord) {
			return err
		}
		r.log.Warn("call history write attempt failed", "call_id", rec.CallID, "err", err)
		return retry.RetryableError(err)
	})
}

func (r *Recorder) drop(rec Record, reason string) {
	r.metrics.PersistDropped()
	r.log.Error("call history record dropped",
		"reason", reason,
		"call_id", rec.CallID,
		"caller", rec.Caller,
		"receiver", rec.Receiver,
		"status", rec.Status,
	)
}
