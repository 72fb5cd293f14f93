// Package resilient wraps a remote embedding service with batching,
// rate limiting, per-attempt timeouts and retry with exponential backoff.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
	"github.com/custodia-labs/folio/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBatchSize      = 64
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = time.Second
	DefaultMaxRetryDelay  = 30 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

// Config controls how calls to the wrapped service are shaped.
type Config struct {
	// BatchSize caps texts per provider call.
	BatchSize int

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// RetryDelay is the delay before the first retry. It doubles each retry.
	RetryDelay time.Duration

	// MaxRetryDelay caps the backoff.
	MaxRetryDelay time.Duration

	// AttemptTimeout bounds a single provider call.
	AttemptTimeout time.Duration

	// RequestsPerSecond throttles provider calls. Zero disables throttling.
	RequestsPerSecond float64
}

// EmbeddingService decorates another EmbeddingService.
// Retries are scoped to one provider call; a failing sub-batch fails the
// whole EmbedBatch call.
type EmbeddingService struct {
	inner   driven.EmbeddingService
	cfg     Config
	limiter *RateLimiter

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New wraps inner. Zero config fields take defaults.
func New(inner driven.EmbeddingService, cfg Config) *EmbeddingService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}

	return &EmbeddingService{
		inner:   inner,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RequestsPerSecond, 1),
		sleep:   sleepContext,
	}
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch splits texts into provider-sized batches and returns
// normalised vectors aligned with texts.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(texts))
		batch := texts[start:end]

		got, err := s.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(got) != len(batch) {
			return nil, fmt.Errorf("%w: expected %d vectors, got %d", domain.ErrEmbeddingProvider, len(batch), len(got))
		}
		for i, v := range got {
			if len(v) != s.inner.Dimensions() {
				return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
					domain.ErrEmbeddingProvider, start+i, len(v), s.inner.Dimensions())
			}
			vectors = append(vectors, Normalize(v))
		}
	}
	return vectors, nil
}

func (s *EmbeddingService) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.backoff(attempt)
			logger.Debug("embedding: retry %d/%d in %s: %v", attempt, s.cfg.MaxRetries, delay, lastErr)
			if err := s.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		vectors, err := s.inner.EmbedBatch(attemptCtx, batch)
		cancel()
		if err == nil {
			return vectors, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !Retryable(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingProvider, err)
		}
		if errors.Is(err, domain.ErrRateLimited) {
			s.limiter.RecordRateLimitError(s.backoff(attempt + 1))
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: giving up after %d attempts: %w",
		domain.ErrEmbeddingProvider, s.cfg.MaxRetries+1, lastErr)
}

func (s *EmbeddingService) backoff(attempt int) time.Duration {
	d := float64(s.cfg.RetryDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(s.cfg.MaxRetryDelay) {
		return s.cfg.MaxRetryDelay
	}
	return time.Duration(d)
}

// Retryable reports whether err is a timeout, a transport failure,
// throttling or a provider-side (5xx) error.
func Retryable(err error) bool {
	var perr *driven.ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Normalize scales v to unit length in place and returns it.
// The zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) / n)
	}
	return v
}

// Dimensions returns the wrapped service's vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

// ModelName returns the wrapped service's model name.
func (s *EmbeddingService) ModelName() string {
	return s.inner.ModelName()
}

// Ping checks the wrapped service without retries.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()
	return s.inner.Ping(ctx)
}

// Close releases the wrapped service.
func (s *EmbeddingService) Close() error {
	return s.inner.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
