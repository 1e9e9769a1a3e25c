package retry

import (
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/model"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// ErrRetriesExhausted is wrapped by WriteError once every attempt has failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// WriteError is returned when a cycle could not be written within the attempt budget.
// The cycle's data is lost.
type WriteError struct {
	Writer   string
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %s write failed after %d attempt(s): %v", ErrRetriesExhausted, e.Writer, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// Policy is an exponential backoff with random jitter.
type Policy struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxInterval         time.Duration
}

// DefaultPolicy returns three attempts starting at 500ms, growing by 1.5 with ±50% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         config.DefaultMaxAttempts,
		InitialInterval:     500 * time.Millisecond,
		Multiplier:          config.DefaultMultiplier,
		RandomizationFactor: config.DefaultRandomization,
		MaxInterval:         30 * time.Second,
	}
}

// PolicyFromConfig converts the retry section of the config.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	def := DefaultPolicy()
	return Policy{
		MaxAttempts:         cfg.MaxAttempts,
		InitialInterval:     config.Duration(cfg.InitialInterval, def.InitialInterval),
		Multiplier:          cfg.Multiplier,
		RandomizationFactor: cfg.RandomizationFactor,
		MaxInterval:         config.Duration(cfg.MaxInterval, def.MaxInterval),
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
// rnd must return a value in [0, 1).
func (p Policy) Backoff(attempt int, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	interval := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxInterval > 0 && interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}

	delta := p.RandomizationFactor * interval
	low := interval - delta
	high := interval + delta
	return time.Duration(low + rnd()*(high-low))
}

// Sink writes a cycle's traffic through a model.Writer, retrying the whole batch
// with bounded exponential backoff. It keeps the count of accepted points.
type Sink struct {
	writer  model.Writer
	router  string
	policy  Policy
	written atomic.Uint64

	now   func() time.Time
	rnd   func() float64
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSink wraps writer. Points are tagged with router.
func NewSink(writer model.Writer, router string, policy Policy) (*Sink, error) {
	if policy.MaxAttempts < 1 {
		return nil, fmt.Errorf("max retries must be positive, got %d", policy.MaxAttempts)
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Sink{
		writer: writer,
		router: router,
		policy: policy,
		now:    time.Now,
		rnd:    rng.Float64,
		sleep:  sleepContext,
	}, nil
}

// Written returns the cumulative number of points accepted by the writer.
func (s *Sink) Written() uint64 {
	return s.written.Load()
}

// WriteCycle turns the classified traffic into one batch and writes it, retrying on
// failure. It returns the number of points accepted by the successful attempt.
func (s *Sink) WriteCycle(ctx context.Context, cycleID string, local map[string]bool, traffic model.Traffic) (int, error) {
	return s.WriteBatch(ctx, s.Batch(cycleID, local, traffic))
}

// Batch builds the write unit of a cycle: one point per address in lexicographic
// order, all sharing a single timestamp.
func (s *Sink) Batch(cycleID string, local map[string]bool, traffic model.Traffic) model.TrafficBatch {
	addrs := traffic.Addresses()
	points := make([]model.TrafficPoint, len(addrs))
	for i, addr := range addrs {
		points[i] = model.TrafficPoint{
			Address:  addr,
			Local:    local[addr],
			Counters: traffic[addr],
		}
	}
	return model.TrafficBatch{
		CycleID:   cycleID,
		Router:    s.router,
		Timestamp: s.now(),
		Points:    points,
	}
}

// WriteBatch writes batch with up to MaxAttempts attempts. Every attempt sends the
// whole batch. An empty batch is not written.
func (s *Sink) WriteBatch(ctx context.Context, batch model.TrafficBatch) (int, error) {
	if len(batch.Points) == 0 {
		return 0, nil
	}
	logger := log.WithFields(log.Fields{"cycle": batch.CycleID, "writer": s.writer.Name()})

	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		n, err := s.writer.Write(ctx, batch)
		if n > 0 {
			s.written.Add(uint64(n))
		}
		if err == nil {
			if attempt > 1 {
				logger.Infof("Write succeeded on attempt %d", attempt)
			}
			return n, nil
		}
		lastErr = err

		if attempt == s.policy.MaxAttempts {
			break
		}
		delay := s.policy.Backoff(attempt, s.rnd)
		logger.Warnf("Write attempt %d/%d failed: %v; retrying in %s", attempt, s.policy.MaxAttempts, err, delay)
		if err := s.sleep(ctx, delay); err != nil {
			return 0, &WriteError{Writer: s.writer.Name(), Attempts: attempt, Err: errors.Join(lastErr, err)}
		}
	}

	return 0, &WriteError{Writer: s.writer.Name(), Attempts: s.policy.MaxAttempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
