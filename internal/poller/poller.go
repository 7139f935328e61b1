// Package poller walks the event store in (time_us, id) order and hands each
// batch to a classifier and sink.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/telhawk-systems/feedgen/common/logging"
	"github.com/telhawk-systems/feedgen/internal/backoff"
	"github.com/telhawk-systems/feedgen/internal/classifier"
	"github.com/telhawk-systems/feedgen/internal/metrics"
	"github.com/telhawk-systems/feedgen/internal/models"
	"github.com/telhawk-systems/feedgen/internal/repository"
	"github.com/telhawk-systems/feedgen/internal/sink"
)

// StartPolicy picks the cursor used when no checkpoint exists.
type StartPolicy string

const (
	// StartBeginning processes the whole store.
	StartBeginning StartPolicy = "beginning"
	// StartTail skips everything already stored.
	StartTail StartPolicy = "tail"
)

// ErrInvalidStartPolicy is returned for anything other than beginning or tail.
var ErrInvalidStartPolicy = errors.New("invalid start policy")

// ParseStartPolicy validates s.
func ParseStartPolicy(s string) (StartPolicy, error) {
	switch p := StartPolicy(s); p {
	case StartBeginning, StartTail:
		return p, nil
	default:
		return "", fmt.Errorf("%w %q: want %q or %q", ErrInvalidStartPolicy, s, StartBeginning, StartTail)
	}
}

// Config controls batching and pacing.
type Config struct {
	Collection   string
	BatchLimit   int
	PollInterval time.Duration
	StartPolicy  StartPolicy

	// Consumer names the checkpoint record.
	Consumer string

	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Poller is the cursor-driven batch processor.
type Poller struct {
	cfg         Config
	store       repository.EventStore
	checkpoints repository.CheckpointStore
	classifier  classifier.Classifier
	sink        sink.Sink
	logger      *logging.Logger

	mu     sync.RWMutex
	cursor models.Cursor
}

// New validates cfg and builds a Poller. A nil checkpoint store disables persistence.
func New(cfg Config, store repository.EventStore, checkpoints repository.CheckpointStore,
	c classifier.Classifier, s sink.Sink, logger *logging.Logger) (*Poller, error) {

	if _, err := ParseStartPolicy(string(cfg.StartPolicy)); err != nil {
		return nil, err
	}
	if cfg.BatchLimit <= 0 {
		return nil, fmt.Errorf("batch limit must be positive, got %d", cfg.BatchLimit)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.Collection == "" {
		cfg.Collection = models.DefaultCollection
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "poller"
	}
	if checkpoints == nil {
		checkpoints = repository.NoopCheckpointStore{}
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Poller{
		cfg:         cfg,
		store:       store,
		checkpoints: checkpoints,
		classifier:  c,
		sink:        s,
		logger:      logger.WithComponent("poller").With(logging.Consumer(cfg.Consumer)),
	}, nil
}

// Cursor returns the position of the last processed event.
func (p *Poller) Cursor() models.Cursor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cursor
}

func (p *Poller) setCursor(c models.Cursor) {
	p.mu.Lock()
	p.cursor = c
	p.mu.Unlock()
	metrics.PollerCursor.Set(float64(c.Sequence))
}

// StartCursor resolves the initial cursor: a saved checkpoint first, then
// the start policy.
func (p *Poller) StartCursor(ctx context.Context) (models.Cursor, error) {
	saved, ok, err := p.checkpoints.Load(ctx, p.cfg.Consumer)
	if err != nil {
		return models.Cursor{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if ok {
		p.logger.InfoContext(ctx, "resuming from checkpoint", logging.Cursor(saved))
		return saved, nil
	}

	switch p.cfg.StartPolicy {
	case StartTail:
		latest, err := p.store.QueryMostRecent(ctx, p.cfg.Collection)
		if errors.Is(err, repository.ErrNotFound) {
			return models.Cursor{}, nil
		}
		if err != nil {
			return models.Cursor{}, fmt.Errorf("resolve tail cursor: %w", err)
		}
		return latest.Position(), nil
	default:
		return models.Cursor{}, nil
	}
}

// Run polls until ctx is cancelled. Failures resolving the start cursor are
// retried with backoff like any other iteration failure.
func (p *Poller) Run(ctx context.Context) error {
	b := backoff.New(p.cfg.BackoffBase, p.cfg.BackoffCap)

	for {
		start, err := p.StartCursor(ctx)
		if err == nil {
			p.setCursor(start)
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		delay := b.Next()
		p.logger.ErrorContext(ctx, "failed to resolve start cursor", logging.Error(err), logging.Backoff(delay))
		if backoff.Sleep(ctx, delay) != nil {
			return nil
		}
	}
	b.Reset()

	p.logger.InfoContext(ctx, "poller starting",
		logging.Cursor(p.Cursor()),
		"start_policy", string(p.cfg.StartPolicy),
		logging.Collection(p.cfg.Collection))

	for ctx.Err() == nil {
		n, err := p.Poll(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
		case err != nil:
			delay := b.Next()
			p.logger.ErrorContext(ctx, "polling error", logging.Error(err), logging.Backoff(delay), logging.Cursor(p.Cursor()))
			_ = backoff.Sleep(ctx, delay)
		case n == 0:
			_ = backoff.Sleep(ctx, p.cfg.PollInterval)
		default:
			b.Reset()
		}
	}

	p.logger.InfoContext(ctx, "poller stopped", logging.Cursor(p.Cursor()))
	return nil
}

// Poll runs one iteration and returns the size of the fetched batch. The
// cursor only moves when classification and delivery both succeed, and then
// it moves to the last fetched event regardless of how many were accepted.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	cursor := p.Cursor()

	batch, err := p.store.QueryRange(ctx, p.cfg.Collection, cursor, p.cfg.BatchLimit)
	if err != nil {
		metrics.PollerErrors.WithLabelValues("fetch").Inc()
		return 0, fmt.Errorf("fetch batch: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	start := time.Now()
	accepted, err := p.classifier.Classify(ctx, batch)
	metrics.ClassifyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollerErrors.WithLabelValues("classify").Inc()
		return 0, fmt.Errorf("classify batch: %w", err)
	}

	if len(accepted) > 0 {
		if err := p.sink.Deliver(ctx, accepted); err != nil {
			metrics.PollerErrors.WithLabelValues("sink").Inc()
			return 0, fmt.Errorf("deliver batch: %w", err)
		}
	}

	next := batch[len(batch)-1].Position()
	p.setCursor(next)

	// A delivered batch is checkpointed even when shutdown has begun.
	if err := p.checkpoints.Save(context.WithoutCancel(ctx), p.cfg.Consumer, next); err != nil {
		metrics.PollerErrors.WithLabelValues("checkpoint").Inc()
		p.logger.WarnContext(ctx, "failed to save checkpoint", logging.Error(err), logging.Cursor(next))
	}

	metrics.PollerBatches.Inc()
	metrics.PollerEvents.WithLabelValues("accepted").Add(float64(len(accepted)))
	metrics.PollerEvents.WithLabelValues("rejected").Add(float64(len(batch) - len(accepted)))

	p.logger.InfoContext(ctx, "processed batch",
		logging.BatchSize(len(batch)),
		"accepted", len(accepted),
		logging.Cursor(next))

	return len(batch), nil
}
