// Package ingester persists firehose create commits into the event store.
package ingester

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/feedgen/common/logging"
	"github.com/telhawk-systems/feedgen/internal/backoff"
	"github.com/telhawk-systems/feedgen/internal/jetstream"
	"github.com/telhawk-systems/feedgen/internal/metrics"
	"github.com/telhawk-systems/feedgen/internal/models"
	"github.com/telhawk-systems/feedgen/internal/repository"
)

// Config controls the subscription and reconnect behaviour.
type Config struct {
	URL         string
	Collections []string
	WantedDIDs  []string

	// Lookback is how far behind now the first subscription starts when the
	// store holds nothing newer. Zero means live tail.
	Lookback time.Duration

	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Ingester is the resumable firehose consumer.
type Ingester struct {
	cfg    Config
	store  repository.EventStore
	dialer jetstream.Dialer
	logger *logging.Logger
	now    func() time.Time

	cursor atomic.Int64
}

// New builds an Ingester. A nil dialer uses jetstream.NewWebsocketDialer.
func New(cfg Config, store repository.EventStore, dialer jetstream.Dialer, logger *logging.Logger) *Ingester {
	if dialer == nil {
		dialer = jetstream.NewWebsocketDialer()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if len(cfg.Collections) == 0 {
		cfg.Collections = []string{models.DefaultCollection}
	}
	return &Ingester{
		cfg:    cfg,
		store:  store,
		dialer: dialer,
		logger: logger.WithComponent("ingester"),
		now:    time.Now,
	}
}

// Cursor is the time_us the next subscription resumes from.
func (i *Ingester) Cursor() int64 {
	return i.cursor.Load()
}

func (i *Ingester) setCursor(timeUS int64) {
	i.cursor.Store(timeUS)
	metrics.IngestCursor.Set(float64(timeUS))
}

// InitialCursor is now-lookback, or the newest stored sequence if later.
func (i *Ingester) InitialCursor(ctx context.Context) int64 {
	var cursor int64
	if i.cfg.Lookback > 0 {
		cursor = i.now().Add(-i.cfg.Lookback).UnixMicro()
	}

	latest, err := i.store.QueryMostRecent(ctx, i.cfg.Collections[0])
	switch {
	case err == nil:
		if latest.TimeUS > cursor {
			cursor = latest.TimeUS
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		i.logger.WarnContext(ctx, "could not read latest stored event, using lookback cursor", logging.Error(err))
	}
	return cursor
}

// Run consumes until ctx is cancelled, reconnecting with backoff.
// It returns nil on cancellation and an error only for a bad configuration.
func (i *Ingester) Run(ctx context.Context) error {
	i.setCursor(i.InitialCursor(ctx))
	b := backoff.New(i.cfg.BackoffBase, i.cfg.BackoffCap)

	i.logger.InfoContext(ctx, "ingester starting",
		logging.Sequence(i.Cursor()),
		logging.Collection(i.cfg.Collections[0]))

	for {
		if ctx.Err() != nil {
			i.logger.InfoContext(ctx, "ingester stopped", logging.Sequence(i.Cursor()))
			return nil
		}

		url, err := jetstream.SubscriptionURL(i.cfg.URL, i.cfg.Collections, i.Cursor(), i.cfg.WantedDIDs)
		if err != nil {
			return err
		}

		conn, err := i.dialer.Dial(ctx, url)
		if err == nil {
			b.Reset()
			i.logger.InfoContext(ctx, "connected to firehose", logging.Sequence(i.Cursor()))
			err = i.consume(ctx, conn)
		}
		if ctx.Err() != nil {
			continue
		}

		delay := b.Next()
		metrics.Reconnects.Inc()
		i.logger.WarnContext(ctx, "firehose connection lost, reconnecting",
			logging.Error(err),
			logging.Backoff(delay),
			"attempt", b.Attempts(),
			logging.Sequence(i.Cursor()))
		_ = backoff.Sleep(ctx, delay)
	}
}

// consume reads frames until the connection fails or ctx is cancelled.
func (i *Ingester) consume(ctx context.Context, conn jetstream.Conn) error {
	var once sync.Once
	closeConn := func() { once.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		i.handle(ctx, data)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// handle processes one frame. The insert is not cancelled by shutdown so a
// frame that was read is always fully handled.
func (i *Ingester) handle(ctx context.Context, data []byte) {
	metrics.MessagesReceived.Inc()

	env, err := jetstream.Decode(data)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		i.logger.DebugContext(ctx, "skipping undecodable frame", logging.Error(err))
		return
	}
	if !env.IsCreate(i.cfg.Collections...) {
		metrics.MessagesTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return
	}

	ev, err := jetstream.BuildEvent(env, i.now)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		i.logger.DebugContext(ctx, "skipping malformed create", logging.Error(err), logging.DID(env.DID))
		return
	}

	start := time.Now()
	inserted, err := i.store.InsertIfAbsent(context.WithoutCancel(ctx), ev)
	metrics.InsertDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MessagesTotal.WithLabelValues(metrics.ResultFailed).Inc()
		i.logger.ErrorContext(ctx, "failed to store event", logging.Error(err), logging.URI(ev.URI))
		return
	}

	if inserted {
		metrics.MessagesTotal.WithLabelValues(metrics.ResultInserted).Inc()
		i.logger.DebugContext(ctx, "stored event", logging.URI(ev.URI), logging.Sequence(ev.TimeUS))
	} else {
		metrics.MessagesTotal.WithLabelValues(metrics.ResultDuplicate).Inc()
	}
	i.setCursor(ev.TimeUS)
}
