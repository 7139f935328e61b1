// Package sink delivers accepted events downstream.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/telhawk-systems/feedgen/common/logging"
	"github.com/telhawk-systems/feedgen/common/messaging"
	"github.com/telhawk-systems/feedgen/internal/models"
)

// Sink consumes accepted events. It may block and may fail; a failure makes
// the poller retry the whole batch.
type Sink interface {
	Deliver(ctx context.Context, events []*models.Event) error
}

// Log writes one structured line per accepted event.
type Log struct {
	logger *logging.Logger
}

func NewLog(logger *logging.Logger) *Log {
	if logger == nil {
		logger = logging.Default()
	}
	return &Log{logger: logger.WithComponent("sink")}
}

func (s *Log) Deliver(ctx context.Context, events []*models.Event) error {
	for _, e := range events {
		s.logger.InfoContext(ctx, "accepted event",
			logging.URI(e.URI),
			logging.DID(e.DID),
			logging.Sequence(e.TimeUS),
			"reply", e.IsReply(),
			"text", e.Text)
	}
	return nil
}

// NATS publishes each event as JSON.
type NATS struct {
	publisher  messaging.Publisher
	subject    string
	perCollect bool
}

// NewNATS publishes to subject. With perCollection set the collection is
// appended as an extra subject token.
func NewNATS(publisher messaging.Publisher, subject string, perCollection bool) *NATS {
	if subject == "" {
		subject = messaging.SubjectPostsAccepted
	}
	return &NATS{publisher: publisher, subject: subject, perCollect: perCollection}
}

// AcceptedMessage is the payload published for an event.
type AcceptedMessage struct {
	models.PostItem
	AcceptedAt time.Time `json:"accepted_at"`
}

func (s *NATS) Deliver(ctx context.Context, events []*models.Event) error {
	for _, e := range events {
		data, err := json.Marshal(AcceptedMessage{
			PostItem:   models.NewPostItem(e, false),
			AcceptedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.URI, err)
		}

		subject := s.subject
		if s.perCollect {
			subject = messaging.CollectionSubject(subject, e.Collection)
		}

		msg := &messaging.Message{
			Subject: subject,
			Data:    data,
			Metadata: map[string]string{
				messaging.HeaderMsgID:      e.URI,
				messaging.HeaderCollection: e.Collection,
				messaging.HeaderSequence:   strconv.FormatInt(e.TimeUS, 10),
			},
		}
		if err := s.publisher.PublishMsg(ctx, msg); err != nil {
			return fmt.Errorf("publish event %s: %w", e.URI, err)
		}
	}
	return nil
}

// Multi fans out to every sink in order and stops at the first failure.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, events []*models.Event) error {
	for _, s := range m {
		if err := s.Deliver(ctx, events); err != nil {
			return err
		}
	}
	return nil
}
