package bookmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Client interface is used for interacting with the messaging layer
type Client interface {
	// Subscribe places a subscription on the topic, resuming it from the
	// given bookmark. Messages and delivery errors are reported on the
	// returned channels until the context is canceled.
	Subscribe(ctx context.Context, topic, subID, bookmark string) (<-chan Message, <-chan error, error)
}

// Subscription names one resumable subscription placed on a topic.
type Subscription struct {
	Topic string
	SubID string
}

// MessageFunc is the callback invoked for each delivered message. Returning
// an error ends the session without discarding the message, so it will be
// redelivered after the next resume.
type MessageFunc func(Message) error

// New creates a subscription session with default settings. Use Option to
// override any of the optional attributes.
func New(client Client, opts ...Option) (*Session, error) {
	if client == nil {
		return nil, fmt.Errorf("must provide client")
	}

	// new session with no-op store, counter, and logger
	s := &Session{
		client:  client,
		store:   noopStore{},
		counter: noopCounter{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	// override defaults
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Session resumes subscriptions from their stored bookmarks and records
// progress as messages are processed.
type Session struct {
	client  Client
	store   Store
	counter Counter
	logger  *slog.Logger
}

// Run consumes each of the subscriptions in its own goroutine, calling the
// callback func with each delivered message. It blocks until the context is
// canceled or a subscription fails.
func (s *Session) Run(ctx context.Context, subs []Subscription, fn MessageFunc) error {
	grp, ctx := errgroup.WithContext(ctx)

	for _, sub := range subs {
		sub := sub
		grp.Go(func() error {
			if err := s.Consume(ctx, sub, fn); err != nil {
				return fmt.Errorf("subscription %s error: %v", sub.SubID, err)
			}
			return nil
		})
	}

	return grp.Wait()
}

// Consume places the subscription at its most recent bookmark, loops over
// the delivered messages and records the progress of processing.
func (s *Session) Consume(ctx context.Context, sub Subscription, fn MessageFunc) error {
	recent := s.store.MostRecent(sub.SubID)

	s.logger.Debug("resuming subscription",
		slog.String("topic", sub.Topic),
		slog.String("sub_id", sub.SubID),
		slog.String("bookmark", recent),
	)

	msgc, errc, err := s.client.Subscribe(ctx, sub.Topic, sub.SubID, recent)
	if err != nil {
		return fmt.Errorf("subscribe error: %v", err)
	}

	// loop messages
	for msg := range msgc {
		if s.store.IsDiscarded(msg) {
			s.counter.Add("skipped", 1)
			continue
		}

		s.store.Log(msg)
		s.counter.Add("messages", 1)
		counterMessagesDelivered.WithLabelValues(sub.Topic, sub.SubID).Inc()

		if err := fn(msg); err != nil {
			return err
		}

		if err := s.store.Discard(ctx, msg); err != nil {
			counterDiscardFailures.WithLabelValues(sub.Topic, sub.SubID).Inc()
			return fmt.Errorf("discard error: %v", err)
		}
		counterMessagesDiscarded.WithLabelValues(sub.Topic, sub.SubID).Inc()
	}

	s.logger.Debug("exiting subscription", slog.String("sub_id", sub.SubID))
	return <-errc
}
