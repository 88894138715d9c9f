package kafkaclient

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/SK-Rookies-Final-Project/Backend/errors"
)

// Source is one open consumer on one topic, reading as one user. It is owned
// by a single consumer goroutine; only Close may be called from elsewhere.
type Source struct {
	reader  *kafka.Reader
	topic   string
	groupID string
}

// Fetch blocks for the next record value, honoring ctx cancellation and
// deadlines. Callers bound each fetch with a short-lived context so shutdown
// is never stuck behind an idle topic.
func (s *Source) Fetch(ctx context.Context) ([]byte, error) {
	msg, err := s.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.WrapTransient(err, "Source", "Fetch", "read message")
	}
	return msg.Value, nil
}

// Close shuts the underlying reader down, leaving its consumer group to
// expire on the broker.
func (s *Source) Close() error {
	if err := s.reader.Close(); err != nil {
		return errors.Wrap(err, "Source", "Close", "close reader")
	}
	return nil
}

// Topic returns the topic this source reads
func (s *Source) Topic() string { return s.topic }

// GroupID returns the consumer group this source joined
func (s *Source) GroupID() string { return s.groupID }
