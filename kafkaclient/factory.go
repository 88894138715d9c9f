package kafkaclient

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/SK-Rookies-Final-Project/Backend/errors"
)

// Factory opens per-user, per-topic consumers against a fixed broker set.
// A Factory is safe for concurrent use.
type Factory struct {
	brokers     []string
	dialTimeout time.Duration
	startOffset int64
	minBytes    int
	maxBytes    int
	logger      *slog.Logger
}

// NewFactory creates a consumer factory for the given bootstrap address list
// (comma separated). An empty address is fatal: nothing downstream can work
// without a broker to dial.
func NewFactory(bootstrap string, opts ...FactoryOption) (*Factory, error) {
	brokers := splitBrokers(bootstrap)
	if len(brokers) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Factory", "NewFactory",
			"kafka bootstrap address is required")
	}

	f := &Factory{
		brokers:     brokers,
		dialTimeout: 10 * time.Second,
		startOffset: kafka.LastOffset,
		minBytes:    1,
		maxBytes:    10e6,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, errors.Wrap(err, "Factory", "NewFactory", "apply option")
		}
	}
	return f, nil
}

// GroupID builds a fresh consumer group ID for one user/topic pairing. Every
// consumer gets its own group so it always tails the live end of the topic
// instead of resuming a shared committed offset.
func GroupID(username, topic string) string {
	return fmt.Sprintf("consumer-group-%s-%s-%d-%s",
		username, topic, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// OpenSource opens a consumer on the given topic authenticated as the given
// user. The returned Source is positioned at the latest offset.
func (f *Factory) OpenSource(username, password, topic string) (*Source, error) {
	mechanism, err := scram.Mechanism(scram.SHA512, username, password)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Factory", "OpenSource", "build SCRAM mechanism")
	}

	groupID := GroupID(username, topic)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     f.brokers,
		GroupID:     groupID,
		Topic:       topic,
		StartOffset: f.startOffset,
		MinBytes:    f.minBytes,
		MaxBytes:    f.maxBytes,
		Dialer: &kafka.Dialer{
			Timeout:       f.dialTimeout,
			DualStack:     true,
			SASLMechanism: mechanism,
		},
	})

	f.logger.Debug("opened consumer",
		"username", username,
		"topic", topic,
		"group_id", groupID)

	return &Source{
		reader:  reader,
		topic:   topic,
		groupID: groupID,
	}, nil
}

// VerifyCredentials dials the broker with the given user's SCRAM credentials
// and reports whether the broker accepts them. A reachable broker that
// rejects the handshake yields ErrAuthRejected; an unreachable broker yields
// ErrBrokerUnreachable so callers can tell the two apart.
func (f *Factory) VerifyCredentials(ctx context.Context, username, password string) error {
	mechanism, err := scram.Mechanism(scram.SHA512, username, password)
	if err != nil {
		return errors.WrapInvalid(err, "Factory", "VerifyCredentials", "build SCRAM mechanism")
	}

	dialer := &kafka.Dialer{
		Timeout:       f.dialTimeout,
		DualStack:     true,
		SASLMechanism: mechanism,
	}

	dialCtx, cancel := context.WithTimeout(ctx, f.dialTimeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", f.brokers[0])
	if err != nil {
		if isAuthError(err) {
			return errors.WrapInvalid(errors.ErrAuthRejected, "Factory", "VerifyCredentials",
				fmt.Sprintf("broker rejected credentials for %s", username))
		}
		return errors.WrapTransient(errors.ErrBrokerUnreachable, "Factory", "VerifyCredentials",
			fmt.Sprintf("dial %s", f.brokers[0]))
	}
	defer conn.Close()

	// The SASL handshake completes during dial; a successful read of broker
	// metadata confirms the session is live.
	if _, err := conn.Brokers(); err != nil {
		return errors.WrapTransient(err, "Factory", "VerifyCredentials", "read broker metadata")
	}
	return nil
}

// isAuthError reports whether a dial failure is an authentication rejection
// rather than a connectivity problem.
func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"sasl", "authentication", "credentials", "unauthorized"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func splitBrokers(bootstrap string) []string {
	var brokers []string
	for _, b := range strings.Split(bootstrap, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
