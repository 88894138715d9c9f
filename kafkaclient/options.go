package kafkaclient

import (
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/SK-Rookies-Final-Project/Backend/errors"
)

// FactoryOption is a functional option for configuring the Factory
type FactoryOption func(*Factory) error

// WithDialTimeout sets the broker dial timeout
func WithDialTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) error {
		if d <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Factory", "WithDialTimeout",
				"dial timeout must be positive")
		}
		f.dialTimeout = d
		return nil
	}
}

// WithLogger sets a custom logger for the factory
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) error {
		if logger != nil {
			f.logger = logger
		}
		return nil
	}
}

// WithStartOffset sets the initial position for new consumer groups.
// Defaults to the latest offset so streams carry live events only.
func WithStartOffset(offset int64) FactoryOption {
	return func(f *Factory) error {
		if offset != kafka.FirstOffset && offset != kafka.LastOffset {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Factory", "WithStartOffset",
				"offset must be FirstOffset or LastOffset")
		}
		f.startOffset = offset
		return nil
	}
}

// WithFetchSizes sets the min/max fetch byte bounds for readers
func WithFetchSizes(minBytes, maxBytes int) FactoryOption {
	return func(f *Factory) error {
		if minBytes < 1 || maxBytes < minBytes {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Factory", "WithFetchSizes",
				"fetch bounds must satisfy 1 <= min <= max")
		}
		f.minBytes = minBytes
		f.maxBytes = maxBytes
		return nil
	}
}
