package sentinel

import (
	"time"

	"github.com/web3tea/binlog-sentinel/capturer"
	"github.com/web3tea/binlog-sentinel/metrics"
)

// Option configures a Sentinel.
type Option func(*Sentinel)

// WithCheckpointInterval sets how often the position is persisted.
func WithCheckpointInterval(interval time.Duration) Option {
	return func(s *Sentinel) {
		if interval > 0 {
			s.checkpointInterval = interval
		}
	}
}

// WithCheckpointKey sets the store key of the position, the capturer name by default.
func WithCheckpointKey(key string) Option {
	return func(s *Sentinel) {
		if key != "" {
			s.checkpointKey = key
		}
	}
}

func WithStatusReporter(r StatusReporter) Option {
	return func(s *Sentinel) {
		s.statusReporter = r
	}
}

func WithLogger(l capturer.Logger) Option {
	return func(s *Sentinel) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m metrics.Metric) Option {
	return func(s *Sentinel) {
		if m != nil {
			s.metrics = m
		}
	}
}
