package sink

import (
	"context"

	"github.com/web3tea/binlog-sentinel/capturer"
	"github.com/web3tea/binlog-sentinel/pkg/log"
)

// DiscardSink drops every event. Useful to measure capture throughput.
type DiscardSink struct {
	logger *log.ZeroLogger
}

func NewDiscardSink() *DiscardSink {
	return &DiscardSink{logger: log.NewLogger("sink.discard", nil)}
}

func (s *DiscardSink) Init(ctx context.Context) error {
	s.logger.Debugf("discard sink ready")
	return nil
}

// Close implements Sink.
func (s *DiscardSink) Close() error {
	return nil
}

// Flush implements Sink.
func (s *DiscardSink) Flush(ctx context.Context) error {
	return nil
}

// Type implements Sink.
func (s *DiscardSink) Type() string {
	return "discard"
}

// Write implements Sink.
func (s *DiscardSink) Write(ctx context.Context, events []*capturer.Event) error {
	s.logger.Debugf("discarding %d events", len(events))
	return nil
}

var _ Sink = (*DiscardSink)(nil)
