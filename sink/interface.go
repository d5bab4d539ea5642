package sink

import (
	"context"

	"github.com/web3tea/binlog-sentinel/capturer"
)

// Sink receives captured events. Write is called from the capture stream, so
// a slow sink slows down binlog consumption.
type Sink interface {
	Init(ctx context.Context) error
	Write(ctx context.Context, events []*capturer.Event) error
	Flush(ctx context.Context) error
	Close() error
	Type() string
}
