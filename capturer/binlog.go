package capturer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/web3tea/binlog-sentinel/mysqlrepl"
)

var errStreamClosed = errors.New("binlog stream closed")

type options struct {
	policy RetryPolicy
	logger Logger
}

type Option func(*options)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Connector tails the binlog of one table and hands each row change of that
// table to a consumer. A Connector runs once: after Stop or a failure it
// cannot be started again.
type Connector[E any] struct {
	name   string
	table  string
	conn   mysqlrepl.Conn
	parser RowEventParser[E]
	policy RetryPolicy
	logger Logger

	tables  *TableCache
	tracker *PositionTracker

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	err      error
	done     chan struct{}
	doneOnce sync.Once
}

func NewConnector[E any](name, table string, conn mysqlrepl.Conn, parser RowEventParser[E], opts ...Option) *Connector[E] {
	o := options{
		policy: DefaultRetryPolicy(),
		logger: &noopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Connector[E]{
		name:    name,
		table:   table,
		conn:    conn,
		parser:  parser,
		policy:  o.policy,
		logger:  o.logger,
		tables:  NewTableCache(),
		tracker: NewPositionTracker(DefaultPosition()),
		done:    make(chan struct{}),
	}
}

// BinlogCapture is the Capturer backed by a MySQL replica connection.
type BinlogCapture = Connector[*Event]

var _ Capturer = (*BinlogCapture)(nil)

// NewBinlogCapturer returns a Capturer reading cfg.Table through a binlog
// connection built by factory, or mysqlrepl.DefaultFactory when nil.
func NewBinlogCapturer(cfg Config, logger Logger, factory mysqlrepl.Factory) *BinlogCapture {
	if factory == nil {
		factory = mysqlrepl.DefaultFactory
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Table
	}
	connCfg := cfg.connConfig()
	if logger != nil {
		connCfg.Logger = logger
	}
	return NewConnector[*Event](name, cfg.Table, factory(connCfg), EventParser{},
		WithRetryPolicy(cfg.retryPolicy()),
		WithLogger(logger),
	)
}

// Start seeds the position, connects with retries and returns once events are
// streaming. Start is valid only once.
func (c *Connector[E]) Start(ctx context.Context, from Position, consumer func(E) error) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	connectCtx, cancel := context.WithCancel(ctx)
	c.state = StateConnecting
	c.cancel = cancel
	c.mu.Unlock()

	c.tables.Reset()
	c.tracker.Reset(from)

	dispatcher := NewDispatcher(c.table, c.tables, c.tracker, c.parser, consumer, c.logger)
	c.conn.SetPosition(from.Segment, uint32(from.Offset))
	c.conn.SetListener(dispatcher.OnRecord)
	c.conn.SetDeserializedKinds(mysqlrepl.AllKinds...)

	supervisor := &Supervisor{
		Policy: c.policy,
		Logger: c.logger,
		OnAttempt: func(int) {
			c.tables.Reset()
		},
	}

	c.logger.Infof("%s: starting capture of %s from %s", c.name, c.table, from)
	err := supervisor.Connect(connectCtx, c.conn)

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		if err == nil {
			// connected just as Stop ran
			disconnect(c.conn, c.logger)
			err = ErrInterrupted
		}
		return fmt.Errorf("%s: stopped while connecting: %w", c.name, err)
	}

	if err != nil {
		defer c.mu.Unlock()
		cancel()
		c.state = StateFailed
		c.err = err
		c.closeDone()
		return fmt.Errorf("%s: %w", c.name, err)
	}

	// nothing is delivered before the state says so
	c.state = StateStreaming
	c.mu.Unlock()

	if err := c.conn.Stream(); err != nil {
		c.mu.Lock()
		if c.state == StateStopped {
			c.mu.Unlock()
			return fmt.Errorf("%s: stopped while connecting: %w", c.name, ErrInterrupted)
		}
		cancel()
		c.state = StateFailed
		c.err = err
		c.closeDone()
		c.mu.Unlock()

		disconnect(c.conn, c.logger)
		return fmt.Errorf("%s: %w", c.name, err)
	}

	go c.watch(c.conn.Done())
	return nil
}

// watch moves the connector to Failed when the stream ends on its own.
func (c *Connector[E]) watch(streamDone <-chan struct{}) {
	<-streamDone

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStreaming {
		return
	}
	err := c.conn.Err()
	if err == nil {
		err = errStreamClosed
	}
	c.logger.Errorf("%s: binlog stream terminated at %s: %v", c.name, c.tracker.Current(), err)
	c.state = StateFailed
	c.err = err
	c.closeDone()
}

// Stop disconnects and moves the connector to Stopped. Disconnect failures are
// logged only. Stopping twice is a no-op.
func (c *Connector[E]) Stop() error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return ErrNotStarted
	case StateStopped:
		c.mu.Unlock()
		return nil
	}
	prev := c.state
	c.state = StateStopped
	c.cancel()
	c.mu.Unlock()

	disconnect(c.conn, c.logger)
	c.closeDone()

	c.logger.Infof("%s: capture stopped (was %s) at %s", c.name, prev, c.tracker.Current())
	return nil
}

func (c *Connector[E]) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Connector[E]) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connector failed, nil unless the state is Failed or it
// was stopped after failing.
func (c *Connector[E]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Connector[E]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connector[E]) Name() string {
	return c.name
}

func (c *Connector[E]) Position() Position {
	return c.tracker.Current()
}

func (c *Connector[E]) CurrentSegmentName() string {
	return c.tracker.Segment()
}

func (c *Connector[E]) CurrentOffset() uint64 {
	return c.tracker.Offset()
}
