package capturer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/web3tea/binlog-sentinel/mysqlrepl"
)

func TestConnectorSuite(t *testing.T) {
	suite.Run(t, new(connectorSuite))
}

type connectorSuite struct {
	suite.Suite

	conn   *fakeConn
	c      *BinlogCapture
	events []*Event
}

func (s *connectorSuite) R() *require.Assertions {
	return s.Require()
}

func (s *connectorSuite) SetupTest() {
	s.conn = newFakeConn()
	s.events = nil
	s.c = s.newConnector(RetryPolicy{Timeout: time.Millisecond, MaxAttempts: 3})
}

func (s *connectorSuite) newConnector(p RetryPolicy) *BinlogCapture {
	return NewConnector[*Event]("orders-capture", "orders", s.conn, EventParser{}, WithRetryPolicy(p))
}

func (s *connectorSuite) consume(e *Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *connectorSuite) waitDone() {
	select {
	case <-s.c.Done():
	case <-time.After(2 * time.Second):
		s.FailNow("connector did not finish")
	}
}

func (s *connectorSuite) start() {
	s.R().NoError(s.c.Start(context.Background(), DefaultPosition(), s.consume))
	s.Equal(StateStreaming, s.c.State())
}

func (s *connectorSuite) TestEndToEnd() {
	s.start()
	s.Equal("", s.conn.segment)
	s.Equal(uint32(4), s.conn.offset)
	s.ElementsMatch(mysqlrepl.AllKinds, s.conn.kinds)

	s.R().NoError(s.conn.feed(&mysqlrepl.Rotate{NextSegment: "seg.001", Position: 4}))
	s.R().NoError(s.conn.feed(&mysqlrepl.TableMap{TableID: 7, Schema: "shop", Table: "orders"}))
	s.R().NoError(s.conn.feed(rowsRecord(7, 512, &mysqlrepl.Payload{
		Schema:  "shop",
		Table:   "orders",
		Columns: []string{"id", "total"},
		Rows:    [][]any{{int64(1), "9.99"}},
	})))

	s.R().Len(s.events, 1)
	evt := s.events[0]
	s.Equal(Insert, evt.Type)
	s.Equal("shop", evt.Schema)
	s.Equal("orders", evt.Table)
	s.Equal(Position{Segment: "seg.001", Offset: 512}, evt.Position)
	s.Equal([]Row{{After: map[string]any{"id": int64(1), "total": "9.99"}}}, evt.Rows)
	s.Equal(Position{Segment: "seg.001", Offset: 512}, s.c.Position())
	s.Equal("seg.001", s.c.CurrentSegmentName())
	s.Equal(uint64(512), s.c.CurrentOffset())

	s.R().NoError(s.conn.feed(rowsRecord(9, 600, &mysqlrepl.Payload{Rows: [][]any{{int64(2)}}})))
	s.Len(s.events, 1)
	s.Equal(Position{Segment: "seg.001", Offset: 512}, s.c.Position())
}

func (s *connectorSuite) TestName() {
	s.Equal("orders-capture", s.c.Name())
	s.Equal(StateIdle, s.c.State())
}

func (s *connectorSuite) TestStartTwice() {
	s.start()
	err := s.c.Start(context.Background(), DefaultPosition(), s.consume)
	s.ErrorIs(err, ErrAlreadyStarted)

	connects, _ := s.conn.stats()
	s.Equal(1, connects)
	s.Equal(StateStreaming, s.c.State())
}

func (s *connectorSuite) TestStopBeforeStart() {
	s.ErrorIs(s.c.Stop(), ErrNotStarted)
	s.Equal(StateIdle, s.c.State())
}

func (s *connectorSuite) TestStopTwice() {
	s.start()

	s.NoError(s.c.Stop())
	s.NoError(s.c.Stop())

	_, disconnects := s.conn.stats()
	s.Equal(1, disconnects)
	s.Equal(StateStopped, s.c.State())
	s.NoError(s.c.Err())
	s.waitDone()
}

func (s *connectorSuite) TestStopIgnoresDisconnectError() {
	s.conn.disconnErr = errors.New("broken pipe")
	s.start()

	s.NoError(s.c.Stop())
	s.Equal(StateStopped, s.c.State())
}

func (s *connectorSuite) TestStreamDropFails() {
	s.start()

	drop := errors.New("read: connection reset by peer")
	s.conn.drop(drop)

	s.waitDone()
	s.Equal(StateFailed, s.c.State())
	s.ErrorIs(s.c.Err(), drop)

	// stopping a failed connector is allowed
	s.NoError(s.c.Stop())
	s.Equal(StateStopped, s.c.State())
}

func (s *connectorSuite) TestConsumerErrorFails() {
	boom := errors.New("sink full")
	s.R().NoError(s.c.Start(context.Background(), DefaultPosition(), func(*Event) error { return boom }))

	s.R().NoError(s.conn.feed(&mysqlrepl.TableMap{TableID: 7, Schema: "shop", Table: "orders"}))
	err := s.conn.feed(rowsRecord(7, 512, &mysqlrepl.Payload{Rows: [][]any{{int64(1)}}}))
	s.ErrorIs(err, boom)

	s.waitDone()
	s.Equal(StateFailed, s.c.State())
	s.ErrorIs(s.c.Err(), boom)
}

func (s *connectorSuite) TestCorruptPayloadFails() {
	s.start()

	s.R().NoError(s.conn.feed(&mysqlrepl.TableMap{TableID: 7, Schema: "shop", Table: "orders"}))
	err := s.conn.feed(rowsRecord(7, 512, nil))
	s.ErrorIs(err, ErrParse)
	s.ErrorIs(err, mysqlrepl.ErrNoPayload)

	s.waitDone()
	s.ErrorIs(s.c.Err(), ErrParse)
	s.Empty(s.events)
}

func (s *connectorSuite) TestRetryThenStream() {
	s.conn.failures = 2
	s.start()

	connects, _ := s.conn.stats()
	s.Equal(3, connects)
}

func (s *connectorSuite) TestCacheClearedOnReconnect() {
	s.conn.failures = 1
	s.conn.onConnect = func(attempt int) {
		if attempt == 1 {
			// metadata seen on a connection that then died
			s.R().NoError(s.conn.listener(&mysqlrepl.TableMap{TableID: 7, Schema: "shop", Table: "orders"}))
			s.Equal(1, s.c.tables.Len())
		}
	}
	s.start()
	s.Equal(0, s.c.tables.Len())

	s.R().NoError(s.conn.feed(rowsRecord(7, 512, &mysqlrepl.Payload{Rows: [][]any{{int64(1)}}})))
	s.Empty(s.events)
}

func (s *connectorSuite) TestExhausted() {
	s.conn.failures = 1 << 30
	s.c = s.newConnector(RetryPolicy{Timeout: time.Millisecond, MaxAttempts: 2})

	err := s.c.Start(context.Background(), DefaultPosition(), s.consume)
	s.ErrorIs(err, ErrConnectionExhausted)
	s.Equal(StateFailed, s.c.State())
	s.ErrorIs(s.c.Err(), ErrConnectionExhausted)
	s.waitDone()

	connects, _ := s.conn.stats()
	s.Equal(2, connects)
}

func (s *connectorSuite) TestStopWhileConnecting() {
	s.conn.block = true

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.c.Start(context.Background(), Position{Segment: "seg.001", Offset: 120}, s.consume)
	}()

	s.Eventually(func() bool {
		connects, _ := s.conn.stats()
		return connects == 1
	}, time.Second, 5*time.Millisecond)
	s.Equal(StateConnecting, s.c.State())

	s.NoError(s.c.Stop())

	select {
	case err := <-errCh:
		s.ErrorIs(err, ErrInterrupted)
	case <-time.After(2 * time.Second):
		s.Fail("start did not return after stop")
	}
	s.Equal(StateStopped, s.c.State())

	connects, disconnects := s.conn.stats()
	s.Equal(1, connects)
	s.Equal(1, disconnects)
}

func (s *connectorSuite) TestResumePosition() {
	from := Position{Segment: "seg.004", Offset: 2048}
	s.R().NoError(s.c.Start(context.Background(), from, s.consume))

	s.Equal("seg.004", s.conn.segment)
	s.Equal(uint32(2048), s.conn.offset)
	s.Equal(from, s.c.Position())
}

func (s *connectorSuite) TestNothingDeliveredWhileConnecting() {
	var states []State
	var cached []int
	consumer := func(e *Event) error {
		states = append(states, s.c.State())
		s.events = append(s.events, e)
		return nil
	}
	s.c.tables.Put(99, "stale.orders")
	s.conn.onConnect = func(int) {
		cached = append(cached, s.c.tables.Len())
		s.conn.queue(&mysqlrepl.TableMap{TableID: 7, Schema: "shop", Table: "orders"})
		s.conn.queue(rowsRecord(7, 512, &mysqlrepl.Payload{Rows: [][]any{{int64(1)}}}))
		cached = append(cached, s.c.tables.Len())
	}

	s.R().NoError(s.c.Start(context.Background(), DefaultPosition(), consumer))

	s.Equal([]int{0, 0}, cached)
	s.Equal([]State{StateStreaming}, states)
	s.R().Len(s.events, 1)
	s.Equal(uint64(512), s.c.CurrentOffset())
}

func (s *connectorSuite) TestStreamRefused() {
	s.conn.streamErr = mysqlrepl.ErrNotConnected

	err := s.c.Start(context.Background(), DefaultPosition(), s.consume)
	s.ErrorIs(err, mysqlrepl.ErrNotConnected)
	s.Equal(StateFailed, s.c.State())
	s.ErrorIs(s.c.Err(), mysqlrepl.ErrNotConnected)
	s.waitDone()

	_, disconnects := s.conn.stats()
	s.Equal(1, disconnects)
}

type namedLogger struct {
	noopLogger
}

func TestNewBinlogCapturerPassesLogger(t *testing.T) {
	var got mysqlrepl.ConnConfig
	factory := func(cfg mysqlrepl.ConnConfig) mysqlrepl.Conn {
		got = cfg
		return newFakeConn()
	}
	logger := &namedLogger{}

	c := NewBinlogCapturer(Config{Table: "orders", ServerID: 7, Database: DatabaseConfig{Host: "db", Port: 3306}}, logger, factory)

	require.Equal(t, "orders", c.Name())
	require.Equal(t, uint32(7), got.ServerID)
	require.Equal(t, "db:3306", got.Addr())
	require.Same(t, logger, got.Logger)
}
