package capturer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/web3tea/binlog-sentinel/mysqlrepl"
)

var errRefused = errors.New("connection refused")

// fakeConn is an in-memory mysqlrepl.Conn. Records are pushed by the test
// through feed, which plays the role of the stream goroutine.
type fakeConn struct {
	mu sync.Mutex

	segment  string
	offset   uint32
	listener mysqlrepl.Listener
	kinds    []mysqlrepl.Kind

	// the first failures connects fail with connectErr
	failures    int
	connectErr  error
	block       bool
	onConnect   func(attempt int)
	connects    int
	timeouts    []time.Duration
	disconnects int
	disconnErr  error

	connected bool
	streams   int
	streamErr error
	// pending holds records received before Stream
	pending []mysqlrepl.Record
	done    chan struct{}
	err     error
}

var _ mysqlrepl.Conn = (*fakeConn)(nil)

func newFakeConn() *fakeConn {
	return &fakeConn{connectErr: errRefused, done: make(chan struct{})}
}

func (f *fakeConn) SetPosition(name string, pos uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segment, f.offset = name, pos
}

func (f *fakeConn) SetListener(l mysqlrepl.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

func (f *fakeConn) SetDeserializedKinds(kinds ...mysqlrepl.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = kinds
}

func (f *fakeConn) Connect(ctx context.Context, timeout time.Duration) error {
	f.mu.Lock()
	f.connects++
	f.timeouts = append(f.timeouts, timeout)
	attempt, block, hook := f.connects, f.block, f.onConnect
	f.mu.Unlock()

	if hook != nil {
		hook(attempt)
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if attempt <= f.failures {
		return f.connectErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.done = make(chan struct{})
	f.err = nil
	return nil
}

// queue buffers rec as if it arrived on the wire before Stream was called.
func (f *fakeConn) queue(rec mysqlrepl.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, rec)
}

func (f *fakeConn) Stream() error {
	f.mu.Lock()
	f.streams++
	if f.streamErr != nil {
		f.mu.Unlock()
		return f.streamErr
	}
	if !f.connected {
		f.mu.Unlock()
		return mysqlrepl.ErrNotConnected
	}
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, rec := range pending {
		// a listener error already ended the stream
		if f.feed(rec) != nil {
			break
		}
	}
	return nil
}

func (f *fakeConn) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *fakeConn) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeConn) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	if !f.connected {
		return mysqlrepl.ErrNotConnected
	}
	f.connected = false
	close(f.done)
	return f.disconnErr
}

// feed delivers rec the way the stream goroutine would: a listener error ends
// the stream.
func (f *fakeConn) feed(rec mysqlrepl.Record) error {
	f.mu.Lock()
	listener := f.listener
	f.mu.Unlock()

	err := listener(rec)
	if err != nil {
		f.drop(err)
	}
	return err
}

// drop ends the stream as a network failure would.
func (f *fakeConn) drop(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return
	}
	f.connected = false
	f.err = err
	close(f.done)
}

func (f *fakeConn) stats() (connects, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects
}

func rowsRecord(id, offset uint64, payload *mysqlrepl.Payload) *mysqlrepl.Rows {
	var decode func() (*mysqlrepl.Payload, error)
	if payload != nil {
		decode = func() (*mysqlrepl.Payload, error) { return payload, nil }
	}
	return mysqlrepl.NewRows(id, mysqlrepl.OperationInsert, offset, time.Unix(1700000000, 0), decode)
}
