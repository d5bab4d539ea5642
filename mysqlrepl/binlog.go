package mysqlrepl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
)

// BinlogConn streams a binlog through go-mysql's syncer. The syncer runs in raw
// mode, so events arrive undecoded and only the enabled kinds are parsed.
type BinlogConn struct {
	cfg      ConnConfig
	pos      mysql.Position
	listener Listener
	kinds    kindSet

	mu      sync.Mutex
	syncer  *replication.BinlogSyncer
	cancel  context.CancelFunc
	done    chan struct{}
	release chan struct{}
	err     error
	closing bool
	// streaming is set once Stream released the records
	streaming bool

	// owned by the stream goroutine
	parser *replication.BinlogParser
	format *replication.FormatDescriptionEvent
	mapped map[uint64]struct{}
}

var _ Conn = (*BinlogConn)(nil)

func NewBinlogConn(cfg ConnConfig) *BinlogConn {
	if cfg.Flavor == "" {
		cfg.Flavor = DefaultFlavor
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	c := &BinlogConn{
		cfg:   cfg,
		kinds: newKindSet(AllKinds...),
		done:  make(chan struct{}),
	}
	c.resetParser()
	return c
}

func (c *BinlogConn) SetPosition(name string, pos uint32) {
	c.pos = mysql.Position{Name: name, Pos: pos}
}

func (c *BinlogConn) SetListener(l Listener) {
	c.listener = l
}

func (c *BinlogConn) SetDeserializedKinds(kinds ...Kind) {
	c.kinds = newKindSet(kinds...)
}

func (c *BinlogConn) syncerConfig() replication.BinlogSyncerConfig {
	return replication.BinlogSyncerConfig{
		ServerID:        c.cfg.ServerID,
		Flavor:          c.cfg.Flavor,
		Host:            c.cfg.Host,
		Port:            c.cfg.Port,
		User:            c.cfg.User,
		Password:        c.cfg.Password,
		HeartbeatPeriod: c.cfg.KeepAlive,
		// a missed heartbeat surfaces as a read error and ends the stream
		ReadTimeout:      3 * c.cfg.KeepAlive,
		RawModeEnabled:   true,
		DisableRetrySync: true,
		Logger:           syncerLogger{l: c.cfg.Logger},
	}
}

type startResult struct {
	streamer *replication.BinlogStreamer
	err      error
}

// Connect registers as a replica and requests a binlog dump from the
// configured position. It gives up after timeout.
func (c *BinlogConn) Connect(ctx context.Context, timeout time.Duration) error {
	if c.cfg.ServerID == 0 {
		return ErrInvalidServerID
	}

	c.mu.Lock()
	if c.syncer != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	syncer := replication.NewBinlogSyncer(c.syncerConfig())
	results := make(chan startResult, 1)
	go func() {
		streamer, err := syncer.StartSync(c.pos)
		results <- startResult{streamer: streamer, err: err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case res := <-results:
		if res.err != nil {
			syncer.Close()
			return fmt.Errorf("start binlog sync from %s:%d on %s: %w", c.pos.Name, c.pos.Pos, c.cfg.Addr(), res.err)
		}
		c.start(syncer, res.streamer)
		return nil
	case <-expired:
		go closeWhenStarted(syncer, results)
		return fmt.Errorf("%w after %s (%s)", ErrTimeout, timeout, c.cfg.Addr())
	case <-ctx.Done():
		go closeWhenStarted(syncer, results)
		return ctx.Err()
	}
}

// closeWhenStarted waits for an abandoned StartSync before closing its syncer.
func closeWhenStarted(syncer *replication.BinlogSyncer, results <-chan startResult) {
	<-results
	syncer.Close()
}

func (c *BinlogConn) start(syncer *replication.BinlogSyncer, streamer *replication.BinlogStreamer) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.syncer = syncer
	c.cancel = cancel
	c.done = make(chan struct{})
	c.release = make(chan struct{})
	c.err = nil
	c.closing = false
	c.streaming = false
	done, release := c.done, c.release
	c.mu.Unlock()

	c.resetParser()
	go c.run(ctx, syncer, streamer, done, release)
}

// Stream lets the stream goroutine deliver records.
func (c *BinlogConn) Stream() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil || c.release == nil {
		return ErrNotConnected
	}
	if !c.streaming {
		c.streaming = true
		close(c.release)
	}
	return nil
}

func (c *BinlogConn) run(ctx context.Context, syncer *replication.BinlogSyncer, streamer *replication.BinlogStreamer, done, release chan struct{}) {
	defer close(done)
	defer syncer.Close()

	select {
	case <-release:
	case <-ctx.Done():
		c.finish(ctx.Err())
		return
	}

	for {
		ev, err := streamer.GetEvent(ctx)
		if err != nil {
			c.finish(fmt.Errorf("read binlog event: %w", err))
			return
		}
		if err := c.handle(ev); err != nil {
			c.finish(err)
			return
		}
	}
}

func (c *BinlogConn) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing && errors.Is(err, context.Canceled) {
		err = nil
	}
	c.err = err
	c.syncer = nil
}

func (c *BinlogConn) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *BinlogConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Disconnect stops the stream and waits for the stream goroutine to exit.
func (c *BinlogConn) Disconnect() error {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.closing = true
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (c *BinlogConn) resetParser() {
	c.parser = replication.NewBinlogParser()
	c.parser.SetFlavor(c.cfg.Flavor)
	c.format = nil
	c.mapped = make(map[uint64]struct{})
}

// handle decodes the event when its kind is enabled and hands it to the listener.
func (c *BinlogConn) handle(ev *replication.BinlogEvent) error {
	h := ev.Header
	switch h.EventType {
	case replication.FORMAT_DESCRIPTION_EVENT:
		// needed to decode everything else (post header lengths, checksums)
		e, err := c.parser.Parse(ev.RawData)
		if err != nil {
			return fmt.Errorf("decode format description: %w", err)
		}
		if fde, ok := e.Event.(*replication.FormatDescriptionEvent); ok {
			c.format = fde
		}
		return nil

	case replication.ROTATE_EVENT:
		if !c.kinds.has(KindRotate) {
			return nil
		}
		e, err := c.parser.Parse(ev.RawData)
		if err != nil {
			return fmt.Errorf("decode rotate event: %w", err)
		}
		re, ok := e.Event.(*replication.RotateEvent)
		if !ok {
			return fmt.Errorf("unexpected rotate payload %T", e.Event)
		}
		return c.emit(&Rotate{NextSegment: string(re.NextLogName), Position: re.Position})

	case replication.TABLE_MAP_EVENT:
		// rows cannot be decoded without their table map
		if !c.kinds.has(KindTableMap) && !c.kinds.has(KindRows) {
			return nil
		}
		e, err := c.parser.Parse(ev.RawData)
		if err != nil {
			return fmt.Errorf("decode table map event: %w", err)
		}
		tme, ok := e.Event.(*replication.TableMapEvent)
		if !ok {
			return fmt.Errorf("unexpected table map payload %T", e.Event)
		}
		c.mapped[tme.TableID] = struct{}{}
		if !c.kinds.has(KindTableMap) {
			return nil
		}
		return c.emit(&TableMap{
			TableID: tme.TableID,
			Schema:  string(tme.Schema),
			Table:   string(tme.Table),
			Columns: tme.ColumnNameString(),
		})
	}

	op, ok := rowsOperation(h.EventType)
	if !ok || !c.kinds.has(KindRows) {
		return nil
	}
	tableID, err := c.rowsTableID(h.EventType, ev.RawData)
	if err != nil {
		return err
	}

	raw := ev.RawData
	var decode func() (*Payload, error)
	if _, known := c.mapped[tableID]; known {
		decode = func() (*Payload, error) { return c.decodeRows(raw) }
	}
	return c.emit(NewRows(tableID, op, startOffset(h), time.Unix(int64(h.Timestamp), 0), decode))
}

func (c *BinlogConn) emit(rec Record) error {
	if c.listener == nil {
		return nil
	}
	return c.listener(rec)
}

func (c *BinlogConn) decodeRows(raw []byte) (*Payload, error) {
	e, err := c.parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	re, ok := e.Event.(*replication.RowsEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected rows payload %T", e.Event)
	}
	p := &Payload{Rows: re.Rows}
	if re.Table != nil {
		p.Schema = string(re.Table.Schema)
		p.Table = string(re.Table.Table)
		p.Columns = re.Table.ColumnNameString()
	}
	return p, nil
}

// rowsTableID reads the table id from the rows post header without decoding
// the rest of the event.
func (c *BinlogConn) rowsTableID(t replication.EventType, raw []byte) (uint64, error) {
	size := 6
	if c.format != nil && int(t) >= 1 && int(t)-1 < len(c.format.EventTypeHeaderLengths) &&
		c.format.EventTypeHeaderLengths[t-1] == 6 {
		size = 4
	}
	if len(raw) < replication.EventHeaderSize+size {
		return 0, fmt.Errorf("rows event too short: %d bytes", len(raw))
	}
	return readTableID(raw[replication.EventHeaderSize:], size), nil
}

func readTableID(b []byte, size int) uint64 {
	if size == 4 {
		return uint64(binary.LittleEndian.Uint32(b))
	}
	var buf [8]byte
	copy(buf[:], b[:6])
	return binary.LittleEndian.Uint64(buf[:])
}

// startOffset returns the position the event starts at; the header carries
// the position of the next event.
func startOffset(h *replication.EventHeader) uint64 {
	if h.LogPos < h.EventSize {
		return 0
	}
	return uint64(h.LogPos - h.EventSize)
}

func rowsOperation(t replication.EventType) (Operation, bool) {
	switch t {
	case replication.WRITE_ROWS_EVENTv0, replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
		return OperationInsert, true
	case replication.UPDATE_ROWS_EVENTv0, replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
		return OperationUpdate, true
	case replication.DELETE_ROWS_EVENTv0, replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
		return OperationDelete, true
	default:
		return "", false
	}
}
