package capturer

import (
	"fmt"
	"strings"

	"github.com/web3tea/binlog-sentinel/mysqlrepl"
)

// Dispatcher routes the records of one connection: table maps feed the table
// cache, rotations move the tracker to a new file and rows of the tracked table
// become events for the consumer.
type Dispatcher[E any] struct {
	table    string
	tables   *TableCache
	tracker  *PositionTracker
	parser   RowEventParser[E]
	consumer func(E) error
	logger   Logger
}

func NewDispatcher[E any](table string, tables *TableCache, tracker *PositionTracker, parser RowEventParser[E], consumer func(E) error, logger Logger) *Dispatcher[E] {
	if logger == nil {
		logger = &noopLogger{}
	}
	return &Dispatcher[E]{
		table:    table,
		tables:   tables,
		tracker:  tracker,
		parser:   parser,
		consumer: consumer,
		logger:   logger,
	}
}

// OnRecord handles one record. A returned error ends the stream.
func (d *Dispatcher[E]) OnRecord(rec mysqlrepl.Record) error {
	switch r := rec.(type) {
	case *mysqlrepl.TableMap:
		d.handleTableMap(r)
		return nil
	case *mysqlrepl.Rotate:
		d.handleRotate(r)
		return nil
	case *mysqlrepl.Rows:
		return d.handleRows(r)
	default:
		return fmt.Errorf("%w: %T", ErrUnexpectedRecord, rec)
	}
}

func (d *Dispatcher[E]) handleTableMap(tm *mysqlrepl.TableMap) {
	if !d.tracks(tm) {
		return
	}
	name := tm.QualifiedName()
	if prev, ok := d.tables.Get(tm.TableID); !ok || prev != name {
		d.logger.Debugf("table map: %s (%d)", name, tm.TableID)
	}
	d.tables.Put(tm.TableID, name)
}

// tracks reports whether the table map names the tracked table. A tracked
// name with a schema must match schema.table, a bare one only the table.
func (d *Dispatcher[E]) tracks(tm *mysqlrepl.TableMap) bool {
	if strings.Contains(d.table, ".") {
		return strings.EqualFold(d.table, tm.QualifiedName())
	}
	return strings.EqualFold(d.table, tm.Table)
}

func (d *Dispatcher[E]) handleRotate(r *mysqlrepl.Rotate) {
	if r.NextSegment == "" {
		return
	}
	if r.NextSegment != d.tracker.Segment() {
		d.logger.Infof("binlog rotated to %s", r.NextSegment)
	}
	d.tracker.SetSegment(r.NextSegment)
}

func (d *Dispatcher[E]) handleRows(r *mysqlrepl.Rows) error {
	name, ok := d.tables.Get(r.TableID)
	if !ok {
		d.logger.Debugf("skipping %s rows of untracked table id %d at offset %d", r.Operation, r.TableID, r.Offset)
		return nil
	}

	if err := d.tracker.AdvanceOffset(r.Offset); err != nil {
		return err
	}
	pos := d.tracker.Current()

	evt, err := d.parser.Parse(r, name, pos)
	if err != nil {
		return &ParseError{Table: name, Pos: pos, Err: err}
	}
	if err := d.consumer(evt); err != nil {
		return fmt.Errorf("consume %s event at %s: %w", name, pos, err)
	}
	return nil
}
