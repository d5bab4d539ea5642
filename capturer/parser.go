package capturer

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/web3tea/binlog-sentinel/mysqlrepl"
)

// RowEventParser turns an accepted rows record into the consumer's event type.
// table is the qualified name the record's table id resolved to and pos the
// position the record was logged at.
type RowEventParser[E any] interface {
	Parse(rows *mysqlrepl.Rows, table string, pos Position) (E, error)
}

// ParserFunc adapts a function to RowEventParser.
type ParserFunc[E any] func(rows *mysqlrepl.Rows, table string, pos Position) (E, error)

func (f ParserFunc[E]) Parse(rows *mysqlrepl.Rows, table string, pos Position) (E, error) {
	return f(rows, table, pos)
}

// EventParser decodes rows records into *Event.
type EventParser struct{}

var _ RowEventParser[*Event] = EventParser{}

func (EventParser) Parse(rows *mysqlrepl.Rows, table string, pos Position) (*Event, error) {
	payload, err := rows.Decode()
	if err != nil {
		return nil, err
	}

	evt := &Event{
		ID:        eventID(pos, rows.TableID),
		Type:      OperationType(rows.Operation),
		Schema:    payload.Schema,
		Table:     payload.Table,
		Timestamp: rows.Timestamp,
		Position:  pos,
	}
	if evt.Table == "" {
		evt.Schema, evt.Table = splitQualified(table)
	}

	switch rows.Operation {
	case mysqlrepl.OperationInsert:
		for _, image := range payload.Rows {
			evt.Rows = append(evt.Rows, Row{After: columnValues(payload.Columns, image)})
		}
	case mysqlrepl.OperationDelete:
		for _, image := range payload.Rows {
			evt.Rows = append(evt.Rows, Row{Before: columnValues(payload.Columns, image)})
		}
	case mysqlrepl.OperationUpdate:
		if len(payload.Rows)%2 != 0 {
			return nil, fmt.Errorf("update carries %d row images, want before/after pairs", len(payload.Rows))
		}
		for i := 0; i < len(payload.Rows); i += 2 {
			evt.Rows = append(evt.Rows, Row{
				Before: columnValues(payload.Columns, payload.Rows[i]),
				After:  columnValues(payload.Columns, payload.Rows[i+1]),
			})
		}
	default:
		return nil, fmt.Errorf("unknown row operation %q", rows.Operation)
	}

	return evt, nil
}

func columnValues(columns []string, image []any) map[string]any {
	values := make(map[string]any, len(image))
	for idx, val := range image {
		// text columns arrive as bytes; binary ones stay bytes
		if b, ok := val.([]byte); ok && utf8.Valid(b) {
			val = string(b)
		}
		values[columnName(columns, idx)] = val
	}
	return values
}

func columnName(columns []string, idx int) string {
	if idx < len(columns) && columns[idx] != "" {
		return columns[idx]
	}
	return "@" + strconv.Itoa(idx+1)
}

func splitQualified(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// eventID derives a stable id from where the event was logged, so a replayed
// event keeps its id.
func eventID(pos Position, tableID uint64) string {
	h := fnv.New64a()
	h.Write([]byte(fmt.Sprintf("%s-%d-%d", pos.Segment, pos.Offset, tableID)))
	return strconv.FormatUint(h.Sum64(), 16)
}
