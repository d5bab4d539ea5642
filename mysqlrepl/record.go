package mysqlrepl

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies one of the record kinds a Conn can surface to its listener.
type Kind uint8

const (
	// KindTableMap maps a connection scoped table id to a schema and table name.
	KindTableMap Kind = iota + 1
	// KindRotate announces the binlog file the following events belong to.
	KindRotate
	// KindRows carries inserted, updated or deleted row images for one table.
	KindRows
)

// AllKinds is the full set of kinds a Conn is able to decode.
var AllKinds = []Kind{KindTableMap, KindRotate, KindRows}

func (k Kind) String() string {
	switch k {
	case KindTableMap:
		return "table_map"
	case KindRotate:
		return "rotate"
	case KindRows:
		return "rows"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Record is a decoded binlog record. The set of implementations is closed:
// *TableMap, *Rotate and *Rows.
type Record interface {
	Kind() Kind
	isRecord()
}

// TableMap precedes the row events of a table within a connection.
type TableMap struct {
	TableID uint64
	Schema  string
	Table   string
	// Columns holds the column names when the server logs them
	// (binlog_row_metadata=FULL), nil otherwise.
	Columns []string
}

func (*TableMap) Kind() Kind { return KindTableMap }
func (*TableMap) isRecord()  {}

// QualifiedName returns schema.table, or the bare table name when the schema is unknown.
func (t *TableMap) QualifiedName() string {
	if t.Schema == "" {
		return t.Table
	}
	return t.Schema + "." + t.Table
}

// Rotate switches the stream to another binlog file. NextSegment may be empty.
type Rotate struct {
	NextSegment string
	Position    uint64
}

func (*Rotate) Kind() Kind { return KindRotate }
func (*Rotate) isRecord()  {}

// Operation is the kind of row mutation carried by a Rows record.
type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// ErrNoPayload is returned by Rows.Decode when the record carries no payload.
var ErrNoPayload = errors.New("rows record has no payload")

// Payload is the decoded content of a Rows record.
//
// For updates Rows alternates before and after images: Rows[0] is the first
// before image, Rows[1] its after image, and so on.
type Payload struct {
	Schema  string
	Table   string
	Columns []string
	Rows    [][]any
}

// Rows is a row mutation record. Its payload stays encoded until Decode is
// called, so rows of tables nobody tracks are never decoded.
type Rows struct {
	TableID   uint64
	Operation Operation
	// Offset is the absolute start position of the event in its binlog file.
	Offset    uint64
	Timestamp time.Time

	decode func() (*Payload, error)
}

// NewRows builds a Rows record whose payload is produced by decode.
func NewRows(tableID uint64, op Operation, offset uint64, ts time.Time, decode func() (*Payload, error)) *Rows {
	return &Rows{
		TableID:   tableID,
		Operation: op,
		Offset:    offset,
		Timestamp: ts,
		decode:    decode,
	}
}

func (*Rows) Kind() Kind { return KindRows }
func (*Rows) isRecord()  {}

// Decode decodes the row images. It is only valid while the listener that
// received the record is running.
func (r *Rows) Decode() (*Payload, error) {
	if r.decode == nil {
		return nil, ErrNoPayload
	}
	return r.decode()
}
