package capturer

import (
	"time"

	"github.com/web3tea/binlog-sentinel/mysqlrepl"
)

type OperationType string

const (
	Insert OperationType = OperationType(mysqlrepl.OperationInsert)
	Update OperationType = OperationType(mysqlrepl.OperationUpdate)
	Delete OperationType = OperationType(mysqlrepl.OperationDelete)
)

// Row is one changed row. Values are keyed by column name, or by "@N"
// (1-based) when the server does not log column names.
type Row struct {
	// Before contains the row values before the operation
	// - UPDATE: contains old values of the updated row
	// - DELETE: contains values of the deleted row
	// - INSERT: will be nil
	Before map[string]any `json:"before,omitempty"`

	// After contains the row values after the operation
	// - INSERT: contains new row values
	// - UPDATE: contains new values of the updated row
	// - DELETE: will be nil
	After map[string]any `json:"after,omitempty"`
}

// Event is the change captured from one rows event. A single statement may
// touch many rows, so an event carries all of them.
type Event struct {
	// ID is a unique identifier for the event
	ID string `json:"id"`

	// Type is the type of operation that was performed on the rows
	Type OperationType `json:"type"`

	Schema string `json:"schema,omitempty"`
	Table  string `json:"table,omitempty"`

	Rows []Row `json:"rows"`

	// Timestamp is the time the server logged the event
	Timestamp time.Time `json:"timestamp"`

	// Position is where the event starts in the binlog
	Position Position `json:"position"`
}

// QualifiedName returns schema.table.
func (e *Event) QualifiedName() string {
	if e.Schema == "" {
		return e.Table
	}
	return e.Schema + "." + e.Table
}
