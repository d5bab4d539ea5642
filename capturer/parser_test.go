package capturer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3tea/binlog-sentinel/mysqlrepl"
)

func parseRows(t *testing.T, op mysqlrepl.Operation, payload *mysqlrepl.Payload) (*Event, error) {
	t.Helper()
	rows := mysqlrepl.NewRows(7, op, 512, time.Unix(1700000000, 0), func() (*mysqlrepl.Payload, error) {
		return payload, nil
	})
	return EventParser{}.Parse(rows, "shop.orders", Position{Segment: "seg.001", Offset: 512})
}

func TestEventParserInsert(t *testing.T) {
	evt, err := parseRows(t, mysqlrepl.OperationInsert, &mysqlrepl.Payload{
		Schema:  "shop",
		Table:   "orders",
		Columns: []string{"id", "note"},
		Rows:    [][]any{{int32(1), []byte("gift")}, {int32(2), nil}},
	})
	require.NoError(t, err)

	assert.Equal(t, Insert, evt.Type)
	assert.Equal(t, "shop.orders", evt.QualifiedName())
	assert.Equal(t, time.Unix(1700000000, 0), evt.Timestamp)
	assert.Equal(t, Position{Segment: "seg.001", Offset: 512}, evt.Position)
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, []Row{
		{After: map[string]any{"id": int32(1), "note": "gift"}},
		{After: map[string]any{"id": int32(2), "note": nil}},
	}, evt.Rows)
}

func TestEventParserKeepsBinaryValues(t *testing.T) {
	blob := []byte{0xff, 0x00, 0xfe}
	evt, err := parseRows(t, mysqlrepl.OperationInsert, &mysqlrepl.Payload{
		Columns: []string{"data", "label"},
		Rows:    [][]any{{blob, []byte("héllo")}},
	})
	require.NoError(t, err)

	after := evt.Rows[0].After
	assert.Equal(t, blob, after["data"])
	assert.Equal(t, "héllo", after["label"])

	// JSON carries the bytes as base64, so they survive a round trip
	data, err := json.Marshal(after)
	require.NoError(t, err)
	var decoded struct {
		Data  []byte `json:"data"`
		Label string `json:"label"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, blob, decoded.Data)
	assert.Equal(t, "héllo", decoded.Label)
}

func TestEventParserUpdate(t *testing.T) {
	evt, err := parseRows(t, mysqlrepl.OperationUpdate, &mysqlrepl.Payload{
		Columns: []string{"id", "status"},
		Rows:    [][]any{{int32(1), "new"}, {int32(1), "paid"}},
	})
	require.NoError(t, err)

	assert.Equal(t, Update, evt.Type)
	// schema and table fall back to the resolved name
	assert.Equal(t, "shop", evt.Schema)
	assert.Equal(t, "orders", evt.Table)
	assert.Equal(t, []Row{{
		Before: map[string]any{"id": int32(1), "status": "new"},
		After:  map[string]any{"id": int32(1), "status": "paid"},
	}}, evt.Rows)
}

func TestEventParserUpdateUnpaired(t *testing.T) {
	_, err := parseRows(t, mysqlrepl.OperationUpdate, &mysqlrepl.Payload{
		Rows: [][]any{{int32(1)}, {int32(1)}, {int32(2)}},
	})
	assert.Error(t, err)
}

func TestEventParserDeleteWithoutColumnNames(t *testing.T) {
	evt, err := parseRows(t, mysqlrepl.OperationDelete, &mysqlrepl.Payload{
		Rows: [][]any{{int64(9), "x"}},
	})
	require.NoError(t, err)

	assert.Equal(t, Delete, evt.Type)
	assert.Equal(t, []Row{{Before: map[string]any{"@1": int64(9), "@2": "x"}}}, evt.Rows)
}

func TestEventParserNoPayload(t *testing.T) {
	rows := mysqlrepl.NewRows(7, mysqlrepl.OperationInsert, 512, time.Now(), nil)
	_, err := EventParser{}.Parse(rows, "shop.orders", Position{})
	assert.ErrorIs(t, err, mysqlrepl.ErrNoPayload)
}

func TestEventIDStable(t *testing.T) {
	a := eventID(Position{Segment: "seg.001", Offset: 512}, 7)
	assert.Equal(t, a, eventID(Position{Segment: "seg.001", Offset: 512}, 7))
	assert.NotEqual(t, a, eventID(Position{Segment: "seg.001", Offset: 600}, 7))
	assert.NotEqual(t, a, eventID(Position{Segment: "seg.002", Offset: 512}, 7))
}

func TestParserFunc(t *testing.T) {
	var p RowEventParser[string] = ParserFunc[string](func(rows *mysqlrepl.Rows, table string, pos Position) (string, error) {
		return table + "@" + pos.String(), nil
	})
	got, err := p.Parse(nil, "shop.orders", Position{Segment: "seg.001", Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, "shop.orders@seg.001:4", got)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "failed", StateFailed.String())
}
