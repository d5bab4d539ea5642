// Package mysqlrepl connects to a MySQL server as a replica, streams its binary
// log and decodes the handful of record kinds a change capture needs.
package mysqlrepl

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultKeepAlive is the interval at which a connection pings the server.
	DefaultKeepAlive = 5 * time.Second
	// DefaultFlavor is the server flavor used when none is configured.
	DefaultFlavor = "mysql"
)

var (
	ErrTimeout          = errors.New("binlog connect timed out")
	ErrNotConnected     = errors.New("binlog connection is not established")
	ErrAlreadyConnected = errors.New("binlog connection already established")
	// ErrInvalidServerID is returned by Connect for a zero server id, which the
	// source rejects for replicas.
	ErrInvalidServerID = errors.New("binlog server id must be non-zero")
)

// Listener receives every decoded record in stream order. A non-nil error
// terminates the stream and becomes the connection's Err.
type Listener func(Record) error

// Conn is a replica connection to a binlog source.
type Conn interface {
	// SetPosition sets the binlog file and offset the next Connect starts from.
	SetPosition(name string, pos uint32)
	SetListener(l Listener)
	// SetDeserializedKinds restricts decoding to the given kinds. Events of any
	// other kind are skipped without decoding their bodies.
	SetDeserializedKinds(kinds ...Kind)

	// Connect establishes the connection. Records received before Stream are
	// held back.
	Connect(ctx context.Context, timeout time.Duration) error
	// Stream releases records to the listener. It is valid once per successful
	// Connect; further calls do nothing.
	Stream() error
	// Done is closed when the stream ends, for whatever reason.
	Done() <-chan struct{}
	// Err reports why the stream ended; nil after a Disconnect.
	Err() error
	Disconnect() error
}

// ConnConfig describes how to reach the binlog source.
type ConnConfig struct {
	Host     string
	Port     uint16
	User     string
	Password string
	// ServerID must be unique among all replicas of the source.
	ServerID  uint32
	Flavor    string
	KeepAlive time.Duration
	// Logger receives the connection's and go-mysql's logs. Nil discards them.
	Logger Logger
}

func (c ConnConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Factory creates a Conn for the given configuration.
type Factory func(cfg ConnConfig) Conn

// DefaultFactory returns BinlogConn instances.
func DefaultFactory(cfg ConnConfig) Conn {
	return NewBinlogConn(cfg)
}

type kindSet uint8

func newKindSet(kinds ...Kind) kindSet {
	var s kindSet
	for _, k := range kinds {
		s |= 1 << k
	}
	return s
}

func (s kindSet) has(k Kind) bool {
	return s&(1<<k) != 0
}
