package capturer

import (
	"context"
	"time"

	"github.com/web3tea/binlog-sentinel/mysqlrepl"
)

// Capturer streams row changes of one table as events.
type Capturer interface {
	// Start connects and streams from the given position, blocking until the
	// stream is established. consumer is called once per event, in log order.
	Start(ctx context.Context, from Position, consumer func(*Event) error) error

	Stop() error

	// Done is closed once the capturer has stopped or failed.
	Done() <-chan struct{}
	Err() error

	// Position is the position of the last event handed to the consumer.
	Position() Position
	Name() string
	State() State
}

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type DatabaseConfig struct {
	Host     string `json:"host" yaml:"host" toml:"host"`
	Port     uint16 `json:"port" yaml:"port" toml:"port"`
	Username string `json:"username" yaml:"username" toml:"username"`
	Password string `json:"password" yaml:"password" toml:"password"`
}

type Config struct {
	Name     string         `json:"name" yaml:"name" toml:"name"`
	Database DatabaseConfig `json:"database" yaml:"database" toml:"database"`
	// ServerID identifies the capturer as a replica and must be unique on the source.
	ServerID uint32 `json:"server_id" yaml:"server_id" toml:"server_id"`
	Flavor   string `json:"flavor" yaml:"flavor" toml:"flavor"`
	// Table is "table" or "schema.table", matched case-insensitively.
	Table          string        `json:"table" yaml:"table" toml:"table"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout" toml:"connect_timeout"`
	MaxAttempts    int           `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`
	KeepAlive      time.Duration `json:"keep_alive" yaml:"keep_alive" toml:"keep_alive"`
}

func (c Config) connConfig() mysqlrepl.ConnConfig {
	return mysqlrepl.ConnConfig{
		Host:      c.Database.Host,
		Port:      c.Database.Port,
		User:      c.Database.Username,
		Password:  c.Database.Password,
		ServerID:  c.ServerID,
		Flavor:    c.Flavor,
		KeepAlive: c.KeepAlive,
	}
}

func (c Config) retryPolicy() RetryPolicy {
	return RetryPolicy{Timeout: c.ConnectTimeout, MaxAttempts: c.MaxAttempts}
}

type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (l *noopLogger) Debugf(format string, args ...any) {}
func (l *noopLogger) Infof(format string, args ...any)  {}
func (l *noopLogger) Warnf(format string, args ...any)  {}
func (l *noopLogger) Errorf(format string, args ...any) {}
