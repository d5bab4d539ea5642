package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/web3tea/binlog-sentinel/capturer"
	"github.com/web3tea/binlog-sentinel/mysqlrepl"
	"github.com/web3tea/binlog-sentinel/sink"
	"github.com/web3tea/binlog-sentinel/store"
)

type Config struct {
	AppName        string `json:"app_name" yaml:"app_name" toml:"app_name"`
	LogLevel       string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogPretty      bool   `json:"log_pretty" yaml:"log_pretty" toml:"log_pretty"`
	MetricsAddress string `json:"metrics_address" yaml:"metrics_address" toml:"metrics_address"`

	Capturer   CapturerConfig   `json:"capturer" yaml:"capturer" toml:"capturer"`
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint" toml:"checkpoint"`
	Sink       sink.Config      `json:"sink" yaml:"sink" toml:"sink"`
}

type CapturerConfig struct {
	Name     string                  `json:"name" yaml:"name" toml:"name"`
	Database capturer.DatabaseConfig `json:"database" yaml:"database" toml:"database"`
	ServerID uint32                  `json:"server_id" yaml:"server_id" toml:"server_id"`
	Flavor   string                  `json:"flavor" yaml:"flavor" toml:"flavor"`
	Table    string                  `json:"table" yaml:"table" toml:"table"`

	ConnectTimeout Duration `json:"connect_timeout" yaml:"connect_timeout" toml:"connect_timeout"`
	MaxAttempts    int      `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`
	KeepAlive      Duration `json:"keep_alive" yaml:"keep_alive" toml:"keep_alive"`
}

func (c CapturerConfig) Config() capturer.Config {
	return capturer.Config{
		Name:           c.Name,
		Database:       c.Database,
		ServerID:       c.ServerID,
		Flavor:         c.Flavor,
		Table:          c.Table,
		ConnectTimeout: c.ConnectTimeout.Std(),
		MaxAttempts:    c.MaxAttempts,
		KeepAlive:      c.KeepAlive.Std(),
	}
}

type CheckpointConfig struct {
	// Type is one of store.Types.
	Type string `json:"type" yaml:"type" toml:"type"`
	DSN  string `json:"dsn" yaml:"dsn" toml:"dsn"`
	// Key defaults to the capturer name.
	Key      string   `json:"key" yaml:"key" toml:"key"`
	Interval Duration `json:"interval" yaml:"interval" toml:"interval"`
}

// Duration is a time.Duration written as "10s" or "1m30s" in config files.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", path)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &config, nil
}

// Validate checks the config and fills in values derived from other fields.
func (c *Config) Validate() error {
	var errs []error

	if c.Capturer.Table == "" {
		errs = append(errs, errors.New("capturer.table is required"))
	}
	if c.Capturer.Database.Host == "" {
		errs = append(errs, errors.New("capturer.database.host is required"))
	}
	if c.Capturer.ServerID == 0 {
		errs = append(errs, errors.New("capturer.server_id must be non-zero"))
	}
	if c.Capturer.MaxAttempts < 0 {
		errs = append(errs, errors.New("capturer.max_attempts must not be negative"))
	}
	if c.Capturer.ConnectTimeout < 0 || c.Capturer.KeepAlive < 0 {
		errs = append(errs, errors.New("capturer durations must not be negative"))
	}
	if !lo.Contains(sink.Types, c.Sink.Type) {
		errs = append(errs, fmt.Errorf("sink.type %q is not one of %s", c.Sink.Type, strings.Join(sink.Types, ", ")))
	}
	if !lo.Contains(store.Types, c.Checkpoint.Type) {
		errs = append(errs, fmt.Errorf("checkpoint.type %q is not one of %s", c.Checkpoint.Type, strings.Join(store.Types, ", ")))
	}
	if c.Checkpoint.Type != "memory" && c.Checkpoint.DSN == "" {
		errs = append(errs, fmt.Errorf("checkpoint.dsn is required for %s", c.Checkpoint.Type))
	}
	if c.Checkpoint.Interval <= 0 {
		errs = append(errs, errors.New("checkpoint.interval must be positive"))
	}
	if c.Sink.Type == "kafka" && (len(c.Sink.Kafka.Brokers) == 0 || c.Sink.Kafka.Topic == "") {
		errs = append(errs, errors.New("sink.kafka needs brokers and a topic"))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if c.Capturer.Name == "" {
		c.Capturer.Name = c.Capturer.Table
	}
	if c.Checkpoint.Key == "" {
		c.Checkpoint.Key = c.Capturer.Name
	}
	return nil
}

var DefaultConfig = Config{
	AppName:  "binlog-sentinel",
	LogLevel: "info",
	Capturer: CapturerConfig{
		Database:       capturer.DatabaseConfig{Port: 3306},
		ServerID:       1001,
		Flavor:         "mysql",
		ConnectTimeout: Duration(capturer.DefaultConnectTimeout),
		MaxAttempts:    capturer.DefaultMaxAttempts,
		KeepAlive:      Duration(mysqlrepl.DefaultKeepAlive),
	},
	Checkpoint: CheckpointConfig{
		Type:     "memory",
		Interval: Duration(10 * time.Second),
	},
	Sink: sink.Config{
		Type: "console",
	},
}
