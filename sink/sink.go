package sink

import (
	"fmt"
)

type Config struct {
	Type        string      `json:"type" yaml:"type" toml:"type"`
	PrettyPrint bool        `json:"pretty_print" yaml:"pretty_print" toml:"pretty_print"`
	Kafka       KafkaConfig `json:"kafka,omitempty" yaml:"kafka,omitempty" toml:"kafka,omitempty"`
}

// Types lists the sink types New knows about.
var Types = []string{"console", "stdout", "kafka", "discard"}

func New(cfg Config) (Sink, error) {
	switch cfg.Type {
	case "", "console":
		return NewConsoleSink(WithColorOutput(cfg.PrettyPrint)), nil
	case "stdout":
		return NewStdoutSink(cfg.PrettyPrint), nil
	case "kafka":
		return NewKafkaSink(cfg.Kafka)
	case "discard":
		return NewDiscardSink(), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}
