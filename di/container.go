package di

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/web3tea/binlog-sentinel/capturer"
	"github.com/web3tea/binlog-sentinel/config"
	"github.com/web3tea/binlog-sentinel/metrics"
	"github.com/web3tea/binlog-sentinel/pkg/log"
	"github.com/web3tea/binlog-sentinel/sentinel"
	"github.com/web3tea/binlog-sentinel/sink"
	"github.com/web3tea/binlog-sentinel/store"
)

func SetupContainer(cfgPath string) do.Injector {
	injector := do.New()

	do.ProvideNamedValue(injector, "configPath", cfgPath)
	do.Provide(injector, NewConfig)
	do.Provide(injector, NewStore)
	do.Provide(injector, NewSink)
	do.Provide(injector, NewMetrics)
	do.Provide(injector, NewCapturer)
	do.Provide(injector, NewSentinel)

	return injector
}

// NewConfig loads the config file and applies its logging settings.
func NewConfig(i do.Injector) (*config.Config, error) {
	cfg, err := config.LoadFromFile(do.MustInvokeNamed[string](i, "configPath"))
	if err != nil {
		return nil, err
	}
	if err := log.Setup(cfg.LogLevel, cfg.LogPretty, nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

func NewStore(i do.Injector) (store.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	s, err := store.New(context.Background(), cfg.Checkpoint.Type, cfg.Checkpoint.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s checkpoint store: %w", cfg.Checkpoint.Type, err)
	}
	return s, nil
}

func NewSink(i do.Injector) (sink.Sink, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return sink.New(cfg.Sink)
}

func NewMetrics(i do.Injector) (metrics.Metric, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return metrics.NewMetric(cfg.Capturer.Name), nil
}

func NewCapturer(i do.Injector) (capturer.Capturer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := log.NewLogger("capturer", nil).With("table", cfg.Capturer.Table)
	return capturer.NewBinlogCapturer(cfg.Capturer.Config(), logger, nil), nil
}

func NewSentinel(i do.Injector) (*sentinel.Sentinel, error) {
	cfg := do.MustInvoke[*config.Config](i)

	c, err := do.Invoke[capturer.Capturer](i)
	if err != nil {
		return nil, err
	}
	sk, err := do.Invoke[sink.Sink](i)
	if err != nil {
		return nil, err
	}
	st, err := do.Invoke[store.Store](i)
	if err != nil {
		return nil, err
	}

	return sentinel.NewSentinel(c, sk, st,
		sentinel.WithCheckpointKey(cfg.Checkpoint.Key),
		sentinel.WithCheckpointInterval(cfg.Checkpoint.Interval.Std()),
		sentinel.WithMetrics(do.MustInvoke[metrics.Metric](i)),
		sentinel.WithLogger(log.NewLogger("sentinel", nil)),
		sentinel.WithStatusReporter(logReporter{}),
	), nil
}

type logReporter struct{}

func (logReporter) ReportStatus(status sentinel.Status, message string) {
	if message == "" {
		log.Infof("sentinel %s", status)
		return
	}
	log.Infof("sentinel %s: %s", status, message)
}
