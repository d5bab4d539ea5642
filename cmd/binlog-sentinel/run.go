package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do/v2"
	"github.com/urfave/cli/v3"

	"github.com/web3tea/binlog-sentinel/config"
	"github.com/web3tea/binlog-sentinel/di"
	"github.com/web3tea/binlog-sentinel/metrics"
	"github.com/web3tea/binlog-sentinel/pkg/log"
	"github.com/web3tea/binlog-sentinel/sentinel"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Capture changes of the configured table into the sink",
	Flags: []cli.Flag{configFlag()},
	Action: func(ctx context.Context, c *cli.Command) error {
		injector := di.SetupContainer(c.String("config"))

		cfg, err := do.Invoke[*config.Config](injector)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to load config: %v", err), 1)
		}
		s, err := do.Invoke[*sentinel.Sentinel](injector)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to setup sentinel: %v", err), 1)
		}

		if cfg.MetricsAddress != "" {
			srv, err := serveMetrics(cfg.MetricsAddress, do.MustInvoke[metrics.Metric](injector))
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to setup metrics: %v", err), 1)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		// the capture stream ends through Stop, not through signal cancellation
		if err := s.Start(ctx); err != nil {
			_ = s.Stop()
			return cli.Exit(fmt.Sprintf("failed to start sentinel: %v", err), 1)
		}
		log.Infof("Sentinel started, capturing %s", cfg.Capturer.Table)

		sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		waitErr := s.Wait(sigCtx)
		if sigCtx.Err() != nil {
			log.Infof("Received signal, stopping")
			waitErr = nil
		}

		stopErr := s.Stop()
		if waitErr != nil {
			return cli.Exit(fmt.Sprintf("capture failed: %v", waitErr), 1)
		}
		if stopErr != nil {
			return cli.Exit(fmt.Sprintf("failed to stop sentinel: %v", stopErr), 1)
		}

		log.Infof("Sentinel stopped")
		return nil
	},
}

func serveMetrics(addr string, m metrics.Metric) (*http.Server, error) {
	handler, err := metrics.Handler(m)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
	return srv, nil
}
