package capturer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/web3tea/binlog-sentinel/mysqlrepl"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultMaxAttempts    = 3
)

// RetryPolicy bounds connection attempts. Timeout limits each attempt and is
// also the fixed delay between two attempts.
type RetryPolicy struct {
	Timeout     time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Timeout: DefaultConnectTimeout, MaxAttempts: DefaultMaxAttempts}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultConnectTimeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Supervisor establishes a binlog connection with bounded retries.
type Supervisor struct {
	Policy RetryPolicy
	Logger Logger
	// OnAttempt runs before every connection attempt, before anything is
	// streamed on that attempt.
	OnAttempt func(attempt int)

	// wait blocks for d or until ctx is done.
	wait func(ctx context.Context, d time.Duration) error
}

// Connect tries to connect until it succeeds, the policy is exhausted or ctx
// is cancelled. Exhaustion yields an *ExhaustedError; cancellation an error
// matching ErrInterrupted.
func (s *Supervisor) Connect(ctx context.Context, conn mysqlrepl.Conn) error {
	policy := s.Policy.withDefaults()
	logger := s.Logger
	if logger == nil {
		logger = &noopLogger{}
	}
	wait := s.wait
	if wait == nil {
		wait = sleep
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w before attempt %d: %w", ErrInterrupted, attempt, err)
		}
		if s.OnAttempt != nil {
			s.OnAttempt(attempt)
		}

		logger.Debugf("connecting to binlog (attempt %d/%d)", attempt, policy.MaxAttempts)
		err := conn.Connect(ctx, policy.Timeout)
		if err == nil {
			logger.Infof("binlog connection established after %d attempt(s)", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w during attempt %d: %w", ErrInterrupted, attempt, err)
		}
		if attempt >= policy.MaxAttempts {
			return &ExhaustedError{Attempts: attempt, Last: err}
		}

		logger.Warnf("binlog connection attempt %d/%d failed: %v, retrying in %s", attempt, policy.MaxAttempts, err, policy.Timeout)
		if err := wait(ctx, policy.Timeout); err != nil {
			return fmt.Errorf("%w while waiting to reconnect: %w", ErrInterrupted, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// disconnect closes conn, logging instead of returning failures.
func disconnect(conn mysqlrepl.Conn, logger Logger) {
	err := conn.Disconnect()
	switch {
	case err == nil:
	case errors.Is(err, mysqlrepl.ErrNotConnected):
		logger.Debugf("disconnect: %v", err)
	default:
		logger.Warnf("failed to disconnect from binlog: %v", err)
	}
}
