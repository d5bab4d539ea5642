package sentinel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/web3tea/binlog-sentinel/capturer"
	"github.com/web3tea/binlog-sentinel/metrics"
	"github.com/web3tea/binlog-sentinel/pkg/log"
	"github.com/web3tea/binlog-sentinel/sink"
	"github.com/web3tea/binlog-sentinel/store"
)

// Status is the running state of a Sentinel.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// StatusReporter is notified of every status change.
type StatusReporter interface {
	ReportStatus(status Status, message string)
}

const DefaultCheckpointInterval = 10 * time.Second

var ErrAlreadyStarted = errors.New("sentinel already started")

// Sentinel moves the events of a capturer into a sink and keeps the capture
// position in a store, so a restart resumes where the last run left off.
type Sentinel struct {
	Capturer capturer.Capturer
	Sink     sink.Sink
	Store    store.Store

	metrics        metrics.Metric
	logger         capturer.Logger
	statusReporter StatusReporter

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup

	streaming atomic.Bool

	checkpointKey      string
	checkpointInterval time.Duration
	lastCheckpoint     capturer.Position
	checkpointMu       sync.Mutex

	status   Status
	statusMu sync.RWMutex
	stopOnce sync.Once
	stopErr  error
}

func NewSentinel(c capturer.Capturer, sk sink.Sink, st store.Store, options ...Option) *Sentinel {
	s := &Sentinel{
		Capturer:           c,
		Sink:               sk,
		Store:              st,
		metrics:            metrics.Noop(),
		logger:             log.NewLogger("sentinel", nil),
		checkpointKey:      c.Name(),
		checkpointInterval: DefaultCheckpointInterval,
		status:             StatusIdle,
		stopCh:             make(chan struct{}),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Start initializes the sink, loads the saved position and starts capturing
// from it. It returns once the capturer is streaming.
func (s *Sentinel) Start(ctx context.Context) error {
	s.statusMu.Lock()
	if s.status != StatusIdle {
		s.statusMu.Unlock()
		return ErrAlreadyStarted
	}
	s.status = StatusStarting
	s.statusMu.Unlock()
	s.report(StatusStarting, "")

	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.Sink.Init(s.ctx); err != nil {
		return s.fail(fmt.Errorf("failed to init %s sink: %w", s.Sink.Type(), err))
	}

	from, ok, err := store.LoadPosition(s.ctx, s.Store, s.checkpointKey)
	if err != nil {
		return s.fail(fmt.Errorf("failed to load checkpoint %q: %w", s.checkpointKey, err))
	}
	if !ok {
		from = capturer.DefaultPosition()
		s.logger.Infof("no checkpoint under %q, starting from %s", s.checkpointKey, from)
	} else {
		s.logger.Infof("resuming %s from %s", s.Capturer.Name(), from)
	}
	s.lastCheckpoint = from

	s.metrics.SetState(capturer.StateConnecting.String())
	if err := s.Capturer.Start(s.ctx, from, s.consume); err != nil {
		s.metrics.SetState(s.Capturer.State().String())
		return s.fail(fmt.Errorf("failed to start capturer: %w", err))
	}
	s.metrics.SetState(s.Capturer.State().String())
	s.streaming.Store(true)

	s.wg.Add(1)
	go s.checkpointLoop()

	s.setStatus(StatusRunning, fmt.Sprintf("streaming %s from %s", s.Capturer.Name(), from))
	return nil
}

// consume runs on the capture goroutine, once per event.
func (s *Sentinel) consume(event *capturer.Event) error {
	if err := s.Sink.Write(s.ctx, []*capturer.Event{event}); err != nil {
		return fmt.Errorf("write to %s sink: %w", s.Sink.Type(), err)
	}
	s.metrics.AddEvent(event.QualifiedName(), string(event.Type), len(event.Rows))
	s.metrics.SetPosition(event.Position.Segment, event.Position.Offset)
	return nil
}

func (s *Sentinel) checkpointLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.metrics.SetState(s.Capturer.State().String())
			if err := s.Checkpoint(s.ctx); err != nil {
				s.logger.Warnf("checkpoint failed: %v", err)
			}
		}
	}
}

// Checkpoint saves the current capture position unless it is already saved.
func (s *Sentinel) Checkpoint(ctx context.Context) error {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()

	pos := s.Capturer.Position()
	if pos == s.lastCheckpoint {
		return nil
	}

	err := store.SavePosition(ctx, s.Store, s.checkpointKey, pos)
	s.metrics.AddCheckpoint(err)
	if err != nil {
		return fmt.Errorf("save position %s: %w", pos, err)
	}
	s.lastCheckpoint = pos
	s.logger.Debugf("checkpoint %s saved", pos)
	return nil
}

// Wait blocks until the capturer terminates or ctx is done. A capturer that
// failed on its own leaves the sentinel in StatusError.
func (s *Sentinel) Wait(ctx context.Context) error {
	select {
	case <-s.Capturer.Done():
		err := s.Capturer.Err()
		if err != nil && s.Status() == StatusRunning {
			s.setStatus(StatusError, err.Error())
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops the capturer, saves the final position, then flushes and closes
// the sink and the store. Calls after the first return the first result.
func (s *Sentinel) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop()
	})
	return s.stopErr
}

func (s *Sentinel) stop() error {
	s.setStatus(StatusStopping, "")

	var errs []error
	if err := s.Capturer.Stop(); err != nil && !errors.Is(err, capturer.ErrNotStarted) {
		errs = append(errs, fmt.Errorf("stop capturer: %w", err))
	}
	s.metrics.SetState(s.Capturer.State().String())

	close(s.stopCh)
	s.wg.Wait()

	// the capture context is about to go away
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.streaming.Load() {
		if err := s.Checkpoint(ctx); err != nil {
			errs = append(errs, fmt.Errorf("final checkpoint: %w", err))
		}
	}
	if err := s.Sink.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush %s sink: %w", s.Sink.Type(), err))
	}
	if err := s.Sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s sink: %w", s.Sink.Type(), err))
	}
	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if s.cancel != nil {
		s.cancel()
	}

	err := errors.Join(errs...)
	if err != nil {
		s.setStatus(StatusError, err.Error())
		return err
	}
	s.setStatus(StatusStopped, "")
	return nil
}

func (s *Sentinel) fail(err error) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.setStatus(StatusError, err.Error())
	return err
}

func (s *Sentinel) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Sentinel) setStatus(status Status, message string) {
	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()
	s.report(status, message)
}

func (s *Sentinel) report(status Status, message string) {
	if s.statusReporter != nil {
		s.statusReporter.ReportStatus(status, message)
	}
}
