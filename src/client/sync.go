package client

import (
	"context"
	"sync"
	"time"

	"github.com/username/fintrack/backend/src/logger"
	"github.com/username/fintrack/backend/src/services"
)

type SyncState string

const (
	StateConnecting SyncState = "connecting"
	StateLive       SyncState = "live"
	StateDegraded   SyncState = "degraded"
	StatePolling    SyncState = "polling"
	StateStopped    SyncState = "stopped"
)

// SyncOptions tunes the orchestrator. Tests shrink the intervals.
type SyncOptions struct {
	// FailureThreshold is the number of consecutive push-channel failures
	// after which the session downgrades to polling for good.
	FailureThreshold int
	PollInterval     time.Duration
	ReconnectBackoff time.Duration
}

func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		FailureThreshold: 3,
		PollInterval:     10 * time.Second,
		ReconnectBackoff: 2 * time.Second,
	}
}

// Syncer owns the one live connection of an authenticated session. It holds a
// push channel while it can, and downgrades to fixed-interval polling after
// FailureThreshold consecutive channel failures. The downgrade is one-way for
// the life of the session. Push and poll are never active at the same
// instant: the stream is fully closed before the poll ticker starts.
type Syncer struct {
	api    *APIClient
	userID int64
	reload func()
	opts   SyncOptions

	mu    sync.Mutex
	state SyncState

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSyncer(api *APIClient, userID int64, reload func(), opts SyncOptions) *Syncer {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = 2 * time.Second
	}
	return &Syncer{
		api:    api,
		userID: userID,
		reload: reload,
		opts:   opts,
		state:  StateConnecting,
	}
}

func (s *Syncer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop tears the session down: the stream (or poll ticker) is closed and the
// run goroutine is joined. Nothing outlives the call.
func (s *Syncer) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.setState(StateStopped)
}

func (s *Syncer) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Syncer) setState(state SyncState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Syncer) run(ctx context.Context) {
	defer close(s.done)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		s.setState(StateConnecting)
		stream, err := s.api.OpenStream(ctx, s.userID)
		if err != nil {
			logger.L.Warn("Push channel connect failed", "userID", s.userID, "failures", failures+1, "error", err)
			if s.recordFailure(ctx, &failures) {
				s.poll(ctx)
				return
			}
			continue
		}

		s.setState(StateLive)
		s.consume(ctx, stream, &failures)
		stream.Close()
		if ctx.Err() != nil {
			return
		}
		logger.L.Warn("Push channel dropped", "userID", s.userID, "failures", failures+1, "error", stream.Err())
		if s.recordFailure(ctx, &failures) {
			s.poll(ctx)
			return
		}
	}
}

// recordFailure bumps the counter and either reports that the downgrade
// threshold is reached or sleeps out the reconnect backoff.
func (s *Syncer) recordFailure(ctx context.Context, failures *int) (downgrade bool) {
	*failures++
	if *failures >= s.opts.FailureThreshold {
		logger.L.Warn("Push channel failure threshold reached, downgrading to polling",
			"userID", s.userID, "pollInterval", s.opts.PollInterval.String())
		return true
	}
	s.setState(StateDegraded)
	delay := s.opts.ReconnectBackoff * time.Duration(*failures)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
	return false
}

func (s *Syncer) consume(ctx context.Context, stream *Stream, failures *int) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-stream.Events():
			if !ok {
				return
			}
			switch event.Type {
			case services.EventHeartbeat:
				// A live channel delivering heartbeats is not failing.
				*failures = 0
			case services.EventTransactionUpdate:
				if event.UserID != s.userID {
					continue
				}
				*failures = 0
				// Reloads are neither queued nor deduplicated; overlapping
				// reloads are fine because each one is authoritative.
				go s.reload()
			}
		}
	}
}

func (s *Syncer) poll(ctx context.Context) {
	s.setState(StatePolling)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reload()
		}
	}
}
