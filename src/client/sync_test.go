package client

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fintrack/backend/src/services"
)

func writeTestEvent(w http.ResponseWriter, eventType string, userID int64) {
	fmt.Fprintf(w, "event: %s\ndata: {\"type\":%q,\"userId\":%d}\n\n", eventType, eventType, userID)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func fastSyncOptions() SyncOptions {
	return SyncOptions{
		FailureThreshold: 3,
		PollInterval:     30 * time.Millisecond,
		ReconnectBackoff: 5 * time.Millisecond,
	}
}

func TestSyncer_DowngradesToPollingAfterThreshold(t *testing.T) {
	// Nothing listens here; every connect attempt fails.
	api := NewAPIClient("http://127.0.0.1:1")

	var reloads atomic.Int32
	s := NewSyncer(api, 1, func() { reloads.Add(1) }, fastSyncOptions())
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.State() == StatePolling
	}, 5*time.Second, 5*time.Millisecond, "three consecutive connect failures should trigger the downgrade")

	// In polling mode the reload fires on every tick.
	require.Eventually(t, func() bool {
		return reloads.Load() >= 2
	}, 5*time.Second, 5*time.Millisecond)
}

func TestSyncer_PollingIsPermanent(t *testing.T) {
	var connects atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connects.Add(1)
		// Fail every connection attempt.
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewSyncer(NewAPIClient(server.URL), 1, func() {}, fastSyncOptions())
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.State() == StatePolling
	}, 5*time.Second, 5*time.Millisecond)

	// Even though the server is reachable now, no further stream attempts are
	// made once polling started.
	settled := connects.Load()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, settled, connects.Load())
	assert.Equal(t, StatePolling, s.State())
}

func TestSyncer_HeartbeatResetsFailureCounter(t *testing.T) {
	var connects atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connects.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		writeTestEvent(w, services.EventHeartbeat, 1)
		// Returning drops the connection right after the heartbeat.
	}))
	defer server.Close()

	s := NewSyncer(NewAPIClient(server.URL), 1, func() {}, fastSyncOptions())
	s.Start()
	defer s.Stop()

	// Each cycle is connect, heartbeat, drop. The heartbeat zeroes the failure
	// counter, so five drops in a row never reach the threshold of three.
	require.Eventually(t, func() bool {
		return connects.Load() >= 5
	}, 5*time.Second, 5*time.Millisecond)
	assert.NotEqual(t, StatePolling, s.State())
}

func TestSyncer_ReloadsOnOwnUpdatesOnly(t *testing.T) {
	stop := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeTestEvent(w, services.EventTransactionUpdate, 99)
		writeTestEvent(w, services.EventTransactionUpdate, 1)
		select {
		case <-stop:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(stop)

	var reloads atomic.Int32
	s := NewSyncer(NewAPIClient(server.URL), 1, func() { reloads.Add(1) }, fastSyncOptions())
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return reloads.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateLive, s.State())

	// The other user's event never triggers a reload.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), reloads.Load())
}

func TestSyncer_StopTearsDownPromptly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeTestEvent(w, services.EventHeartbeat, 1)
		<-r.Context().Done()
	}))
	defer server.Close()

	var reloads atomic.Int32
	s := NewSyncer(NewAPIClient(server.URL), 1, func() { reloads.Add(1) }, fastSyncOptions())
	s.Start()

	require.Eventually(t, func() bool {
		return s.State() == StateLive
	}, 5*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, StateStopped, s.State())

	// No polling or reloading continues after teardown.
	settled := reloads.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, reloads.Load())
}

func TestSyncer_StopDuringPolling(t *testing.T) {
	s := NewSyncer(NewAPIClient("http://127.0.0.1:1"), 1, func() {}, fastSyncOptions())
	s.Start()

	require.Eventually(t, func() bool {
		return s.State() == StatePolling
	}, 5*time.Second, 5*time.Millisecond)

	s.Stop()
	assert.Equal(t, StateStopped, s.State())
}
