package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fintrack/backend/src/models"
)

func TestScheduler_DrivesEngineOnInterval(t *testing.T) {
	db := newTestDB(t)
	engine := NewRecurrenceEngine(db, NewNotifier())
	fixed := mustDate(t, "2024-01-01")
	engine.now = func() time.Time { return fixed }
	insertTestRule(t, db, models.FrequencyDaily, "2024-01-01", "")

	scheduler := NewRecurrenceScheduler(engine, 10*time.Millisecond)
	scheduler.Start()

	require.Eventually(t, func() bool {
		return countTransactions(t, db, 1) == 1
	}, 5*time.Second, 5*time.Millisecond)

	scheduler.Stop()

	// With a frozen clock the advanced cursor is past due, so further ticks
	// would have been no-ops anyway; Stop just joins the goroutine.
	assert.Equal(t, 1, countTransactions(t, db, 1))
}

func TestScheduler_StopBeforeAnyTick(t *testing.T) {
	db := newTestDB(t)
	engine := NewRecurrenceEngine(db, NewNotifier())

	scheduler := NewRecurrenceScheduler(engine, time.Hour)
	scheduler.Start()

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler Stop did not return")
	}
}
