package services

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/username/fintrack/backend/src/logger"
	"github.com/username/fintrack/backend/src/models"
)

// ProcessingReport summarizes one engine tick. Failed rules are retried on the
// next tick; their cursors have not moved.
type ProcessingReport struct {
	RanAt     time.Time `json:"ranAt"`
	Due       int       `json:"due"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Skipped   bool      `json:"skipped"` // another tick was already running
}

// RecurrenceEngine turns due recurring rules into concrete transactions.
//
// Each processed rule advances its cursor by exactly one frequency step per
// invocation, however late the engine runs. Catching up N missed cycles takes
// N invocations; a single tick never backfills.
type RecurrenceEngine struct {
	db       *sql.DB
	notifier *Notifier
	now      func() time.Time
	running  atomic.Bool
}

func NewRecurrenceEngine(db *sql.DB, notifier *Notifier) *RecurrenceEngine {
	return &RecurrenceEngine{
		db:       db,
		notifier: notifier,
		now:      time.Now,
	}
}

// Advance moves a date forward by exactly one frequency step. Monthly and
// yearly steps are calendar-aware: the day of month is clamped to the target
// month's length (Jan 31 -> Feb 29 in a leap year), never rolled over.
func Advance(t time.Time, f models.Frequency) time.Time {
	switch f {
	case models.FrequencyDaily:
		return t.AddDate(0, 0, 1)
	case models.FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case models.FrequencyMonthly:
		return addMonthClamped(t)
	case models.FrequencyYearly:
		return addYearClamped(t)
	}
	return t
}

func addMonthClamped(t time.Time) time.Time {
	// AddDate normalizes Jan 31 + 1 month to Mar 2/3; anchor on the first of
	// the month and clamp the day instead.
	next := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	day := t.Day()
	if last := daysIn(next.Year(), next.Month()); day > last {
		day = last
	}
	return time.Date(next.Year(), next.Month(), day, 0, 0, 0, 0, t.Location())
}

func addYearClamped(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(1, 0, 0)
	day := t.Day()
	if last := daysIn(next.Year(), next.Month()); day > last {
		day = last
	}
	return time.Date(next.Year(), next.Month(), day, 0, 0, 0, 0, t.Location())
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MaterializeDue processes every active rule whose cursor is due at now.
// At most one invocation runs at a time; an overlapping call returns a
// Skipped report without touching any rule. A failure on one rule is logged
// and counted, and processing of the remaining rules continues.
func (e *RecurrenceEngine) MaterializeDue(now time.Time) ProcessingReport {
	report := ProcessingReport{RanAt: now}
	if !e.running.CompareAndSwap(false, true) {
		logger.L.Warn("Recurrence tick skipped, previous tick still running")
		report.Skipped = true
		return report
	}
	defer e.running.Store(false)

	nowDate := now.UTC().Format(models.DateFormat)
	due, err := models.ListDueRules(e.db, nowDate)
	if err != nil {
		logger.L.Error("Failed to select due recurring rules", "error", err)
		return report
	}
	report.Due = len(due)
	if len(due) == 0 {
		return report
	}

	touched := make(map[int64]struct{})
	for _, rule := range due {
		if err := e.processRule(rule, now); err != nil {
			logger.L.Error("Recurring rule processing failed, will retry next tick",
				"ruleID", rule.ID, "userID", rule.UserID, "error", err)
			report.Failed++
			continue
		}
		report.Processed++
		touched[rule.UserID] = struct{}{}
	}

	for userID := range touched {
		e.notifier.Publish(userID)
	}

	logger.L.Info("Recurrence tick finished",
		"due", report.Due, "processed", report.Processed, "failed", report.Failed)
	return report
}

// processRule materializes one transaction and advances the cursor as a single
// database transaction. The cursor update is guarded by the cursor's current
// value, so a concurrent or repeated attempt for the same cycle rolls back the
// materialized transaction instead of duplicating it.
func (e *RecurrenceEngine) processRule(rule models.RecurrenceRule, now time.Time) error {
	cursor, err := models.ParseDate(rule.NextDueDate)
	if err != nil {
		return fmt.Errorf("rule %d has unparseable cursor: %w", rule.ID, err)
	}
	advanced := Advance(cursor, rule.Frequency).Format(models.DateFormat)
	nowDate := now.UTC().Format(models.DateFormat)

	dbTx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	_, err = dbTx.Exec(`INSERT INTO transactions (user_id, tx_id, description, amount, kind, category, occurred_at, currency)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.UserID, uuid.NewString(), rule.Description, rule.Amount.String(),
		string(rule.Kind), rule.Category, nowDate, rule.Currency)
	if err != nil {
		return fmt.Errorf("error materializing transaction for rule %d: %w", rule.ID, err)
	}

	res, err := dbTx.Exec(`UPDATE recurring_rules
	SET next_due_date = ?, last_processed = ?
	WHERE id = ? AND next_due_date = ? AND active = TRUE`,
		advanced, now.UTC().Format(time.RFC3339), rule.ID, rule.NextDueDate)
	if err != nil {
		return fmt.Errorf("error advancing cursor for rule %d: %w", rule.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("cursor for rule %d moved underneath this tick, rolling back", rule.ID)
	}

	return dbTx.Commit()
}

// RecurrenceScheduler drives the engine on a fixed cadence. The engine's own
// run guard keeps overlapping ticks out even if the interval is shorter than
// a tick's duration.
type RecurrenceScheduler struct {
	engine   *RecurrenceEngine
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewRecurrenceScheduler(engine *RecurrenceEngine, interval time.Duration) *RecurrenceScheduler {
	return &RecurrenceScheduler{
		engine:   engine,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *RecurrenceScheduler) Start() {
	logger.L.Info("Recurrence scheduler starting", "interval", s.interval.String())
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.engine.MaterializeDue(s.engine.now())
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *RecurrenceScheduler) Stop() {
	close(s.stop)
	<-s.done
	logger.L.Info("Recurrence scheduler stopped")
}
