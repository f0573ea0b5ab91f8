package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the wire and storage format for all calendar dates.
const DateFormat = "2006-01-02"

var (
	ErrValidation  = errors.New("validation failed")
	ErrDuplicateID = errors.New("duplicate transaction id")
	ErrNotFound    = errors.New("record not found")
)

type TransactionKind string

const (
	KindIncome  TransactionKind = "income"
	KindExpense TransactionKind = "expense"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Transaction is immutable once created. Edits at the application level are
// delete+recreate; only the Recurrence engine and the REST handlers insert.
type Transaction struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	Category    string          `json:"category"`
	OccurredAt  string          `json:"occurredAt"` // DateFormat
	Currency    string          `json:"currency"`
}

// RecurrenceRule describes a repeating obligation. NextDueDate is the cursor:
// the only field the engine mutates, always forward by exactly one frequency
// step per processed cycle. Active=false is a soft delete; rows are never
// physically removed so the materialization history stays auditable.
type RecurrenceRule struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"-"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          TransactionKind `json:"kind"`
	Category      string          `json:"category"`
	Frequency     Frequency       `json:"frequency"`
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate,omitempty"`
	NextDueDate   string          `json:"nextDueDate"`
	LastProcessed string          `json:"lastProcessed,omitempty"`
	Currency      string          `json:"currency"`
	Active        bool            `json:"active"`
}

func (k TransactionKind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// ParseDate parses a DateFormat string into a UTC time.
func ParseDate(dateStr string) (time.Time, error) {
	t, err := time.Parse(DateFormat, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, expected %s", ErrValidation, dateStr, DateFormat)
	}
	return t, nil
}

// Validate checks the fields a caller controls. The id is caller-assigned and
// must be unique per user; uniqueness itself is enforced by the store.
func (t Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrValidation)
	}
	if t.Description == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrValidation, t.Amount)
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: kind must be income or expense, got %q", ErrValidation, t.Kind)
	}
	if t.Category == "" {
		return fmt.Errorf("%w: category is required", ErrValidation)
	}
	if _, err := ParseDate(t.OccurredAt); err != nil {
		return err
	}
	if !IsSupportedCurrency(t.Currency) {
		return fmt.Errorf("%w: unsupported currency %q", ErrValidation, t.Currency)
	}
	return nil
}

func (r RecurrenceRule) Validate() error {
	if r.Description == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrValidation, r.Amount)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: kind must be income or expense, got %q", ErrValidation, r.Kind)
	}
	if r.Category == "" {
		return fmt.Errorf("%w: category is required", ErrValidation)
	}
	if !r.Frequency.Valid() {
		return fmt.Errorf("%w: frequency must be daily, weekly, monthly or yearly, got %q", ErrValidation, r.Frequency)
	}
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return err
	}
	if r.EndDate != "" {
		end, err := ParseDate(r.EndDate)
		if err != nil {
			return err
		}
		if end.Before(start) {
			return fmt.Errorf("%w: endDate %s precedes startDate %s", ErrValidation, r.EndDate, r.StartDate)
		}
	}
	if !IsSupportedCurrency(r.Currency) {
		return fmt.Errorf("%w: unsupported currency %q", ErrValidation, r.Currency)
	}
	return nil
}
