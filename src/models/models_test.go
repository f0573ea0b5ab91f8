package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTransaction() Transaction {
	return Transaction{
		ID:          "tx-1",
		Description: "Groceries",
		Amount:      decimal.NewFromFloat(42.50),
		Kind:        KindExpense,
		Category:    "Food",
		OccurredAt:  "2024-03-10",
		Currency:    "USD",
	}
}

func validRule() RecurrenceRule {
	return RecurrenceRule{
		Description: "Salary",
		Amount:      decimal.NewFromInt(3000),
		Kind:        KindIncome,
		Category:    "Work",
		Frequency:   FrequencyMonthly,
		StartDate:   "2024-01-01",
		NextDueDate: "2024-01-01",
		Currency:    "EUR",
	}
}

func TestTransactionValidate(t *testing.T) {
	require.NoError(t, validTransaction().Validate())

	cases := []struct {
		name   string
		mutate func(*Transaction)
	}{
		{"missing id", func(tx *Transaction) { tx.ID = "" }},
		{"missing description", func(tx *Transaction) { tx.Description = "" }},
		{"zero amount", func(tx *Transaction) { tx.Amount = decimal.Zero }},
		{"negative amount", func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-5) }},
		{"bad kind", func(tx *Transaction) { tx.Kind = "transfer" }},
		{"missing category", func(tx *Transaction) { tx.Category = "" }},
		{"bad date", func(tx *Transaction) { tx.OccurredAt = "10/03/2024" }},
		{"missing date", func(tx *Transaction) { tx.OccurredAt = "" }},
		{"unsupported currency", func(tx *Transaction) { tx.Currency = "XXX" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := validTransaction()
			tc.mutate(&tx)
			err := tx.Validate()
			assert.True(t, errors.Is(err, ErrValidation), "expected validation error, got %v", err)
		})
	}
}

func TestRecurrenceRuleValidate(t *testing.T) {
	require.NoError(t, validRule().Validate())

	cases := []struct {
		name   string
		mutate func(*RecurrenceRule)
	}{
		{"missing description", func(r *RecurrenceRule) { r.Description = "" }},
		{"zero amount", func(r *RecurrenceRule) { r.Amount = decimal.Zero }},
		{"bad kind", func(r *RecurrenceRule) { r.Kind = "refund" }},
		{"missing category", func(r *RecurrenceRule) { r.Category = "" }},
		{"bad frequency", func(r *RecurrenceRule) { r.Frequency = "fortnightly" }},
		{"bad start date", func(r *RecurrenceRule) { r.StartDate = "January 1st" }},
		{"end before start", func(r *RecurrenceRule) { r.EndDate = "2023-12-31" }},
		{"unsupported currency", func(r *RecurrenceRule) { r.Currency = "DOGE" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := validRule()
			tc.mutate(&rule)
			err := rule.Validate()
			assert.True(t, errors.Is(err, ErrValidation), "expected validation error, got %v", err)
		})
	}
}

func TestRuleEndDateMayEqualStartDate(t *testing.T) {
	rule := validRule()
	rule.EndDate = rule.StartDate
	assert.NoError(t, rule.Validate())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.Format(DateFormat))

	_, err = ParseDate("2024-2-9")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestIsSupportedCurrency(t *testing.T) {
	assert.True(t, IsSupportedCurrency("USD"))
	assert.True(t, IsSupportedCurrency("BRL"))
	assert.False(t, IsSupportedCurrency("usd"))
	assert.False(t, IsSupportedCurrency(""))
}
