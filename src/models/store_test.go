package models

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fintrack/backend/src/database"
)

func newStoreDB(t *testing.T) *sql.DB {
	t.Helper()
	database.InitDB(filepath.Join(t.TempDir(), "store_test.db"))
	return database.DB
}

func testTx(id string, occurredAt string) Transaction {
	return Transaction{
		ID:          id,
		Description: "Coffee",
		Amount:      decimal.NewFromFloat(3.75),
		Kind:        KindExpense,
		Category:    "Food",
		OccurredAt:  occurredAt,
		Currency:    "USD",
	}
}

func TestInsertTransaction_DuplicateID(t *testing.T) {
	db := newStoreDB(t)
	require.NoError(t, InsertTransaction(db, 1, testTx("dup", "2024-01-01")))

	err := InsertTransaction(db, 1, testTx("dup", "2024-01-02"))
	assert.True(t, errors.Is(err, ErrDuplicateID), "expected ErrDuplicateID, got %v", err)

	// The same id under another user is fine; uniqueness is per user.
	assert.NoError(t, InsertTransaction(db, 2, testTx("dup", "2024-01-01")))
}

func TestReplaceTransactions_SwapsFullSet(t *testing.T) {
	db := newStoreDB(t)
	require.NoError(t, InsertTransaction(db, 1, testTx("old-1", "2024-01-01")))
	require.NoError(t, InsertTransaction(db, 1, testTx("old-2", "2024-01-02")))
	require.NoError(t, InsertTransaction(db, 2, testTx("other", "2024-01-03")))

	err := ReplaceTransactions(db, 1, []Transaction{
		testTx("new-1", "2024-02-01"),
		testTx("new-2", "2024-02-02"),
		testTx("new-3", "2024-02-03"),
	})
	require.NoError(t, err)

	txs, total, err := ListTransactions(db, 1, TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	assert.ElementsMatch(t, []string{"new-1", "new-2", "new-3"}, ids)

	// User 2's set is untouched.
	_, total, err = ListTransactions(db, 2, TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestReplaceTransactions_AllOrNothing(t *testing.T) {
	db := newStoreDB(t)
	require.NoError(t, InsertTransaction(db, 1, testTx("keep-1", "2024-01-01")))

	// A duplicate id inside the incoming set fails the whole replace.
	err := ReplaceTransactions(db, 1, []Transaction{
		testTx("a", "2024-02-01"),
		testTx("a", "2024-02-02"),
	})
	assert.True(t, errors.Is(err, ErrDuplicateID), "expected ErrDuplicateID, got %v", err)

	txs, total, err := ListTransactions(db, 1, TransactionFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "keep-1", txs[0].ID)
}

func TestReplaceTransactions_EmptySetClears(t *testing.T) {
	db := newStoreDB(t)
	require.NoError(t, InsertTransaction(db, 1, testTx("gone", "2024-01-01")))

	require.NoError(t, ReplaceTransactions(db, 1, nil))

	_, total, err := ListTransactions(db, 1, TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestDeleteTransaction(t *testing.T) {
	db := newStoreDB(t)
	require.NoError(t, InsertTransaction(db, 1, testTx("tx-1", "2024-01-01")))

	require.NoError(t, DeleteTransaction(db, 1, "tx-1"))

	err := DeleteTransaction(db, 1, "tx-1")
	assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)

	// Another user cannot delete someone else's transaction.
	require.NoError(t, InsertTransaction(db, 1, testTx("tx-2", "2024-01-01")))
	err = DeleteTransaction(db, 2, "tx-2")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListTransactions_FiltersAndPagination(t *testing.T) {
	db := newStoreDB(t)
	for i := 1; i <= 5; i++ {
		tx := testTx(fmt.Sprintf("tx-%d", i), fmt.Sprintf("2024-01-0%d", i))
		if i%2 == 0 {
			tx.Kind = KindIncome
			tx.Currency = "EUR"
		}
		require.NoError(t, InsertTransaction(db, 1, tx))
	}

	// Newest first by default.
	txs, total, err := ListTransactions(db, 1, TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, "tx-5", txs[0].ID)

	// Kind filter.
	txs, total, err = ListTransactions(db, 1, TransactionFilter{Kind: "income"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, tx := range txs {
		assert.Equal(t, KindIncome, tx.Kind)
	}

	// Currency filter.
	_, total, err = ListTransactions(db, 1, TransactionFilter{Currency: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// Date range is inclusive on both ends.
	_, total, err = ListTransactions(db, 1, TransactionFilter{StartDate: "2024-01-02", EndDate: "2024-01-04"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	// Pagination: total reflects the filter, pages slice the ordered set.
	txs, total, err = ListTransactions(db, 1, TransactionFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, txs, 2)
	assert.Equal(t, "tx-3", txs[0].ID)
	assert.Equal(t, "tx-2", txs[1].ID)
}

func TestListTransactions_AmountRoundTripsExactly(t *testing.T) {
	db := newStoreDB(t)
	tx := testTx("precise", "2024-01-01")
	tx.Amount = decimal.RequireFromString("19.99")
	require.NoError(t, InsertTransaction(db, 1, tx))

	txs, _, err := ListTransactions(db, 1, TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "19.99", txs[0].Amount.String())
}

func TestRuleStore_InsertGetList(t *testing.T) {
	db := newStoreDB(t)
	rule := &RecurrenceRule{
		UserID:      1,
		Description: "Gym",
		Amount:      decimal.NewFromInt(30),
		Kind:        KindExpense,
		Category:    "Health",
		Frequency:   FrequencyMonthly,
		StartDate:   "2024-01-15",
		Currency:    "USD",
	}
	require.NoError(t, InsertRule(db, rule))
	assert.NotZero(t, rule.ID)
	assert.Equal(t, "2024-01-15", rule.NextDueDate, "cursor starts at the start date")
	assert.True(t, rule.Active)

	got, err := GetRule(db, 1, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gym", got.Description)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, FrequencyMonthly, got.Frequency)

	_, err = GetRule(db, 2, rule.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "rules are scoped per user")

	rules, err := ListRules(db, 1)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestRuleStore_DeactivateHidesFromListing(t *testing.T) {
	db := newStoreDB(t)
	rule := &RecurrenceRule{
		UserID: 1, Description: "Sub", Amount: decimal.NewFromInt(10),
		Kind: KindExpense, Category: "Media", Frequency: FrequencyMonthly,
		StartDate: "2024-01-01", Currency: "USD",
	}
	require.NoError(t, InsertRule(db, rule))
	require.NoError(t, DeactivateRule(db, 1, rule.ID))

	rules, err := ListRules(db, 1)
	require.NoError(t, err)
	assert.Empty(t, rules)

	// The row survives as a soft-deleted record.
	got, err := GetRule(db, 1, rule.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// Deactivating twice reports not found.
	err = DeactivateRule(db, 1, rule.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRuleStore_UpdateLeavesCursorAlone(t *testing.T) {
	db := newStoreDB(t)
	rule := &RecurrenceRule{
		UserID: 1, Description: "Rent", Amount: decimal.NewFromInt(900),
		Kind: KindExpense, Category: "Housing", Frequency: FrequencyMonthly,
		StartDate: "2024-01-01", Currency: "USD",
	}
	require.NoError(t, InsertRule(db, rule))
	_, err := db.Exec("UPDATE recurring_rules SET next_due_date = '2024-03-01', last_processed = '2024-02-01' WHERE id = ?", rule.ID)
	require.NoError(t, err)

	rule.Description = "Rent (raised)"
	rule.Amount = decimal.NewFromInt(950)
	require.NoError(t, UpdateRule(db, *rule))

	got, err := GetRule(db, 1, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rent (raised)", got.Description)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(950)))
	assert.Equal(t, "2024-03-01", got.NextDueDate)
	assert.Equal(t, "2024-02-01", got.LastProcessed)
}

func TestRuleStore_UpdateInactiveRuleNotFound(t *testing.T) {
	db := newStoreDB(t)
	rule := &RecurrenceRule{
		UserID: 1, Description: "Old", Amount: decimal.NewFromInt(5),
		Kind: KindExpense, Category: "Misc", Frequency: FrequencyDaily,
		StartDate: "2024-01-01", Currency: "USD",
	}
	require.NoError(t, InsertRule(db, rule))
	require.NoError(t, DeactivateRule(db, 1, rule.ID))

	err := UpdateRule(db, *rule)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListDueRules(t *testing.T) {
	db := newStoreDB(t)
	insert := func(desc, nextDue, endDate string, active bool) {
		rule := &RecurrenceRule{
			UserID: 1, Description: desc, Amount: decimal.NewFromInt(1),
			Kind: KindExpense, Category: "Misc", Frequency: FrequencyDaily,
			StartDate: "2024-01-01", EndDate: endDate, NextDueDate: nextDue, Currency: "USD",
		}
		require.NoError(t, InsertRule(db, rule))
		if !active {
			require.NoError(t, DeactivateRule(db, 1, rule.ID))
		}
	}

	insert("due today", "2024-06-15", "", true)
	insert("overdue", "2024-06-01", "", true)
	insert("future", "2024-07-01", "", true)
	insert("ended", "2024-06-01", "2024-06-10", true)
	insert("inactive", "2024-06-01", "", false)

	due, err := ListDueRules(db, "2024-06-15")
	require.NoError(t, err)
	descs := make([]string, 0, len(due))
	for _, r := range due {
		descs = append(descs, r.Description)
	}
	assert.ElementsMatch(t, []string{"due today", "overdue"}, descs)
}
