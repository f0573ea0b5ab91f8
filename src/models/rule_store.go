package models

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

const ruleColumns = "id, user_id, description, amount, kind, category, frequency, start_date, end_date, next_due_date, last_processed, currency, active"

// InsertRule stores a new rule and sets its generated id. The cursor starts at
// the rule's start date so the first materialization lands on the first tick
// at or after it.
func InsertRule(db *sql.DB, rule *RecurrenceRule) error {
	if rule.NextDueDate == "" {
		rule.NextDueDate = rule.StartDate
	}
	rule.Active = true
	query := `INSERT INTO recurring_rules (user_id, description, amount, kind, category, frequency, start_date, end_date, next_due_date, last_processed, currency, active)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := db.Exec(query, rule.UserID, rule.Description, rule.Amount.String(),
		string(rule.Kind), rule.Category, string(rule.Frequency), rule.StartDate,
		rule.EndDate, rule.NextDueDate, rule.LastProcessed, rule.Currency, rule.Active)
	if err != nil {
		return fmt.Errorf("error inserting recurring rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rule.ID = id
	return nil
}

// GetRule fetches one rule owned by the user, active or not.
func GetRule(db *sql.DB, userID, id int64) (*RecurrenceRule, error) {
	row := db.QueryRow("SELECT "+ruleColumns+" FROM recurring_rules WHERE id = ? AND user_id = ?", id, userID)
	rule, err := scanRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: recurring rule %d", ErrNotFound, id)
		}
		return nil, err
	}
	return rule, nil
}

// ListRules returns the user's active rules, oldest first.
func ListRules(db *sql.DB, userID int64) ([]RecurrenceRule, error) {
	rows, err := db.Query("SELECT "+ruleColumns+" FROM recurring_rules WHERE user_id = ? AND active = TRUE ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("error querying recurring rules for user %d: %w", userID, err)
	}
	defer rows.Close()

	rules := []RecurrenceRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// ListDueRules selects every active rule whose cursor is at or before nowDate
// and whose end date, if set, has not passed. Spans all users; the engine is
// the single system-wide consumer.
func ListDueRules(db *sql.DB, nowDate string) ([]RecurrenceRule, error) {
	rows, err := db.Query("SELECT "+ruleColumns+` FROM recurring_rules
	WHERE active = TRUE AND next_due_date <= ? AND (end_date = '' OR end_date >= ?)
	ORDER BY id`, nowDate, nowDate)
	if err != nil {
		return nil, fmt.Errorf("error querying due recurring rules: %w", err)
	}
	defer rows.Close()

	rules := []RecurrenceRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// UpdateRule rewrites the user-editable fields. The cursor and processing
// marker belong to the engine and are left untouched here.
func UpdateRule(db *sql.DB, rule RecurrenceRule) error {
	res, err := db.Exec(`UPDATE recurring_rules
	SET description = ?, amount = ?, kind = ?, category = ?, frequency = ?, start_date = ?, end_date = ?, currency = ?
	WHERE id = ? AND user_id = ? AND active = TRUE`,
		rule.Description, rule.Amount.String(), string(rule.Kind), rule.Category,
		string(rule.Frequency), rule.StartDate, rule.EndDate, rule.Currency,
		rule.ID, rule.UserID)
	if err != nil {
		return fmt.Errorf("error updating recurring rule %d: %w", rule.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: recurring rule %d", ErrNotFound, rule.ID)
	}
	return nil
}

// DeactivateRule soft-deletes: the row stays for audit, the engine skips it.
func DeactivateRule(db *sql.DB, userID, id int64) error {
	res, err := db.Exec(`UPDATE recurring_rules SET active = FALSE WHERE id = ? AND user_id = ? AND active = TRUE`, id, userID)
	if err != nil {
		return fmt.Errorf("error deactivating recurring rule %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: recurring rule %d", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*RecurrenceRule, error) {
	var rule RecurrenceRule
	var amountStr, kind, frequency string
	err := row.Scan(&rule.ID, &rule.UserID, &rule.Description, &amountStr, &kind,
		&rule.Category, &frequency, &rule.StartDate, &rule.EndDate,
		&rule.NextDueDate, &rule.LastProcessed, &rule.Currency, &rule.Active)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("error parsing stored amount %q: %w", amountStr, err)
	}
	rule.Amount = amount
	rule.Kind = TransactionKind(kind)
	rule.Frequency = Frequency(frequency)
	return &rule, nil
}
