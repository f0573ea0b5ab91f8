package models

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const transactionColumns = "tx_id, description, amount, kind, category, occurred_at, currency"

// TransactionFilter narrows ListTransactions. Zero values mean "no filter";
// Page and Limit default to 1 and 50.
type TransactionFilter struct {
	Page      int
	Limit     int
	Currency  string
	Kind      string
	StartDate string
	EndDate   string
}

// InsertTransaction stores a single transaction for the user. A caller-assigned
// id that already exists for this user yields ErrDuplicateID.
func InsertTransaction(db *sql.DB, userID int64, tx Transaction) error {
	query := `INSERT INTO transactions (user_id, tx_id, description, amount, kind, category, occurred_at, currency)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.Exec(query, userID, tx.ID, tx.Description, tx.Amount.String(),
		string(tx.Kind), tx.Category, tx.OccurredAt, tx.Currency)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateID, tx.ID)
		}
		return err
	}
	return nil
}

// ReplaceTransactions swaps the user's entire transaction set in one database
// transaction. All-or-nothing: a failed insert leaves the previous set intact.
// Different users never contend; the delete and inserts touch one user_id.
func ReplaceTransactions(db *sql.DB, userID int64, txs []Transaction) error {
	dbTx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.Exec(`DELETE FROM transactions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("error clearing transactions for user %d: %w", userID, err)
	}

	stmt, err := dbTx.Prepare(`INSERT INTO transactions (user_id, tx_id, description, amount, kind, category, occurred_at, currency)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		_, err := stmt.Exec(userID, tx.ID, tx.Description, tx.Amount.String(),
			string(tx.Kind), tx.Category, tx.OccurredAt, tx.Currency)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
				return fmt.Errorf("%w: %s", ErrDuplicateID, tx.ID)
			}
			return fmt.Errorf("error inserting transaction %s: %w", tx.ID, err)
		}
	}

	return dbTx.Commit()
}

// DeleteTransaction removes one transaction by its caller-assigned id.
func DeleteTransaction(db *sql.DB, userID int64, id string) error {
	res, err := db.Exec(`DELETE FROM transactions WHERE user_id = ? AND tx_id = ?`, userID, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	return nil
}

// ListTransactions returns one page of the user's transactions plus the total
// count matching the filter, newest first.
func ListTransactions(db *sql.DB, userID int64, f TransactionFilter) ([]Transaction, int, error) {
	where := []string{"user_id = ?"}
	args := []interface{}{userID}

	if f.Currency != "" {
		where = append(where, "currency = ?")
		args = append(args, f.Currency)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.StartDate != "" {
		where = append(where, "occurred_at >= ?")
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		where = append(where, "occurred_at <= ?")
		args = append(args, f.EndDate)
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM transactions WHERE " + whereClause
	if err := db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error counting transactions for user %d: %w", userID, err)
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = 50
	}

	query := "SELECT " + transactionColumns + " FROM transactions WHERE " + whereClause +
		" ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("error querying transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	transactions := []Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

func scanTransaction(rows *sql.Rows) (Transaction, error) {
	var tx Transaction
	var amountStr, kind string
	if err := rows.Scan(&tx.ID, &tx.Description, &amountStr, &kind, &tx.Category, &tx.OccurredAt, &tx.Currency); err != nil {
		return Transaction{}, fmt.Errorf("error scanning transaction: %w", err)
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return Transaction{}, fmt.Errorf("error parsing stored amount %q: %w", amountStr, err)
	}
	tx.Amount = amount
	tx.Kind = TransactionKind(kind)
	return tx, nil
}
