package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"household-expenses/internal/models"
	"household-expenses/internal/storage"
)

const expenseColumns = "id, category, subcategory, mode, amount, date, comments, created_at, updated_at"

// CreateExpense inserts a new expense into the database.
func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	e.ID = newID()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO expenses ("+expenseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.Category, e.Subcategory, e.Mode, e.Amount, millis(e.Date), e.Comments,
		millis(e.CreatedAt), millis(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	e.Date = fromMillis(millis(e.Date))
	return nil
}

// ListExpenses retrieves expenses matching f, ordered by date descending.
func (db *DB) ListExpenses(ctx context.Context, f models.ExpenseFilter) ([]models.Expense, error) {
	var (
		where []string
		args  []any
	)
	if f.Start != nil {
		where = append(where, "date >= ?")
		args = append(args, millis(*f.Start))
	}
	if f.End != nil {
		where = append(where, "date <= ?")
		args = append(args, millis(*f.End))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Subcategory != "" {
		where = append(where, "subcategory = ?")
		args = append(args, f.Subcategory)
	}
	if f.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, f.Mode)
	}

	query := "SELECT " + expenseColumns + " FROM expenses"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		var (
			e                          models.Expense
			date, createdAt, updatedAt int64
		)
		if err := rows.Scan(&e.ID, &e.Category, &e.Subcategory, &e.Mode, &e.Amount, &date, &e.Comments, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Date = fromMillis(date)
		e.CreatedAt = fromMillis(createdAt)
		e.UpdatedAt = fromMillis(updatedAt)
		expenses = append(expenses, e)
	}

	return expenses, rows.Err()
}

// SumExpensesSince totals the amount of every expense dated at or after since.
func (db *DB) SumExpensesSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := db.conn.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE date >= ?",
		millis(since),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum expenses: %w", err)
	}
	return total, nil
}

// DeleteExpense removes the expense with the given id.
func (db *DB) DeleteExpense(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ResetExpenseData deletes all expenses and the config row in one transaction.
func (db *DB) ResetExpenseData(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM expenses"); err != nil {
		return fmt.Errorf("delete expenses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM config"); err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}
