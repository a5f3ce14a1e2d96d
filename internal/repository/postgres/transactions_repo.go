package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velkovb/peerpay-backend/internal/models"
)

type transactionsRepo struct{ pool *pgxpool.Pool }

const txnCols = `id, sender_id, recipient_id, amount, currency, type, status, is_expense, description, created_at, updated_at`

func scanTxn(row pgx.Row) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.SenderID, &t.RecipientID, &t.Amount, &t.Currency,
		&t.Type, &t.Status, &t.IsExpense, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, models.ErrNotFound
	}
	return t, err
}

func (r *transactionsRepo) Create(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	return scanTxn(q(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO transactions(id, sender_id, recipient_id, amount, currency, type, status, is_expense, description)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING `+txnCols,
		tx.ID, tx.SenderID, tx.RecipientID, tx.Amount, tx.Currency, tx.Type, tx.Status, tx.IsExpense, tx.Description,
	))
}

func (r *transactionsRepo) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	return scanTxn(q(ctx, r.pool).QueryRow(ctx,
		`SELECT `+txnCols+` FROM transactions WHERE id=$1`, id))
}

// UpdateStatus refuses to rewrite terminal rows; the WHERE clause keeps the
// lifecycle monotonic even under races.
func (r *transactionsRepo) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus) (models.Transaction, error) {
	t, err := scanTxn(q(ctx, r.pool).QueryRow(ctx,
		`UPDATE transactions
		    SET status=$2, updated_at=now()
		  WHERE id=$1 AND status NOT IN ('SUCCESSFUL','FAILED')
		  RETURNING `+txnCols,
		id, status,
	))
	if errors.Is(err, models.ErrNotFound) {
		return models.Transaction{}, models.ErrInconsistent
	}
	return t, err
}

func (r *transactionsRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := q(ctx, r.pool).Query(ctx,
		`SELECT `+txnCols+` FROM transactions
		  WHERE sender_id=$1 OR recipient_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return collectTxns(rows)
}

func (r *transactionsRepo) ListPendingRequests(ctx context.Context, userID string) ([]models.Transaction, error) {
	rows, err := q(ctx, r.pool).Query(ctx,
		`SELECT `+txnCols+` FROM transactions
		  WHERE sender_id=$1 AND status='PENDING' AND type='TRANSFER'
		  ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectTxns(rows)
}

func (r *transactionsRepo) SumExpenses(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q(ctx, r.pool).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions
		  WHERE sender_id=$1 AND is_expense AND status='SUCCESSFUL'
		    AND created_at >= $2 AND created_at < $3`,
		userID, from, to,
	).Scan(&sum)
	return sum, err
}

func (r *transactionsRepo) TotalsForRange(ctx context.Context, userID string, from, to time.Time) (added, spent decimal.Decimal, err error) {
	err = q(ctx, r.pool).QueryRow(ctx,
		`SELECT
		    COALESCE(SUM(amount) FILTER (WHERE recipient_id=$1), 0),
		    COALESCE(SUM(amount) FILTER (WHERE sender_id=$1 AND is_expense), 0)
		   FROM transactions
		  WHERE (sender_id=$1 OR recipient_id=$1) AND status='SUCCESSFUL'
		    AND created_at >= $2 AND created_at < $3`,
		userID, from, to,
	).Scan(&added, &spent)
	return added, spent, err
}

func collectTxns(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.SenderID, &t.RecipientID, &t.Amount, &t.Currency,
			&t.Type, &t.Status, &t.IsExpense, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
