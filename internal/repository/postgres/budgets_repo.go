package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velkovb/peerpay-backend/internal/models"
)

type budgetsRepo struct{ pool *pgxpool.Pool }

const budgetCols = `id, user_id, limit_amount, start_date, end_date, created_at`

func scanBudget(row pgx.Row, notFound error) (models.Budget, error) {
	var b models.Budget
	err := row.Scan(&b.ID, &b.UserID, &b.Limit, &b.StartDate, &b.EndDate, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Budget{}, notFound
	}
	return b, err
}

func (r *budgetsRepo) Create(ctx context.Context, b models.Budget) (models.Budget, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return scanBudget(q(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO budgets(id, user_id, limit_amount, start_date, end_date)
		 VALUES($1,$2,$3,$4,$5)
		 RETURNING `+budgetCols,
		b.ID, b.UserID, b.Limit, b.StartDate, b.EndDate,
	), models.ErrNotFound)
}

// Current picks the budget with the latest end date for the user.
func (r *budgetsRepo) Current(ctx context.Context, userID string) (models.Budget, error) {
	return scanBudget(q(ctx, r.pool).QueryRow(ctx,
		`SELECT `+budgetCols+` FROM budgets
		  WHERE user_id=$1
		  ORDER BY end_date DESC
		  LIMIT 1`,
		userID,
	), models.ErrNoBudget)
}

func (r *budgetsRepo) GetByID(ctx context.Context, id string) (models.Budget, error) {
	return scanBudget(q(ctx, r.pool).QueryRow(ctx,
		`SELECT `+budgetCols+` FROM budgets WHERE id=$1`, id), models.ErrNotFound)
}

func (r *budgetsRepo) Delete(ctx context.Context, id string) error {
	tag, err := q(ctx, r.pool).Exec(ctx, `DELETE FROM budgets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *budgetsRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := q(ctx, r.pool).QueryRow(ctx,
		`SELECT count(*) FROM budgets WHERE user_id=$1`, userID).Scan(&n)
	return n, err
}
