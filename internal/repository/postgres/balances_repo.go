package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velkovb/peerpay-backend/internal/models"
)

type balancesRepo struct{ pool *pgxpool.Pool }

const balanceCols = `user_id, currency, amount, last_updated_at`

func scanBalance(row pgx.Row) (models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.UserID, &b.Currency, &b.Amount, &b.LastUpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Balance{}, models.ErrNotFound
	}
	return b, err
}

func (r *balancesRepo) Get(ctx context.Context, userID string, currency models.Currency) (models.Balance, error) {
	return scanBalance(q(ctx, r.pool).QueryRow(ctx,
		`SELECT `+balanceCols+` FROM balances WHERE user_id=$1 AND currency=$2`,
		userID, currency,
	))
}

func (r *balancesRepo) GetOrCreate(ctx context.Context, userID string, currency models.Currency) (models.Balance, error) {
	if b, err := r.Get(ctx, userID, currency); err == nil {
		return b, nil
	}
	_, err := q(ctx, r.pool).Exec(ctx,
		`INSERT INTO balances(user_id, currency, amount, last_updated_at)
		 VALUES($1, $2, 0, now())
		 ON CONFLICT (user_id, currency) DO NOTHING`,
		userID, currency,
	)
	if err != nil {
		return models.Balance{}, err
	}
	return r.Get(ctx, userID, currency)
}

func (r *balancesRepo) GetForUpdate(ctx context.Context, userID string, currency models.Currency) (models.Balance, error) {
	return scanBalance(q(ctx, r.pool).QueryRow(ctx,
		`SELECT `+balanceCols+` FROM balances WHERE user_id=$1 AND currency=$2 FOR UPDATE`,
		userID, currency,
	))
}

func (r *balancesRepo) Credit(ctx context.Context, userID string, currency models.Currency, amount decimal.Decimal) (models.Balance, error) {
	return scanBalance(q(ctx, r.pool).QueryRow(ctx,
		`UPDATE balances
		    SET amount = amount + $3,
		        last_updated_at = now()
		  WHERE user_id=$1 AND currency=$2
		  RETURNING `+balanceCols,
		userID, currency, amount,
	))
}

// Debit guards against the row going negative in the UPDATE itself; no
// matching row means either a missing balance or insufficient funds, and the
// follow-up read disambiguates.
func (r *balancesRepo) Debit(ctx context.Context, userID string, currency models.Currency, amount decimal.Decimal) (models.Balance, error) {
	b, err := scanBalance(q(ctx, r.pool).QueryRow(ctx,
		`UPDATE balances
		    SET amount = amount - $3,
		        last_updated_at = now()
		  WHERE user_id=$1 AND currency=$2 AND amount >= $3
		  RETURNING `+balanceCols,
		userID, currency, amount,
	))
	if errors.Is(err, models.ErrNotFound) {
		if _, gerr := r.Get(ctx, userID, currency); gerr != nil {
			return models.Balance{}, gerr
		}
		return models.Balance{}, models.ErrInsufficientFunds
	}
	return b, err
}

func (r *balancesRepo) ListByUser(ctx context.Context, userID string) ([]models.Balance, error) {
	rows, err := q(ctx, r.pool).Query(ctx,
		`SELECT `+balanceCols+` FROM balances WHERE user_id=$1 ORDER BY currency`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Balance
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(&b.UserID, &b.Currency, &b.Amount, &b.LastUpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
