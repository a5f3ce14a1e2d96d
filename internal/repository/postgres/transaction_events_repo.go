package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velkovb/peerpay-backend/internal/models"
)

// transactionEventsRepo persists the append-only status trail of each ledger
// record.
type transactionEventsRepo struct{ pool *pgxpool.Pool }

func (r *transactionEventsRepo) Append(ctx context.Context, ev models.TransactionEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := q(ctx, r.pool).Exec(ctx,
		`INSERT INTO transaction_events(id, transaction_id, status, detail)
		 VALUES($1,$2,$3,$4)`,
		ev.ID, ev.TransactionID, ev.Status, ev.Detail,
	)
	return err
}

func (r *transactionEventsRepo) ListByTransaction(ctx context.Context, txID string) ([]models.TransactionEvent, error) {
	rows, err := q(ctx, r.pool).Query(ctx,
		`SELECT id, transaction_id, status, detail, created_at
		   FROM transaction_events
		  WHERE transaction_id=$1
		  ORDER BY created_at ASC`,
		txID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TransactionEvent
	for rows.Next() {
		var ev models.TransactionEvent
		if err := rows.Scan(&ev.ID, &ev.TransactionID, &ev.Status, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
