package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velkovb/peerpay-backend/internal/models"
)

type usersRepo struct{ pool *pgxpool.Pool }

const userCols = `id, username, email, name_tag, password_hash, role, budgeting_enabled, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.NameTag, &u.PasswordHash,
		&u.Role, &u.BudgetingEnabled, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, models.ErrNotFound
	}
	return u, err
}

func (r *usersRepo) Create(ctx context.Context, username, email, nameTag, passwordHash, role string) (models.User, error) {
	id := uuid.NewString()
	_, err := q(ctx, r.pool).Exec(ctx,
		`INSERT INTO users(id, username, email, name_tag, password_hash, role)
		 VALUES($1,$2,$3,$4,$5,$6)`,
		id, username, email, nameTag, passwordHash, role,
	)
	if err != nil {
		return models.User{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	return scanUser(q(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id=$1`, id))
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(q(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE email=$1`, email))
}

func (r *usersRepo) GetByTag(ctx context.Context, nameTag string) (models.User, error) {
	return scanUser(q(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE name_tag=$1`, nameTag))
}

func (r *usersRepo) SetBudgetingEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := q(ctx, r.pool).Exec(ctx,
		`UPDATE users SET budgeting_enabled=$2, updated_at=now() WHERE id=$1`,
		id, enabled,
	)
	return err
}

func (r *usersRepo) List(ctx context.Context) ([]models.User, error) {
	rows, err := q(ctx, r.pool).Query(ctx,
		`SELECT `+userCols+` FROM users ORDER BY created_at DESC LIMIT 100`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.NameTag, &u.PasswordHash,
			&u.Role, &u.BudgetingEnabled, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
