package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/velkovb/peerpay-backend/internal/repository"
)

type Repositories struct {
	Users             repo.Users
	Balances          repo.Balances
	Budgets           repo.Budgets
	Transactions      repo.Transactions
	TransactionEvents repo.TransactionEvents
	Transactor        repo.Transactor
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Users:             &usersRepo{pool},
		Balances:          &balancesRepo{pool},
		Budgets:           &budgetsRepo{pool},
		Transactions:      &transactionsRepo{pool},
		TransactionEvents: &transactionEventsRepo{pool},
		Transactor:        NewTransactor(pool),
	}
}
