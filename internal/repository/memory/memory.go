// Package memory provides an in-memory implementation of the repository
// interfaces with the same semantics as the postgres package: per-row
// sufficiency guards, monotonic status updates and transactional rollback.
// It backs the service tests so they need no database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velkovb/peerpay-backend/internal/models"
	repo "github.com/velkovb/peerpay-backend/internal/repository"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]models.User
	balances map[string]models.Balance // userID|currency
	budgets  map[string]models.Budget
	txns     map[string]models.Transaction
	events   []models.TransactionEvent

	// CreditErr, when set, is consulted before applying a credit. Tests use it
	// to fail the second half of a transfer and exercise compensation.
	CreditErr func(userID string) error
}

type Repositories struct {
	Users             repo.Users
	Balances          repo.Balances
	Budgets           repo.Budgets
	Transactions      repo.Transactions
	TransactionEvents repo.TransactionEvents
	Transactor        repo.Transactor
	Store             *Store
}

func NewRepositories() Repositories {
	s := &Store{
		users:    make(map[string]models.User),
		balances: make(map[string]models.Balance),
		budgets:  make(map[string]models.Budget),
		txns:     make(map[string]models.Transaction),
	}
	return Repositories{
		Users:             usersView{s},
		Balances:          balancesView{s},
		Budgets:           budgetsView{s},
		Transactions:      transactionsView{s},
		TransactionEvents: eventsView{s},
		Transactor:        s,
		Store:             s,
	}
}

func balKey(userID string, c models.Currency) string { return userID + "|" + string(c) }

type txCtxKey struct{}

// WithinTx serializes the whole operation on the store mutex and restores a
// snapshot when fn fails, so a debit is never visible without its credit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txCtxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	users    map[string]models.User
	balances map[string]models.Balance
	budgets  map[string]models.Budget
	txns     map[string]models.Transaction
	events   []models.TransactionEvent
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		users:    cloneMap(s.users),
		balances: cloneMap(s.balances),
		budgets:  cloneMap(s.budgets),
		txns:     cloneMap(s.txns),
		events:   append([]models.TransactionEvent(nil), s.events...),
	}
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.balances = snap.balances
	s.budgets = snap.budgets
	s.txns = snap.txns
	s.events = snap.events
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// lock takes the store mutex unless the context already runs inside WithinTx.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txCtxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// ---- Users ----

type usersView struct{ s *Store }

func (v usersView) Create(ctx context.Context, username, email, nameTag, passwordHash, role string) (models.User, error) {
	defer v.s.lock(ctx)()
	u := models.User{
		ID: uuid.NewString(), Username: username, Email: email, NameTag: nameTag,
		PasswordHash: passwordHash, Role: role,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	v.s.users[u.ID] = u
	return u, nil
}

func (v usersView) GetByID(ctx context.Context, id string) (models.User, error) {
	defer v.s.lock(ctx)()
	if u, ok := v.s.users[id]; ok {
		return u, nil
	}
	return models.User{}, models.ErrNotFound
}

func (v usersView) GetByEmail(ctx context.Context, email string) (models.User, error) {
	defer v.s.lock(ctx)()
	for _, u := range v.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, models.ErrNotFound
}

func (v usersView) GetByTag(ctx context.Context, nameTag string) (models.User, error) {
	defer v.s.lock(ctx)()
	for _, u := range v.s.users {
		if u.NameTag == nameTag {
			return u, nil
		}
	}
	return models.User{}, models.ErrNotFound
}

func (v usersView) SetBudgetingEnabled(ctx context.Context, id string, enabled bool) error {
	defer v.s.lock(ctx)()
	u, ok := v.s.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.BudgetingEnabled = enabled
	u.UpdatedAt = time.Now()
	v.s.users[id] = u
	return nil
}

func (v usersView) List(ctx context.Context) ([]models.User, error) {
	defer v.s.lock(ctx)()
	out := make([]models.User, 0, len(v.s.users))
	for _, u := range v.s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---- Balances ----

type balancesView struct{ s *Store }

func (v balancesView) Get(ctx context.Context, userID string, currency models.Currency) (models.Balance, error) {
	defer v.s.lock(ctx)()
	return v.s.getBalance(userID, currency)
}

func (s *Store) getBalance(userID string, currency models.Currency) (models.Balance, error) {
	if b, ok := s.balances[balKey(userID, currency)]; ok {
		return b, nil
	}
	return models.Balance{}, models.ErrNotFound
}

func (v balancesView) GetOrCreate(ctx context.Context, userID string, currency models.Currency) (models.Balance, error) {
	defer v.s.lock(ctx)()
	if b, err := v.s.getBalance(userID, currency); err == nil {
		return b, nil
	}
	b := models.Balance{UserID: userID, Currency: currency, Amount: decimal.Zero, LastUpdatedAt: time.Now()}
	v.s.balances[balKey(userID, currency)] = b
	return b, nil
}

// GetForUpdate needs no extra locking here: WithinTx already holds the store
// mutex, which is strictly stronger than a row lock.
func (v balancesView) GetForUpdate(ctx context.Context, userID string, currency models.Currency) (models.Balance, error) {
	return v.Get(ctx, userID, currency)
}

func (v balancesView) Credit(ctx context.Context, userID string, currency models.Currency, amount decimal.Decimal) (models.Balance, error) {
	defer v.s.lock(ctx)()
	if v.s.CreditErr != nil {
		if err := v.s.CreditErr(userID); err != nil {
			return models.Balance{}, err
		}
	}
	b, err := v.s.getBalance(userID, currency)
	if err != nil {
		return models.Balance{}, err
	}
	b.Amount = b.Amount.Add(amount)
	b.LastUpdatedAt = time.Now()
	v.s.balances[balKey(userID, currency)] = b
	return b, nil
}

func (v balancesView) Debit(ctx context.Context, userID string, currency models.Currency, amount decimal.Decimal) (models.Balance, error) {
	defer v.s.lock(ctx)()
	b, err := v.s.getBalance(userID, currency)
	if err != nil {
		return models.Balance{}, err
	}
	if !b.Covers(amount) {
		return models.Balance{}, models.ErrInsufficientFunds
	}
	b.Amount = b.Amount.Sub(amount)
	b.LastUpdatedAt = time.Now()
	v.s.balances[balKey(userID, currency)] = b
	return b, nil
}

func (v balancesView) ListByUser(ctx context.Context, userID string) ([]models.Balance, error) {
	defer v.s.lock(ctx)()
	var out []models.Balance
	for _, b := range v.s.balances {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// ---- Budgets ----

type budgetsView struct{ s *Store }

func (v budgetsView) Create(ctx context.Context, b models.Budget) (models.Budget, error) {
	defer v.s.lock(ctx)()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = time.Now()
	v.s.budgets[b.ID] = b
	return b, nil
}

func (v budgetsView) Current(ctx context.Context, userID string) (models.Budget, error) {
	defer v.s.lock(ctx)()
	var best *models.Budget
	for _, b := range v.s.budgets {
		if b.UserID != userID {
			continue
		}
		if best == nil || b.EndDate.After(best.EndDate) {
			bb := b
			best = &bb
		}
	}
	if best == nil {
		return models.Budget{}, models.ErrNoBudget
	}
	return *best, nil
}

func (v budgetsView) GetByID(ctx context.Context, id string) (models.Budget, error) {
	defer v.s.lock(ctx)()
	if b, ok := v.s.budgets[id]; ok {
		return b, nil
	}
	return models.Budget{}, models.ErrNotFound
}

func (v budgetsView) Delete(ctx context.Context, id string) error {
	defer v.s.lock(ctx)()
	if _, ok := v.s.budgets[id]; !ok {
		return models.ErrNotFound
	}
	delete(v.s.budgets, id)
	return nil
}

func (v budgetsView) CountByUser(ctx context.Context, userID string) (int, error) {
	defer v.s.lock(ctx)()
	n := 0
	for _, b := range v.s.budgets {
		if b.UserID == userID {
			n++
		}
	}
	return n, nil
}

// ---- Transactions ----

type transactionsView struct{ s *Store }

func (v transactionsView) Create(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	defer v.s.lock(ctx)()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	tx.UpdatedAt = tx.CreatedAt
	v.s.txns[tx.ID] = tx
	return tx, nil
}

func (v transactionsView) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	defer v.s.lock(ctx)()
	if t, ok := v.s.txns[id]; ok {
		return t, nil
	}
	return models.Transaction{}, models.ErrNotFound
}

func (v transactionsView) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus) (models.Transaction, error) {
	defer v.s.lock(ctx)()
	t, ok := v.s.txns[id]
	if !ok {
		return models.Transaction{}, models.ErrNotFound
	}
	if !t.Status.CanTransitionTo(status) {
		return models.Transaction{}, models.ErrInconsistent
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	v.s.txns[id] = t
	return t, nil
}

func (v transactionsView) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	defer v.s.lock(ctx)()
	var out []models.Transaction
	for _, t := range v.s.txns {
		if involves(t, userID) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (v transactionsView) ListPendingRequests(ctx context.Context, userID string) ([]models.Transaction, error) {
	defer v.s.lock(ctx)()
	var out []models.Transaction
	for _, t := range v.s.txns {
		if t.Status == models.TxnPending && t.Type == models.TxnTransfer &&
			t.SenderID != nil && *t.SenderID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v transactionsView) SumExpenses(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	defer v.s.lock(ctx)()
	sum := decimal.Zero
	for _, t := range v.s.txns {
		if t.Status != models.TxnSuccessful || !t.IsExpense {
			continue
		}
		if t.SenderID == nil || *t.SenderID != userID {
			continue
		}
		if !inRange(t.CreatedAt, from, to) {
			continue
		}
		sum = sum.Add(t.Amount)
	}
	return sum, nil
}

func (v transactionsView) TotalsForRange(ctx context.Context, userID string, from, to time.Time) (added, spent decimal.Decimal, err error) {
	defer v.s.lock(ctx)()
	added, spent = decimal.Zero, decimal.Zero
	for _, t := range v.s.txns {
		if t.Status != models.TxnSuccessful || !inRange(t.CreatedAt, from, to) {
			continue
		}
		if t.RecipientID != nil && *t.RecipientID == userID {
			added = added.Add(t.Amount)
		}
		if t.SenderID != nil && *t.SenderID == userID && t.IsExpense {
			spent = spent.Add(t.Amount)
		}
	}
	return added, spent, nil
}

func inRange(ts, from, to time.Time) bool {
	return !ts.Before(from) && ts.Before(to)
}

func involves(t models.Transaction, userID string) bool {
	if t.SenderID != nil && *t.SenderID == userID {
		return true
	}
	return t.RecipientID != nil && *t.RecipientID == userID
}

// ---- Transaction events ----

type eventsView struct{ s *Store }

func (v eventsView) Append(ctx context.Context, ev models.TransactionEvent) error {
	defer v.s.lock(ctx)()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.CreatedAt = time.Now()
	v.s.events = append(v.s.events, ev)
	return nil
}

func (v eventsView) ListByTransaction(ctx context.Context, txID string) ([]models.TransactionEvent, error) {
	defer v.s.lock(ctx)()
	var out []models.TransactionEvent
	for _, ev := range v.s.events {
		if ev.TransactionID == txID {
			out = append(out, ev)
		}
	}
	return out, nil
}
