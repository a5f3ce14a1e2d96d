package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/velkovb/peerpay-backend/internal/models"
	"github.com/velkovb/peerpay-backend/internal/payments"
)

func TestReportService_TotalsPartition(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()
	svc := NewReportService(f.repos.Transactions)

	owner := f.user(t, "reporter")
	peer := f.user(t, "rpeer")

	at := day(2026, 1, 10)
	seed := func(tx models.Transaction) {
		t.Helper()
		_, err := f.repos.Transactions.Create(ctx, tx)
		require.NoError(t, err)
	}

	// spent: sent transfer and a withdrawal
	seed(models.Transaction{
		SenderID: &owner.ID, RecipientID: &peer.ID,
		Amount: decimal.RequireFromString("30"), Currency: models.CurrencyUSD,
		Type: models.TxnTransfer, Status: models.TxnSuccessful, IsExpense: true, CreatedAt: at,
	})
	seed(models.Transaction{
		SenderID: &owner.ID,
		Amount:   decimal.RequireFromString("20"), Currency: models.CurrencyUSD,
		Type: models.TxnWithdrawal, Status: models.TxnSuccessful, IsExpense: true, CreatedAt: at,
	})
	// added: received transfer and a deposit
	seed(models.Transaction{
		SenderID: &peer.ID, RecipientID: &owner.ID,
		Amount: decimal.RequireFromString("15"), Currency: models.CurrencyUSD,
		Type: models.TxnTransfer, Status: models.TxnSuccessful, IsExpense: true, CreatedAt: at,
	})
	seed(models.Transaction{
		RecipientID: &owner.ID,
		Amount:      decimal.RequireFromString("100"), Currency: models.CurrencyUSD,
		Type: models.TxnDeposit, Status: models.TxnSuccessful, CreatedAt: at,
	})
	// never counted: failed and pending records
	seed(models.Transaction{
		SenderID: &owner.ID, RecipientID: &peer.ID,
		Amount: decimal.RequireFromString("500"), Currency: models.CurrencyUSD,
		Type: models.TxnTransfer, Status: models.TxnFailed, IsExpense: true, CreatedAt: at,
	})
	seed(models.Transaction{
		SenderID: &owner.ID, RecipientID: &peer.ID,
		Amount: decimal.RequireFromString("500"), Currency: models.CurrencyUSD,
		Type: models.TxnTransfer, Status: models.TxnPending, CreatedAt: at,
	})

	totals, err := svc.TotalsForRange(ctx, owner.ID, day(2026, 1, 1), day(2026, 1, 31))
	require.NoError(t, err)
	assert.True(t, totals.TotalSpent.Equal(decimal.RequireFromString("50")), "spent = %s", totals.TotalSpent)
	assert.True(t, totals.TotalAdded.Equal(decimal.RequireFromString("115")), "added = %s", totals.TotalAdded)

	// reading is idempotent
	again, err := svc.TotalsForRange(ctx, owner.ID, day(2026, 1, 1), day(2026, 1, 31))
	require.NoError(t, err)
	assert.True(t, totals.TotalSpent.Equal(again.TotalSpent))
	assert.True(t, totals.TotalAdded.Equal(again.TotalAdded))
}

func TestReportService_EmptyLedger(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	svc := NewReportService(f.repos.Transactions)

	owner := f.user(t, "fresh")
	totals, err := svc.TotalsForRange(context.Background(), owner.ID, day(2026, 1, 1), day(2026, 1, 31))
	require.NoError(t, err)
	assert.True(t, totals.TotalSpent.IsZero())
	assert.True(t, totals.TotalAdded.IsZero())
}

func TestReportService_EndDateInclusive(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()
	svc := NewReportService(f.repos.Transactions)

	owner := f.user(t, "edge")
	peer := f.user(t, "epeer")

	end := day(2026, 2, 15)
	_, err := f.repos.Transactions.Create(ctx, models.Transaction{
		SenderID: &owner.ID, RecipientID: &peer.ID,
		Amount: decimal.RequireFromString("9"), Currency: models.CurrencyUSD,
		Type: models.TxnTransfer, Status: models.TxnSuccessful, IsExpense: true,
		CreatedAt: end.Add(23 * time.Hour),
	})
	require.NoError(t, err)

	totals, err := svc.TotalsForRange(ctx, owner.ID, day(2026, 2, 1), end)
	require.NoError(t, err)
	assert.True(t, totals.TotalSpent.Equal(decimal.RequireFromString("9")), "spend late on the end date must count")
}

type mockTransactions struct{ mock.Mock }

func (m *mockTransactions) Create(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(models.Transaction), args.Error(1)
}

func (m *mockTransactions) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Transaction), args.Error(1)
}

func (m *mockTransactions) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus) (models.Transaction, error) {
	args := m.Called(ctx, id, status)
	return args.Get(0).(models.Transaction), args.Error(1)
}

func (m *mockTransactions) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *mockTransactions) ListPendingRequests(ctx context.Context, userID string) ([]models.Transaction, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *mockTransactions) SumExpenses(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, userID, from, to)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockTransactions) TotalsForRange(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	args := m.Called(ctx, userID, from, to)
	return args.Get(0).(decimal.Decimal), args.Get(1).(decimal.Decimal), args.Error(2)
}

func TestReportService_WidensEndBoundary(t *testing.T) {
	m := &mockTransactions{}
	svc := NewReportService(m)

	start, end := day(2026, 3, 1), day(2026, 3, 31)
	m.On("TotalsForRange", mock.Anything, "u1", start, end.AddDate(0, 0, 1)).
		Return(decimal.Zero, decimal.Zero, nil)

	_, err := svc.TotalsForRange(context.Background(), "u1", start, end)
	require.NoError(t, err)
	m.AssertExpectations(t)
}
