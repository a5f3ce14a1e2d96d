package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velkovb/peerpay-backend/internal/models"
	"github.com/velkovb/peerpay-backend/internal/payments"
	"github.com/velkovb/peerpay-backend/internal/repository/memory"
	"github.com/velkovb/peerpay-backend/internal/worker"
)

type fixture struct {
	repos memory.Repositories
	wp    *worker.Pool
	svc   *TransferService
}

func newFixture(t *testing.T, authorizer payments.Authorizer) *fixture {
	t.Helper()
	repos := memory.NewRepositories()
	wp := worker.NewPool(2)
	t.Cleanup(wp.Stop)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewTransferService(
		repos.Users, repos.Balances, repos.Budgets,
		repos.Transactions, repos.TransactionEvents, repos.Transactor,
		authorizer, wp, log,
		TransferConfig{DefaultCurrency: models.CurrencyBGN, AuthTimeout: time.Second},
	)
	return &fixture{repos: repos, wp: wp, svc: svc}
}

func (f *fixture) user(t *testing.T, tag string) models.User {
	t.Helper()
	u, err := f.repos.Users.Create(context.Background(), "user-"+tag, tag+"@example.com", tag, "hash", "user")
	require.NoError(t, err)
	return u
}

func (f *fixture) fund(t *testing.T, userID string, currency models.Currency, amount string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.repos.Balances.GetOrCreate(ctx, userID, currency)
	require.NoError(t, err)
	_, err = f.repos.Balances.Credit(ctx, userID, currency, decimal.RequireFromString(amount))
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userID string, currency models.Currency) decimal.Decimal {
	t.Helper()
	b, err := f.repos.Balances.Get(context.Background(), userID, currency)
	require.NoError(t, err)
	return b.Amount
}

func (f *fixture) records(t *testing.T, userID string) []models.Transaction {
	t.Helper()
	out, err := f.repos.Transactions.ListByUser(context.Background(), userID, 100, 0)
	require.NoError(t, err)
	return out
}

func TestSendFunds_EndToEnd(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	sender := f.user(t, "ivan")
	recipient := f.user(t, "maria")
	f.fund(t, sender.ID, models.CurrencyUSD, "100")
	f.fund(t, recipient.ID, models.CurrencyUSD, "10")

	tx, err := f.svc.SendFunds(ctx, sender.ID, "maria", decimal.RequireFromString("40"), models.CurrencyUSD, "rent")
	require.NoError(t, err)

	assert.Equal(t, models.TxnSuccessful, tx.Status)
	assert.Equal(t, models.TxnTransfer, tx.Type)
	assert.True(t, tx.IsExpense)
	require.NotNil(t, tx.SenderID)
	require.NotNil(t, tx.RecipientID)
	assert.Equal(t, sender.ID, *tx.SenderID)
	assert.Equal(t, recipient.ID, *tx.RecipientID)

	assert.True(t, f.balance(t, sender.ID, models.CurrencyUSD).Equal(decimal.RequireFromString("60")))
	assert.True(t, f.balance(t, recipient.ID, models.CurrencyUSD).Equal(decimal.RequireFromString("50")))

	// exactly one SUCCESSFUL record survives, none stuck in PROCESSING
	recs := f.records(t, sender.ID)
	require.Len(t, recs, 1)
	assert.Equal(t, models.TxnSuccessful, recs[0].Status)

	// the status trail keeps both transitions
	evs, err := f.svc.History(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, models.TxnProcessing, evs[0].Status)
	assert.Equal(t, models.TxnSuccessful, evs[1].Status)
}

func TestSendFunds_Conservation(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	a := f.user(t, "alpha")
	b := f.user(t, "beta")
	f.fund(t, a.ID, models.CurrencyEUR, "73.55")
	f.fund(t, b.ID, models.CurrencyEUR, "21.45")
	before := f.balance(t, a.ID, models.CurrencyEUR).Add(f.balance(t, b.ID, models.CurrencyEUR))

	for _, amt := range []string{"0.01", "12.34", "5"} {
		_, err := f.svc.SendFunds(ctx, a.ID, "beta", decimal.RequireFromString(amt), models.CurrencyEUR, "")
		require.NoError(t, err)
	}
	_, err := f.svc.SendFunds(ctx, b.ID, "alpha", decimal.RequireFromString("30"), models.CurrencyEUR, "")
	require.NoError(t, err)

	after := f.balance(t, a.ID, models.CurrencyEUR).Add(f.balance(t, b.ID, models.CurrencyEUR))
	assert.True(t, before.Equal(after), "money must be neither created nor destroyed: %s != %s", before, after)
}

func TestSendFunds_InsufficientFunds(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	sender := f.user(t, "poor")
	recipient := f.user(t, "rich")
	f.fund(t, sender.ID, models.CurrencyUSD, "50")
	f.fund(t, recipient.ID, models.CurrencyUSD, "0")

	rec, err := f.svc.SendFunds(ctx, sender.ID, "rich", decimal.RequireFromString("75"), models.CurrencyUSD, "")
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	// the FAILED record is retained and no balance moved
	assert.Equal(t, models.TxnFailed, rec.Status)
	assert.True(t, rec.IsExpense)
	assert.True(t, f.balance(t, sender.ID, models.CurrencyUSD).Equal(decimal.RequireFromString("50")))
	assert.True(t, f.balance(t, recipient.ID, models.CurrencyUSD).Equal(decimal.Zero))

	recs := f.records(t, sender.ID)
	require.Len(t, recs, 1)
	assert.Equal(t, models.TxnFailed, recs[0].Status)
}

func TestSendFunds_BudgetExceeded(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	sender := f.user(t, "careful")
	recipient := f.user(t, "other")
	f.fund(t, sender.ID, models.CurrencyUSD, "500")
	f.fund(t, recipient.ID, models.CurrencyUSD, "0")

	_, err := f.repos.Budgets.Create(ctx, models.Budget{
		UserID:    sender.ID,
		Limit:     decimal.RequireFromString("100"),
		StartDate: time.Now().AddDate(0, 0, -1),
		EndDate:   time.Now().AddDate(0, 0, 30),
	})
	require.NoError(t, err)
	require.NoError(t, f.repos.Users.SetBudgetingEnabled(ctx, sender.ID, true))

	rec, err := f.svc.SendFunds(ctx, sender.ID, "other", decimal.RequireFromString("150"), models.CurrencyUSD, "")
	require.ErrorIs(t, err, models.ErrBudgetExceeded)

	assert.Equal(t, models.TxnFailed, rec.Status)
	assert.True(t, f.balance(t, sender.ID, models.CurrencyUSD).Equal(decimal.RequireFromString("500")))
	assert.True(t, f.balance(t, recipient.ID, models.CurrencyUSD).Equal(decimal.Zero))

	// within the limit the same transfer goes through
	_, err = f.svc.SendFunds(ctx, sender.ID, "other", decimal.RequireFromString("90"), models.CurrencyUSD, "")
	require.NoError(t, err)
}

func TestSendFunds_NoBudgetRowIsNotAnError(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	sender := f.user(t, "flagged")
	recipient := f.user(t, "peer")
	f.fund(t, sender.ID, models.CurrencyUSD, "100")
	f.fund(t, recipient.ID, models.CurrencyUSD, "0")
	require.NoError(t, f.repos.Users.SetBudgetingEnabled(ctx, sender.ID, true))

	_, err := f.svc.SendFunds(ctx, sender.ID, "peer", decimal.RequireFromString("10"), models.CurrencyUSD, "")
	require.NoError(t, err)
}

func TestSendFunds_RecipientNotFound(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	sender := f.user(t, "lonely")
	f.fund(t, sender.ID, models.CurrencyUSD, "100")

	_, err := f.svc.SendFunds(ctx, sender.ID, "ghost", decimal.RequireFromString("10"), models.CurrencyUSD, "")
	require.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, f.records(t, sender.ID))
}

func TestSendFunds_InvalidAmount(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	sender := f.user(t, "zero")
	f.user(t, "dest")

	for _, amt := range []string{"0", "-5"} {
		_, err := f.svc.SendFunds(ctx, sender.ID, "dest", decimal.RequireFromString(amt), models.CurrencyUSD, "")
		require.ErrorIs(t, err, models.ErrInvalidAmount, "amount %s", amt)
	}
}

func TestSendFunds_ConcurrentOverdraw(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	sender := f.user(t, "racer")
	recipient := f.user(t, "target")
	f.fund(t, sender.ID, models.CurrencyUSD, "50")
	f.fund(t, recipient.ID, models.CurrencyUSD, "0")

	amount := decimal.RequireFromString("30")
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.SendFunds(ctx, sender.ID, "target", amount, models.CurrencyUSD, "")
		}(i)
	}
	wg.Wait()

	var ok, failed int
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, models.ErrInsufficientFunds)
			failed++
		}
	}
	assert.Equal(t, 1, ok, "exactly one transfer must succeed")
	assert.Equal(t, 1, failed, "exactly one transfer must fail")

	assert.True(t, f.balance(t, sender.ID, models.CurrencyUSD).Equal(decimal.RequireFromString("20")))
	assert.True(t, f.balance(t, recipient.ID, models.CurrencyUSD).Equal(decimal.RequireFromString("30")))
	assert.False(t, f.balance(t, sender.ID, models.CurrencyUSD).IsNegative())
}

func TestSendFunds_CreditFailureRollsBackDebit(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	sender := f.user(t, "src")
	recipient := f.user(t, "dst")
	f.fund(t, sender.ID, models.CurrencyUSD, "100")
	f.fund(t, recipient.ID, models.CurrencyUSD, "10")

	boom := errors.New("storage offline")
	f.repos.Store.CreditErr = func(userID string) error {
		if userID == recipient.ID {
			return boom
		}
		return nil
	}

	_, err := f.svc.SendFunds(ctx, sender.ID, "dst", decimal.RequireFromString("40"), models.CurrencyUSD, "")
	require.ErrorIs(t, err, boom)

	// the applied debit was compensated before the error surfaced
	assert.True(t, f.balance(t, sender.ID, models.CurrencyUSD).Equal(decimal.RequireFromString("100")))
	assert.True(t, f.balance(t, recipient.ID, models.CurrencyUSD).Equal(decimal.RequireFromString("10")))

	// no half-finished PROCESSING record is visible either
	for _, rec := range f.records(t, sender.ID) {
		assert.NotEqual(t, models.TxnProcessing, rec.Status)
	}
}

func TestAddFunds_Success(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	owner := f.user(t, "depositor")

	card := models.CardDetails{
		Number:      "4242424242424242",
		HolderName:  "Ivan Petrov",
		ExpiryMonth: 12, ExpiryYear: time.Now().Year() + 2,
		SecurityCode: "123",
		Amount:       decimal.RequireFromString("25.50"),
		Currency:     models.CurrencyEUR,
	}
	tx, err := f.svc.AddFunds(ctx, owner.ID, card)
	require.NoError(t, err)

	assert.Equal(t, models.TxnDeposit, tx.Type)
	assert.Equal(t, models.TxnSuccessful, tx.Status)
	assert.False(t, tx.IsExpense)
	assert.True(t, f.balance(t, owner.ID, models.CurrencyEUR).Equal(decimal.RequireFromString("25.50")))
}

func TestAddFunds_InvalidCard(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	owner := f.user(t, "fraudster")
	card := models.CardDetails{
		Number:      "1234567812345678",
		ExpiryMonth: 12, ExpiryYear: time.Now().Year() + 2,
		Amount:   decimal.RequireFromString("25"),
		Currency: models.CurrencyEUR,
	}
	_, err := f.svc.AddFunds(ctx, owner.ID, card)
	require.ErrorIs(t, err, models.ErrInvalidCard)
	assert.Empty(t, f.records(t, owner.ID))
}

func TestAddFunds_BankDeclined(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: false})
	ctx := context.Background()

	owner := f.user(t, "unlucky")
	card := models.CardDetails{
		Number:      "4242424242424242",
		ExpiryMonth: 12, ExpiryYear: time.Now().Year() + 2,
		Amount:   decimal.RequireFromString("25"),
		Currency: models.CurrencyEUR,
	}
	_, err := f.svc.AddFunds(ctx, owner.ID, card)
	require.ErrorIs(t, err, models.ErrBankDeclined)

	_, err = f.repos.Balances.Get(ctx, owner.ID, models.CurrencyEUR)
	assert.ErrorIs(t, err, models.ErrNotFound, "no balance row should appear for a declined deposit")
}

func TestAddFunds_AuthorizerError(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Err: errors.New("gateway timeout")})
	ctx := context.Background()

	owner := f.user(t, "timeout")
	card := models.CardDetails{
		Number:      "4242424242424242",
		ExpiryMonth: 12, ExpiryYear: time.Now().Year() + 2,
		Amount:   decimal.RequireFromString("25"),
		Currency: models.CurrencyEUR,
	}
	_, err := f.svc.AddFunds(ctx, owner.ID, card)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrBankDeclined)
}

func TestWithdrawFunds(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	owner := f.user(t, "saver")
	f.fund(t, owner.ID, models.CurrencyBGN, "80")

	tx, err := f.svc.WithdrawFunds(ctx, owner.ID, decimal.RequireFromString("30"), models.CurrencyBGN, "atm")
	require.NoError(t, err)
	assert.Equal(t, models.TxnWithdrawal, tx.Type)
	assert.True(t, tx.IsExpense)
	assert.True(t, f.balance(t, owner.ID, models.CurrencyBGN).Equal(decimal.RequireFromString("50")))

	_, err = f.svc.WithdrawFunds(ctx, owner.ID, decimal.RequireFromString("500"), models.CurrencyBGN, "atm")
	require.ErrorIs(t, err, models.ErrInsufficientFunds)
	assert.True(t, f.balance(t, owner.ID, models.CurrencyBGN).Equal(decimal.RequireFromString("50")))
}

func TestRequestFunds(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	requester := f.user(t, "asker")
	payer := f.user(t, "payer")

	tx, err := f.svc.RequestFunds(ctx, requester.ID, "payer", decimal.RequireFromString("15"), "", "lunch")
	require.NoError(t, err)

	assert.Equal(t, models.TxnPending, tx.Status)
	assert.Equal(t, models.TxnTransfer, tx.Type)
	assert.False(t, tx.IsExpense)
	assert.Equal(t, models.CurrencyBGN, tx.Currency, "unspecified currency defaults")
	require.NotNil(t, tx.SenderID)
	assert.Equal(t, payer.ID, *tx.SenderID, "the counterparty is the prospective payer")
	require.NotNil(t, tx.RecipientID)
	assert.Equal(t, requester.ID, *tx.RecipientID)

	// the ask shows up for the payer, not the requester
	pending, err := f.svc.ListPendingRequests(ctx, payer.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, tx.ID, pending[0].ID)

	pending, err = f.svc.ListPendingRequests(ctx, requester.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRequestFunds_Validation(t *testing.T) {
	f := newFixture(t, payments.StaticAuthorizer{Approve: true})
	ctx := context.Background()

	requester := f.user(t, "self")
	f.user(t, "mate")

	_, err := f.svc.RequestFunds(ctx, requester.ID, "nobody", decimal.RequireFromString("5"), "", "")
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.RequestFunds(ctx, requester.ID, "self", decimal.RequireFromString("5"), "", "")
	require.ErrorIs(t, err, models.ErrSelfRequest)

	_, err = f.svc.RequestFunds(ctx, requester.ID, "mate", decimal.Zero, "", "")
	require.ErrorIs(t, err, models.ErrInvalidAmount)
}
