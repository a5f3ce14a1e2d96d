package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velkovb/peerpay-backend/internal/metrics"
	"github.com/velkovb/peerpay-backend/internal/models"
	"github.com/velkovb/peerpay-backend/internal/payments"
	repo "github.com/velkovb/peerpay-backend/internal/repository"
	"github.com/velkovb/peerpay-backend/internal/worker"
)

// TransferService drives the funds-movement state machine: it validates funds
// and budget, mutates balances and advances ledger records through
// PENDING → PROCESSING → SUCCESSFUL/FAILED. The whole commit path of a
// transfer (PROCESSING record, debit, credit, SUCCESSFUL update) runs inside
// one database transaction, so a reader never observes a debited sender
// without the credited recipient.
type TransferService struct {
	users      repo.Users
	bal        repo.Balances
	budgets    repo.Budgets
	trx        repo.Transactions
	events     repo.TransactionEvents
	txr        repo.Transactor
	authorizer payments.Authorizer
	wp         *worker.Pool
	log        *slog.Logger

	defaultCurrency models.Currency
	authTimeout     time.Duration
}

type TransferConfig struct {
	DefaultCurrency models.Currency
	AuthTimeout     time.Duration
}

func NewTransferService(
	users repo.Users,
	bal repo.Balances,
	budgets repo.Budgets,
	trx repo.Transactions,
	events repo.TransactionEvents,
	txr repo.Transactor,
	authorizer payments.Authorizer,
	wp *worker.Pool,
	log *slog.Logger,
	cfg TransferConfig,
) *TransferService {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = models.CurrencyBGN
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 3 * time.Second
	}
	return &TransferService{
		users: users, bal: bal, budgets: budgets, trx: trx, events: events,
		txr: txr, authorizer: authorizer, wp: wp, log: log,
		defaultCurrency: cfg.DefaultCurrency,
		authTimeout:     cfg.AuthTimeout,
	}
}

// SendFunds moves amount from the sender to the user behind recipientTag.
func (s *TransferService) SendFunds(ctx context.Context, senderID, recipientTag string, amount decimal.Decimal, currency models.Currency, description string) (models.Transaction, error) {
	if !amount.IsPositive() || !currency.Valid() {
		metrics.TransfersRejected.WithLabelValues("invalid_amount").Inc()
		return models.Transaction{}, models.ErrInvalidAmount
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return models.Transaction{}, err
	}
	recipient, err := s.users.GetByTag(ctx, recipientTag)
	if err != nil {
		metrics.TransfersRejected.WithLabelValues("not_found").Inc()
		return models.Transaction{}, fmt.Errorf("recipient %q: %w", recipientTag, models.ErrNotFound)
	}

	// Sufficiency pre-check. The authoritative check happens again under the
	// row lock; this one exists so a plainly uncovered transfer fails fast and
	// leaves a FAILED record.
	balance, err := s.bal.GetOrCreate(ctx, senderID, currency)
	if err != nil {
		return models.Transaction{}, err
	}
	if !balance.Covers(amount) {
		return s.rejectTransfer(ctx, sender.ID, recipient.ID, amount, currency, description,
			models.ErrInsufficientFunds, "insufficient_funds")
	}

	if sender.BudgetingEnabled {
		budget, err := s.budgets.Current(ctx, senderID)
		switch {
		case errors.Is(err, models.ErrNoBudget):
			// Budgeting flag on but no budget row: nothing to enforce.
		case err != nil:
			return models.Transaction{}, err
		case amount.GreaterThan(budget.Limit):
			return s.rejectTransfer(ctx, sender.ID, recipient.ID, amount, currency, description,
				models.ErrBudgetExceeded, "budget_exceeded")
		}
	}

	var result models.Transaction
	err = s.txr.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.bal.GetOrCreate(ctx, recipient.ID, currency); err != nil {
			return err
		}

		// Both rows locked in ascending user-id order so two opposing
		// transfers between the same pair cannot deadlock.
		senderBal, err := s.lockPair(ctx, sender.ID, recipient.ID, currency)
		if err != nil {
			return err
		}
		if !senderBal.Covers(amount) {
			return models.ErrInsufficientFunds
		}

		rec, err := s.trx.Create(ctx, models.Transaction{
			SenderID:    &sender.ID,
			RecipientID: &recipient.ID,
			Amount:      amount,
			Currency:    currency,
			Type:        models.TxnTransfer,
			Status:      models.TxnProcessing,
			IsExpense:   true,
			Description: description,
		})
		if err != nil {
			return err
		}
		if err := s.events.Append(ctx, models.TransactionEvent{
			TransactionID: rec.ID, Status: models.TxnProcessing, Detail: "funds check passed",
		}); err != nil {
			return err
		}

		if _, err := s.bal.Debit(ctx, sender.ID, currency, amount); err != nil {
			return err
		}
		if _, err := s.bal.Credit(ctx, recipient.ID, currency, amount); err != nil {
			return err
		}

		rec, err = s.trx.UpdateStatus(ctx, rec.ID, models.TxnSuccessful)
		if err != nil {
			return err
		}
		if err := s.events.Append(ctx, models.TransactionEvent{
			TransactionID: rec.ID, Status: models.TxnSuccessful, Detail: "transfer applied",
		}); err != nil {
			return err
		}
		result = rec
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInconsistent) {
			metrics.InconsistencyDetected.Inc()
			s.log.Error("transfer left inconsistent state", "sender", sender.ID, "recipient", recipient.ID, "err", err)
			return models.Transaction{}, err
		}
		if errors.Is(err, models.ErrInsufficientFunds) {
			// Caught under the lock after the pre-check passed; the rollback
			// removed the PROCESSING record, so persist the FAILED one now.
			return s.rejectTransfer(ctx, sender.ID, recipient.ID, amount, currency, description,
				models.ErrInsufficientFunds, "insufficient_funds")
		}
		metrics.TransactionsTotal.WithLabelValues(string(models.TxnTransfer), string(models.TxnFailed)).Inc()
		s.log.Error("transfer failed", "sender", sender.ID, "recipient", recipient.ID, "err", err)
		return models.Transaction{}, err
	}

	metrics.TransactionsTotal.WithLabelValues(string(models.TxnTransfer), string(models.TxnSuccessful)).Inc()
	return result, nil
}

// AddFunds deposits card funds into the owner's balance.
func (s *TransferService) AddFunds(ctx context.Context, userID string, card models.CardDetails) (models.Transaction, error) {
	if !card.Amount.IsPositive() || !card.Currency.Valid() {
		return models.Transaction{}, models.ErrInvalidAmount
	}
	if !payments.ValidateCard(card, time.Now()) {
		return models.Transaction{}, models.ErrInvalidCard
	}

	// The authorization stands in for network I/O, so it gets a hard bound.
	authCtx, cancel := context.WithTimeout(ctx, s.authTimeout)
	defer cancel()
	approved, err := s.authorizer.Authorize(authCtx)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("authorization: %w", err)
	}
	if !approved {
		return models.Transaction{}, models.ErrBankDeclined
	}

	var result models.Transaction
	err = s.txr.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.bal.GetOrCreate(ctx, userID, card.Currency); err != nil {
			return err
		}
		if _, err := s.bal.Credit(ctx, userID, card.Currency, card.Amount); err != nil {
			return err
		}
		rec, err := s.trx.Create(ctx, models.Transaction{
			RecipientID: &userID,
			Amount:      card.Amount,
			Currency:    card.Currency,
			Type:        models.TxnDeposit,
			Status:      models.TxnSuccessful,
			IsExpense:   false,
			Description: "card deposit",
		})
		if err != nil {
			return err
		}
		if err := s.events.Append(ctx, models.TransactionEvent{
			TransactionID: rec.ID, Status: models.TxnSuccessful, Detail: "deposit applied",
		}); err != nil {
			return err
		}
		result = rec
		return nil
	})
	if err != nil {
		metrics.TransactionsTotal.WithLabelValues(string(models.TxnDeposit), string(models.TxnFailed)).Inc()
		return models.Transaction{}, err
	}
	metrics.TransactionsTotal.WithLabelValues(string(models.TxnDeposit), string(models.TxnSuccessful)).Inc()
	return result, nil
}

// WithdrawFunds debits the owner's balance; the record counts against the
// budget window like any other expense.
func (s *TransferService) WithdrawFunds(ctx context.Context, userID string, amount decimal.Decimal, currency models.Currency, description string) (models.Transaction, error) {
	if !amount.IsPositive() || !currency.Valid() {
		return models.Transaction{}, models.ErrInvalidAmount
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.Transaction{}, err
	}
	if user.BudgetingEnabled {
		budget, err := s.budgets.Current(ctx, userID)
		switch {
		case errors.Is(err, models.ErrNoBudget):
		case err != nil:
			return models.Transaction{}, err
		case amount.GreaterThan(budget.Limit):
			return models.Transaction{}, models.ErrBudgetExceeded
		}
	}

	var result models.Transaction
	err = s.txr.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.bal.GetForUpdate(ctx, userID, currency); err != nil {
			return err
		}
		if _, err := s.bal.Debit(ctx, userID, currency, amount); err != nil {
			return err
		}
		rec, err := s.trx.Create(ctx, models.Transaction{
			SenderID:    &userID,
			Amount:      amount,
			Currency:    currency,
			Type:        models.TxnWithdrawal,
			Status:      models.TxnSuccessful,
			IsExpense:   true,
			Description: description,
		})
		if err != nil {
			return err
		}
		if err := s.events.Append(ctx, models.TransactionEvent{
			TransactionID: rec.ID, Status: models.TxnSuccessful, Detail: "withdrawal applied",
		}); err != nil {
			return err
		}
		result = rec
		return nil
	})
	if err != nil {
		metrics.TransactionsTotal.WithLabelValues(string(models.TxnWithdrawal), string(models.TxnFailed)).Inc()
		return models.Transaction{}, err
	}
	metrics.TransactionsTotal.WithLabelValues(string(models.TxnWithdrawal), string(models.TxnSuccessful)).Inc()
	return result, nil
}

// RequestFunds records an outstanding ask addressed to the counterparty. No
// balance moves; fulfilling the request runs through the same machinery as
// SendFunds later.
func (s *TransferService) RequestFunds(ctx context.Context, requesterID, counterpartyTag string, amount decimal.Decimal, currency models.Currency, description string) (models.Transaction, error) {
	counterparty, err := s.users.GetByTag(ctx, counterpartyTag)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("counterparty %q: %w", counterpartyTag, models.ErrNotFound)
	}
	if counterparty.ID == requesterID {
		return models.Transaction{}, models.ErrSelfRequest
	}
	if !amount.IsPositive() {
		return models.Transaction{}, models.ErrInvalidAmount
	}
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !currency.Valid() {
		return models.Transaction{}, models.ErrInvalidAmount
	}

	rec, err := s.trx.Create(ctx, models.Transaction{
		SenderID:    &counterparty.ID,
		RecipientID: &requesterID,
		Amount:      amount,
		Currency:    currency,
		Type:        models.TxnTransfer,
		Status:      models.TxnPending,
		IsExpense:   false,
		Description: description,
	})
	if err != nil {
		return models.Transaction{}, err
	}
	s.appendEventAsync(rec.ID, models.TxnPending, "fund request created")
	return rec, nil
}

// ---- Queries ----

func (s *TransferService) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	return s.trx.GetByID(ctx, id)
}

func (s *TransferService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	return s.trx.ListByUser(ctx, userID, limit, offset)
}

func (s *TransferService) ListPendingRequests(ctx context.Context, userID string) ([]models.Transaction, error) {
	return s.trx.ListPendingRequests(ctx, userID)
}

func (s *TransferService) History(ctx context.Context, txID string) ([]models.TransactionEvent, error) {
	return s.events.ListByTransaction(ctx, txID)
}

// ---- Helpers ----

// rejectTransfer persists the retained FAILED record for a transfer rejected
// before any balance mutation, then surfaces cause.
func (s *TransferService) rejectTransfer(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, currency models.Currency, description string, cause error, reason string) (models.Transaction, error) {
	metrics.TransfersRejected.WithLabelValues(reason).Inc()
	rec, err := s.trx.Create(ctx, models.Transaction{
		SenderID:    &senderID,
		RecipientID: &recipientID,
		Amount:      amount,
		Currency:    currency,
		Type:        models.TxnTransfer,
		Status:      models.TxnFailed,
		IsExpense:   true,
		Description: description,
	})
	if err != nil {
		s.log.Error("recording rejected transfer", "sender", senderID, "err", err)
		return models.Transaction{}, cause
	}
	s.appendEventAsync(rec.ID, models.TxnFailed, reason)
	return rec, cause
}

// appendEventAsync offloads a status-trail write that is not part of an atomic
// commit.
func (s *TransferService) appendEventAsync(txID string, status models.TransactionStatus, detail string) {
	ev := models.TransactionEvent{TransactionID: txID, Status: status, Detail: detail}
	s.wp.Submit(func() {
		if err := s.events.Append(context.Background(), ev); err != nil {
			s.log.Error("append transaction event", "txn", txID, "err", err)
		}
	})
}

// lockPair acquires both balance rows in ascending user-id order and returns
// the sender's locked balance.
func (s *TransferService) lockPair(ctx context.Context, senderID, recipientID string, currency models.Currency) (models.Balance, error) {
	first, second := senderID, recipientID
	if second < first {
		first, second = second, first
	}
	var senderBal models.Balance
	for _, id := range []string{first, second} {
		b, err := s.bal.GetForUpdate(ctx, id, currency)
		if err != nil {
			return models.Balance{}, err
		}
		if id == senderID {
			senderBal = b
		}
	}
	return senderBal, nil
}
