package service

import (
	"context"
	"fmt"
	"log/slog"

	"voltcare/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WalletLedger maintains each user's wallet balance as the fold of their
// transaction history. The cached balance on the User record lets reads skip
// the history scan; RecordTransaction keeps cache and ledger consistent by
// serializing all writes for a user behind a per-user mutex.
type WalletLedger struct {
	store  domain.Store
	locks  *keyedMutex
	logger *slog.Logger
	tracer trace.Tracer
}

// NewWalletLedger creates a WalletLedger over the given store.
func NewWalletLedger(store domain.Store, logger *slog.Logger) *WalletLedger {
	return &WalletLedger{
		store:  store,
		locks:  newKeyedMutex(),
		logger: logger,
		tracer: otel.Tracer("voltcare"),
	}
}

// RecordTransaction appends a credit or debit to the user's ledger and
// updates the cached balance. A debit that would drive the balance negative
// fails with InsufficientFundsError and leaves both ledger and cache
// untouched.
func (l *WalletLedger) RecordTransaction(ctx context.Context, userID string, typ domain.TransactionType, amount, description, serviceID string) (*domain.WalletTransaction, error) {
	ctx, span := l.tracer.Start(ctx, "RecordTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("userID", userID),
		attribute.String("type", string(typ)),
		attribute.String("amount", amount),
	)

	if typ != domain.TransactionCredit && typ != domain.TransactionDebit {
		err := domain.NewValidationError("type", "must be credit or debit")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	amt, err := domain.ParseMoney(amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid amount")
		return nil, err
	}
	if !amt.IsPositive() {
		err := domain.NewValidationError("amount", "must be a positive amount")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if description == "" {
		err := domain.NewValidationError("description", "description is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Per-user critical section: concurrent debits/credits against the same
	// wallet must not interleave between the balance read and the write.
	unlock := l.locks.Lock(userID)
	defer unlock()

	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load user")
		return nil, err
	}

	balance, err := domain.ParseMoney(user.WalletBalance)
	if err != nil {
		return nil, fmt.Errorf("corrupt wallet balance for user %s: %w", userID, err)
	}

	var newBalance decimal.Decimal
	switch typ {
	case domain.TransactionCredit:
		newBalance = balance.Add(amt)
	case domain.TransactionDebit:
		newBalance = balance.Sub(amt)
		if newBalance.IsNegative() {
			err := &domain.InsufficientFundsError{
				UserID:  userID,
				Balance: domain.FormatMoney(balance),
				Amount:  domain.FormatMoney(amt),
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			l.logger.Warn("Debit rejected",
				"userID", userID,
				"balance", user.WalletBalance,
				"amount", amount)
			return nil, err
		}
	}

	tx, err := l.store.CreateWalletTransaction(ctx, &domain.WalletTransaction{
		UserID:       userID,
		Type:         typ,
		Amount:       domain.FormatMoney(amt),
		Description:  description,
		ServiceID:    serviceID,
		BalanceAfter: domain.FormatMoney(newBalance),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to append transaction")
		l.logger.Error("Failed to append wallet transaction", "userID", userID, "error", err)
		return nil, err
	}

	if _, err := l.store.UpdateUser(ctx, userID, func(u *domain.User) {
		u.WalletBalance = domain.FormatMoney(newBalance)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update cached balance")
		l.logger.Error("Failed to update cached balance", "userID", userID, "error", err)
		return nil, err
	}

	l.logger.Info("Wallet transaction recorded",
		"userID", userID,
		"transactionID", tx.ID,
		"type", string(typ),
		"balanceAfter", tx.BalanceAfter)
	span.SetAttributes(attribute.String("balanceAfter", tx.BalanceAfter))
	return tx, nil
}

// Transactions returns the user's ledger, newest first.
func (l *WalletLedger) Transactions(ctx context.Context, userID string) ([]*domain.WalletTransaction, error) {
	ctx, span := l.tracer.Start(ctx, "WalletTransactions")
	defer span.End()

	txs, err := l.store.GetWalletTransactionsByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list transactions")
		return nil, err
	}
	span.SetAttributes(attribute.Int("transactionCount", len(txs)))
	return txs, nil
}
