package service

import (
	"context"
	"sync"
	"testing"

	"voltcare/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletCreditDebitFold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx, err := env.wallet.RecordTransaction(ctx, env.customer.ID, domain.TransactionCredit, "500.00", "top up", "")
	require.NoError(t, err)
	assert.Equal(t, "500.00", tx.BalanceAfter)

	tx, err = env.wallet.RecordTransaction(ctx, env.customer.ID, domain.TransactionDebit, "120.50", "service payment", "")
	require.NoError(t, err)
	assert.Equal(t, "379.50", tx.BalanceAfter)

	user, err := env.store.GetUser(ctx, env.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "379.50", user.WalletBalance)

	txs, err := env.wallet.Transactions(ctx, env.customer.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.TransactionDebit, txs[0].Type, "ledger is newest first")
}

func TestWalletInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.wallet.RecordTransaction(ctx, env.customer.ID, domain.TransactionCredit, "50.00", "top up", "")
	require.NoError(t, err)

	_, err = env.wallet.RecordTransaction(ctx, env.customer.ID, domain.TransactionDebit, "100.00", "service payment", "")
	require.True(t, domain.IsInsufficientFunds(err))

	user, err := env.store.GetUser(ctx, env.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", user.WalletBalance, "rejected debit must not touch the balance")

	txs, err := env.wallet.Transactions(ctx, env.customer.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "rejected debit must not appear in the ledger")
}

func TestWalletValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.wallet.RecordTransaction(ctx, env.customer.ID, "transfer", "10.00", "x", "")
	assert.True(t, domain.IsValidation(err))

	_, err = env.wallet.RecordTransaction(ctx, env.customer.ID, domain.TransactionCredit, "-10.00", "x", "")
	assert.True(t, domain.IsValidation(err))

	_, err = env.wallet.RecordTransaction(ctx, env.customer.ID, domain.TransactionCredit, "0.00", "x", "")
	assert.True(t, domain.IsValidation(err))

	_, err = env.wallet.RecordTransaction(ctx, env.customer.ID, domain.TransactionCredit, "10.00", "", "")
	assert.True(t, domain.IsValidation(err))

	_, err = env.wallet.RecordTransaction(ctx, env.customer.ID, domain.TransactionCredit, "abc", "x", "")
	assert.True(t, domain.IsValidation(err))
}

func TestWalletConcurrentFold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.wallet.RecordTransaction(ctx, env.customer.ID, domain.TransactionCredit, "100.00", "seed", "")
	require.NoError(t, err)

	// 10 credits of 10.00 and 10 debits of 5.00: with a 100.00 seed no
	// interleaving can drive the balance negative, so every write succeeds
	// and the fold is deterministic.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := env.wallet.RecordTransaction(ctx, env.customer.ID, domain.TransactionCredit, "10.00", "credit", "")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := env.wallet.RecordTransaction(ctx, env.customer.ID, domain.TransactionDebit, "5.00", "debit", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	user, err := env.store.GetUser(ctx, env.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "150.00", user.WalletBalance)

	txs, err := env.wallet.Transactions(ctx, env.customer.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 21)
	assert.Equal(t, user.WalletBalance, txs[0].BalanceAfter, "cached balance matches the latest entry")
}
