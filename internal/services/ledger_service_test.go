package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mana-market/internal/models"
)

func TestRunTxnMovesBalance(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerService(db)
	createUser(t, db, 1, 500)
	createUser(t, db, 2, 100)

	txn, err := ledger.RunTxn(db, models.TxnDraft{
		FromType: models.TxnPartyUser,
		FromID:   "1",
		ToType:   models.TxnPartyUser,
		ToID:     "2",
		Amount:   150,
		Category: "TEST_TRANSFER",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TokenMana, txn.Token)

	assert.InDelta(t, 350, userBalance(t, db, 1), 1e-9)
	assert.InDelta(t, 250, userBalance(t, db, 2), 1e-9)
}

func TestRunTxnBankSideIsNotABalance(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerService(db)
	createUser(t, db, 1, 100)

	_, err := ledger.RunTxn(db, models.TxnDraft{
		FromType: models.TxnPartyBank,
		FromID:   "BANK",
		ToType:   models.TxnPartyUser,
		ToID:     "1",
		Amount:   40,
		Category: "TEST_GRANT",
	})
	require.NoError(t, err)
	assert.InDelta(t, 140, userBalance(t, db, 1), 1e-9)
}

func TestRunTxnRejectsBadAmounts(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerService(db)
	createUser(t, db, 1, 100)

	for _, amount := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		_, err := ledger.RunTxn(db, models.TxnDraft{
			FromType: models.TxnPartyBank,
			FromID:   "BANK",
			ToType:   models.TxnPartyUser,
			ToID:     "1",
			Amount:   amount,
			Category: "TEST_GRANT",
		})
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %f", amount)
	}
	assert.InDelta(t, 100, userBalance(t, db, 1), 1e-9)
}

func TestRunContractPayoutTxnAllowsNegativeNet(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerService(db)
	createUser(t, db, 1, 100)
	contractID := uuid.New()

	// Loan repayment exceeding winnings collects from the user.
	txn, err := ledger.RunContractPayoutTxn(db, contractID, 1, -30, 10)
	require.NoError(t, err)
	assert.Equal(t, models.TxnCategoryResolutionPayout, txn.Category)
	assert.Equal(t, contractID.String(), txn.ContractID())
	assert.InDelta(t, 70, userBalance(t, db, 1), 1e-9)
}

func TestRevertTxn(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerService(db)
	createUser(t, db, 1, 100)
	contractID := uuid.New()

	fee, err := ledger.RunTxn(db, models.TxnDraft{
		FromType: models.TxnPartyUser,
		FromID:   "1",
		ToType:   models.TxnPartyBank,
		ToID:     "BANK",
		Amount:   25,
		Category: models.TxnCategoryResolutionFee,
		Data:     models.TxnData{"contractId": contractID.String()},
	})
	require.NoError(t, err)
	require.InDelta(t, 75, userBalance(t, db, 1), 1e-9)

	undo, err := ledger.RevertTxn(db, fee, models.TxnCategoryUndoResolutionFee)
	require.NoError(t, err)

	assert.InDelta(t, 100, userBalance(t, db, 1), 1e-9)
	assert.Equal(t, fee.ID.String(), undo.RevertsTxnID())
	assert.Equal(t, contractID.String(), undo.ContractID())
	assert.Equal(t, models.TxnPartyBank, undo.FromType)
	assert.Equal(t, models.TxnPartyUser, undo.ToType)

	// The original entry is untouched: the ledger stays append-only.
	var original models.Txn
	require.NoError(t, db.First(&original, "id = ?", fee.ID).Error)
	assert.InDelta(t, 25, original.Amount, 1e-9)
}

func TestGrantOnce(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerService(db)
	createUser(t, db, 1, 0)
	ctx := context.Background()

	_, err := ledger.GrantOnce(ctx, 1, models.TxnCategoryMarketBoostRedeem, 50, nil)
	require.NoError(t, err)
	assert.InDelta(t, 50, userBalance(t, db, 1), 1e-9)

	_, err = ledger.GrantOnce(ctx, 1, models.TxnCategoryMarketBoostRedeem, 50, nil)
	if !errors.Is(err, ErrDuplicateGrant) {
		t.Fatalf("expected ErrDuplicateGrant, got %v", err)
	}
	assert.InDelta(t, 50, userBalance(t, db, 1), 1e-9)

	// A different category is a different grant.
	_, err = ledger.GrantOnce(ctx, 1, "TEST_OTHER_GRANT", 10, nil)
	require.NoError(t, err)
	assert.InDelta(t, 60, userBalance(t, db, 1), 1e-9)
}

func TestGetTxnsByCategory(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerService(db)
	createUser(t, db, 1, 0)

	for i := 0; i < 3; i++ {
		_, err := ledger.RunTxn(db, models.TxnDraft{
			FromType: models.TxnPartyBank,
			FromID:   "BANK",
			ToType:   models.TxnPartyUser,
			ToID:     "1",
			Amount:   10,
			Category: "TEST_GRANT",
		})
		require.NoError(t, err)
	}

	txns, err := ledger.GetTxnsByCategory(context.Background(), "TEST_GRANT")
	require.NoError(t, err)
	assert.Len(t, txns, 3)
}
