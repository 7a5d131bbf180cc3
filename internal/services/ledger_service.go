package services

import (
	"context"
	"fmt"
	"strconv"

	"mana-market/internal/cpmm"
	"mana-market/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerService owns the append-only txn ledger. Balances are only ever
// changed by inserting a txn; the sole correction mechanism is a
// compensating txn pointing back at the original via data.revertsTxnId.
type LedgerService struct {
	db *gorm.DB
}

// NewLedgerService creates a new ledger service
func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{db: db}
}

// RunTxn inserts one txn row and applies the balance delta to USER parties.
// BANK parties have conceptually infinite balance; CONTRACT parties hold
// pool state managed by the liquidity engine, not a transferable balance.
// The amount of a forward txn must be positive and finite.
func (s *LedgerService) RunTxn(tx *gorm.DB, draft models.TxnDraft) (*models.Txn, error) {
	if draft.Amount <= 0 || !cpmm.IsFinite(draft.Amount) {
		return nil, fmt.Errorf("txn %s amount %f: %w", draft.Category, draft.Amount, ErrInvalidAmount)
	}
	return s.insertAndApply(tx, draft)
}

// RunContractPayoutTxn records a resolution payout from a contract to a
// user. Unlike RunTxn it accepts a negative net amount: loan repayment can
// exceed winnings, in which case the payout collects from the user.
func (s *LedgerService) RunContractPayoutTxn(tx *gorm.DB, contractID uuid.UUID, userID uint, payout, deposit float64) (*models.Txn, error) {
	if !cpmm.IsFinite(payout) {
		return nil, fmt.Errorf("payout for user %d: %w", userID, ErrInvalidAmount)
	}
	return s.insertAndApply(tx, models.TxnDraft{
		FromType:    models.TxnPartyContract,
		FromID:      contractID.String(),
		ToType:      models.TxnPartyUser,
		ToID:        strconv.FormatUint(uint64(userID), 10),
		Amount:      payout,
		Category:    models.TxnCategoryResolutionPayout,
		Description: "Contract payout for resolution: " + contractID.String(),
		Data: models.TxnData{
			"contractId": contractID.String(),
			"deposit":    deposit,
		},
	})
}

// RevertTxn emits the compensating entry for an earlier txn: parties
// swapped, same amount, data.revertsTxnId set. The original row is never
// mutated or deleted.
func (s *LedgerService) RevertTxn(tx *gorm.DB, original *models.Txn, category string) (*models.Txn, error) {
	data := models.TxnData{"revertsTxnId": original.ID.String()}
	if contractID := original.ContractID(); contractID != "" {
		data["contractId"] = contractID
	}
	return s.insertAndApply(tx, models.TxnDraft{
		FromType:    original.ToType,
		FromID:      original.ToID,
		ToType:      original.FromType,
		ToID:        original.FromID,
		Amount:      original.Amount,
		Category:    category,
		Description: "Reverts txn " + original.ID.String(),
		Data:        data,
	})
}

// GrantOnce grants a one-time bonus of the given category to a user. The
// existence check and the insert run inside one transaction so concurrent
// requests cannot both claim it.
func (s *LedgerService) GrantOnce(ctx context.Context, userID uint, category string, amount float64, data models.TxnData) (*models.Txn, error) {
	var granted *models.Txn
	toID := strconv.FormatUint(uint64(userID), 10)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Txn{}).
			Where("to_id = ? AND to_type = ? AND category = ?", toID, models.TxnPartyUser, category).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check existing grant: %w", err)
		}
		if count > 0 {
			return ErrDuplicateGrant
		}

		txn, err := s.RunTxn(tx, models.TxnDraft{
			FromType: models.TxnPartyBank,
			FromID:   "BANK",
			ToType:   models.TxnPartyUser,
			ToID:     toID,
			Amount:   amount,
			Category: category,
			Data:     data,
		})
		if err != nil {
			return err
		}
		granted = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return granted, nil
}

// GetTxnsByCategory returns all txns of a category, oldest id first.
func (s *LedgerService) GetTxnsByCategory(ctx context.Context, category string) ([]models.Txn, error) {
	var txns []models.Txn
	if err := s.db.WithContext(ctx).
		Where("category = ?", category).
		Order("id ASC").
		Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("failed to get txns: %w", err)
	}
	return txns, nil
}

func (s *LedgerService) insertAndApply(tx *gorm.DB, draft models.TxnDraft) (*models.Txn, error) {
	token := draft.Token
	if token == "" {
		token = models.TokenMana
	}

	txn := &models.Txn{
		ID:          uuid.New(),
		FromType:    draft.FromType,
		FromID:      draft.FromID,
		ToType:      draft.ToType,
		ToID:        draft.ToID,
		Amount:      draft.Amount,
		Token:       token,
		Category:    draft.Category,
		Description: draft.Description,
		Data:        draft.Data,
	}

	if err := tx.Create(txn).Error; err != nil {
		return nil, fmt.Errorf("failed to insert txn: %w", err)
	}

	if draft.FromType == models.TxnPartyUser {
		if err := applyBalanceDelta(tx, draft.FromID, -draft.Amount); err != nil {
			return nil, err
		}
	}
	if draft.ToType == models.TxnPartyUser {
		if err := applyBalanceDelta(tx, draft.ToID, draft.Amount); err != nil {
			return nil, err
		}
	}

	return txn, nil
}

func applyBalanceDelta(tx *gorm.DB, userID string, delta float64) error {
	id, err := strconv.ParseUint(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	result := tx.Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("balance", gorm.Expr("balance + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("failed to update balance for user %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user %d not found for balance update", id)
	}
	return nil
}
