package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"mana-market/internal/cpmm"
	"mana-market/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ResolutionService transitions contracts to a terminal resolution and pays
// out winners through the ledger. Multi-outcome contracts resolve answer by
// answer and are fully resolved once every answer is.
type ResolutionService struct {
	db      *gorm.DB
	ledger  *LedgerService
	feeRate float64
}

// NewResolutionService creates a new resolution service. feeRate is the
// resolution fee charged on sums-to-one multi payouts.
func NewResolutionService(db *gorm.DB, ledger *LedgerService, feeRate float64) *ResolutionService {
	return &ResolutionService{db: db, ledger: ledger, feeRate: feeRate}
}

// Resolve resolves a contract (or one answer of a multi contract) to the
// given outcome. probability is the resolution probability for MKT, as a
// fraction in (0,1). All payout txns, loan clearing and the resolution
// marker commit in one transaction.
func (s *ResolutionService) Resolve(ctx context.Context, contractID uuid.UUID, resolverID uint, outcome models.Outcome, probability *float64, answerID *uuid.UUID) (*models.Contract, error) {
	if outcome == models.OutcomeMkt {
		if probability == nil || *probability <= 0 || *probability >= 1 {
			return nil, fmt.Errorf("MKT resolution requires a probability in (0,1): %w", ErrInvalidAmount)
		}
	}

	var resolved *models.Contract
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contract, err := lockContract(tx, contractID)
		if err != nil {
			return err
		}
		if contract.IsResolved() {
			return ErrAlreadyResolved
		}

		now := time.Now()
		if contract.Mechanism == models.MechanismCPMMMulti {
			if answerID != nil {
				if err := s.resolveAnswer(tx, contract, *answerID, resolverID, outcome, probability, now); err != nil {
					return err
				}
			} else {
				if outcome != models.OutcomeCancel {
					return fmt.Errorf("resolving a %s contract requires an answer unless cancelling: %w", contract.Mechanism, ErrAnswerNotFound)
				}
				if err := s.cancelAllAnswers(tx, contract, resolverID, now); err != nil {
					return err
				}
			}
			if err := s.finishIfAllAnswersResolved(tx, contract, resolverID, outcome, now); err != nil {
				return err
			}
		} else {
			if err := s.resolveBinary(tx, contract, resolverID, outcome, probability, now); err != nil {
				return err
			}
		}

		resolved, err = s.reload(tx, contractID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (s *ResolutionService) resolveBinary(tx *gorm.DB, contract *models.Contract, resolverID uint, outcome models.Outcome, probability *float64, now time.Time) error {
	var bets []models.Bet
	if err := tx.Where("contract_id = ?", contract.ID).Find(&bets).Error; err != nil {
		return fmt.Errorf("failed to load bets: %w", err)
	}
	var provisions []models.LiquidityProvision
	if err := tx.Where("contract_id = ? AND answer_id IS NULL", contract.ID).Find(&provisions).Error; err != nil {
		return fmt.Errorf("failed to load liquidity provisions: %w", err)
	}

	resolutionProb := 0.0
	if probability != nil {
		resolutionProb = *probability
	}

	pool := cpmm.Pool{Yes: contract.PoolYes, No: contract.PoolNo}
	payouts := mergePayouts(
		traderPayouts(bets, outcome, resolutionProb),
		loanPayouts(bets),
		liquidityPayouts(provisions, outcome, pool, contract.SubsidyPool, resolutionProb),
	)

	if err := s.payOut(tx, contract.ID, payouts); err != nil {
		return err
	}

	if outcome == models.OutcomeCancel {
		if err := s.undoBoostGrants(tx, contract.ID); err != nil {
			return err
		}
	}

	if err := tx.Where("contract_id = ?", contract.ID).Delete(&models.LoanTracking{}).Error; err != nil {
		return fmt.Errorf("failed to clear loan tracking: %w", err)
	}

	updates := map[string]interface{}{
		"resolution":      outcome,
		"resolver_id":     resolverID,
		"resolution_time": now,
		"subsidy_pool":    0,
		"updated_at":      now,
	}
	if probability != nil {
		updates["resolution_probability"] = *probability
	}
	if contract.CloseTime == nil || contract.CloseTime.After(now) {
		updates["close_time"] = now
	}
	return tx.Model(contract).Updates(updates).Error
}

func (s *ResolutionService) resolveAnswer(tx *gorm.DB, contract *models.Contract, answerID uuid.UUID, resolverID uint, outcome models.Outcome, probability *float64, now time.Time) error {
	answer, err := lockAnswer(tx, contract.ID, answerID)
	if err != nil {
		return err
	}
	if answer.IsResolved() {
		return ErrAlreadyResolved
	}

	var bets []models.Bet
	if err := tx.Where("contract_id = ? AND answer_id = ?", contract.ID, answer.ID).
		Find(&bets).Error; err != nil {
		return fmt.Errorf("failed to load bets: %w", err)
	}
	var provisions []models.LiquidityProvision
	if err := tx.Where("contract_id = ? AND answer_id = ?", contract.ID, answer.ID).
		Find(&provisions).Error; err != nil {
		return fmt.Errorf("failed to load liquidity provisions: %w", err)
	}

	resolutionProb := 0.0
	if probability != nil {
		resolutionProb = *probability
	}

	pool := cpmm.Pool{Yes: answer.PoolYes, No: answer.PoolNo}
	payouts := mergePayouts(
		traderPayouts(bets, outcome, resolutionProb),
		loanPayouts(bets),
		liquidityPayouts(provisions, outcome, pool, answer.SubsidyPool, resolutionProb),
	)

	if err := s.payOut(tx, contract.ID, payouts); err != nil {
		return err
	}

	// Arbitrage-aware payouts on sums-to-one contracts carry a resolution
	// fee. Each resolution pass over the contract charges it again for any
	// user it pays, so re-entrant passes can duplicate the fee per
	// (user, contract); ReconcileDuplicateResolutionFees is the re-runnable
	// correction for that.
	if contract.ShouldAnswersSumToOne && outcome != models.OutcomeCancel {
		if err := s.chargeResolutionFees(tx, contract.ID, payouts); err != nil {
			return err
		}
	}

	if err := tx.Where("contract_id = ? AND answer_key = ?", contract.ID, answer.ID.String()).
		Delete(&models.LoanTracking{}).Error; err != nil {
		return fmt.Errorf("failed to clear loan tracking: %w", err)
	}

	updates := map[string]interface{}{
		"resolution":      outcome,
		"resolution_time": now,
		"subsidy_pool":    0,
		"updated_at":      now,
	}
	return tx.Model(answer).Updates(updates).Error
}

func (s *ResolutionService) cancelAllAnswers(tx *gorm.DB, contract *models.Contract, resolverID uint, now time.Time) error {
	var answers []models.Answer
	if err := tx.Where("contract_id = ?", contract.ID).Find(&answers).Error; err != nil {
		return fmt.Errorf("failed to load answers: %w", err)
	}
	for i := range answers {
		if answers[i].IsResolved() {
			continue
		}
		if err := s.resolveAnswer(tx, contract, answers[i].ID, resolverID, models.OutcomeCancel, nil, now); err != nil {
			return err
		}
	}
	return nil
}

// finishIfAllAnswersResolved marks the contract itself resolved once no
// unresolved answers remain.
func (s *ResolutionService) finishIfAllAnswersResolved(tx *gorm.DB, contract *models.Contract, resolverID uint, outcome models.Outcome, now time.Time) error {
	var unresolved int64
	if err := tx.Model(&models.Answer{}).
		Where("contract_id = ? AND resolution IS NULL", contract.ID).
		Count(&unresolved).Error; err != nil {
		return fmt.Errorf("failed to count unresolved answers: %w", err)
	}
	if unresolved > 0 {
		return nil
	}

	if outcome == models.OutcomeCancel {
		if err := s.undoBoostGrants(tx, contract.ID); err != nil {
			return err
		}
	}

	updates := map[string]interface{}{
		"resolution":      outcome,
		"resolver_id":     resolverID,
		"resolution_time": now,
		"subsidy_pool":    0,
		"updated_at":      now,
	}
	if contract.CloseTime == nil || contract.CloseTime.After(now) {
		updates["close_time"] = now
	}
	return tx.Model(contract).Updates(updates).Error
}

func (s *ResolutionService) payOut(tx *gorm.DB, contractID uuid.UUID, payouts []Payout) error {
	for _, payout := range payouts {
		if _, err := s.ledger.RunContractPayoutTxn(tx, contractID, payout.UserID, payout.Payout, payout.Deposit); err != nil {
			return err
		}
	}
	return nil
}

func (s *ResolutionService) chargeResolutionFees(tx *gorm.DB, contractID uuid.UUID, payouts []Payout) error {
	for _, payout := range payouts {
		fee := s.feeRate * payout.Payout
		if fee <= 0 || !cpmm.IsFinite(fee) {
			continue
		}
		_, err := s.ledger.RunTxn(tx, models.TxnDraft{
			FromType: models.TxnPartyUser,
			FromID:   strconv.FormatUint(uint64(payout.UserID), 10),
			ToType:   models.TxnPartyBank,
			ToID:     "BANK",
			Amount:   fee,
			Category: models.TxnCategoryResolutionFee,
			Data:     models.TxnData{"contractId": contractID.String()},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// undoBoostGrants reverts one-time boost grants tied to a cancelled
// contract, so CANCEL leaves no free money behind.
func (s *ResolutionService) undoBoostGrants(tx *gorm.DB, contractID uuid.UUID) error {
	var grants []models.Txn
	if err := tx.Where("category = ?", models.TxnCategoryMarketBoostRedeem).
		Find(&grants).Error; err != nil {
		return fmt.Errorf("failed to load boost grants: %w", err)
	}

	reverted, err := s.revertedTxnIDs(tx, models.TxnCategoryCancelMarketBoostRedeem)
	if err != nil {
		return err
	}

	for i := range grants {
		grant := &grants[i]
		if grant.ContractID() != contractID.String() || reverted[grant.ID.String()] {
			continue
		}
		if _, err := s.ledger.RevertTxn(tx, grant, models.TxnCategoryCancelMarketBoostRedeem); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileDuplicateResolutionFees finds CONTRACT_RESOLUTION_FEE txns
// duplicated per (user, contract), keeps the earliest as canonical, and
// emits a compensating UNDO_CONTRACT_RESOLUTION_FEE from BANK to USER for
// every duplicate. Re-runnable: already-undone duplicates are skipped, so a
// second run reverts nothing.
func (s *ResolutionService) ReconcileDuplicateResolutionFees(ctx context.Context, contractIDs []uuid.UUID) (int, error) {
	wanted := map[string]bool{}
	for _, id := range contractIDs {
		wanted[id.String()] = true
	}

	reverted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fees []models.Txn
		if err := tx.Where("category = ?", models.TxnCategoryResolutionFee).
			Find(&fees).Error; err != nil {
			return fmt.Errorf("failed to load fee txns: %w", err)
		}

		undone, err := s.revertedTxnIDs(tx, models.TxnCategoryUndoResolutionFee)
		if err != nil {
			return err
		}

		groups := map[string][]models.Txn{}
		for _, fee := range fees {
			contractID := fee.ContractID()
			if contractID == "" {
				continue
			}
			if len(wanted) > 0 && !wanted[contractID] {
				continue
			}
			key := fee.FromID + "|" + contractID
			groups[key] = append(groups[key], fee)
		}

		for _, group := range groups {
			if len(group) < 2 {
				continue
			}
			// Earliest fee is canonical; everything after it is a duplicate.
			sort.Slice(group, func(i, j int) bool {
				if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
					return group[i].CreatedAt.Before(group[j].CreatedAt)
				}
				return group[i].ID.String() < group[j].ID.String()
			})

			for i := 1; i < len(group); i++ {
				dup := group[i]
				if undone[dup.ID.String()] {
					continue
				}
				if _, err := s.ledger.RevertTxn(tx, &dup, models.TxnCategoryUndoResolutionFee); err != nil {
					return err
				}
				reverted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if reverted > 0 {
		log.Printf("[FeeReconciliation] Reverted %d duplicate resolution fees", reverted)
	}
	return reverted, nil
}

// Unresolve reverts every payout txn of a resolved contract through ledger
// reversals and reopens it. History stays append-only: the original payouts
// remain, each compensated by a CONTRACT_UNDO_RESOLUTION_PAYOUT entry.
func (s *ResolutionService) Unresolve(ctx context.Context, contractID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contract, err := lockContract(tx, contractID)
		if err != nil {
			return err
		}
		if !contract.IsResolved() {
			return fmt.Errorf("contract %s is not resolved: %w", contractID, ErrContractNotFound)
		}

		var payoutTxns []models.Txn
		if err := tx.Where("category = ? AND from_id = ?", models.TxnCategoryResolutionPayout, contractID.String()).
			Find(&payoutTxns).Error; err != nil {
			return fmt.Errorf("failed to load payout txns: %w", err)
		}

		undone, err := s.revertedTxnIDs(tx, models.TxnCategoryUndoResolutionPayout)
		if err != nil {
			return err
		}

		for i := range payoutTxns {
			if undone[payoutTxns[i].ID.String()] {
				continue
			}
			if _, err := s.ledger.RevertTxn(tx, &payoutTxns[i], models.TxnCategoryUndoResolutionPayout); err != nil {
				return err
			}
		}

		now := time.Now()
		if err := tx.Model(&models.Answer{}).
			Where("contract_id = ?", contractID).
			Updates(map[string]interface{}{
				"resolution":      nil,
				"resolution_time": nil,
				"updated_at":      now,
			}).Error; err != nil {
			return fmt.Errorf("failed to reopen answers: %w", err)
		}

		return tx.Model(contract).Updates(map[string]interface{}{
			"resolution":             nil,
			"resolution_probability": nil,
			"resolver_id":            nil,
			"resolution_time":        nil,
			"updated_at":             now,
		}).Error
	})
}

func (s *ResolutionService) revertedTxnIDs(tx *gorm.DB, undoCategory string) (map[string]bool, error) {
	var undos []models.Txn
	if err := tx.Where("category = ?", undoCategory).Find(&undos).Error; err != nil {
		return nil, fmt.Errorf("failed to load %s txns: %w", undoCategory, err)
	}
	reverted := map[string]bool{}
	for i := range undos {
		if id := undos[i].RevertsTxnID(); id != "" {
			reverted[id] = true
		}
	}
	return reverted, nil
}

func (s *ResolutionService) reload(tx *gorm.DB, contractID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := tx.Preload("Answers").First(&contract, "id = ?", contractID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload contract: %w", err)
	}
	return &contract, nil
}
