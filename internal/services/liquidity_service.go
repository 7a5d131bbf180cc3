package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"mana-market/internal/cpmm"
	"mana-market/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LiquidityService manages contract subsidy pools and liquidity counters.
// Subsidy is pool-internal money: adding it never moves ledger funds, it
// locks value into the contract until resolution pays it back out.
type LiquidityService struct {
	db          *gorm.DB
	houseUserID uint
}

// NewLiquidityService creates a new liquidity service. houseUserID is the
// environment's designated house liquidity provider.
func NewLiquidityService(db *gorm.DB, houseUserID uint) *LiquidityService {
	return &LiquidityService{db: db, houseUserID: houseUserID}
}

// AddSubsidy credits amount to a contract's (or one answer's) subsidy pool
// and records a liquidity provision, all in one transaction. The pool-math
// result is computed up front purely as an overflow gate: a non-finite new
// weight aborts the whole transaction with ErrLiquidityOverflow and nothing
// is committed. The subsidy itself stays parked in subsidyPool until the
// drizzler releases it into the live pool.
func (s *LiquidityService) AddSubsidy(ctx context.Context, contractID uuid.UUID, amount float64, answerID *uuid.UUID) error {
	if amount <= 0 || !cpmm.IsFinite(amount) {
		return ErrInvalidAmount
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contract, err := lockContract(tx, contractID)
		if err != nil {
			return err
		}
		if contract.IsResolved() {
			return ErrAlreadyResolved
		}

		if answerID != nil {
			return s.addAnswerSubsidy(tx, contract, *answerID, amount)
		}

		if contract.Mechanism == models.MechanismCPMM {
			pool := cpmm.Pool{Yes: contract.PoolYes, No: contract.PoolNo}
			result := cpmm.AddLiquidity(pool, contract.P, amount)
			if !cpmm.IsFinite(result.NewP) {
				return fmt.Errorf("subsidy %f on contract %s: %w", amount, contract.ID, ErrLiquidityOverflow)
			}
		}

		provision := &models.LiquidityProvision{
			ID:         uuid.New(),
			UserID:     s.houseUserID,
			ContractID: contract.ID,
			Amount:     amount,
			Liquidity:  amount,
			PoolYes:    contract.PoolYes,
			PoolNo:     contract.PoolNo,
			P:          contract.P,
			IsSubsidy:  true,
		}
		if err := tx.Create(provision).Error; err != nil {
			return fmt.Errorf("failed to record liquidity provision: %w", err)
		}

		return tx.Model(contract).Updates(map[string]interface{}{
			"subsidy_pool":    gorm.Expr("subsidy_pool + ?", amount),
			"total_liquidity": gorm.Expr("total_liquidity + ?", amount),
			"updated_at":      time.Now(),
		}).Error
	})
}

func (s *LiquidityService) addAnswerSubsidy(tx *gorm.DB, contract *models.Contract, answerID uuid.UUID, amount float64) error {
	if contract.Mechanism != models.MechanismCPMMMulti {
		return fmt.Errorf("contract %s has no answers: %w", contract.ID, ErrAnswerNotFound)
	}

	answer, err := lockAnswer(tx, contract.ID, answerID)
	if err != nil {
		return err
	}
	if answer.IsResolved() {
		return ErrAlreadyResolved
	}

	provision := &models.LiquidityProvision{
		ID:         uuid.New(),
		UserID:     s.houseUserID,
		ContractID: contract.ID,
		AnswerID:   &answer.ID,
		Amount:     amount,
		Liquidity:  amount,
		PoolYes:    answer.PoolYes,
		PoolNo:     answer.PoolNo,
		P:          0.5,
		IsSubsidy:  true,
	}
	if err := tx.Create(provision).Error; err != nil {
		return fmt.Errorf("failed to record liquidity provision: %w", err)
	}

	return tx.Model(answer).Updates(map[string]interface{}{
		"subsidy_pool":    gorm.Expr("subsidy_pool + ?", amount),
		"total_liquidity": gorm.Expr("total_liquidity + ?", amount),
		"updated_at":      time.Now(),
	}).Error
}

// RemoveSubsidy withdraws liquidity from a contract. The undrizzled portion
// parked in subsidyPool comes out first; any remainder is pulled from the
// live pool at constant probability, but never past the MinimumLiquidity
// floor on either reserve.
func (s *LiquidityService) RemoveSubsidy(ctx context.Context, contractID uuid.UUID, amount float64) error {
	if amount <= 0 || !cpmm.IsFinite(amount) {
		return ErrInvalidAmount
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contract, err := lockContract(tx, contractID)
		if err != nil {
			return err
		}
		if contract.IsResolved() {
			return ErrAlreadyResolved
		}

		fromSubsidy := math.Min(amount, contract.SubsidyPool)
		fromPool := amount - fromSubsidy

		updates := map[string]interface{}{
			"subsidy_pool":    gorm.Expr("subsidy_pool - ?", fromSubsidy),
			"total_liquidity": gorm.Expr("total_liquidity - ?", amount),
			"updated_at":      time.Now(),
		}

		if fromPool > cpmm.Epsilon {
			pool := cpmm.Pool{Yes: contract.PoolYes, No: contract.PoolNo}
			removable := cpmm.MaximumRemovableLiquidity(pool)
			if !cpmm.FloatingLesserEqual(fromPool, removable) {
				return fmt.Errorf("withdrawal %f exceeds removable liquidity %f: %w", fromPool, removable, ErrMinimumLiquidity)
			}
			result, ok := cpmm.RemoveLiquidity(pool, contract.P, fromPool)
			if !ok || !cpmm.IsFinite(result.NewP) {
				return fmt.Errorf("withdrawal %f on contract %s: %w", fromPool, contract.ID, ErrMinimumLiquidity)
			}
			updates["pool_yes"] = result.NewPool.Yes
			updates["pool_no"] = result.NewPool.No
			updates["p"] = result.NewP
		}

		provision := &models.LiquidityProvision{
			ID:         uuid.New(),
			UserID:     s.houseUserID,
			ContractID: contract.ID,
			Amount:     -amount,
			Liquidity:  -amount,
			PoolYes:    contract.PoolYes,
			PoolNo:     contract.PoolNo,
			P:          contract.P,
			IsSubsidy:  true,
		}
		if err := tx.Create(provision).Error; err != nil {
			return fmt.Errorf("failed to record liquidity provision: %w", err)
		}

		return tx.Model(contract).Updates(updates).Error
	})
}

// Quote prices a hypothetical bet against the current pool without touching
// any state: the shares bought and the probability after the bet.
func (s *LiquidityService) Quote(contract *models.Contract, amount float64, outcome models.Outcome, answerID *uuid.UUID) (*models.QuoteResponse, error) {
	if amount <= 0 || !cpmm.IsFinite(amount) {
		return nil, ErrInvalidAmount
	}

	pool := cpmm.Pool{Yes: contract.PoolYes, No: contract.PoolNo}
	p := contract.P

	if contract.Mechanism == models.MechanismCPMMMulti {
		if answerID == nil {
			return nil, fmt.Errorf("quote on %s requires an answer: %w", contract.Mechanism, ErrAnswerNotFound)
		}
		answer := findAnswer(contract, *answerID)
		if answer == nil {
			return nil, ErrAnswerNotFound
		}
		pool = cpmm.Pool{Yes: answer.PoolYes, No: answer.PoolNo}
		p = 0.5
	}

	shares, newPool := cpmm.Purchase(pool, p, amount, string(outcome))
	return &models.QuoteResponse{
		PoolYes:        newPool.Yes,
		PoolNo:         newPool.No,
		Shares:         shares,
		NewProbability: cpmm.Probability(newPool, p),
	}, nil
}

// GetContract loads a contract with its answers.
func (s *LiquidityService) GetContract(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	err := s.db.WithContext(ctx).
		Preload("Answers").
		First(&contract, "id = ?", contractID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract %s: %w", contractID, err)
	}
	return &contract, nil
}

// forUpdate adds a row lock on dialects that support it. SQLite (tests)
// serializes writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// lockContract reads a contract under FOR UPDATE inside tx. Mutations to a
// contract's pool and counters are serialized through this single-row lock;
// there is no separate distributed lock.
func lockContract(tx *gorm.DB, contractID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	err := forUpdate(tx).
		First(&contract, "id = ?", contractID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock contract %s: %w", contractID, err)
	}
	return &contract, nil
}

func lockAnswer(tx *gorm.DB, contractID, answerID uuid.UUID) (*models.Answer, error) {
	var answer models.Answer
	err := forUpdate(tx).
		First(&answer, "id = ? AND contract_id = ?", answerID, contractID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAnswerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock answer %s: %w", answerID, err)
	}
	return &answer, nil
}

func findAnswer(contract *models.Contract, answerID uuid.UUID) *models.Answer {
	for i := range contract.Answers {
		if contract.Answers[i].ID == answerID {
			return &contract.Answers[i]
		}
	}
	return nil
}
