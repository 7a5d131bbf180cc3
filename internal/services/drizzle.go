package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"mana-market/internal/cpmm"
	"mana-market/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DrizzleAmount draws the slice of a subsidy pool to release this tick.
// r is uniform in [0,1). Pools at or below one mana drain completely so
// dust never accumulates; otherwise the expected fraction grows with market
// popularity but the draw stays randomized, so drizzle timing is
// unpredictable rather than a fixed trickle.
func DrizzleAmount(r, popularityScore, subsidyPool float64) float64 {
	if subsidyPool <= 1 {
		return subsidyPool
	}
	v := cpmm.Clamp(math.Log10(popularityScore+10), 1, 4)
	return r * v * 0.2 * subsidyPool
}

// DrizzleContract releases one randomized slice of a contract's subsidy
// pool into its live pool, in one transaction against a fresh snapshot. A
// pool already drained by a concurrent run is skipped. An overflowing
// weight fails only this contract with ErrLiquidityOverflow.
func (s *LiquidityService) DrizzleContract(ctx context.Context, contractID uuid.UUID, r float64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contract, err := lockContract(tx, contractID)
		if err != nil {
			return err
		}
		if contract.IsResolved() || contract.SubsidyPool < cpmm.Epsilon {
			return nil
		}

		amount := DrizzleAmount(r, contract.PopularityScore, contract.SubsidyPool)
		if amount < cpmm.Epsilon {
			return nil
		}

		if contract.Mechanism == models.MechanismCPMMMulti {
			return s.drizzleIntoAnswers(tx, contract, amount)
		}

		pool := cpmm.Pool{Yes: contract.PoolYes, No: contract.PoolNo}
		result := cpmm.AddLiquidity(pool, contract.P, amount)
		if !cpmm.IsFinite(result.NewP) {
			return fmt.Errorf("drizzle %f on contract %s: %w", amount, contract.ID, ErrLiquidityOverflow)
		}

		return tx.Model(contract).Updates(map[string]interface{}{
			"pool_yes":     result.NewPool.Yes,
			"pool_no":      result.NewPool.No,
			"p":            result.NewP,
			"subsidy_pool": gorm.Expr("subsidy_pool - ?", amount),
			"updated_at":   time.Now(),
		}).Error
	})
}

// drizzleIntoAnswers distributes a contract-level subsidy slice across the
// unresolved answers, converting thrown-away shares between siblings when
// the answers must sum to one.
func (s *LiquidityService) drizzleIntoAnswers(tx *gorm.DB, contract *models.Contract, amount float64) error {
	var answers []models.Answer
	if err := forUpdate(tx).
		Where("contract_id = ? AND resolution IS NULL", contract.ID).
		Find(&answers).Error; err != nil {
		return fmt.Errorf("failed to load answers: %w", err)
	}
	if len(answers) == 0 {
		return nil
	}

	pools := make(map[string]cpmm.Pool, len(answers))
	for i := range answers {
		pools[answers[i].ID.String()] = cpmm.Pool{Yes: answers[i].PoolYes, No: answers[i].PoolNo}
	}

	var newPools map[string]cpmm.Pool
	if contract.ShouldAnswersSumToOne {
		newPools = cpmm.AddMultiLiquidityAnswersSumToOne(pools, amount)
	} else {
		newPools = cpmm.AddMultiLiquidityIndependently(pools, amount)
	}

	now := time.Now()
	for i := range answers {
		newPool := newPools[answers[i].ID.String()]
		if err := tx.Model(&answers[i]).Updates(map[string]interface{}{
			"pool_yes":   newPool.Yes,
			"pool_no":    newPool.No,
			"updated_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update answer pool: %w", err)
		}
	}

	return tx.Model(contract).Updates(map[string]interface{}{
		"subsidy_pool": gorm.Expr("subsidy_pool - ?", amount),
		"updated_at":   now,
	}).Error
}

// DrizzleAnswer releases a slice of one answer's own subsidy pool.
func (s *LiquidityService) DrizzleAnswer(ctx context.Context, answerID uuid.UUID, r float64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var answer models.Answer
		if err := forUpdate(tx).First(&answer, "id = ?", answerID).Error; err != nil {
			return fmt.Errorf("failed to lock answer %s: %w", answerID, err)
		}
		if answer.IsResolved() || answer.SubsidyPool < cpmm.Epsilon {
			return nil
		}

		amount := answer.SubsidyPool
		if amount > 1 {
			amount = r * 0.2 * answer.SubsidyPool
		}
		if amount < cpmm.Epsilon {
			return nil
		}

		pool := cpmm.Pool{Yes: answer.PoolYes, No: answer.PoolNo}
		result := cpmm.AddLiquidityFixedP(pool, amount)

		return tx.Model(&answer).Updates(map[string]interface{}{
			"pool_yes":     result.NewPool.Yes,
			"pool_no":      result.NewPool.No,
			"subsidy_pool": gorm.Expr("subsidy_pool - ?", amount),
			"updated_at":   time.Now(),
		}).Error
	})
}

// ListDrizzleTargets returns the contracts and answers whose subsidy pools
// still hold anything worth releasing.
func (s *LiquidityService) ListDrizzleTargets(ctx context.Context) (contractIDs, answerIDs []uuid.UUID, err error) {
	var contracts []models.Contract
	if err := s.db.WithContext(ctx).
		Select("id").
		Where("subsidy_pool > ? AND resolution IS NULL", cpmm.Epsilon).
		Find(&contracts).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to list drizzle contracts: %w", err)
	}
	for i := range contracts {
		contractIDs = append(contractIDs, contracts[i].ID)
	}

	var answers []models.Answer
	if err := s.db.WithContext(ctx).
		Select("id").
		Where("subsidy_pool > ? AND resolution IS NULL", cpmm.Epsilon).
		Find(&answers).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to list drizzle answers: %w", err)
	}
	for i := range answers {
		answerIDs = append(answerIDs, answers[i].ID)
	}

	return contractIDs, answerIDs, nil
}
