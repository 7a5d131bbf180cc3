package services

import (
	"context"
	"fmt"
	"math"

	"mana-market/internal/cpmm"
	"mana-market/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RedemptionService cancels exactly-offsetting YES/NO positions and returns
// the freed-up mana, net of outstanding loans.
type RedemptionService struct {
	db    *gorm.DB
	loans *LoanService
}

// NewRedemptionService creates a new redemption service
func NewRedemptionService(db *gorm.DB, loans *LoanService) *RedemptionService {
	return &RedemptionService{db: db, loans: loans}
}

// RedeemableAmount is the outcome of matching a user's opposing positions.
type RedeemableAmount struct {
	Shares      float64
	LoanPayment float64
	NetAmount   float64
}

// GetRedeemableAmount computes how many shares cancel out: the minimum of
// the signed YES and NO positions. The outstanding loan is repaid out of the
// redeemed value first, capped at the redeemed shares.
func GetRedeemableAmount(bets []models.Bet, outstandingLoan float64) RedeemableAmount {
	var yesShares, noShares float64
	for _, bet := range bets {
		switch bet.Outcome {
		case models.OutcomeYes:
			yesShares += bet.Shares
		case models.OutcomeNo:
			noShares += bet.Shares
		}
	}

	shares := math.Min(yesShares, noShares)
	if shares < 0 {
		shares = 0
	}
	loanPayment := math.Min(math.Max(outstandingLoan, 0), shares)

	return RedeemableAmount{
		Shares:      shares,
		LoanPayment: loanPayment,
		NetAmount:   shares - loanPayment,
	}
}

// RedemptionResult reports what one RedeemShares call did.
type RedemptionResult struct {
	Shares      float64
	LoanPayment float64
	NetAmount   float64
}

// RedeemShares cancels the user's matched opposing shares on a contract and
// credits the net value to their balance, atomically. When nothing is
// redeemable the call is a no-op and succeeds, which makes repeated and
// concurrent invocations safe: a second call finds shares ~ 0 and writes
// nothing. Resolved contracts reject with ErrAlreadyResolved: their matched
// positions were already paid at resolution. A non-finite net amount
// indicates corrupted upstream data and fails with ErrNonFiniteRedemption.
func (s *RedemptionService) RedeemShares(ctx context.Context, userID uint, contractID uuid.UUID) (*RedemptionResult, error) {
	result := &RedemptionResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contract, err := lockContract(tx, contractID)
		if err != nil {
			return err
		}
		// Resolution already valued every matched position; the bets stay on
		// record, so redeeming them again would mint money.
		if contract.IsResolved() {
			return ErrAlreadyResolved
		}

		var bets []models.Bet
		if err := tx.Where("user_id = ? AND contract_id = ?", userID, contract.ID).
			Find(&bets).Error; err != nil {
			return fmt.Errorf("failed to load bets: %w", err)
		}

		var loanRows []models.LoanTracking
		if err := tx.Where("user_id = ? AND contract_id = ?", userID, contract.ID).
			Find(&loanRows).Error; err != nil {
			return fmt.Errorf("failed to load loan tracking: %w", err)
		}
		loanByKey := map[string]float64{}
		for _, row := range loanRows {
			loanByKey[row.AnswerKey] = row.LoanAmount
		}

		if contract.Mechanism == models.MechanismCPMMMulti {
			var answers []models.Answer
			if err := tx.Where("contract_id = ?", contract.ID).Find(&answers).Error; err != nil {
				return fmt.Errorf("failed to load answers: %w", err)
			}
			return s.redeemMulti(tx, userID, contract, answers, bets, loanByKey, result)
		}
		return s.redeemBinary(tx, userID, contract, bets, loanByKey[""], result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RedemptionService) redeemBinary(tx *gorm.DB, userID uint, contract *models.Contract, bets []models.Bet, outstandingLoan float64, result *RedemptionResult) error {
	redeemable := GetRedeemableAmount(bets, outstandingLoan)
	if cpmm.FloatingEqual(redeemable.Shares, 0) {
		return nil
	}
	if !cpmm.IsFinite(redeemable.NetAmount) {
		return fmt.Errorf("user %d on contract %s: %w", userID, contract.ID, ErrNonFiniteRedemption)
	}

	prob := cpmm.Probability(cpmm.Pool{Yes: contract.PoolYes, No: contract.PoolNo}, contract.P)

	// One YES and one NO redemption bet at the last observed probability,
	// shares signed opposite to the position they cancel.
	redemptionBets := []models.Bet{
		{
			ID:           uuid.New(),
			UserID:       userID,
			ContractID:   contract.ID,
			Outcome:      models.OutcomeYes,
			Amount:       -redeemable.Shares * prob,
			Shares:       -redeemable.Shares,
			LoanAmount:   -redeemable.LoanPayment / 2,
			IsRedemption: true,
			ProbBefore:   prob,
			ProbAfter:    prob,
		},
		{
			ID:           uuid.New(),
			UserID:       userID,
			ContractID:   contract.ID,
			Outcome:      models.OutcomeNo,
			Amount:       -redeemable.Shares * (1 - prob),
			Shares:       -redeemable.Shares,
			LoanAmount:   -redeemable.LoanPayment / 2,
			IsRedemption: true,
			ProbBefore:   prob,
			ProbAfter:    prob,
		},
	}
	if err := tx.Create(&redemptionBets).Error; err != nil {
		return fmt.Errorf("failed to insert redemption bets: %w", err)
	}

	if redeemable.LoanPayment > 0 {
		if err := s.loans.DecrementLoan(tx, userID, contract.ID, "", redeemable.LoanPayment); err != nil {
			return fmt.Errorf("failed to decrement loan: %w", err)
		}
	}

	if err := creditBalance(tx, userID, redeemable.NetAmount); err != nil {
		return err
	}

	result.Shares = redeemable.Shares
	result.LoanPayment = redeemable.LoanPayment
	result.NetAmount = redeemable.NetAmount
	return nil
}

func (s *RedemptionService) redeemMulti(tx *gorm.DB, userID uint, contract *models.Contract, answers []models.Answer, bets []models.Bet, loanByKey map[string]float64, result *RedemptionResult) error {
	betsByAnswer := map[uuid.UUID][]models.Bet{}
	for _, bet := range bets {
		if bet.AnswerID != nil {
			betsByAnswer[*bet.AnswerID] = append(betsByAnswer[*bet.AnswerID], bet)
		}
	}

	var totalNet float64
	for i := range answers {
		answer := &answers[i]
		if answer.IsResolved() {
			continue
		}

		redeemable := GetRedeemableAmount(betsByAnswer[answer.ID], loanByKey[answer.ID.String()])
		if cpmm.FloatingEqual(redeemable.Shares, 0) {
			continue
		}
		if !cpmm.IsFinite(redeemable.NetAmount) {
			return fmt.Errorf("user %d on answer %s: %w", userID, answer.ID, ErrNonFiniteRedemption)
		}

		prob := cpmm.Probability(cpmm.Pool{Yes: answer.PoolYes, No: answer.PoolNo}, 0.5)

		// A single redemption bet against the answer's pool-implied prob.
		answerID := answer.ID
		redemptionBet := models.Bet{
			ID:           uuid.New(),
			UserID:       userID,
			ContractID:   contract.ID,
			AnswerID:     &answerID,
			Outcome:      models.OutcomeYes,
			Amount:       -redeemable.NetAmount,
			Shares:       -redeemable.Shares,
			LoanAmount:   -redeemable.LoanPayment,
			IsRedemption: true,
			ProbBefore:   prob,
			ProbAfter:    prob,
		}
		if err := tx.Create(&redemptionBet).Error; err != nil {
			return fmt.Errorf("failed to insert redemption bet: %w", err)
		}

		if redeemable.LoanPayment > 0 {
			if err := s.loans.DecrementLoan(tx, userID, contract.ID, answer.ID.String(), redeemable.LoanPayment); err != nil {
				return fmt.Errorf("failed to decrement loan: %w", err)
			}
		}

		totalNet += redeemable.NetAmount
		result.Shares += redeemable.Shares
		result.LoanPayment += redeemable.LoanPayment
	}

	if totalNet != 0 {
		if err := creditBalance(tx, userID, totalNet); err != nil {
			return err
		}
	}
	result.NetAmount = totalNet
	return nil
}

func creditBalance(tx *gorm.DB, userID uint, amount float64) error {
	resultDB := tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("balance", gorm.Expr("balance + ?", amount))
	if resultDB.Error != nil {
		return fmt.Errorf("failed to credit user %d: %w", userID, resultDB.Error)
	}
	if resultDB.RowsAffected == 0 {
		return fmt.Errorf("user %d not found for redemption credit", userID)
	}
	return nil
}
