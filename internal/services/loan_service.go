package services

import (
	"context"
	"fmt"
	"time"

	"mana-market/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoanService tracks margin loans accrued against open positions. Rows are
// upserted additively per (user, contract, answer-or-'') and only removed
// when the position closes.
type LoanService struct {
	db *gorm.DB
}

// NewLoanService creates a new loan service
func NewLoanService(db *gorm.DB) *LoanService {
	return &LoanService{db: db}
}

// UpsertLoanTracking additively bumps the loan principal and day integral
// for one position. On conflict the deltas are added to the existing row and
// the update time advances; there is no subtraction path here.
func (s *LoanService) UpsertLoanTracking(tx *gorm.DB, userID uint, contractID uuid.UUID, answerID *uuid.UUID, deltaLoan, deltaIntegral float64, now time.Time) error {
	row := &models.LoanTracking{
		UserID:             userID,
		ContractID:         contractID,
		AnswerKey:          models.AnswerKeyFor(answerID),
		LoanAmount:         deltaLoan,
		LoanDayIntegral:    deltaIntegral,
		LastLoanUpdateTime: now,
	}

	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "contract_id"}, {Name: "answer_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"loan_amount":           gorm.Expr("loan_amount + ?", deltaLoan),
			"loan_day_integral":     gorm.Expr("loan_day_integral + ?", deltaIntegral),
			"last_loan_update_time": now,
			"updated_at":            now,
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert loan tracking: %w", err)
	}
	return nil
}

// GetLoanTrackingForContract returns all loan rows for a contract.
func (s *LoanService) GetLoanTrackingForContract(ctx context.Context, contractID uuid.UUID) ([]models.LoanTracking, error) {
	var rows []models.LoanTracking
	if err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get loan tracking: %w", err)
	}
	return rows, nil
}

// GetLoanTrackingForAnswer returns a contract's loan rows scoped to one
// answer; the empty key selects whole-contract rows.
func (s *LoanService) GetLoanTrackingForAnswer(ctx context.Context, contractID uuid.UUID, answerKey string) ([]models.LoanTracking, error) {
	var rows []models.LoanTracking
	if err := s.db.WithContext(ctx).
		Where("contract_id = ? AND answer_key = ?", contractID, answerKey).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get loan tracking: %w", err)
	}
	return rows, nil
}

// DecrementLoan reduces the outstanding principal after a repayment or a
// redemption. The row survives at zero until the position fully closes.
func (s *LoanService) DecrementLoan(tx *gorm.DB, userID uint, contractID uuid.UUID, answerKey string, amount float64) error {
	return tx.Model(&models.LoanTracking{}).
		Where("user_id = ? AND contract_id = ? AND answer_key = ?", userID, contractID, answerKey).
		UpdateColumn("loan_amount", gorm.Expr("loan_amount - ?", amount)).Error
}

// ClearLoanTracking removes the row when the position closes.
func (s *LoanService) ClearLoanTracking(tx *gorm.DB, userID uint, contractID uuid.UUID, answerKey string) error {
	return tx.
		Where("user_id = ? AND contract_id = ? AND answer_key = ?", userID, contractID, answerKey).
		Delete(&models.LoanTracking{}).Error
}

// ListOutstanding returns rows with positive principal, for the accrual job.
func (s *LoanService) ListOutstanding(ctx context.Context) ([]models.LoanTracking, error) {
	var rows []models.LoanTracking
	if err := s.db.WithContext(ctx).
		Where("loan_amount > 0").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list outstanding loans: %w", err)
	}
	return rows, nil
}

// Accrue folds the time elapsed since the last update into the day
// integral: principal held for one day adds principal*1 to the integral.
func (s *LoanService) Accrue(ctx context.Context, row *models.LoanTracking, now time.Time) error {
	days := now.Sub(row.LastLoanUpdateTime).Hours() / 24
	if days <= 0 {
		return nil
	}

	return s.db.WithContext(ctx).Model(&models.LoanTracking{}).
		Where("id = ? AND last_loan_update_time = ?", row.ID, row.LastLoanUpdateTime).
		Updates(map[string]interface{}{
			"loan_day_integral":     gorm.Expr("loan_day_integral + ?", row.LoanAmount*days),
			"last_loan_update_time": now,
			"updated_at":            now,
		}).Error
}
