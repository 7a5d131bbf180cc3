package models

import (
	"time"

	"github.com/google/uuid"
)

// LoanTracking accrues margin-loan exposure per (user, contract, answer).
// AnswerKey is the coalesced answer id ("" for whole-contract rows) so the
// uniqueness constraint works across both binary and multi contracts.
// LoanDayIntegral is the running integral of outstanding loan over days.
type LoanTracking struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"not null;uniqueIndex:idx_loan_user_contract_answer" json:"user_id"`
	ContractID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_loan_user_contract_answer;index" json:"contract_id"`
	AnswerKey          string     `gorm:"size:64;not null;default:'';uniqueIndex:idx_loan_user_contract_answer" json:"answer_key"`
	LoanAmount         float64    `gorm:"type:decimal(20,8);not null;default:0" json:"loan_amount"`
	LoanDayIntegral    float64    `gorm:"type:decimal(20,8);not null;default:0" json:"loan_day_integral"`
	LastLoanUpdateTime time.Time  `gorm:"not null" json:"last_loan_update_time"`
	CreatedAt          time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (LoanTracking) TableName() string {
	return "loan_tracking"
}

// AnswerKeyFor coalesces an optional answer id into the tracking key.
func AnswerKeyFor(answerID *uuid.UUID) string {
	if answerID == nil {
		return ""
	}
	return answerID.String()
}
