package models

import (
	"time"

	"github.com/google/uuid"
)

// Bet is a position change on a contract. A redemption bet
// (IsRedemption=true) records the cancellation of matched opposing shares;
// its shares are signed opposite to the position it cancels. Bets are
// created once and never mutated.
type Bet struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index:idx_bets_user_contract" json:"user_id"`
	ContractID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_bets_user_contract;index" json:"contract_id"`
	AnswerID     *uuid.UUID `gorm:"type:uuid;index" json:"answer_id,omitempty"`
	Outcome      Outcome    `gorm:"size:10;not null" json:"outcome"`
	Amount       float64    `gorm:"type:decimal(20,8);not null" json:"amount"`
	Shares       float64    `gorm:"type:decimal(20,8);not null" json:"shares"`
	LoanAmount   float64    `gorm:"type:decimal(20,8);not null;default:0" json:"loan_amount"`
	IsRedemption bool       `gorm:"not null;default:false" json:"is_redemption"`
	ProbBefore   float64    `gorm:"type:decimal(20,8);not null" json:"prob_before"`
	ProbAfter    float64    `gorm:"type:decimal(20,8);not null" json:"prob_after"`
	CreatedAt    time.Time  `gorm:"index;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Bet) TableName() string {
	return "bets"
}
