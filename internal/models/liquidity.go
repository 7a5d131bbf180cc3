package models

import (
	"time"

	"github.com/google/uuid"
)

// LiquidityProvision is an immutable record of one liquidity-changing
// operation, with a snapshot of the pool it was applied to.
type LiquidityProvision struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	ContractID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"contract_id"`
	AnswerID    *uuid.UUID `gorm:"type:uuid;index" json:"answer_id,omitempty"`
	Amount      float64    `gorm:"type:decimal(20,8);not null" json:"amount"`
	Liquidity   float64    `gorm:"type:decimal(20,8);not null" json:"liquidity"`
	PoolYes     float64    `gorm:"type:decimal(20,8);not null" json:"pool_yes"`
	PoolNo      float64    `gorm:"type:decimal(20,8);not null" json:"pool_no"`
	P           float64    `gorm:"type:decimal(20,8);not null" json:"p"`
	IsSubsidy   bool       `gorm:"not null;default:false" json:"is_subsidy"`
	CreatedAt   time.Time  `gorm:"index;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (LiquidityProvision) TableName() string {
	return "liquidity_provisions"
}
