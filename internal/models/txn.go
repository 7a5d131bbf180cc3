package models

import (
	"time"

	"github.com/google/uuid"
)

// TxnPartyType identifies the kind of party on either side of a ledger entry
type TxnPartyType string

const (
	TxnPartyBank     TxnPartyType = "BANK"     // conceptually infinite balance
	TxnPartyUser     TxnPartyType = "USER"     // transferable balance
	TxnPartyContract TxnPartyType = "CONTRACT" // holds pool state, not balance
)

// Txn categories used by the core
const (
	TxnCategoryAddSubsidy              = "ADD_SUBSIDY"
	TxnCategoryResolutionPayout        = "CONTRACT_RESOLUTION_PAYOUT"
	TxnCategoryResolutionFee           = "CONTRACT_RESOLUTION_FEE"
	TxnCategoryUndoResolutionFee       = "UNDO_CONTRACT_RESOLUTION_FEE"
	TxnCategoryUndoResolutionPayout    = "CONTRACT_UNDO_RESOLUTION_PAYOUT"
	TxnCategoryMarketBoostRedeem       = "MARKET_BOOST_REDEEM"
	TxnCategoryCancelMarketBoostRedeem = "CANCEL_MARKET_BOOST_REDEEM"
)

// TxnToken is the currency a txn moves
type TxnToken string

const TokenMana TxnToken = "M$"

// TxnData is the free-form payload attached to a ledger entry. RevertsTxnID
// marks a compensating entry; the original is never mutated or deleted.
type TxnData map[string]interface{}

// Txn is an immutable, append-only ledger entry moving value between typed
// parties. The ledger is the sole source of truth for balances; the only
// correction mechanism is a new Txn with inverted amount and
// data.revertsTxnId set.
type Txn struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	FromType    TxnPartyType `gorm:"size:20;not null" json:"from_type"`
	FromID      string       `gorm:"size:64;not null;index" json:"from_id"`
	ToType      TxnPartyType `gorm:"size:20;not null" json:"to_type"`
	ToID        string       `gorm:"size:64;not null;index" json:"to_id"`
	Amount      float64      `gorm:"type:decimal(20,8);not null" json:"amount"`
	Token       TxnToken     `gorm:"size:10;not null;default:'M$'" json:"token"`
	Category    string       `gorm:"size:64;not null;index" json:"category"`
	Description string       `gorm:"type:text" json:"description"`
	Data        TxnData      `gorm:"serializer:json" json:"data,omitempty"`
	CreatedAt   time.Time    `gorm:"index;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Txn) TableName() string {
	return "txns"
}

// ContractID extracts the contract id recorded in the txn payload, if any.
func (t *Txn) ContractID() string {
	if t.Data == nil {
		return ""
	}
	if id, ok := t.Data["contractId"].(string); ok {
		return id
	}
	return ""
}

// RevertsTxnID extracts the id of the txn this entry compensates, if any.
func (t *Txn) RevertsTxnID() string {
	if t.Data == nil {
		return ""
	}
	if id, ok := t.Data["revertsTxnId"].(string); ok {
		return id
	}
	return ""
}

// TxnDraft is the caller-supplied part of a ledger entry
type TxnDraft struct {
	FromType    TxnPartyType
	FromID      string
	ToType      TxnPartyType
	ToID        string
	Amount      float64
	Token       TxnToken
	Category    string
	Description string
	Data        TxnData
}
