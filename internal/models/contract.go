package models

import (
	"time"

	"github.com/google/uuid"
)

// Mechanism identifies how a contract is priced
type Mechanism string

const (
	MechanismCPMM      Mechanism = "cpmm-1"       // binary, weighted constant product
	MechanismCPMMMulti Mechanism = "cpmm-multi-1" // multiple answers, p fixed at 0.5
)

// Outcome constants
type Outcome string

const (
	OutcomeYes    Outcome = "YES"
	OutcomeNo     Outcome = "NO"
	OutcomeMkt    Outcome = "MKT"    // resolves to a probability
	OutcomeCancel Outcome = "CANCEL" // void, refunds
)

// Contract represents a prediction-market contract backed by an AMM pool.
// Invariant while unresolved: PoolYes > 0, PoolNo > 0 and 0 < P < 1.
type Contract struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatorID             uint       `gorm:"not null;index" json:"creator_id"`
	Question              string     `gorm:"type:text;not null" json:"question"`
	Mechanism             Mechanism  `gorm:"size:50;not null;index" json:"mechanism"`
	PoolYes               float64    `gorm:"type:decimal(20,8);not null" json:"pool_yes"`
	PoolNo                float64    `gorm:"type:decimal(20,8);not null" json:"pool_no"`
	P                     float64    `gorm:"type:decimal(20,8);not null" json:"p"`
	SubsidyPool           float64    `gorm:"type:decimal(20,8);not null;default:0" json:"subsidy_pool"`
	TotalLiquidity        float64    `gorm:"type:decimal(20,8);not null;default:0" json:"total_liquidity"`
	PopularityScore       float64    `gorm:"not null;default:0" json:"popularity_score"`
	ShouldAnswersSumToOne bool       `gorm:"not null;default:false" json:"should_answers_sum_to_one"`
	Resolution            *Outcome   `gorm:"size:20" json:"resolution,omitempty"`
	ResolutionProbability *float64   `gorm:"type:decimal(20,8)" json:"resolution_probability,omitempty"`
	ResolverID            *uint      `json:"resolver_id,omitempty"`
	ResolutionTime        *time.Time `json:"resolution_time,omitempty"`
	CloseTime             *time.Time `json:"close_time,omitempty"`
	Answers               []Answer   `gorm:"foreignKey:ContractID" json:"answers,omitempty"`
	CreatedAt             time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Contract) TableName() string {
	return "contracts"
}

// IsResolved reports whether the contract has reached a terminal resolution.
func (c *Contract) IsResolved() bool {
	return c.Resolution != nil
}

// Answer is one outcome of a cpmm-multi-1 contract. It carries its own pool
// (p fixed at 0.5) and its own subsidy counters, and may resolve
// independently of its siblings.
type Answer struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ContractID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"contract_id"`
	Text           string     `gorm:"type:text;not null" json:"text"`
	PoolYes        float64    `gorm:"type:decimal(20,8);not null" json:"pool_yes"`
	PoolNo         float64    `gorm:"type:decimal(20,8);not null" json:"pool_no"`
	SubsidyPool    float64    `gorm:"type:decimal(20,8);not null;default:0" json:"subsidy_pool"`
	TotalLiquidity float64    `gorm:"type:decimal(20,8);not null;default:0" json:"total_liquidity"`
	Resolution     *Outcome   `gorm:"size:20" json:"resolution,omitempty"`
	ResolutionTime *time.Time `json:"resolution_time,omitempty"`
	CreatedAt      time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Answer) TableName() string {
	return "answers"
}

func (a *Answer) IsResolved() bool {
	return a.Resolution != nil
}

// ---- Request/Response DTOs ----

// QuoteRequest is the query params for pricing a hypothetical bet
type QuoteRequest struct {
	Amount   float64 `form:"amount" binding:"required,gt=0"`
	Outcome  string  `form:"outcome" binding:"required,oneof=YES NO"`
	AnswerID string  `form:"answer_id"`
}

// QuoteResponse is the response for a pricing quote
type QuoteResponse struct {
	PoolYes        float64 `json:"pool_yes"`
	PoolNo         float64 `json:"pool_no"`
	Shares         float64 `json:"shares"`
	NewProbability float64 `json:"new_probability"`
}

// AddSubsidyRequest is the request body for subsidizing a contract
type AddSubsidyRequest struct {
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	AnswerID string  `json:"answer_id"`
}

// ResolveRequest is the request body for resolving a contract or answer
type ResolveRequest struct {
	Outcome        string   `json:"outcome" binding:"required,oneof=YES NO MKT CANCEL"`
	AnswerID       string   `json:"answer_id"`
	ProbabilityInt *float64 `json:"probability_int"` // percent, required for MKT
}

// ContractResponse is the API response for a contract
type ContractResponse struct {
	ID             string     `json:"id"`
	Question       string     `json:"question"`
	Mechanism      string     `json:"mechanism"`
	Probability    float64    `json:"probability"`
	PoolYes        float64    `json:"pool_yes"`
	PoolNo         float64    `json:"pool_no"`
	SubsidyPool    float64    `json:"subsidy_pool"`
	TotalLiquidity float64    `json:"total_liquidity"`
	Resolution     *Outcome   `json:"resolution,omitempty"`
	ResolutionTime *time.Time `json:"resolution_time,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
