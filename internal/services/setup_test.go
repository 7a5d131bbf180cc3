package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mana-market/internal/models"
)

// setupTestDB opens a fresh in-memory database per test. The name keeps each
// test isolated while letting the pooled connections share one database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	// One connection keeps concurrent transactions queued instead of
	// tripping SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Contract{},
		&models.Answer{},
		&models.Bet{},
		&models.LiquidityProvision{},
		&models.LoanTracking{},
		&models.Txn{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

func createUser(t *testing.T, db *gorm.DB, id uint, balance float64) {
	t.Helper()
	user := models.User{
		ID:       id,
		Username: "user-" + uuid.NewString()[:8],
		Balance:  decimal.NewFromFloat(balance),
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %d: %v", id, err)
	}
}

func userBalance(t *testing.T, db *gorm.DB, id uint) float64 {
	t.Helper()
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to load user %d: %v", id, err)
	}
	return user.Balance.InexactFloat64()
}

func createBinaryContract(t *testing.T, db *gorm.DB, poolYes, poolNo, p float64) *models.Contract {
	t.Helper()
	contract := &models.Contract{
		ID:        uuid.New(),
		CreatorID: 1,
		Question:  "Will it happen?",
		Mechanism: models.MechanismCPMM,
		PoolYes:   poolYes,
		PoolNo:    poolNo,
		P:         p,
	}
	if err := db.Create(contract).Error; err != nil {
		t.Fatalf("failed to create contract: %v", err)
	}
	return contract
}

func createMultiContract(t *testing.T, db *gorm.DB, sumsToOne bool, answerPools ...float64) (*models.Contract, []models.Answer) {
	t.Helper()
	contract := &models.Contract{
		ID:                    uuid.New(),
		CreatorID:             1,
		Question:              "Which one?",
		Mechanism:             models.MechanismCPMMMulti,
		PoolYes:               0,
		PoolNo:                0,
		P:                     0.5,
		ShouldAnswersSumToOne: sumsToOne,
	}
	if err := db.Create(contract).Error; err != nil {
		t.Fatalf("failed to create contract: %v", err)
	}

	answers := make([]models.Answer, 0, len(answerPools)/2)
	for i := 0; i+1 < len(answerPools); i += 2 {
		answer := models.Answer{
			ID:         uuid.New(),
			ContractID: contract.ID,
			Text:       "Answer",
			PoolYes:    answerPools[i],
			PoolNo:     answerPools[i+1],
		}
		if err := db.Create(&answer).Error; err != nil {
			t.Fatalf("failed to create answer: %v", err)
		}
		answers = append(answers, answer)
	}
	return contract, answers
}

func createBet(t *testing.T, db *gorm.DB, userID uint, contractID uuid.UUID, answerID *uuid.UUID, outcome models.Outcome, amount, shares, loan float64) {
	t.Helper()
	bet := models.Bet{
		ID:         uuid.New(),
		UserID:     userID,
		ContractID: contractID,
		AnswerID:   answerID,
		Outcome:    outcome,
		Amount:     amount,
		Shares:     shares,
		LoanAmount: loan,
		ProbBefore: 0.5,
		ProbAfter:  0.5,
	}
	if err := db.Create(&bet).Error; err != nil {
		t.Fatalf("failed to create bet: %v", err)
	}
}

func createProvision(t *testing.T, db *gorm.DB, userID uint, contractID uuid.UUID, answerID *uuid.UUID, amount float64) {
	t.Helper()
	provision := models.LiquidityProvision{
		ID:         uuid.New(),
		UserID:     userID,
		ContractID: contractID,
		AnswerID:   answerID,
		Amount:     amount,
		Liquidity:  amount,
		PoolYes:    100,
		PoolNo:     100,
		P:          0.5,
	}
	if err := db.Create(&provision).Error; err != nil {
		t.Fatalf("failed to create provision: %v", err)
	}
}
