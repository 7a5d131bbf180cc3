package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"mana-market/internal/services"
)

// LoanAccrualJob integrates outstanding loan principal into each position's
// day integral on a fixed cadence. Failures are isolated per row: one bad
// position is logged and the rest of the batch proceeds.
type LoanAccrualJob struct {
	loans    *services.LoanService
	interval time.Duration
	workers  int
	stopChan chan struct{}
}

// NewLoanAccrualJob creates a new loan accrual job
func NewLoanAccrualJob(loans *services.LoanService, interval time.Duration, workers int) *LoanAccrualJob {
	return &LoanAccrualJob{
		loans:    loans,
		interval: interval,
		workers:  workers,
		stopChan: make(chan struct{}),
	}
}

// Start begins the accrual loop
func (lj *LoanAccrualJob) Start() {
	log.Printf("[LoanAccrual] Starting loan accrual job (interval: %v)", lj.interval)

	ticker := time.NewTicker(lj.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lj.RunOnce(context.Background())
		case <-lj.stopChan:
			log.Println("[LoanAccrual] Stopping loan accrual job")
			return
		}
	}
}

// Stop stops the accrual loop
func (lj *LoanAccrualJob) Stop() {
	close(lj.stopChan)
}

// RunOnce executes a single accrual pass over all outstanding loans.
func (lj *LoanAccrualJob) RunOnce(ctx context.Context) {
	rows, err := lj.loans.ListOutstanding(ctx)
	if err != nil {
		log.Printf("[LoanAccrual] Error listing outstanding loans: %v", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	now := time.Now()
	sem := make(chan struct{}, lj.workers)
	var wg sync.WaitGroup

	for i := range rows {
		row := rows[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := lj.loans.Accrue(ctx, &row, now); err != nil {
				log.Printf("[LoanAccrual] Error accruing loan for user %d on contract %s: %v",
					row.UserID, row.ContractID, err)
			}
		}()
	}
	wg.Wait()
}
