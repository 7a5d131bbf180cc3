package services

import (
	"sort"

	"mana-market/internal/cpmm"
	"mana-market/internal/models"
)

// Payout is one user's share of a contract's resolution value. Deposit is
// the portion that is principal rather than profit.
type Payout struct {
	UserID  uint
	Payout  float64
	Deposit float64
}

// traderPayouts computes what each bet is worth under the resolution
// outcome. YES/NO pay matching shares at 1, MKT pays shares at the
// resolution probability, CANCEL refunds the amount paid. Redemption bets
// carry signed-negative amounts and shares, so they net out naturally.
func traderPayouts(bets []models.Bet, outcome models.Outcome, resolutionProb float64) []Payout {
	payouts := make([]Payout, 0, len(bets))
	for _, bet := range bets {
		var value float64
		switch outcome {
		case models.OutcomeYes:
			if bet.Outcome == models.OutcomeYes {
				value = bet.Shares
			}
		case models.OutcomeNo:
			if bet.Outcome == models.OutcomeNo {
				value = bet.Shares
			}
		case models.OutcomeMkt:
			if bet.Outcome == models.OutcomeYes {
				value = bet.Shares * resolutionProb
			} else {
				value = bet.Shares * (1 - resolutionProb)
			}
		case models.OutcomeCancel:
			value = bet.Amount
		}
		payouts = append(payouts, Payout{UserID: bet.UserID, Payout: value, Deposit: bet.Amount})
	}
	return payouts
}

// loanPayouts deducts each bet's outstanding loan from its payout. Loans on
// redemption bets are negative, so partially repaid loans net correctly.
func loanPayouts(bets []models.Bet) []Payout {
	payouts := make([]Payout, 0)
	for _, bet := range bets {
		if bet.LoanAmount != 0 {
			payouts = append(payouts, Payout{UserID: bet.UserID, Payout: -bet.LoanAmount})
		}
	}
	return payouts
}

// liquidityPayouts splits the residual pool value among liquidity providers
// by their net contributed weight. For CANCEL every provision is refunded
// instead.
func liquidityPayouts(provisions []models.LiquidityProvision, outcome models.Outcome, pool cpmm.Pool, subsidyPool, resolutionProb float64) []Payout {
	if outcome == models.OutcomeCancel {
		payouts := make([]Payout, 0, len(provisions))
		for _, prov := range provisions {
			if prov.Amount != 0 {
				payouts = append(payouts, Payout{UserID: prov.UserID, Payout: prov.Amount, Deposit: prov.Amount})
			}
		}
		return payouts
	}

	var finalPool float64
	switch outcome {
	case models.OutcomeYes:
		finalPool = pool.Yes + subsidyPool
	case models.OutcomeNo:
		finalPool = pool.No + subsidyPool
	case models.OutcomeMkt:
		finalPool = resolutionProb*pool.Yes + (1-resolutionProb)*pool.No + subsidyPool
	}
	if finalPool < cpmm.Epsilon {
		return nil
	}

	stakes := make([]cpmm.ProviderStake, 0, len(provisions))
	for _, prov := range provisions {
		stakes = append(stakes, cpmm.ProviderStake{
			UserID:      prov.UserID,
			Amount:      prov.Amount,
			CreatedTime: prov.CreatedAt,
		})
	}

	weights := cpmm.PoolWeights(stakes)
	payouts := make([]Payout, 0, len(weights))
	for _, userID := range cpmm.SortedProviderIDs(weights) {
		amount := weights[userID] * finalPool
		payouts = append(payouts, Payout{UserID: userID, Payout: amount, Deposit: amount})
	}
	return payouts
}

// mergePayouts folds per-bet payouts into one entry per user, dropping
// entries that net to approximately zero.
func mergePayouts(groups ...[]Payout) []Payout {
	totals := map[uint]*Payout{}
	for _, group := range groups {
		for _, p := range group {
			if entry, ok := totals[p.UserID]; ok {
				entry.Payout += p.Payout
				entry.Deposit += p.Deposit
			} else {
				entry := p
				totals[p.UserID] = &entry
			}
		}
	}

	userIDs := make([]uint, 0, len(totals))
	for userID := range totals {
		userIDs = append(userIDs, userID)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	merged := make([]Payout, 0, len(userIDs))
	for _, userID := range userIDs {
		entry := totals[userID]
		if cpmm.FloatingEqual(entry.Payout, 0) {
			continue
		}
		merged = append(merged, *entry)
	}
	return merged
}
