// Package cpmm implements the weighted constant-product market maker used to
// price binary and multi-outcome contracts. All functions are pure; callers
// own persistence and must reject non-finite results before committing.
package cpmm

import (
	"math"
	"sort"
	"time"
)

// Pool holds the YES and NO share reserves of one market (or one answer).
type Pool struct {
	Yes float64
	No  float64
}

// MinimumLiquidity is the floor each reserve must keep when liquidity is
// withdrawn.
const MinimumLiquidity = 100

// Probability returns the YES probability implied by the pool and weight p.
// Strictly inside (0,1) whenever both reserves are positive.
func Probability(pool Pool, p float64) float64 {
	return p * pool.No / ((1-p)*pool.Yes + p*pool.No)
}

// Liquidity returns the invariant value YES^p * NO^(1-p).
func Liquidity(pool Pool, p float64) float64 {
	return math.Pow(pool.Yes, p) * math.Pow(pool.No, 1-p)
}

// Shares returns how many shares of the chosen outcome a bet of betAmount
// buys, holding the weighted product constant.
// Closed forms: (y+b-s)^p * (n+b)^(1-p) = k for YES, symmetric for NO.
func Shares(pool Pool, p, betAmount float64, outcome string) float64 {
	if betAmount == 0 {
		return 0
	}

	y, n := pool.Yes, pool.No
	k := math.Pow(y, p) * math.Pow(n, 1-p)

	if outcome == "YES" {
		return y + betAmount - math.Pow(k*math.Pow(betAmount+n, p-1), 1/p)
	}
	return n + betAmount - math.Pow(k*math.Pow(betAmount+y, -p), 1/(1-p))
}

// Purchase applies a fee-free bet to the pool and returns the shares bought
// together with the post-bet pool. Used for quoting; the weight p is
// unchanged by a purchase.
func Purchase(pool Pool, p, betAmount float64, outcome string) (shares float64, newPool Pool) {
	shares = Shares(pool, p, betAmount, outcome)
	y, n := pool.Yes, pool.No

	if outcome == "YES" {
		newPool = Pool{Yes: y - shares + betAmount, No: n + betAmount}
	} else {
		newPool = Pool{Yes: y + betAmount, No: n - shares + betAmount}
	}
	return shares, newPool
}

// LiquidityResult is the outcome of adding (or removing) liquidity.
type LiquidityResult struct {
	NewPool   Pool
	NewP      float64
	Liquidity float64
}

// AddLiquidity adds amount to both reserves and recomputes the weight so the
// implied probability is unchanged. NewP can overflow to a non-finite value
// for extreme pools; callers must reject that result outright rather than
// retry, since the invariant is no longer representable.
func AddLiquidity(pool Pool, p, amount float64) LiquidityResult {
	prob := Probability(pool, p)

	// Solve p(n+b) / ((1-p)(y+b) + p(n+b)) = q for p.
	y, n := pool.Yes, pool.No
	numerator := prob * (amount + y)
	denominator := amount - n*(prob-1) + prob*y
	newP := numerator / denominator

	newPool := Pool{Yes: y + amount, No: n + amount}

	oldLiquidity := Liquidity(pool, newP)
	newLiquidity := Liquidity(newPool, newP)

	return LiquidityResult{
		NewPool:   newPool,
		NewP:      newP,
		Liquidity: newLiquidity - oldLiquidity,
	}
}

// FixedPLiquidityResult is the outcome of adding liquidity to a p=0.5 pool.
// Some shares are discarded to keep the probability fixed; for sums-to-one
// contracts the discarded NO shares convert into YES shares of the sibling
// answers.
type FixedPLiquidityResult struct {
	NewPool          Pool
	Liquidity        float64
	SharesThrownAway Pool
}

// AddLiquidityFixedP adds amount to a multi-answer pool whose weight is
// pinned at 0.5, throwing away shares on the richer side so the probability
// is maintained.
func AddLiquidityFixedP(pool Pool, amount float64) FixedPLiquidityResult {
	prob := Probability(pool, 0.5)
	newPool := pool
	thrownAway := Pool{}

	if prob < 0.5 {
		newPool.Yes += amount
		newPool.No += (prob / (1 - prob)) * amount
		thrownAway.No = amount - (prob/(1-prob))*amount
	} else {
		newPool.No += amount
		newPool.Yes += ((1 - prob) / prob) * amount
		thrownAway.Yes = amount - ((1-prob)/prob)*amount
	}

	oldLiquidity := Liquidity(pool, 0.5)
	newLiquidity := Liquidity(newPool, 0.5)

	return FixedPLiquidityResult{
		NewPool:          newPool,
		Liquidity:        newLiquidity - oldLiquidity,
		SharesThrownAway: thrownAway,
	}
}

// RemoveLiquidity withdraws amount from both reserves, preserving the
// probability. ok is false when a reserve would drop below
// MinimumLiquidity.
func RemoveLiquidity(pool Pool, p, amount float64) (LiquidityResult, bool) {
	result := AddLiquidity(pool, p, -amount)
	ok := result.NewPool.Yes >= MinimumLiquidity && result.NewPool.No >= MinimumLiquidity
	return result, ok
}

// MaximumRemovableLiquidity returns how much can be withdrawn before a
// reserve hits MinimumLiquidity.
func MaximumRemovableLiquidity(pool Pool) float64 {
	return math.Max(math.Min(pool.Yes, pool.No)-MinimumLiquidity, 0)
}

// ProviderStake is one liquidity provision attributed to a provider, used to
// weight resolution-time liquidity payouts.
type ProviderStake struct {
	UserID      uint
	Amount      float64
	CreatedTime time.Time
}

// PoolWeights returns each provider's share of the pool, proportional to net
// contributed liquidity. Providers who withdrew more than they gave count as
// zero; if everyone is a net leech, the earliest provider (presumably the
// creator) takes the whole pool.
func PoolWeights(stakes []ProviderStake) map[uint]float64 {
	if len(stakes) == 0 {
		return map[uint]float64{}
	}

	netByUser := map[uint]float64{}
	for _, s := range stakes {
		netByUser[s.UserID] += s.Amount
	}

	total := 0.0
	for userID, net := range netByUser {
		if net < 0 {
			netByUser[userID] = 0
		} else {
			total += net
		}
	}

	if total == 0 {
		earliest := stakes[0]
		for _, s := range stakes[1:] {
			if s.CreatedTime.Before(earliest.CreatedTime) {
				earliest = s
			}
		}
		return map[uint]float64{earliest.UserID: 1}
	}

	weights := map[uint]float64{}
	for userID, net := range netByUser {
		if net > 0 {
			weights[userID] = net / total
		}
	}
	return weights
}

// SortedProviderIDs returns the provider ids of a weight map in ascending
// order, for deterministic payout iteration.
func SortedProviderIDs(weights map[uint]float64) []uint {
	ids := make([]uint, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
