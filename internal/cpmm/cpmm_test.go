package cpmm

import (
	"math"
	"testing"
	"time"
)

func TestProbability(t *testing.T) {
	if got := Probability(Pool{Yes: 100, No: 100}, 0.5); !FloatingEqual(got, 0.5) {
		t.Errorf("expected probability 0.5, got %f", got)
	}
	if got := Probability(Pool{Yes: 100, No: 300}, 0.5); !FloatingEqual(got, 0.75) {
		t.Errorf("expected probability 0.75, got %f", got)
	}

	// Weight shifts the implied probability for the same reserves.
	low := Probability(Pool{Yes: 100, No: 100}, 0.3)
	high := Probability(Pool{Yes: 100, No: 100}, 0.7)
	if low >= 0.5 || high <= 0.5 {
		t.Errorf("expected p to skew probability, got %f and %f", low, high)
	}
}

func TestShares(t *testing.T) {
	pool := Pool{Yes: 100, No: 100}

	// Closed form for a symmetric pool: 150 - 10000/150.
	shares := Shares(pool, 0.5, 50, "YES")
	if !FloatingEqual(shares, 150-10000.0/150) {
		t.Errorf("unexpected YES shares: %f", shares)
	}

	// Buying must always return more shares than the amount paid while the
	// probability is below 1.
	if shares <= 50 {
		t.Errorf("expected shares > bet amount, got %f", shares)
	}

	// Symmetry: NO shares on a mirrored pool match YES shares.
	noShares := Shares(Pool{Yes: 100, No: 100}, 0.5, 50, "NO")
	if !FloatingEqual(shares, noShares) {
		t.Errorf("expected symmetric shares, got %f and %f", shares, noShares)
	}

	if got := Shares(pool, 0.5, 0, "YES"); got != 0 {
		t.Errorf("zero bet should buy zero shares, got %f", got)
	}
}

func TestPurchasePreservesInvariant(t *testing.T) {
	pool := Pool{Yes: 130, No: 70}
	p := 0.4

	k := Liquidity(pool, p)
	_, newPool := Purchase(pool, p, 25, "YES")
	if !FloatingEqual(Liquidity(newPool, p), k) {
		t.Errorf("invariant moved: %f -> %f", k, Liquidity(newPool, p))
	}

	// Buying YES pushes the probability up.
	if Probability(newPool, p) <= Probability(pool, p) {
		t.Error("YES purchase should raise the probability")
	}
}

func TestAddLiquidityPreservesProbability(t *testing.T) {
	cases := []struct {
		pool   Pool
		p      float64
		amount float64
	}{
		{Pool{Yes: 100, No: 100}, 0.5, 50},
		{Pool{Yes: 150, No: 50}, 0.5, 100},
		{Pool{Yes: 80, No: 220}, 0.35, 10},
	}

	for _, tc := range cases {
		before := Probability(tc.pool, tc.p)
		result := AddLiquidity(tc.pool, tc.p, tc.amount)

		if !FloatingEqual(Probability(result.NewPool, result.NewP), before) {
			t.Errorf("pool %+v p=%f: probability moved %f -> %f",
				tc.pool, tc.p, before, Probability(result.NewPool, result.NewP))
		}
		if !FloatingEqual(result.NewPool.Yes, tc.pool.Yes+tc.amount) ||
			!FloatingEqual(result.NewPool.No, tc.pool.No+tc.amount) {
			t.Errorf("reserves not deepened by %f: %+v", tc.amount, result.NewPool)
		}
		if result.Liquidity <= 0 {
			t.Errorf("expected positive liquidity minted, got %f", result.Liquidity)
		}
	}
}

func TestAddLiquiditySymmetricPoolKeepsP(t *testing.T) {
	result := AddLiquidity(Pool{Yes: 100, No: 100}, 0.5, 50)
	if !FloatingEqual(result.NewP, 0.5) {
		t.Errorf("symmetric pool should keep p=0.5, got %f", result.NewP)
	}
}

func TestRemoveLiquidityRoundTrip(t *testing.T) {
	pool := Pool{Yes: 200, No: 160}
	p := 0.45

	added := AddLiquidity(pool, p, 50)
	removed, ok := RemoveLiquidity(added.NewPool, added.NewP, 50)
	if !ok {
		t.Fatal("round trip removal should be allowed")
	}
	if !FloatingEqual(removed.NewPool.Yes, pool.Yes) || !FloatingEqual(removed.NewPool.No, pool.No) {
		t.Errorf("round trip changed the pool: %+v -> %+v", pool, removed.NewPool)
	}
	if !FloatingEqual(Probability(removed.NewPool, removed.NewP), Probability(pool, p)) {
		t.Error("round trip changed the probability")
	}
}

func TestRemoveLiquidityFloor(t *testing.T) {
	_, ok := RemoveLiquidity(Pool{Yes: 120, No: 120}, 0.5, 30)
	if ok {
		t.Error("removal below the reserve floor should be rejected")
	}

	if got := MaximumRemovableLiquidity(Pool{Yes: 120, No: 150}); !FloatingEqual(got, 20) {
		t.Errorf("expected max removable 20, got %f", got)
	}
	if got := MaximumRemovableLiquidity(Pool{Yes: 80, No: 90}); got != 0 {
		t.Errorf("expected max removable 0, got %f", got)
	}
}

func TestAddLiquidityFixedP(t *testing.T) {
	// prob 0.75: NO side takes the full amount, YES takes a third, the rest
	// of the YES shares are thrown away.
	pool := Pool{Yes: 100, No: 300}
	result := AddLiquidityFixedP(pool, 30)

	if !FloatingEqual(result.NewPool.No, 330) || !FloatingEqual(result.NewPool.Yes, 110) {
		t.Errorf("unexpected pool: %+v", result.NewPool)
	}
	if !FloatingEqual(result.SharesThrownAway.Yes, 20) || result.SharesThrownAway.No != 0 {
		t.Errorf("unexpected thrown-away shares: %+v", result.SharesThrownAway)
	}
	if !FloatingEqual(Probability(result.NewPool, 0.5), 0.75) {
		t.Errorf("probability moved to %f", Probability(result.NewPool, 0.5))
	}
}

func TestAddMultiLiquidityIndependently(t *testing.T) {
	pools := map[string]Pool{
		"a": {Yes: 100, No: 100},
		"b": {Yes: 100, No: 300},
	}

	newPools := AddMultiLiquidityIndependently(pools, 100)
	for id, pool := range pools {
		before := Probability(pool, 0.5)
		after := Probability(newPools[id], 0.5)
		if !FloatingEqual(before, after) {
			t.Errorf("answer %s probability moved %f -> %f", id, before, after)
		}
		if newPools[id].Yes <= pool.Yes || newPools[id].No <= pool.No {
			t.Errorf("answer %s pool not deepened: %+v", id, newPools[id])
		}
	}
}

func TestAddMultiLiquidityAnswersSumToOne(t *testing.T) {
	// Three unlikely answers: every answer throws away NO shares, which
	// convert into YES shares of the siblings and get re-injected.
	pools := map[string]Pool{
		"a": {Yes: 300, No: 100},
		"b": {Yes: 300, No: 100},
		"c": {Yes: 300, No: 100},
	}

	newPools := AddMultiLiquidityAnswersSumToOne(pools, 100)

	for id, pool := range pools {
		if !FloatingEqual(Probability(newPools[id], 0.5), Probability(pool, 0.5)) {
			t.Errorf("answer %s probability moved", id)
		}
		if newPools[id].Yes <= pool.Yes || newPools[id].No <= pool.No {
			t.Errorf("answer %s pool not deepened: %+v", id, newPools[id])
		}
	}

	// The recycled shares make each answer strictly deeper than an
	// independent split of the same amount.
	independent := AddMultiLiquidityIndependently(pools, 100)
	for id := range pools {
		if newPools[id].Yes <= independent[id].Yes {
			t.Errorf("answer %s should be deeper than an independent split", id)
		}
	}
}

func TestAddMultiLiquiditySymmetricNoLeftover(t *testing.T) {
	// At prob 0.5 nothing is thrown away, so the sums-to-one path reduces to
	// the independent split.
	pools := map[string]Pool{
		"a": {Yes: 100, No: 100},
		"b": {Yes: 100, No: 100},
	}

	sumToOne := AddMultiLiquidityAnswersSumToOne(pools, 60)
	independent := AddMultiLiquidityIndependently(pools, 60)
	for id := range pools {
		if !FloatingEqual(sumToOne[id].Yes, independent[id].Yes) ||
			!FloatingEqual(sumToOne[id].No, independent[id].No) {
			t.Errorf("answer %s: %+v vs %+v", id, sumToOne[id], independent[id])
		}
	}
}

func TestPoolWeights(t *testing.T) {
	now := time.Now()
	stakes := []ProviderStake{
		{UserID: 1, Amount: 100, CreatedTime: now},
		{UserID: 2, Amount: 300, CreatedTime: now.Add(time.Minute)},
	}

	weights := PoolWeights(stakes)
	if !FloatingEqual(weights[1], 0.25) || !FloatingEqual(weights[2], 0.75) {
		t.Errorf("unexpected weights: %v", weights)
	}
}

func TestPoolWeightsNetWithdrawer(t *testing.T) {
	now := time.Now()
	stakes := []ProviderStake{
		{UserID: 1, Amount: 100, CreatedTime: now},
		{UserID: 2, Amount: 50, CreatedTime: now},
		{UserID: 2, Amount: -80, CreatedTime: now.Add(time.Minute)},
	}

	weights := PoolWeights(stakes)
	if !FloatingEqual(weights[1], 1) {
		t.Errorf("net withdrawer should be zeroed, got %v", weights)
	}
	if _, ok := weights[2]; ok {
		t.Errorf("user 2 withdrew more than contributed, got weight %f", weights[2])
	}
}

func TestPoolWeightsAllLeeches(t *testing.T) {
	now := time.Now()
	stakes := []ProviderStake{
		{UserID: 2, Amount: -30, CreatedTime: now.Add(time.Minute)},
		{UserID: 1, Amount: -50, CreatedTime: now},
	}

	weights := PoolWeights(stakes)
	if len(weights) != 1 || !FloatingEqual(weights[1], 1) {
		t.Errorf("earliest provider should take the pool, got %v", weights)
	}
}

func TestSortedProviderIDs(t *testing.T) {
	ids := SortedProviderIDs(map[uint]float64{7: 0.1, 2: 0.5, 5: 0.4})
	want := []uint{2, 5, 7}
	for i, id := range ids {
		if id != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestFloatingHelpers(t *testing.T) {
	if !FloatingEqual(1.0, 1.0+Epsilon/2) {
		t.Error("values within epsilon should compare equal")
	}
	if FloatingEqual(1.0, 1.0+2*Epsilon) {
		t.Error("values beyond epsilon should not compare equal")
	}
	if !FloatingLesserEqual(1.0+Epsilon/2, 1.0) {
		t.Error("lesser-equal should tolerate epsilon")
	}
	if IsFinite(math.NaN()) || IsFinite(math.Inf(1)) {
		t.Error("NaN and Inf are not finite")
	}
	if got := Clamp(5, 1, 4); got != 4 {
		t.Errorf("expected clamp to 4, got %f", got)
	}
}
