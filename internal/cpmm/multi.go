package cpmm

// AddMultiLiquidityIndependently splits amount equally across answer pools
// and deepens each one, keeping every answer's probability fixed.
func AddMultiLiquidityIndependently(pools map[string]Pool, amount float64) map[string]Pool {
	if len(pools) == 0 {
		return pools
	}

	perAnswer := amount / float64(len(pools))
	newPools := make(map[string]Pool, len(pools))
	for id, pool := range pools {
		newPools[id] = AddLiquidityFixedP(pool, perAnswer).NewPool
	}
	return newPools
}

// AddMultiLiquidityAnswersSumToOne deepens the pools of a sums-to-one
// contract. Shares thrown away by one answer convert into YES shares of its
// siblings, so the leftover is re-injected until less than Epsilon remains.
func AddMultiLiquidityAnswersSumToOne(pools map[string]Pool, amount float64) map[string]Pool {
	numAnswers := len(pools)
	if numAnswers == 0 {
		return pools
	}

	newPools := make(map[string]Pool, numAnswers)
	for id, pool := range pools {
		newPools[id] = pool
	}

	amountRemaining := amount
	for amountRemaining > Epsilon {
		yesThrownAway := make(map[string]float64, numAnswers)

		for id, pool := range newPools {
			result := AddLiquidityFixedP(pool, amountRemaining/float64(numAnswers))
			newPools[id] = result.NewPool

			yesThrownAway[id] += result.SharesThrownAway.Yes
			for otherID := range newPools {
				if otherID != id {
					// NO shares of one answer are YES shares of the rest.
					yesThrownAway[otherID] += result.SharesThrownAway.No
				}
			}
		}

		min := 0.0
		first := true
		for _, thrown := range yesThrownAway {
			if first || thrown < min {
				min = thrown
				first = false
			}
		}
		amountRemaining = min
	}

	return newPools
}
