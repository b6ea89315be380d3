package market

// winnerPayout returns a winner's full credit: their stake plus their
// proportional share of the losing pool.
//
// The share is stake * totalLosers / totalWinners with the multiplication
// first, so the chain stays exact in integers and flooring happens only at
// the final credit. Drift is therefore under one point per winner and the
// sum of payouts never exceeds the pool. totalWinners is never zero here:
// admission enforces positive amounts, so any winner implies a positive
// winning total.
func winnerPayout(stake, totalWinners, totalLosers int64) int64 {
	if totalLosers == 0 {
		return stake
	}

	return stake + stake*totalLosers/totalWinners
}
