// Package settlement computes and executes the end-of-game proportional
// distribution of the treasury pool.
package settlement

import (
	"math"
	"math/big"
	"sort"

	"portsol-gate/internal/domain"
)

// ComputePlan splits poolLamports across wallets proportionally to their
// credits: payout_i = floor(pool * credits_i / total_credits), computed in
// exact integer arithmetic so runs are reproducible. The floored remainder
// (dust) is never distributed and stays with the treasury. A zero credit
// total yields all-zero payouts.
func ComputePlan(poolLamports uint64, credits map[string]uint64) *domain.SettlementPlan {
	plan := &domain.SettlementPlan{PoolLamports: poolLamports}

	wallets := make([]string, 0, len(credits))
	for wallet := range credits {
		wallets = append(wallets, wallet)
	}
	sort.Strings(wallets)

	// Credits are summed in big.Int: enough uint64 credits can wrap a
	// uint64 sum, which would silently inflate every payout share.
	totalBig := new(big.Int)
	for _, wallet := range wallets {
		totalBig.Add(totalBig, new(big.Int).SetUint64(credits[wallet]))
	}
	if totalBig.IsUint64() {
		plan.TotalCredits = totalBig.Uint64()
	} else {
		plan.TotalCredits = math.MaxUint64
	}

	if totalBig.Sign() == 0 {
		for _, wallet := range wallets {
			plan.Entries = append(plan.Entries, domain.PayoutEntry{Wallet: wallet})
		}
		plan.DustLamports = poolLamports
		return plan
	}

	// pool * credits overflows uint64 for large pools, so the product is
	// taken in big.Int. The quotient always fits: it is at most pool.
	pool := new(big.Int).SetUint64(poolLamports)

	var distributed uint64
	for _, wallet := range wallets {
		product := new(big.Int).Mul(pool, new(big.Int).SetUint64(credits[wallet]))
		payout := product.Div(product, totalBig).Uint64()

		plan.Entries = append(plan.Entries, domain.PayoutEntry{
			Wallet:         wallet,
			Credits:        credits[wallet],
			PayoutLamports: payout,
		})
		distributed += payout
	}

	plan.DustLamports = poolLamports - distributed
	return plan
}
