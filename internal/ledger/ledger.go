// Package ledger holds the pure collateral and position-accounting
// functions of spec.md §4.3. Every function here is deterministic and
// touches no storage; the engine calls these inside its durable
// transaction and writes the results.
package ledger

import (
	"wagerbook/internal/common"
	"wagerbook/internal/money"
)

// PerShareLock is the worst-case cash an order could owe on fill, per share,
// at its own price (spec §4.3).
func PerShareLock(side common.Side, orderType common.OrderType, priceCents int64) int64 {
	if orderType == common.MarketOrder {
		return money.MaxPrice
	}
	if side == common.Buy {
		return priceCents
	}
	return money.PayoutCents - priceCents
}

// PriceRef is the reference price fee estimates are computed against: the
// limit price for LIMIT orders, MaxPrice (worst case) for MARKET orders.
func PriceRef(orderType common.OrderType, priceCents int64) int64 {
	if orderType == common.MarketOrder {
		return money.MaxPrice
	}
	return priceCents
}

// RequiredLock is the total collateral an order must reserve at placement:
// (per_share_lock * qty) + fee_estimate.
func RequiredLock(perShareLock, qty, feeBps int64, orderType common.OrderType, priceCents int64) int64 {
	feeEstimate := money.CeilFeeCents(PriceRef(orderType, priceCents), qty, feeBps)
	return perShareLock*qty + feeEstimate
}

// TakerFee is the actual fee charged to the taker on one fill: floor, never
// ceil, so the exchange never charges more than its stated rate (spec §4.3).
func TakerFee(fillPriceCents, fillQty, feeBps int64) int64 {
	return money.FloorFeeCents(fillPriceCents, fillQty, feeBps)
}

// RestingLock is the collateral that must remain locked against a resting
// remainder after a partial fill: the per-share lock recomputed from the
// remaining quantity, plus a fee estimate on that remainder.
func RestingLock(side common.Side, orderType common.OrderType, priceCents, remainingQty, feeBps int64) int64 {
	perShare := PerShareLock(side, orderType, priceCents)
	feeEstimate := money.CeilFeeCents(PriceRef(orderType, priceCents), remainingQty, feeBps)
	return perShare*remainingQty + feeEstimate
}

// MakerLockRelease is the portion of a maker's lock freed when fillQty of
// its remaining quantity is consumed: per-share lock times fillQty, plus the
// pro-rated slice of its original fee estimate. This is the "clean" pro-rata
// rule spec.md §9 instructs implementers to adopt.
func MakerLockRelease(side common.Side, orderType common.OrderType, priceCents, fillQty, originalRemainingQty, originalFeeEstimate int64) int64 {
	perShare := PerShareLock(side, orderType, priceCents)
	var feeShare int64
	if originalRemainingQty > 0 {
		feeShare = originalFeeEstimate * fillQty / originalRemainingQty
	}
	return perShare*fillQty + feeShare
}

// ShortLockDelta is the incremental position lock a SELL fill adds once it
// leaves (or deepens) a negative position: the trade already delivered
// ep*qty in cash, so the worst-case remaining obligation is (100-ep)*qty.
func ShortLockDelta(executionPriceCents, qty int64) int64 {
	return (money.PayoutCents - executionPriceCents) * qty
}

// PositionDelta is the result of applying one fill to one side's position.
type PositionDelta struct {
	NewYesShares        int64
	NewAvgCostCents     int64
	RealizedPnlDelta    int64
	PositionLockDelta   int64 // signed: positive locks more, negative releases
}

// ApplyBuyFill applies a BUY fill of qty shares at priceCents to a position
// currently at (yesShares, avgCostCents, lockedCents).
//
// Covering a short releases a pro-rata share of the short's position lock;
// going further long (or starting a long) updates the weighted average cost.
func ApplyBuyFill(yesShares, avgCostCents, lockedCents, qty, priceCents int64) PositionDelta {
	if yesShares < 0 {
		covered := qty
		if covered > -yesShares {
			covered = -yesShares
		}
		// Release lock proportional to the fraction of the short covered.
		var lockReleased int64
		if yesShares != 0 {
			lockReleased = lockedCents * covered / (-yesShares)
		}
		remainingShort := yesShares + covered // still <= 0
		extra := qty - covered                // shares that flip to/extend long
		newShares := remainingShort
		newAvg := avgCostCents
		if extra > 0 {
			newShares = extra
			newAvg = priceCents
		}
		return PositionDelta{
			NewYesShares:      newShares,
			NewAvgCostCents:   newAvg,
			RealizedPnlDelta:  0,
			PositionLockDelta: -lockReleased,
		}
	}

	// Already flat or long: weighted-average cost accumulates.
	newShares := yesShares + qty
	newAvg := floorDiv(avgCostCents*yesShares+priceCents*qty, newShares)
	return PositionDelta{
		NewYesShares:      newShares,
		NewAvgCostCents:   newAvg,
		RealizedPnlDelta:  0,
		PositionLockDelta: 0,
	}
}

// ApplySellFill applies a SELL fill of qty shares at priceCents to a position
// currently at (yesShares, avgCostCents).
//
// Selling out of a long realizes PnL and leaves avgCost unchanged; selling
// past flat (or deeper short) adds position lock for the short exposure.
func ApplySellFill(yesShares, avgCostCents, qty, priceCents int64) PositionDelta {
	if yesShares > 0 {
		sold := qty
		if sold > yesShares {
			sold = yesShares
		}
		realized := (priceCents - avgCostCents) * sold
		remainingLong := yesShares - sold
		extra := qty - sold // shares that flip to/extend short
		newShares := remainingLong
		newAvg := avgCostCents
		var lockDelta int64
		if extra > 0 {
			newShares = -extra
			lockDelta = ShortLockDelta(priceCents, extra)
		}
		return PositionDelta{
			NewYesShares:      newShares,
			NewAvgCostCents:   newAvg,
			RealizedPnlDelta:  realized,
			PositionLockDelta: lockDelta,
		}
	}

	// Already flat or short: deepen the short, lock the full worst case.
	newShares := yesShares - qty
	lockDelta := ShortLockDelta(priceCents, qty)
	return PositionDelta{
		NewYesShares:      newShares,
		NewAvgCostCents:   avgCostCents,
		RealizedPnlDelta:  0,
		PositionLockDelta: lockDelta,
	}
}

func floorDiv(num, den int64) int64 {
	if den == 0 {
		return 0
	}
	q := num / den
	if (num%den != 0) && ((num < 0) != (den < 0)) {
		q--
	}
	return q
}

// SettlementPayout computes the wallet balance delta and the incremental
// realized PnL for one position when a market resolves. avgCostCents is the
// position's weighted-average entry (meaningful for longs); releasedLock is
// the position's lockedCents being released back to the wallet in the same
// transaction (spec §4.5, and the realized-PnL Open Question resolution in
// SPEC_FULL.md §4: realized PnL is the actual cash effect of settlement).
//
// A short's position lock equals 100*|yesShares| - cashAlreadyReceived, so
// cashAlreadyReceived = 100*|yesShares| - releasedLock; that identity is
// what lets a short's terminal PnL be recovered from releasedLock alone.
func SettlementPayout(resolution common.Resolution, yesShares, avgCostCents, releasedLock int64) (balanceDeltaCents, realizedPnlDeltaCents int64) {
	switch {
	case resolution == common.ResolutionYes && yesShares > 0:
		payout := yesShares * money.PayoutCents
		return payout, (money.PayoutCents - avgCostCents) * yesShares
	case resolution == common.ResolutionYes && yesShares < 0:
		qty := -yesShares
		debit := qty * money.PayoutCents
		return -debit, -releasedLock
	case resolution == common.ResolutionNo && yesShares > 0:
		// Long already paid cost basis at trade time; shares now worthless.
		return 0, -avgCostCents * yesShares
	case resolution == common.ResolutionNo && yesShares < 0:
		qty := -yesShares
		return 0, qty*money.PayoutCents - releasedLock
	default:
		return 0, 0
	}
}
