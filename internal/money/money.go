// Package money holds the fixed-point arithmetic used on every monetary and
// price path in the exchange. All amounts are whole cents in an int64; no
// floating point type ever appears here.
package money

import "fmt"

// MaxPrice is the highest permissible contract price in cents (spec §3, §4.3).
const MaxPrice int64 = 99

// MinPrice is the lowest permissible contract price in cents.
const MinPrice int64 = 1

// PayoutCents is what one fully-settled YES share pays.
const PayoutCents int64 = 100

// MaxQty is the largest order quantity the exchange accepts.
const MaxQty int64 = 100_000

// MinQty is the smallest order quantity the exchange accepts.
const MinQty int64 = 1

// ValidPrice reports whether p is in the open range [MinPrice, MaxPrice].
func ValidPrice(p int64) bool {
	return p >= MinPrice && p <= MaxPrice
}

// ValidQty reports whether q is in the permitted quantity range.
func ValidQty(q int64) bool {
	return q >= MinQty && q <= MaxQty
}

// DivisibleByTick reports whether price is a multiple of tickSizeCents.
func DivisibleByTick(price, tickSizeCents int64) bool {
	if tickSizeCents <= 0 {
		return false
	}
	return price%tickSizeCents == 0
}

// CeilFeeCents computes ceil(priceCents * qty * feeBps / 10_000).
// Used for the conservative lock-time fee estimate (spec §4.3).
func CeilFeeCents(priceCents, qty, feeBps int64) int64 {
	num := priceCents * qty * feeBps
	if num <= 0 {
		return 0
	}
	return (num + 9_999) / 10_000
}

// FloorFeeCents computes floor(priceCents * qty * feeBps / 10_000).
// Used for the actual taker fee charged on a fill (spec §4.3).
func FloorFeeCents(priceCents, qty, feeBps int64) int64 {
	num := priceCents * qty * feeBps
	if num <= 0 {
		return 0
	}
	return num / 10_000
}

// ErrNegative reports an amount that would go negative.
type ErrNegative struct {
	Field string
	Value int64
}

func (e ErrNegative) Error() string {
	return fmt.Sprintf("%s would go negative: %d", e.Field, e.Value)
}
