package money

import "testing"

func TestValidPrice(t *testing.T) {
	cases := map[int64]bool{0: false, 1: true, 99: true, 100: false, 50: true}
	for price, want := range cases {
		if got := ValidPrice(price); got != want {
			t.Errorf("ValidPrice(%d) = %v, want %v", price, got, want)
		}
	}
}

func TestDivisibleByTick(t *testing.T) {
	if !DivisibleByTick(55, 5) {
		t.Error("55 should be divisible by tick 5")
	}
	if DivisibleByTick(57, 5) {
		t.Error("57 should not be divisible by tick 5")
	}
	if DivisibleByTick(10, 0) {
		t.Error("zero tick size must never validate")
	}
}

func TestCeilAndFloorFee(t *testing.T) {
	// From spec §8 scenario 1: price 55, qty 10, feeBps 100 -> 550*0.01 = 5.5 -> floor 5
	if got := FloorFeeCents(55, 10, 100); got != 5 {
		t.Errorf("FloorFeeCents = %d, want 5", got)
	}
	// scenario 3: ceil(50*10*100/10000) = ceil(5.0) = 5
	if got := CeilFeeCents(50, 10, 100); got != 5 {
		t.Errorf("CeilFeeCents = %d, want 5", got)
	}
	// ceil rounds up a fractional cent
	if got := CeilFeeCents(33, 1, 100); got != 1 {
		t.Errorf("CeilFeeCents(33,1,100) = %d, want 1", got)
	}
	if got := FloorFeeCents(33, 1, 100); got != 0 {
		t.Errorf("FloorFeeCents(33,1,100) = %d, want 0", got)
	}
}
