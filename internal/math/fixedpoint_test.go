package math_test

import (
	"OptionLedger/internal/math"
	"errors"
	"math/big"
	"testing"
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad int " + s)
	}
	return v
}

// ============================================================================
// Test: Decimal Scaler
// ============================================================================

func TestRescale_ToBaseTruncatesDust(t *testing.T) {
	// 1.123456789 WETH (18 decimals) -> 1.12345678 in base units
	got := math.Rescale(bi("1123456789000000000"), 18, math.BaseDecimals)
	if got.String() != "112345678" {
		t.Errorf("got %s, want 112345678", got)
	}
}

func TestRescale_ToBaseScalesUpLowPrecision(t *testing.T) {
	// 250 USDC (6 decimals) -> 250e8
	got := math.Rescale(bi("250000000"), 6, math.BaseDecimals)
	if got.String() != "25000000000" {
		t.Errorf("got %s, want 25000000000", got)
	}
}

func TestRescale_RoundTripWithoutDust(t *testing.T) {
	amount := bi("77700000000")
	for _, d := range []int{0, 6, 8, 18, 27} {
		back := math.Rescale(math.Rescale(amount, math.BaseDecimals, d), d, math.BaseDecimals)
		if d >= math.BaseDecimals && back.Cmp(amount) != 0 {
			t.Errorf("decimals %d: round trip got %s, want %s", d, back, amount)
		}
	}
}

func TestRescale_NeverRoundsUp(t *testing.T) {
	// 0.99999999 base units of a 0-decimal token is 0
	got := math.Rescale(bi("99999999"), math.BaseDecimals, 0)
	if got.Sign() != 0 {
		t.Errorf("got %s, want 0", got)
	}
}

// ============================================================================
// Test: FixedPoint
// ============================================================================

func TestFixedPoint_ScalingMatchesRescale(t *testing.T) {
	amount := bi("1123456789123456789123456789123")
	for _, d := range []int{0, 6, 8, 18, 27, 30} {
		got, err := math.FromScaled(amount, d).ToScaled(6, math.RoundDown)
		if err != nil {
			t.Fatalf("decimals %d: %v", d, err)
		}
		want := math.Rescale(math.Rescale(amount, d, math.FixedPointDecimals), math.FixedPointDecimals, 6)
		if got.Cmp(want) != 0 {
			t.Errorf("decimals %d: got %s, want %s", d, got, want)
		}
	}
}

func TestFixedPoint_FromScaledAndBack(t *testing.T) {
	fp := math.FromScaled(bi("25000000000"), 8)
	out, err := fp.ToScaled(6, math.RoundDown)
	if err != nil {
		t.Fatalf("ToScaled: %v", err)
	}
	if out.String() != "250000000" {
		t.Errorf("got %s, want 250000000", out)
	}
}

func TestFixedPoint_FromScaledAboveInternalPrecisionTruncates(t *testing.T) {
	fp := math.FromScaled(bi("1999"), 30)
	if fp.String() != "1" {
		t.Errorf("got %s, want 1", fp)
	}
}

func TestFixedPoint_ToScaledRoundsUpOnRemainder(t *testing.T) {
	// 1e-27 expressed at 8 decimals
	fp := math.FromScaled(big.NewInt(1), 27)
	down, _ := fp.ToScaled(8, math.RoundDown)
	up, _ := fp.ToScaled(8, math.RoundUp)
	if down.Sign() != 0 {
		t.Errorf("round down got %s, want 0", down)
	}
	if up.String() != "1" {
		t.Errorf("round up got %s, want 1", up)
	}
}

func TestFixedPoint_ToScaledRejectsNegative(t *testing.T) {
	_, err := math.FromUnscaled(-1).ToScaled(8, math.RoundDown)
	if !errors.Is(err, math.ErrNegativeFixedPoint) {
		t.Errorf("expected ErrNegativeFixedPoint, got %v", err)
	}
}

func TestFixedPoint_MulDiv(t *testing.T) {
	a := math.FromUnscaled(300)
	b := math.FromScaled(big.NewInt(2), 2) // 0.02

	if got := a.Div(b); got.Cmp(math.FromUnscaled(15000)) != 0 {
		t.Errorf("300 / 0.02 = %s, want 15000", got)
	}
	if got := a.Mul(b); got.Cmp(math.FromUnscaled(6)) != 0 {
		t.Errorf("300 * 0.02 = %s, want 6", got)
	}
}

func TestFixedPoint_DivTruncatesTowardZero(t *testing.T) {
	one := math.FromUnscaled(1)
	three := math.FromUnscaled(3)

	pos := one.Div(three)
	neg := one.Neg().Div(three)
	if pos.Add(neg).Sign() != 0 {
		t.Errorf("expected symmetric truncation, got %s and %s", pos, neg)
	}
}

func TestFixedPoint_MinMax(t *testing.T) {
	a := math.FromUnscaled(2)
	b := math.FromUnscaled(5)
	if math.Min(a, b).Cmp(a) != 0 {
		t.Error("min mismatch")
	}
	if math.Max(a, b).Cmp(b) != 0 {
		t.Error("max mismatch")
	}
}

func TestFixedPoint_ZeroValueIsUsable(t *testing.T) {
	var f math.FixedPoint
	if !f.IsZero() {
		t.Error("zero value should be zero")
	}
	if got := f.Add(math.FromUnscaled(1)); got.Cmp(math.FromUnscaled(1)) != 0 {
		t.Errorf("got %s", got)
	}
}

func TestRoundingMode_String(t *testing.T) {
	if math.RoundUp.String() != "ROUND_UP" || math.RoundDown.String() != "ROUND_DOWN" {
		t.Error("unexpected rounding mode names")
	}
}
