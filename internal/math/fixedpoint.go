// internal/math/fixedpoint.go
package math

import (
	"errors"
	"math/big"
	"sync"
)

const (
	// BaseDecimals is the precision of otoken amounts, strike prices and oracle prices.
	BaseDecimals = 8
	// FixedPointDecimals is the internal precision the margin calculator works in.
	FixedPointDecimals = 27
)

// ErrNegativeFixedPoint is returned when a negative value is converted to an unsigned amount.
var ErrNegativeFixedPoint = errors.New("fixed point value is negative")

type RoundingMode int

const (
	RoundDown RoundingMode = iota // truncate toward zero
	RoundUp                       // away from zero when a remainder exists
)

func (m RoundingMode) String() string {
	switch m {
	case RoundDown:
		return "ROUND_DOWN"
	case RoundUp:
		return "ROUND_UP"
	default:
		return "UNKNOWN"
	}
}

// Scratch integers for intermediate products. Results never come from the pool.
var intPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt() *big.Int {
	return intPool.Get().(*big.Int)
}

func putInt(v *big.Int) {
	v.SetInt64(0)
	intPool.Put(v)
}

var (
	pow10Mu    sync.RWMutex
	pow10Cache = map[int]*big.Int{}
)

// Pow10 returns 10^n. The returned value is shared and must not be mutated.
func Pow10(n int) *big.Int {
	pow10Mu.RLock()
	v, ok := pow10Cache[n]
	pow10Mu.RUnlock()
	if ok {
		return v
	}
	v = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	pow10Mu.Lock()
	pow10Cache[n] = v
	pow10Mu.Unlock()
	return v
}

var fpOne = Pow10(FixedPointDecimals)

// FixedPoint is a signed number with FixedPointDecimals of precision.
// The zero value is 0.
type FixedPoint struct {
	v *big.Int
}

func (f FixedPoint) raw() *big.Int {
	if f.v == nil {
		return new(big.Int)
	}
	return f.v
}

// Zero returns 0.
func Zero() FixedPoint {
	return FixedPoint{v: new(big.Int)}
}

// FromUnscaled lifts an integer count (e.g. 1, 2) into fixed point.
func FromUnscaled(n int64) FixedPoint {
	v := big.NewInt(n)
	v.Mul(v, fpOne)
	return FixedPoint{v: v}
}

// FromScaled converts an amount with the given number of decimals.
// Precision beyond FixedPointDecimals is truncated.
func FromScaled(amount *big.Int, decimals int) FixedPoint {
	return FixedPoint{v: Rescale(amount, decimals, FixedPointDecimals)}
}

// ToScaled converts back to an unsigned amount with the given decimals.
func (f FixedPoint) ToScaled(decimals int, mode RoundingMode) (*big.Int, error) {
	raw := f.raw()
	if raw.Sign() < 0 {
		return nil, ErrNegativeFixedPoint
	}
	if mode == RoundDown || decimals >= FixedPointDecimals {
		return Rescale(raw, FixedPointDecimals, decimals), nil
	}
	out := new(big.Int)
	rem := getInt()
	out.QuoRem(raw, Pow10(FixedPointDecimals-decimals), rem)
	if rem.Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	putInt(rem)
	return out, nil
}

func (f FixedPoint) Add(o FixedPoint) FixedPoint {
	return FixedPoint{v: new(big.Int).Add(f.raw(), o.raw())}
}

func (f FixedPoint) Sub(o FixedPoint) FixedPoint {
	return FixedPoint{v: new(big.Int).Sub(f.raw(), o.raw())}
}

// Mul truncates toward zero.
func (f FixedPoint) Mul(o FixedPoint) FixedPoint {
	prod := getInt()
	prod.Mul(f.raw(), o.raw())
	out := new(big.Int).Quo(prod, fpOne)
	putInt(prod)
	return FixedPoint{v: out}
}

// Div truncates toward zero. Dividing by zero yields zero; callers guard
// zero prices before reaching here.
func (f FixedPoint) Div(o FixedPoint) FixedPoint {
	if o.raw().Sign() == 0 {
		return Zero()
	}
	num := getInt()
	num.Mul(f.raw(), fpOne)
	out := new(big.Int).Quo(num, o.raw())
	putInt(num)
	return FixedPoint{v: out}
}

func (f FixedPoint) Neg() FixedPoint {
	return FixedPoint{v: new(big.Int).Neg(f.raw())}
}

func (f FixedPoint) Abs() FixedPoint {
	return FixedPoint{v: new(big.Int).Abs(f.raw())}
}

func (f FixedPoint) Cmp(o FixedPoint) int {
	return f.raw().Cmp(o.raw())
}

func (f FixedPoint) Sign() int {
	return f.raw().Sign()
}

func (f FixedPoint) IsZero() bool {
	return f.raw().Sign() == 0
}

func Min(a, b FixedPoint) FixedPoint {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func Max(a, b FixedPoint) FixedPoint {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// String renders the raw scaled integer, for logs.
func (f FixedPoint) String() string {
	return f.raw().String()
}
