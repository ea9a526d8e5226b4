package otoken

import (
	fpmath "OptionLedger/internal/math"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Decimals is fixed for every otoken regardless of its underlying.
const Decimals = fpmath.BaseDecimals

// Otoken is an immutable option series. StrikePrice carries Decimals of precision.
type Otoken struct {
	Address     common.Address
	Underlying  common.Address
	Strike      common.Address
	Collateral  common.Address
	StrikePrice *big.Int
	Expiry      int64 // unix seconds
	IsPut       bool
}

// HasExpired reports whether now is at or past expiry.
func (o *Otoken) HasExpired(now time.Time) bool {
	return now.Unix() >= o.Expiry
}

func (o *Otoken) ExpiryTime() time.Time {
	return time.Unix(o.Expiry, 0).UTC()
}

// SymbolLookup resolves asset display symbols.
type SymbolLookup interface {
	Symbol(addr common.Address) string
}

// StrikeDisplay renders the strike with trailing zeros trimmed, e.g. "200", "0.5".
func (o *Otoken) StrikeDisplay() string {
	return decimal.NewFromBigInt(o.StrikePrice, -Decimals).String()
}

func (o *Otoken) typeName() (long, short string) {
	if o.IsPut {
		return "Put", "P"
	}
	return "Call", "C"
}

// Name returns e.g. "WETHUSDC 25-September-2020 200Put USDC Collateral".
func (o *Otoken) Name(symbols SymbolLookup) string {
	t := o.ExpiryTime()
	kind, _ := o.typeName()
	return fmt.Sprintf("%s%s %02d-%s-%d %s%s %s Collateral",
		symbols.Symbol(o.Underlying),
		symbols.Symbol(o.Strike),
		t.Day(), t.Month().String(), t.Year(),
		o.StrikeDisplay(), kind,
		symbols.Symbol(o.Collateral),
	)
}

// Symbol returns e.g. "oWETHUSDC/USDC-25SEP20-200P".
func (o *Otoken) Symbol(symbols SymbolLookup) string {
	t := o.ExpiryTime()
	_, tag := o.typeName()
	month := strings.ToUpper(t.Month().String()[:3])
	return fmt.Sprintf("o%s%s/%s-%02d%s%02d-%s%s",
		symbols.Symbol(o.Underlying),
		symbols.Symbol(o.Strike),
		symbols.Symbol(o.Collateral),
		t.Day(), month, t.Year()%100,
		o.StrikeDisplay(), tag,
	)
}
