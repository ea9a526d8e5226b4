package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	// AccountScopeHolder is a wallet holding tokens (users, operators, vault owners).
	AccountScopeHolder AccountScope = iota
	// AccountScopePool is the margin pool custody account for one asset.
	AccountScopePool
	// AccountScopeExternal is the issuance boundary. Minting credits it, burning debits it,
	// and funding from outside the system (bridged deposits, faucets) also credits it.
	AccountScopeExternal
)

func (s AccountScope) String() string {
	switch s {
	case AccountScopeHolder:
		return "holder"
	case AccountScopePool:
		return "pool"
	case AccountScopeExternal:
		return "external"
	default:
		return "unknown"
	}
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope AccountScope
	Owner common.Address // zero for pool and external accounts
	Asset common.Address
}

func HolderAccount(owner, asset common.Address) AccountKey {
	return AccountKey{Scope: AccountScopeHolder, Owner: owner, Asset: asset}
}

func PoolAccount(asset common.Address) AccountKey {
	return AccountKey{Scope: AccountScopePool, Asset: asset}
}

func ExternalAccount(asset common.Address) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, Asset: asset}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeHolder:
		return fmt.Sprintf("holder:%s:%s", k.Owner.Hex(), k.Asset.Hex())
	case AccountScopePool:
		return fmt.Sprintf("pool:%s", k.Asset.Hex())
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s", k.Asset.Hex())
	}
	return "unknown"
}

// MayGoNegative reports whether the account is a boundary account.
func (k AccountKey) MayGoNegative() bool {
	return k.Scope == AccountScopeExternal
}
