package core

import (
	"OptionLedger/internal/ledger"
	"OptionLedger/internal/vault"
	"encoding/binary"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// StateDigest serializes every vault and every ledger balance into canonical
// bytes. Vaults are visited in owner/id order and balances in account path
// order, so equal states always produce equal digests.
func StateDigest(store *vault.Store, book *ledger.BalanceTracker) []byte {
	digest := make([]byte, 0, 1024)

	store.Each(func(v *vault.Vault) {
		digest = append(digest, v.Owner.Bytes()...)
		digest = binary.BigEndian.AppendUint64(digest, v.ID)
		digest = append(digest, byte(v.Type))
		digest = appendSlots(digest, v.ShortOtokens, v.ShortAmounts)
		digest = appendSlots(digest, v.LongOtokens, v.LongAmounts)
		digest = appendSlots(digest, v.CollateralAssets, v.CollateralAmounts)
		digest = binary.BigEndian.AppendUint64(digest, uint64(v.LatestUpdate.Unix()))
	})

	balances := book.Snapshot()
	keys := make([]ledger.AccountKey, 0, len(balances))
	for key := range balances {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].AccountPath() < keys[j].AccountPath()
	})
	for _, key := range keys {
		path := key.AccountPath()
		digest = binary.BigEndian.AppendUint16(digest, uint16(len(path)))
		digest = append(digest, path...)
		digest = appendAmount(digest, balances[key])
	}

	return digest
}

func appendSlots(buf []byte, assets []common.Address, amounts []*big.Int) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(assets)))
	for i, a := range assets {
		buf = append(buf, a.Bytes()...)
		if i < len(amounts) {
			buf = appendAmount(buf, amounts[i])
		} else {
			buf = appendAmount(buf, nil)
		}
	}
	return buf
}

// appendAmount writes sign, length and big-endian magnitude.
func appendAmount(buf []byte, v *big.Int) []byte {
	if v == nil || v.Sign() == 0 {
		return append(buf, 0, 0, 0)
	}
	sign := byte(1)
	if v.Sign() < 0 {
		sign = 2
	}
	mag := v.Bytes()
	buf = append(buf, sign)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(mag)))
	return append(buf, mag...)
}
