package action

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// actionJSON is the wire shape of an Action. Amounts travel as decimal
// strings so that 18-decimal values survive JSON number handling.
type actionJSON struct {
	Kind          int64          `json:"kind"`
	Owner         common.Address `json:"owner"`
	SecondAddress common.Address `json:"second_address"`
	Asset         common.Address `json:"asset"`
	VaultID       uint64         `json:"vault_id"`
	Amount        string         `json:"amount"`
	Index         uint64         `json:"index"`
	Data          hexutil.Bytes  `json:"data,omitempty"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	amount := "0"
	if a.Amount != nil {
		amount = a.Amount.String()
	}
	kind := int64(a.Kind)
	if a.Kind == KindUnknown {
		kind = -1
	}
	return json.Marshal(actionJSON{
		Kind:          kind,
		Owner:         a.Owner,
		SecondAddress: a.SecondAddress,
		Asset:         a.Asset,
		VaultID:       a.VaultID,
		Amount:        amount,
		Index:         a.Index,
		Data:          a.Data,
	})
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var j actionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("parse action: %w", err)
	}
	amount := new(big.Int)
	if j.Amount != "" {
		if _, ok := amount.SetString(j.Amount, 10); !ok {
			return fmt.Errorf("parse amount %q: not a base-10 integer", j.Amount)
		}
		if amount.Sign() < 0 {
			return fmt.Errorf("parse amount %q: negative", j.Amount)
		}
	}
	*a = Action{
		Kind:          KindFromWire(j.Kind),
		Owner:         j.Owner,
		SecondAddress: j.SecondAddress,
		Asset:         j.Asset,
		VaultID:       j.VaultID,
		Amount:        amount,
		Index:         j.Index,
		Data:          []byte(j.Data),
	}
	return nil
}

// DecodeBatch parses a JSON array of actions.
func DecodeBatch(data []byte) ([]Action, error) {
	var out []Action
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
