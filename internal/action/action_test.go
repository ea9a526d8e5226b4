package action_test

import (
	"OptionLedger/internal/action"
	"OptionLedger/internal/reason"
	"OptionLedger/internal/vault"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	second = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	otoken = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

// ============================================================================
// Test: Parse rules
// ============================================================================

func TestParse_CodeTable(t *testing.T) {
	tests := []struct {
		name  string
		parse func(action.Action) error
		in    action.Action
		want  *reason.Error
	}{
		{"open: wrong kind", openVault, action.Action{Kind: action.KindMintShort, Owner: owner}, reason.ErrNotOpenVault},
		{"open: null owner", openVault, action.Action{Kind: action.KindOpenVault}, reason.ErrOpenVaultOwner},
		{"open: vault type 2", openVault, action.Action{Kind: action.KindOpenVault, Owner: owner, Data: word(2)}, reason.ErrInvalidVaultType},
		{"mint: wrong kind", mint, action.Action{Kind: action.KindBurnShort, Owner: owner}, reason.ErrNotMint},
		{"mint: null owner", mint, action.Action{Kind: action.KindMintShort}, reason.ErrMintOwner},
		{"burn: wrong kind", burn, action.Action{Kind: action.KindMintShort, Owner: owner}, reason.ErrNotBurn},
		{"burn: null owner", burn, action.Action{Kind: action.KindBurnShort}, reason.ErrBurnOwner},
		{"deposit: wrong kind", deposit, action.Action{Kind: action.KindWithdrawLong, Owner: owner}, reason.ErrNotDeposit},
		{"deposit: null owner", deposit, action.Action{Kind: action.KindDepositCollateral}, reason.ErrDepositOwner},
		{"withdraw: wrong kind", withdraw, action.Action{Kind: action.KindDepositLong, Owner: owner}, reason.ErrNotWithdraw},
		{"withdraw: null owner", withdraw, action.Action{Kind: action.KindWithdrawLong, SecondAddress: second}, reason.ErrWithdrawOwner},
		{"withdraw: null to", withdraw, action.Action{Kind: action.KindWithdrawCollateral, Owner: owner}, reason.ErrWithdrawTo},
		{"redeem: wrong kind", redeem, action.Action{Kind: action.KindCall, SecondAddress: second}, reason.ErrNotRedeem},
		{"redeem: null receiver", redeem, action.Action{Kind: action.KindRedeem, Owner: owner}, reason.ErrRedeemReceiver},
		{"redeem: nil amount", redeem, action.Action{Kind: action.KindRedeem, SecondAddress: second, Asset: otoken}, reason.ErrZeroRedeem},
		{"redeem: zero amount", redeem, action.Action{Kind: action.KindRedeem, SecondAddress: second, Asset: otoken, Amount: new(big.Int)}, reason.ErrZeroRedeem},
		{"settle: wrong kind", settle, action.Action{Kind: action.KindRedeem, Owner: owner, SecondAddress: second}, reason.ErrNotSettleVault},
		{"settle: null owner", settle, action.Action{Kind: action.KindSettleVault, SecondAddress: second}, reason.ErrSettleOwner},
		{"settle: null to", settle, action.Action{Kind: action.KindSettleVault, Owner: owner}, reason.ErrSettleTo},
		{"call: wrong kind", call, action.Action{Kind: action.KindRedeem, SecondAddress: second}, reason.ErrNotCall},
		{"call: null target", call, action.Action{Kind: action.KindCall}, reason.ErrCallTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.parse(tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %s", err, tt.want.Code)
			}
			if reason.KindOf(err) != reason.KindStructural {
				t.Errorf("kind: got %s", reason.KindOf(err))
			}
		})
	}
}

func openVault(a action.Action) error { _, err := action.ParseOpenVault(a); return err }
func mint(a action.Action) error { _, err := action.ParseMint(a); return err }
func burn(a action.Action) error { _, err := action.ParseBurn(a); return err }
func deposit(a action.Action) error { _, err := action.ParseDeposit(a); return err }
func withdraw(a action.Action) error { _, err := action.ParseWithdraw(a); return err }
func redeem(a action.Action) error { _, err := action.ParseRedeem(a); return err }
func settle(a action.Action) error { _, err := action.ParseSettleVault(a); return err }
func call(a action.Action) error { _, err := action.ParseCall(a); return err }

func word(n int64) []byte {
	return common.LeftPadBytes(big.NewInt(n).Bytes(), 32)
}

func TestParseOpenVault_VaultType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want vault.Type
	}{
		{"empty data", nil, vault.TypeNaked},
		{"zero word", word(0), vault.TypeNaked},
		{"one word", word(1), vault.TypeFullyCollateralized},
		{"short data ignored", []byte{1}, vault.TypeNaked},
		{"encoder", action.EncodeVaultType(vault.TypeFullyCollateralized), vault.TypeFullyCollateralized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := action.ParseOpenVault(action.Action{Kind: action.KindOpenVault, Owner: owner, VaultID: 3, Data: tt.data})
			if err != nil {
				t.Fatalf("ParseOpenVault: %v", err)
			}
			if args.VaultType != tt.want || args.VaultID != 3 || args.Owner != owner {
				t.Errorf("got %+v", args)
			}
		})
	}
}

func TestParseRedeem_AllowsNullOwner(t *testing.T) {
	args, err := action.ParseRedeem(action.Action{
		Kind:          action.KindRedeem,
		SecondAddress: second,
		Asset:         otoken,
		Amount:        big.NewInt(5),
	})
	if err != nil {
		t.Fatalf("ParseRedeem: %v", err)
	}
	if args.Receiver != second || args.Otoken != otoken || args.Amount.Int64() != 5 {
		t.Errorf("got %+v", args)
	}
}

func TestParseDeposit_AcceptsBothKinds(t *testing.T) {
	for _, k := range []action.Kind{action.KindDepositLong, action.KindDepositCollateral} {
		args, err := action.ParseDeposit(action.Action{Kind: k, Owner: owner, SecondAddress: second, Asset: otoken, VaultID: 1})
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		if args.From != second || args.Amount.Sign() != 0 {
			t.Errorf("%s: got %+v", k, args)
		}
	}
}

func TestParseMint_CopiesAmount(t *testing.T) {
	amt := big.NewInt(10)
	args, _ := action.ParseMint(action.Action{Kind: action.KindMintShort, Owner: owner, Amount: amt})
	amt.SetInt64(99)
	if args.Amount.Int64() != 10 {
		t.Error("parsed args share the caller's amount")
	}
}

// ============================================================================
// Test: Kinds
// ============================================================================

func TestKindFromWire(t *testing.T) {
	if action.KindFromWire(0) != action.KindOpenVault || action.KindFromWire(9) != action.KindCall {
		t.Error("known kinds must map to themselves")
	}
	for _, n := range []int64{-1, 10, 11, 1 << 40} {
		if k := action.KindFromWire(n); k != action.KindUnknown {
			t.Errorf("%d: got %s", n, k)
		}
	}
}

func TestKind_MutatesVault(t *testing.T) {
	mutating := map[action.Kind]bool{
		action.KindOpenVault:          true,
		action.KindMintShort:          true,
		action.KindBurnShort:          true,
		action.KindDepositLong:        true,
		action.KindWithdrawLong:       true,
		action.KindDepositCollateral:  true,
		action.KindWithdrawCollateral: true,
	}
	for k := action.KindOpenVault; k <= action.KindCall; k++ {
		if k.MutatesVault() != mutating[k] {
			t.Errorf("%s: got %v", k, k.MutatesVault())
		}
	}
	if action.KindUnknown.MutatesVault() {
		t.Error("unknown kind must not mutate")
	}
}

// ============================================================================
// Test: Wire codec
// ============================================================================

func TestDecodeBatch(t *testing.T) {
	raw := []byte(`[
		{"kind": 0, "owner": "0x00000000000000000000000000000000000000a1", "vault_id": 1, "data": "0x0000000000000000000000000000000000000000000000000000000000000001"},
		{"kind": 5, "owner": "0x00000000000000000000000000000000000000a1", "second_address": "0x00000000000000000000000000000000000000a2",
		 "asset": "0x00000000000000000000000000000000000000aa", "vault_id": 1, "amount": "250000000000000000000", "index": 0},
		{"kind": 42}
	]`)

	got, err := action.DecodeBatch(raw)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d actions", len(got))
	}

	open, err := action.ParseOpenVault(got[0])
	if err != nil || open.VaultType != vault.TypeFullyCollateralized {
		t.Errorf("open: %+v %v", open, err)
	}
	want, _ := new(big.Int).SetString("250000000000000000000", 10)
	if got[1].Kind != action.KindDepositCollateral || got[1].Amount.Cmp(want) != 0 || got[1].SecondAddress != second {
		t.Errorf("deposit: %+v", got[1])
	}
	if got[2].Kind != action.KindUnknown {
		t.Errorf("unknown: got %s", got[2].Kind)
	}
}

func TestDecodeBatch_RejectsBadAmount(t *testing.T) {
	for _, amt := range []string{`"1.5"`, `"-3"`, `"abc"`} {
		raw := []byte(`[{"kind": 1, "amount": ` + amt + `}]`)
		if _, err := action.DecodeBatch(raw); err == nil {
			t.Errorf("%s: expected error", amt)
		}
	}
}

func TestAction_EncodeDecode(t *testing.T) {
	in := []action.Action{{
		Kind:          action.KindWithdrawLong,
		Owner:         owner,
		SecondAddress: second,
		Asset:         otoken,
		VaultID:       7,
		Amount:        big.NewInt(123),
		Index:         1,
		Data:          []byte{0xde, 0xad},
	}}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := action.DecodeBatch(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	a := out[0]
	if a.Kind != in[0].Kind || a.Owner != owner || a.VaultID != 7 || a.Index != 1 ||
		a.Amount.Int64() != 123 || string(a.Data) != string(in[0].Data) {
		t.Errorf("got %+v", a)
	}
}
