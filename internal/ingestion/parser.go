package ingestion

import (
	"OptionLedger/internal/action"
	"OptionLedger/internal/event"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Subject verbs under the command prefix. The token after the prefix picks
// the command type; anything after that is free for partitioning.
const (
	verbOperate = "operate"
	verbPrice   = "price"
	verbAdmin   = "admin"
)

// CommandTypeForSubject maps a command subject to its command type.
// Subjects look like <prefix>.operate.<source>, <prefix>.price.<asset> or
// <prefix>.admin.<op>.
func CommandTypeForSubject(prefix, subject string) event.CommandType {
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok {
		return event.CommandTypeUnknown
	}
	verb, _, _ := strings.Cut(rest, ".")
	switch verb {
	case verbOperate:
		return event.CommandTypeOperate
	case verbPrice:
		return event.CommandTypePrice
	case verbAdmin:
		return event.CommandTypeAdmin
	default:
		return event.CommandTypeUnknown
	}
}

// ParseCommand converts a RawEvent into a typed command.
// The ingestion shell validates and parses before anything reaches the
// sequencer. A payload without its own timestamp takes the stream timestamp,
// which is stable across redeliveries.
func ParseCommand(prefix string, raw RawEvent) (event.Command, error) {
	switch typ := CommandTypeForSubject(prefix, raw.Subject); typ {
	case event.CommandTypeOperate:
		b, err := parseBatch(raw)
		return event.Command{Type: typ, Batch: b}, err
	case event.CommandTypePrice:
		p, err := parsePrice(raw)
		return event.Command{Type: typ, Price: p}, err
	case event.CommandTypeAdmin:
		a, err := parseAdmin(raw)
		return event.Command{Type: typ, Admin: a}, err
	default:
		return event.Command{}, fmt.Errorf("unknown command subject: %s", raw.Subject)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Token amounts and
// prices are base-10 strings.

type batchJSON struct {
	BatchID     string          `json:"batch_id"`
	Source      string          `json:"source"`
	Sequence    int64           `json:"sequence"`
	Sender      common.Address  `json:"sender"`
	Actions     []action.Action `json:"actions"`
	TimestampUs int64           `json:"timestamp_us,omitempty"`
}

func parseBatch(raw RawEvent) (*event.BatchEnvelope, error) {
	var j batchJSON
	if err := json.Unmarshal(raw.Data, &j); err != nil {
		return nil, fmt.Errorf("parse batch: %w", err)
	}
	batchID, err := uuid.Parse(j.BatchID)
	if err != nil {
		return nil, fmt.Errorf("parse batch_id: %w", err)
	}
	if j.Source == "" {
		return nil, fmt.Errorf("parse batch %s: missing source", batchID)
	}
	if j.Sequence <= 0 {
		return nil, fmt.Errorf("parse batch %s: sequence must be positive", batchID)
	}
	return &event.BatchEnvelope{
		BatchID:    batchID,
		Source:     j.Source,
		Sequence:   j.Sequence,
		Sender:     j.Sender,
		Actions:    j.Actions,
		ReceivedAt: timestampOr(j.TimestampUs, raw.Timestamp),
	}, nil
}

type priceJSON struct {
	Pricer      common.Address `json:"pricer"`
	Asset       common.Address `json:"asset"`
	Expiry      int64          `json:"expiry,omitempty"`
	Price       string         `json:"price"`
	Sequence    int64          `json:"sequence"`
	TimestampUs int64          `json:"timestamp_us,omitempty"`
}

func parsePrice(raw RawEvent) (*event.PriceReport, error) {
	var j priceJSON
	if err := json.Unmarshal(raw.Data, &j); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	price, err := parseAmount("price", j.Price)
	if err != nil {
		return nil, err
	}
	return &event.PriceReport{
		Pricer:     j.Pricer,
		Asset:      j.Asset,
		Expiry:     j.Expiry,
		Price:      price,
		Sequence:   j.Sequence,
		ReportedAt: timestampOr(j.TimestampUs, raw.Timestamp),
	}, nil
}

type otokenJSON struct {
	Underlying  common.Address `json:"underlying"`
	Strike      common.Address `json:"strike"`
	Collateral  common.Address `json:"collateral"`
	StrikePrice string         `json:"strike_price"`
	Expiry      int64          `json:"expiry"`
	IsPut       bool           `json:"is_put"`
}

type adminJSON struct {
	Op          string         `json:"op"`
	Caller      common.Address `json:"caller"`
	Target      common.Address `json:"target,omitempty"`
	Enabled     bool           `json:"enabled,omitempty"`
	Otoken      *otokenJSON    `json:"otoken,omitempty"`
	Sequence    int64          `json:"sequence"`
	TimestampUs int64          `json:"timestamp_us,omitempty"`
}

func parseAdmin(raw RawEvent) (*event.AdminCommand, error) {
	var j adminJSON
	if err := json.Unmarshal(raw.Data, &j); err != nil {
		return nil, fmt.Errorf("parse admin: %w", err)
	}
	cmd := &event.AdminCommand{
		Op:       event.AdminOp(j.Op),
		Caller:   j.Caller,
		Target:   j.Target,
		Enabled:  j.Enabled,
		Sequence: j.Sequence,
		IssuedAt: timestampOr(j.TimestampUs, raw.Timestamp),
	}
	switch cmd.Op {
	case event.AdminSetOperator, event.AdminSetPartialPauser, event.AdminSetFullPauser,
		event.AdminSetPartiallyPaused, event.AdminSetFullyPaused, event.AdminSetCallRestriction:
	case event.AdminCreateOtoken:
		if j.Otoken == nil {
			return nil, fmt.Errorf("parse admin %s: missing otoken", j.Op)
		}
		strike, err := parseAmount("strike_price", j.Otoken.StrikePrice)
		if err != nil {
			return nil, err
		}
		cmd.Otoken = &event.OtokenParams{
			Underlying:  j.Otoken.Underlying,
			Strike:      j.Otoken.Strike,
			Collateral:  j.Otoken.Collateral,
			StrikePrice: strike,
			Expiry:      j.Otoken.Expiry,
			IsPut:       j.Otoken.IsPut,
		}
	default:
		return nil, fmt.Errorf("unknown admin op: %q", j.Op)
	}
	return cmd, nil
}

func parseAmount(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse %s %q: not a base-10 integer", field, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("parse %s %q: negative", field, s)
	}
	return v, nil
}

func timestampOr(us int64, fallback time.Time) time.Time {
	if us != 0 {
		return time.UnixMicro(us)
	}
	return fallback
}

// === Encoding ===

// EncodeCommand renders a command as its subject and JSON payload, the
// inverse of ParseCommand.
func EncodeCommand(prefix string, cmd event.Command) (string, []byte, error) {
	switch cmd.Type {
	case event.CommandTypeOperate:
		b := cmd.Batch
		if b == nil {
			return "", nil, fmt.Errorf("operate command without batch")
		}
		data, err := json.Marshal(batchJSON{
			BatchID:     b.BatchID.String(),
			Source:      b.Source,
			Sequence:    b.Sequence,
			Sender:      b.Sender,
			Actions:     b.Actions,
			TimestampUs: unixMicro(b.ReceivedAt),
		})
		return fmt.Sprintf("%s.%s.%s", prefix, verbOperate, b.Source), data, err
	case event.CommandTypePrice:
		p := cmd.Price
		if p == nil || p.Price == nil {
			return "", nil, fmt.Errorf("price command without report")
		}
		data, err := json.Marshal(priceJSON{
			Pricer:      p.Pricer,
			Asset:       p.Asset,
			Expiry:      p.Expiry,
			Price:       p.Price.String(),
			Sequence:    p.Sequence,
			TimestampUs: unixMicro(p.ReportedAt),
		})
		return fmt.Sprintf("%s.%s.%s", prefix, verbPrice, strings.ToLower(p.Asset.Hex())), data, err
	case event.CommandTypeAdmin:
		a := cmd.Admin
		if a == nil {
			return "", nil, fmt.Errorf("admin command without body")
		}
		j := adminJSON{
			Op:          string(a.Op),
			Caller:      a.Caller,
			Target:      a.Target,
			Enabled:     a.Enabled,
			Sequence:    a.Sequence,
			TimestampUs: unixMicro(a.IssuedAt),
		}
		if o := a.Otoken; o != nil && o.StrikePrice != nil {
			j.Otoken = &otokenJSON{
				Underlying:  o.Underlying,
				Strike:      o.Strike,
				Collateral:  o.Collateral,
				StrikePrice: o.StrikePrice.String(),
				Expiry:      o.Expiry,
				IsPut:       o.IsPut,
			}
		}
		data, err := json.Marshal(j)
		return fmt.Sprintf("%s.%s.%s", prefix, verbAdmin, a.Op), data, err
	default:
		return "", nil, fmt.Errorf("unknown command type %s", cmd.Type)
	}
}

func unixMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}
