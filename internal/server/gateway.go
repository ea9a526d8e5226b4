package server

import (
	"OptionLedger/internal/observability"
	"OptionLedger/internal/query"
	"OptionLedger/internal/reason"
	"encoding/json"
	"errors"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Gateway serves the read-only JSON query routes.
type Gateway struct {
	qs      *query.QueryService
	metrics *observability.Metrics
}

func NewGateway(qs *query.QueryService, metrics *observability.Metrics) *Gateway {
	return &Gateway{qs: qs, metrics: metrics}
}

type route struct {
	path    string
	name    string
	handler func(r *http.Request, p map[string]string) (interface{}, error)
}

// Register adds every route to mux.
func (g *Gateway) Register(mux *runtime.ServeMux) error {
	routes := []route{
		{"/v1/vaults/{owner}/{vault_id}", "vault", g.getVault},
		{"/v1/vaults/{owner}/{vault_id}/proceed", "proceed", g.getProceed},
		{"/v1/accounts/{owner}/vault-count", "vault_count", g.getVaultCount},
		{"/v1/accounts/{owner}/outcomes", "outcomes", g.listOutcomes},
		{"/v1/otokens/{otoken}", "otoken", g.getOtoken},
		{"/v1/otokens/{otoken}/payout", "payout", g.getPayout},
		{"/v1/balances/{holder}/{asset}", "balance", g.getBalance},
		{"/v1/system", "system", g.getSystem},
		{"/v1/admin/integrity", "integrity", g.verifyIntegrity},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(http.MethodGet, rt.path, g.wrap(rt)); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) wrap(rt route) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, p map[string]string) {
		start := time.Now()
		resp, err := rt.handler(r, p)
		code := codes.OK
		if err != nil {
			code = status.Code(toStatus(err))
		}
		if g.metrics != nil {
			g.metrics.QueryRequests.WithLabelValues(rt.name, code.String()).Inc()
			g.metrics.QueryDuration.WithLabelValues(rt.name).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			writeError(w, toStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (g *Gateway) getVault(r *http.Request, p map[string]string) (interface{}, error) {
	owner, id, err := vaultParams(p)
	if err != nil {
		return nil, err
	}
	return g.qs.GetVault(owner, id)
}

func (g *Gateway) getProceed(r *http.Request, p map[string]string) (interface{}, error) {
	owner, id, err := vaultParams(p)
	if err != nil {
		return nil, err
	}
	return g.qs.GetProceed(owner, id)
}

func (g *Gateway) getVaultCount(r *http.Request, p map[string]string) (interface{}, error) {
	owner, err := addressParam(p, "owner")
	if err != nil {
		return nil, err
	}
	return g.qs.GetVaultCount(owner), nil
}

func (g *Gateway) listOutcomes(r *http.Request, p map[string]string) (interface{}, error) {
	owner, err := addressParam(p, "owner")
	if err != nil {
		return nil, err
	}

	pageSize := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid limit: %v", err)
		}
		pageSize = n
	}
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 50
	}

	var before *int64
	if s := r.URL.Query().Get("before"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid before: %v", err)
		}
		before = &n
	}

	entries, err := g.qs.GetOutcomeHistory(r.Context(), owner, pageSize, before)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []query.OutcomeEntry{}
	}
	return map[string]interface{}{"outcomes": entries}, nil
}

func (g *Gateway) getOtoken(r *http.Request, p map[string]string) (interface{}, error) {
	otoken, err := addressParam(p, "otoken")
	if err != nil {
		return nil, err
	}
	return g.qs.GetOtoken(otoken)
}

func (g *Gateway) getPayout(r *http.Request, p map[string]string) (interface{}, error) {
	otoken, err := addressParam(p, "otoken")
	if err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(r.URL.Query().Get("amount"), 10)
	if !ok || amount.Sign() < 0 {
		return nil, status.Error(codes.InvalidArgument, "amount must be a non-negative base-10 integer")
	}
	return g.qs.GetPayout(otoken, amount)
}

func (g *Gateway) getBalance(r *http.Request, p map[string]string) (interface{}, error) {
	holder, err := addressParam(p, "holder")
	if err != nil {
		return nil, err
	}
	asset, err := addressParam(p, "asset")
	if err != nil {
		return nil, err
	}
	return g.qs.GetBalance(holder, asset), nil
}

func (g *Gateway) getSystem(r *http.Request, p map[string]string) (interface{}, error) {
	return g.qs.GetSystem(), nil
}

func (g *Gateway) verifyIntegrity(r *http.Request, p map[string]string) (interface{}, error) {
	return g.qs.VerifyIntegrity(r.Context())
}

// --- helpers ---

func addressParam(p map[string]string, name string) (common.Address, error) {
	s := p[name]
	if !common.IsHexAddress(s) {
		return common.Address{}, status.Errorf(codes.InvalidArgument, "%s is not an address: %q", name, s)
	}
	return common.HexToAddress(s), nil
}

func vaultParams(p map[string]string) (common.Address, uint64, error) {
	owner, err := addressParam(p, "owner")
	if err != nil {
		return common.Address{}, 0, err
	}
	id, err := strconv.ParseUint(p["vault_id"], 10, 64)
	if err != nil {
		return common.Address{}, 0, status.Errorf(codes.InvalidArgument, "invalid vault_id: %v", err)
	}
	return owner, id, nil
}

// toStatus maps query and ledger errors onto gRPC codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, query.ErrNotFound),
		errors.Is(err, reason.ErrVaultIDOutOfRange),
		errors.Is(err, reason.ErrUnknownOtoken):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, query.ErrNoAuditLog):
		return status.Error(codes.Unavailable, err.Error())
	}
	if reason.KindOf(err) != reason.KindUnknown {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func writeError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	writeJSON(w, runtime.HTTPStatusFromCode(st.Code()), map[string]interface{}{
		"code":    st.Code().String(),
		"message": st.Message(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARN: encode response: %v", err)
	}
}
