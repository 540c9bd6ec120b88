package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"proofcart/core/events"
	"proofcart/core/state"
	"proofcart/crypto"
	"proofcart/ledger"
	"proofcart/native/escrow"
	"proofcart/native/registry"
	"proofcart/storage"
)

const testAuthToken = "test-token"

type rpcTestEnv struct {
	server  *Server
	handler http.Handler
	ledger  *ledger.Ledger
	buyer   [20]byte
	seller  [20]byte
	arbiter [20]byte
}

func newRPCTestEnv(t *testing.T) *rpcTestEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	led := ledger.New(manager)
	clock := int64(1_700_000_000)
	led.SetNowFunc(func() int64 {
		clock++
		return clock
	})

	env := &rpcTestEnv{
		ledger:  led,
		buyer:   testAddr(0x01),
		seller:  testAddr(0x02),
		arbiter: testAddr(0x0A),
	}

	escrowEngine := escrow.NewEngine(escrow.Config{
		FundOnCreate: true,
		Resolution:   escrow.ResolveParticipantArbitrated,
		Arbiter:      env.arbiter,
	})
	escrowEngine.SetState(manager)
	escrowEngine.SetLedger(led)

	registryEngine := registry.NewEngine()
	registryEngine.SetState(manager)

	recorder := events.NewRecorder()
	escrowEngine.SetEmitter(recorder)
	registryEngine.SetEmitter(recorder)

	if err := led.Credit(env.buyer, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("credit buyer: %v", err)
	}

	env.server = NewServer(escrowEngine, registryEngine, led, recorder, nil, testAuthToken)
	env.handler = env.server.Handler()
	return env
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func bech32Addr(addr [20]byte) string {
	return crypto.NewAddress(crypto.PCPrefix, addr[:]).String()
}

// call posts a JSON-RPC request through the full routing tree and decodes the
// envelope.
func (env *rpcTestEnv) call(t *testing.T, method string, params interface{}, authed bool) (json.RawMessage, *RPCError, int) {
	t.Helper()
	var rawParams []interface{}
	if params != nil {
		rawParams = []interface{}{params}
	}
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  rawParams,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAuthToken)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return decoded.Result, decoded.Error, rec.Code
}

func (env *rpcTestEnv) mustCall(t *testing.T, method string, params interface{}, out interface{}) {
	t.Helper()
	result, rpcErr, status := env.call(t, method, params, true)
	if rpcErr != nil {
		t.Fatalf("%s: rpc error %d %s (http %d)", method, rpcErr.Code, rpcErr.Message, status)
	}
	if out == nil {
		return
	}
	if err := json.Unmarshal(result, out); err != nil {
		t.Fatalf("%s: decode result: %v", method, err)
	}
}

func (env *rpcTestEnv) createOrder(t *testing.T, orderID string, amount string) escrowJSON {
	t.Helper()
	var out escrowJSON
	env.mustCall(t, "escrow_create", map[string]string{
		"buyer":   bech32Addr(env.buyer),
		"seller":  bech32Addr(env.seller),
		"orderId": orderID,
		"amount":  amount,
	}, &out)
	return out
}
