package rpc

import (
	"net/http"
	"testing"
)

func TestEscrowCreateAndGet(t *testing.T) {
	env := newRPCTestEnv(t)
	created := env.createOrder(t, "order-http", "500")

	if created.OrderID != "order-http" || created.Status != "locked" {
		t.Fatalf("unexpected create result: %+v", created)
	}
	if created.Buyer != bech32Addr(env.buyer) || created.Seller != bech32Addr(env.seller) {
		t.Fatalf("addresses not bech32 encoded: %+v", created)
	}
	if created.Custody == "" || created.Custody == created.Buyer {
		t.Fatalf("custody account missing or aliased: %+v", created)
	}
	if created.LockedAt == nil || created.ReleasedAt != nil {
		t.Fatalf("timestamp projection wrong: %+v", created)
	}

	var fetched escrowJSON
	env.mustCall(t, "escrow_get", map[string]string{"orderId": "order-http"}, &fetched)
	if fetched.OrderID != created.OrderID || fetched.Amount != "500" {
		t.Fatalf("get mismatch: %+v", fetched)
	}
}

func TestEscrowCreateInvalidParams(t *testing.T) {
	env := newRPCTestEnv(t)
	cases := []struct {
		name   string
		params map[string]string
	}{
		{"bad buyer", map[string]string{"buyer": "nonsense", "seller": bech32Addr(env.seller), "orderId": "o", "amount": "1"}},
		{"bad amount", map[string]string{"buyer": bech32Addr(env.buyer), "seller": bech32Addr(env.seller), "orderId": "o", "amount": "abc"}},
		{"zero amount", map[string]string{"buyer": bech32Addr(env.buyer), "seller": bech32Addr(env.seller), "orderId": "o", "amount": "0"}},
		{"empty order", map[string]string{"buyer": bech32Addr(env.buyer), "seller": bech32Addr(env.seller), "orderId": "  ", "amount": "1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, rpcErr, _ := env.call(t, "escrow_create", tc.params, true)
			if rpcErr == nil || rpcErr.Code != codeInvalidParams {
				t.Fatalf("expected invalid params, got %+v", rpcErr)
			}
		})
	}
}

func TestEscrowDuplicateMapsToConflict(t *testing.T) {
	env := newRPCTestEnv(t)
	env.createOrder(t, "order-conflict", "100")

	_, rpcErr, status := env.call(t, "escrow_create", map[string]string{
		"buyer":   bech32Addr(env.buyer),
		"seller":  bech32Addr(env.seller),
		"orderId": "order-conflict",
		"amount":  "100",
	}, true)
	if rpcErr == nil || rpcErr.Code != codeConflict {
		t.Fatalf("expected conflict code, got %+v", rpcErr)
	}
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
}

func TestEscrowGetNotFound(t *testing.T) {
	env := newRPCTestEnv(t)
	_, rpcErr, status := env.call(t, "escrow_get", map[string]string{"orderId": "order-none"}, false)
	if rpcErr == nil || rpcErr.Code != codeNotFound {
		t.Fatalf("expected not found code, got %+v", rpcErr)
	}
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestEscrowLifecycleOverRPC(t *testing.T) {
	env := newRPCTestEnv(t)
	env.createOrder(t, "order-cycle", "400")

	var disputed escrowJSON
	env.mustCall(t, "escrow_flagDispute", map[string]string{
		"orderId": "order-cycle",
		"caller":  bech32Addr(env.buyer),
	}, &disputed)
	if disputed.Status != "disputed" {
		t.Fatalf("expected disputed, got %s", disputed.Status)
	}

	var resolved escrowJSON
	env.mustCall(t, "escrow_resolveRefund", map[string]string{
		"orderId": "order-cycle",
		"caller":  bech32Addr(env.arbiter),
	}, &resolved)
	if resolved.Status != "refunded" || resolved.ResolvedAt == nil {
		t.Fatalf("expected refunded with timestamp, got %+v", resolved)
	}

	var balance struct {
		Address string `json:"address"`
		Balance string `json:"balance"`
	}
	env.mustCall(t, "ledger_getBalance", map[string]string{"address": bech32Addr(env.buyer)}, &balance)
	if balance.Balance != "1000000" {
		t.Fatalf("buyer balance = %s, want full refund", balance.Balance)
	}
}

func TestEscrowUnauthorizedCallerMapsToForbidden(t *testing.T) {
	env := newRPCTestEnv(t)
	env.createOrder(t, "order-forbidden", "100")

	_, rpcErr, status := env.call(t, "escrow_confirmRelease", map[string]string{
		"orderId": "order-forbidden",
		"caller":  bech32Addr(env.seller),
	}, true)
	if rpcErr == nil || rpcErr.Code != codeForbidden {
		t.Fatalf("expected forbidden code, got %+v", rpcErr)
	}
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestEscrowListByParticipant(t *testing.T) {
	env := newRPCTestEnv(t)
	env.createOrder(t, "order-l1", "10")
	env.createOrder(t, "order-l2", "10")

	var records []escrowJSON
	env.mustCall(t, "escrow_listByParticipant", map[string]string{
		"participant": bech32Addr(env.seller),
	}, &records)
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	var none []escrowJSON
	env.mustCall(t, "escrow_listByParticipant", map[string]string{
		"participant": bech32Addr(testAddr(0x77)),
	}, &none)
	if len(none) != 0 {
		t.Fatalf("expected empty list, got %d", len(none))
	}
}

func TestListEvents(t *testing.T) {
	env := newRPCTestEnv(t)
	env.createOrder(t, "order-events", "10")

	var evts []eventJSON
	env.mustCall(t, "escrow_listEvents", map[string]interface{}{}, &evts)
	if len(evts) != 2 {
		t.Fatalf("events = %d, want create+lock", len(evts))
	}
	if evts[0].Type != "escrow.created" || evts[1].Type != "escrow.locked" {
		t.Fatalf("unexpected event types: %+v", evts)
	}
	if evts[0].Sequence != 1 || evts[1].Sequence != 2 {
		t.Fatalf("sequence numbering broken: %+v", evts)
	}

	limit := 1
	var limited []eventJSON
	env.mustCall(t, "escrow_listEvents", map[string]interface{}{"limit": &limit}, &limited)
	if len(limited) != 1 {
		t.Fatalf("limit ignored: %d", len(limited))
	}
}
