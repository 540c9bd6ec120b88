package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x5A}, AddressLength)
	addr := NewAddress(PCPrefix, raw)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(PCPrefix)) {
		t.Fatalf("encoded address %q missing prefix", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %v != %v", decoded, addr)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("payload mismatch")
	}
	arr := decoded.Array()
	if !bytes.Equal(arr[:], raw) {
		t.Fatalf("array payload mismatch")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "nonsense", "pc1", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"} {
		if _, err := DecodeAddress(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestKeyDerivedAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.Array() == ([AddressLength]byte{}) {
		t.Fatalf("derived address is zero")
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.PubKey().Address().Equal(addr) {
		t.Fatalf("restored key derives different address")
	}
}
