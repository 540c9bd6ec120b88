package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"proofcart/crypto"
	"proofcart/native/escrow"
	"proofcart/native/registry"
)

// escrowJSON is the wire form of a custody record snapshot.
type escrowJSON struct {
	OrderID    string `json:"orderId"`
	Buyer      string `json:"buyer"`
	Seller     string `json:"seller"`
	Amount     string `json:"amount"`
	Status     string `json:"status"`
	Custody    string `json:"custody"`
	CreatedAt  int64  `json:"createdAt"`
	LockedAt   *int64 `json:"lockedAt,omitempty"`
	ReleasedAt *int64 `json:"releasedAt,omitempty"`
	ResolvedAt *int64 `json:"resolvedAt,omitempty"`
}

func (s *Server) formatEscrow(esc *escrow.Escrow) *escrowJSON {
	if esc == nil {
		return nil
	}
	amount := "0"
	if esc.Amount != nil {
		amount = esc.Amount.String()
	}
	out := &escrowJSON{
		OrderID:   esc.OrderID,
		Buyer:     formatAddress(esc.Buyer),
		Seller:    formatAddress(esc.Seller),
		Amount:    amount,
		Status:    esc.Status.String(),
		CreatedAt: esc.CreatedAt,
	}
	if custody, err := s.ledger.CustodyAccount(esc.OrderID); err == nil {
		out.Custody = formatAddress(custody)
	}
	if esc.LockedAt != 0 {
		v := esc.LockedAt
		out.LockedAt = &v
	}
	if esc.ReleasedAt != 0 {
		v := esc.ReleasedAt
		out.ReleasedAt = &v
	}
	if esc.ResolvedAt != 0 {
		v := esc.ResolvedAt
		out.ResolvedAt = &v
	}
	return out
}

// transferJSON is one entry of a token's ownership log on the wire.
type transferJSON struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp int64  `json:"timestamp"`
}

// nftJSON is the wire form of a product token.
type nftJSON struct {
	ID           uint64         `json:"id"`
	SerialNumber string         `json:"serialNumber"`
	ProductName  string         `json:"productName"`
	Manufacturer string         `json:"manufacturer,omitempty"`
	MetadataURI  string         `json:"metadataUri,omitempty"`
	Owner        string         `json:"owner"`
	MintedAt     int64          `json:"mintedAt"`
	History      []transferJSON `json:"history,omitempty"`
}

func formatNFT(nft *registry.NFT) *nftJSON {
	if nft == nil {
		return nil
	}
	out := &nftJSON{
		ID:           nft.ID,
		SerialNumber: nft.SerialNumber,
		ProductName:  nft.ProductName,
		Manufacturer: nft.Manufacturer,
		MetadataURI:  nft.MetadataURI,
		Owner:        formatAddress(nft.Owner),
		MintedAt:     nft.MintedAt,
	}
	for _, rec := range nft.History {
		out.History = append(out.History, transferJSON{
			From:      formatAddress(rec.From),
			To:        formatAddress(rec.To),
			Timestamp: rec.Timestamp,
		})
	}
	return out
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.PCPrefix, addr[:]).String()
}

func parseAddress(raw string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, err
	}
	return addr.Array(), nil
}

func parsePositiveBigInt(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", raw)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}
