package registry

import (
	"fmt"
	"strings"
)

// TransferRecord is one entry in a token's append-only ownership log.
type TransferRecord struct {
	From      [20]byte
	To        [20]byte
	Timestamp int64
}

// NFT is the ownership record minted for a physical product. The serial
// number is unique across the registry and never changes; the owner and the
// transfer history are the only mutable fields.
type NFT struct {
	ID           uint64
	SerialNumber string
	ProductName  string
	Manufacturer string
	MetadataURI  string
	Owner        [20]byte
	MintedAt     int64
	History      []TransferRecord
}

// MintRequest carries the caller-supplied metadata for a new token.
type MintRequest struct {
	SerialNumber string
	ProductName  string
	Manufacturer string
	MetadataURI  string
}

// Clone returns a deep copy so callers can safely mutate the result.
func (n *NFT) Clone() *NFT {
	if n == nil {
		return nil
	}
	clone := *n
	clone.History = append([]TransferRecord(nil), n.History...)
	return &clone
}

// NormalizeSerial validates a serial number and returns its canonical form.
func NormalizeSerial(serial string) (string, error) {
	trimmed := strings.TrimSpace(serial)
	if trimmed == "" {
		return "", fmt.Errorf("serial number required")
	}
	return trimmed, nil
}

// SanitizeMintRequest validates the mint metadata. Product name and serial are
// mandatory; manufacturer and metadata URI may be empty.
func SanitizeMintRequest(req MintRequest) (MintRequest, error) {
	serial, err := NormalizeSerial(req.SerialNumber)
	if err != nil {
		return MintRequest{}, err
	}
	req.SerialNumber = serial
	req.ProductName = strings.TrimSpace(req.ProductName)
	if req.ProductName == "" {
		return MintRequest{}, fmt.Errorf("product name required")
	}
	req.Manufacturer = strings.TrimSpace(req.Manufacturer)
	req.MetadataURI = strings.TrimSpace(req.MetadataURI)
	return req, nil
}
