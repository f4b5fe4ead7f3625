package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
)

// buildUnsigned assembles a minimal v0 transaction with one empty signature slot.
func buildUnsigned(payer []byte) []byte {
	// v0 prefix, header, two account keys
	msg := []byte{0x80, 1, 0, 1, 2}
	msg = append(msg, payer...)
	msg = append(msg, make([]byte, 32)...)
	// recent blockhash, then no instructions and no lookups
	msg = append(msg, make([]byte, 32)...)
	msg = append(msg, 0, 0)

	raw := []byte{1}
	raw = append(raw, make([]byte, 64)...)
	return append(raw, msg...)
}

func TestDecodeWireTransaction_RoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	raw := buildUnsigned(pub)

	tx, err := DecodeWireTransaction(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tx.Signatures) != 1 {
		t.Fatalf("expected 1 signature slot, got %d", len(tx.Signatures))
	}
	if !bytes.Equal(tx.Serialize(), raw) {
		t.Error("serialize did not reproduce input")
	}

	signers, err := tx.RequiredSigners()
	if err != nil {
		t.Fatalf("signers: %v", err)
	}
	if len(signers) != 1 || signers[0] != base58.Encode(pub) {
		t.Errorf("unexpected signers %v", signers)
	}
}

func TestDecodeWireTransaction_Truncated(t *testing.T) {
	for _, raw := range [][]byte{nil, {0}, {2, 1, 2, 3}, {0x80, 0x80, 0x80}} {
		if _, err := DecodeWireTransaction(raw); !errors.Is(err, ErrInvalidWire) {
			t.Errorf("raw %v: expected ErrInvalidWire, got %v", raw, err)
		}
	}
}

func TestCompactU16(t *testing.T) {
	for _, v := range []int{0, 1, 127, 128, 300, 16383, 16384, 65535} {
		enc := appendCompactU16(nil, v)
		got, off, err := readCompactU16(enc, 0)
		if err != nil {
			t.Fatalf("%d: %v", v, err)
		}
		if got != v || off != len(enc) {
			t.Errorf("%d: got %d (off %d, len %d)", v, got, off, len(enc))
		}
	}
}
