package solana

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidWire is returned for a transaction that does not parse.
var ErrInvalidWire = errors.New("invalid wire transaction")

const signatureLen = 64

// WireTransaction is a serialized transaction split into its signature slots
// and the message they sign. Legacy and v0 messages are both accepted.
type WireTransaction struct {
	Signatures [][]byte
	Message    []byte
}

// DecodeWireTransaction splits raw into signatures and message.
func DecodeWireTransaction(raw []byte) (*WireTransaction, error) {
	n, off, err := readCompactU16(raw, 0)
	if err != nil {
		return nil, err
	}
	end := off + n*signatureLen
	if n == 0 || end >= len(raw) {
		return nil, fmt.Errorf("%w: %d signature slots in %d bytes", ErrInvalidWire, n, len(raw))
	}

	sigs := make([][]byte, n)
	for i := 0; i < n; i++ {
		s := make([]byte, signatureLen)
		copy(s, raw[off+i*signatureLen:])
		sigs[i] = s
	}
	msg := make([]byte, len(raw)-end)
	copy(msg, raw[end:])
	return &WireTransaction{Signatures: sigs, Message: msg}, nil
}

// Serialize re-encodes the transaction.
func (t *WireTransaction) Serialize() []byte {
	out := appendCompactU16(nil, len(t.Signatures))
	for _, s := range t.Signatures {
		out = append(out, s...)
	}
	return append(out, t.Message...)
}

// RequiredSigners returns the base58 keys that must sign the message, fee payer first.
func (t *WireTransaction) RequiredSigners() ([]string, error) {
	msg := t.Message
	off := 0
	if len(msg) > 0 && msg[0]&0x80 != 0 {
		// versioned message prefix
		off = 1
	}
	if len(msg) < off+3 {
		return nil, fmt.Errorf("%w: short message header", ErrInvalidWire)
	}
	required := int(msg[off])
	off += 3

	keys, off, err := readCompactU16(msg, off)
	if err != nil {
		return nil, err
	}
	if required > keys || off+keys*32 > len(msg) {
		return nil, fmt.Errorf("%w: %d signers of %d keys", ErrInvalidWire, required, keys)
	}

	out := make([]string, required)
	for i := 0; i < required; i++ {
		out[i] = base58.Encode(msg[off+i*32 : off+(i+1)*32])
	}
	return out, nil
}

func readCompactU16(b []byte, off int) (int, int, error) {
	val := 0
	for i := 0; i < 3; i++ {
		if off >= len(b) {
			return 0, 0, fmt.Errorf("%w: truncated length prefix", ErrInvalidWire)
		}
		c := b[off]
		off++
		val |= int(c&0x7f) << (7 * i)
		if c&0x80 == 0 {
			return val, off, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: length prefix too long", ErrInvalidWire)
}

func appendCompactU16(b []byte, v int) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}
