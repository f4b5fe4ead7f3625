// Package wallet provides transaction signing capabilities.
package wallet

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/solana"
)

// Signer signs a router-built transaction and submits it.
type Signer interface {
	// PublicKey returns the base58 wallet address.
	PublicKey() string
	// SignAndSend returns the transaction signature once submitted.
	SignAndSend(ctx context.Context, tx *domain.UnsignedTx) (string, error)
}

// KeypairSigner signs with a local ed25519 key and submits via RPC.
type KeypairSigner struct {
	key    ed25519.PrivateKey
	pubkey string
	rpc    solana.RPCClient
}

// NewKeypairSigner decodes a base58 secret, either a 64-byte keypair or a 32-byte seed.
func NewKeypairSigner(secret string, rpc solana.RPCClient) (*KeypairSigner, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}

	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		key = ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		// keypair files carry the public half; it must match the seed
		if !key.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("secret key: public half does not match seed")
		}
	default:
		return nil, fmt.Errorf("secret key: expected 32 or 64 bytes, got %d", len(raw))
	}

	return &KeypairSigner{
		key:    key,
		pubkey: base58.Encode(key.Public().(ed25519.PublicKey)),
		rpc:    rpc,
	}, nil
}

// PublicKey implements Signer.
func (s *KeypairSigner) PublicKey() string {
	return s.pubkey
}

// SignAndSend implements Signer.
func (s *KeypairSigner) SignAndSend(ctx context.Context, tx *domain.UnsignedTx) (string, error) {
	signed, sig, err := s.Sign(tx)
	if err != nil {
		return "", err
	}

	got, err := s.rpc.SendTransaction(ctx, signed)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	if got != sig {
		return "", fmt.Errorf("%w: node returned signature %s, signed %s", domain.ErrMalformedResponse, got, sig)
	}
	return sig, nil
}

// Sign fills this wallet's signature slot and returns the serialized
// transaction plus its base58 signature.
func (s *KeypairSigner) Sign(tx *domain.UnsignedTx) ([]byte, string, error) {
	if tx == nil {
		return nil, "", fmt.Errorf("sign: nil transaction")
	}
	wire, err := solana.DecodeWireTransaction(tx.Payload)
	if err != nil {
		return nil, "", fmt.Errorf("sign: %w", err)
	}
	signers, err := wire.RequiredSigners()
	if err != nil {
		return nil, "", fmt.Errorf("sign: %w", err)
	}

	slot := -1
	for i, k := range signers {
		if k == s.pubkey {
			slot = i
			break
		}
	}
	if slot < 0 || slot >= len(wire.Signatures) {
		return nil, "", fmt.Errorf("sign: wallet %s is not a required signer", s.pubkey)
	}

	sig := ed25519.Sign(s.key, wire.Message)
	wire.Signatures[slot] = sig
	return wire.Serialize(), base58.Encode(sig), nil
}

var _ Signer = (*KeypairSigner)(nil)
