package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/solana"
	"solana-entry-gate/internal/solana/stub"
)

func unsignedFor(payer ed25519.PublicKey) *domain.UnsignedTx {
	msg := []byte{0x80, 1, 0, 1, 2}
	msg = append(msg, payer...)
	msg = append(msg, make([]byte, 64)...)
	msg = append(msg, 0, 0)

	raw := append([]byte{1}, make([]byte, 64)...)
	return &domain.UnsignedTx{Payload: append(raw, msg...)}
}

func TestKeypairSigner_SignAndSend(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	rpc := stub.NewRPCClient()
	s, err := NewKeypairSigner(base58.Encode(priv), rpc)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(pub), s.PublicKey())

	tx := unsignedFor(pub)
	_, want, err := s.Sign(tx)
	require.NoError(t, err)
	rpc.SendResults = []stub.SendResult{{Signature: want}}

	sig, err := s.SignAndSend(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, want, sig)

	sent := rpc.Sent()
	require.Len(t, sent, 1)
	wire, err := solana.DecodeWireTransaction(sent[0])
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, wire.Message, wire.Signatures[0]))
}

func TestKeypairSigner_SeedOnly(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	s, err := NewKeypairSigner(base58.Encode(priv.Seed()), stub.NewRPCClient())
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(priv.Public().(ed25519.PublicKey)), s.PublicKey())
}

func TestKeypairSigner_RejectsMismatchedKeypair(t *testing.T) {
	_, a, _ := ed25519.GenerateKey(rand.Reader)
	b, _, _ := ed25519.GenerateKey(rand.Reader)
	bad := append(append([]byte{}, a.Seed()...), b...)

	_, err := NewKeypairSigner(base58.Encode(bad), stub.NewRPCClient())
	assert.Error(t, err)
}

func TestKeypairSigner_NotASigner(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	other, _, _ := ed25519.GenerateKey(rand.Reader)

	s, err := NewKeypairSigner(base58.Encode(priv), stub.NewRPCClient())
	require.NoError(t, err)

	_, err = s.SignAndSend(context.Background(), unsignedFor(other))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a required signer")
}

func TestKeypairSigner_SendError(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	rpc := stub.NewRPCClient()
	rpc.SendResults = []stub.SendResult{{Err: domain.ErrTransientNetwork}}

	s, err := NewKeypairSigner(base58.Encode(priv), rpc)
	require.NoError(t, err)

	_, err = s.SignAndSend(context.Background(), unsignedFor(pub))
	assert.True(t, errors.Is(err, domain.ErrTransientNetwork))
}

func TestRemoteSigner(t *testing.T) {
	tx := &domain.UnsignedTx{Payload: []byte{9, 9, 9}}

	tests := []struct {
		name    string
		status  int
		body    string
		wantSig string
		wantErr error
	}{
		{name: "ok", status: 200, body: `{"signature":"5sig"}`, wantSig: "5sig"},
		{name: "rejected in body", status: 200, body: `{"error":{"code":4001,"message":"User rejected the request."}}`, wantErr: domain.ErrUserRejected},
		{name: "rejected as 4xx", status: 403, body: `{"error":{"code":4001,"message":"denied"}}`, wantErr: domain.ErrUserRejected},
		{name: "empty signature", status: 200, body: `{}`, wantErr: domain.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				assert.Equal(t, "/v1/sign-and-send", r.URL.Path)
				var req signRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "Wallet1", req.Wallet)
				assert.Equal(t, base64.StdEncoding.EncodeToString(tx.Payload), req.Transaction)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			s := NewRemoteSigner(srv.URL, "", "Wallet1", time.Second)
			sig, err := s.SignAndSend(context.Background(), tx)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantSig, sig)
			}
			assert.Equal(t, 1, calls)
		})
	}
}
