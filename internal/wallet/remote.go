package wallet

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/upstream"
)

// CodeUserRejected is the wallet-standard "user rejected the request" code.
const CodeUserRejected = 4001

// RemoteSigner delegates signing to an external wallet bridge.
type RemoteSigner struct {
	http   *upstream.Client
	pubkey string
}

// NewRemoteSigner creates a RemoteSigner. Requests are never retried so a
// transaction cannot be submitted twice.
func NewRemoteSigner(baseURL, apiKey, pubkey string, timeout time.Duration) *RemoteSigner {
	if timeout <= 0 {
		// the user may need time to approve
		timeout = 60 * time.Second
	}
	return &RemoteSigner{
		http: upstream.New(upstream.Config{
			Service:    "signer",
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Timeout:    timeout,
			RetryCount: 0,
		}),
		pubkey: pubkey,
	}
}

type signRequest struct {
	Wallet      string `json:"wallet"`
	Transaction string `json:"transaction"`
}

type signResponse struct {
	Signature string       `json:"signature"`
	Error     *bridgeError `json:"error"`
}

type bridgeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PublicKey implements Signer.
func (s *RemoteSigner) PublicKey() string {
	return s.pubkey
}

// SignAndSend implements Signer.
func (s *RemoteSigner) SignAndSend(ctx context.Context, tx *domain.UnsignedTx) (string, error) {
	req := signRequest{
		Wallet:      s.pubkey,
		Transaction: base64.StdEncoding.EncodeToString(tx.Payload),
	}

	var resp signResponse
	if err := s.http.Post(ctx, "sign_and_send", "/v1/sign-and-send", req, &resp); err != nil {
		if se, ok := upstream.AsStatus(err); ok {
			var body signResponse
			if json.Unmarshal(se.Body, &body) == nil && body.Error != nil {
				return "", bridgeErr(body.Error)
			}
		}
		return "", err
	}
	if resp.Error != nil {
		return "", bridgeErr(resp.Error)
	}
	if resp.Signature == "" {
		return "", fmt.Errorf("%w: signer returned no signature", domain.ErrMalformedResponse)
	}
	return resp.Signature, nil
}

func bridgeErr(e *bridgeError) error {
	if e.Code == CodeUserRejected {
		return fmt.Errorf("%w: %s", domain.ErrUserRejected, e.Message)
	}
	return fmt.Errorf("signer error %d: %s", e.Code, e.Message)
}

var _ Signer = (*RemoteSigner)(nil)
