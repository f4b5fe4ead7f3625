package stub

import (
	"context"
	"errors"
	"sync"

	"solana-entry-gate/internal/solana"
)

// ErrNotFound is returned when an account has no stubbed balance.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
// Statuses are served in order per signature; the last one repeats.
type RPCClient struct {
	mu           sync.Mutex
	Transactions map[string]*solana.Transaction
	Statuses     map[string][]*solana.SignatureStatus
	Accounts     map[string]*solana.AccountInfo
	Balances     map[string]uint64
	SendResults  []SendResult

	statusCalls map[string]int
	sent        [][]byte
}

// SendResult is the canned outcome of one SendTransaction call.
type SendResult struct {
	Signature string
	Err       error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Statuses:     make(map[string][]*solana.SignatureStatus),
		Accounts:     make(map[string]*solana.AccountInfo),
		Balances:     make(map[string]uint64),
		statusCalls:  make(map[string]int),
	}
}

// GetSignatureStatuses returns the next stubbed status for each signature.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		seq := c.Statuses[sig]
		if len(seq) == 0 {
			continue
		}
		n := c.statusCalls[sig]
		if n >= len(seq) {
			n = len(seq) - 1
		}
		out[i] = seq[n]
		c.statusCalls[sig]++
	}
	return out, nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Transactions[signature], nil
}

// GetAccountInfo retrieves an account from the stub store.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// GetBalance returns the stubbed balance.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bal, ok := c.Balances[pubkey]
	if !ok {
		return 0, ErrNotFound
	}
	return bal, nil
}

// SendTransaction pops the next SendResult.
func (c *RPCClient) SendTransaction(_ context.Context, signedTx []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, signedTx)
	if len(c.SendResults) == 0 {
		return "", errors.New("stub: no send result")
	}
	r := c.SendResults[0]
	c.SendResults = c.SendResults[1:]
	return r.Signature, r.Err
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// SetStatuses sets the status sequence served for sig.
func (c *RPCClient) SetStatuses(sig string, statuses ...*solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[sig] = statuses
}

// StatusCalls returns how many times sig was polled.
func (c *RPCClient) StatusCalls(sig string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls[sig]
}

// Sent returns all payloads passed to SendTransaction.
func (c *RPCClient) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

var _ solana.RPCClient = (*RPCClient)(nil)
