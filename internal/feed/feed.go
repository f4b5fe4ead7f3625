// Package feed consumes the external discovery stream of candidate tokens.
package feed

import (
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"solana-entry-gate/internal/domain"
)

// Client delivers discovered candidates.
type Client interface {
	// Candidates returns the stream of validated candidates. Closed on Close.
	Candidates() <-chan domain.Candidate

	// Close closes the connection.
	Close() error
}

// Message types on the wire.
const (
	msgSubscribe = "subscribe"
	msgCandidate = "candidate"
	msgHeartbeat = "heartbeat"
	msgError     = "error"
)

type envelope struct {
	Type    string            `json:"type"`
	Data    *CandidateMessage `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
}

type subscribeRequest struct {
	Type   string   `json:"type"`
	Venues []string `json:"venues,omitempty"`
}

// CandidateMessage is the wire form of a discovered token, shared with the HTTP API.
type CandidateMessage struct {
	Address      string  `json:"address"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	LiquidityUSD float64 `json:"liquidity_usd"`
	RiskScore    float64 `json:"risk_score"`
	CanBuy       bool    `json:"can_buy"`
	CanSell      bool    `json:"can_sell"`
	IsTradeable  bool    `json:"is_tradeable"`
	Venue        string  `json:"venue"`
	Deployer     string  `json:"deployer,omitempty"`
	PoolCreator  string  `json:"pool_creator,omitempty"`
	PoolAddress  string  `json:"pool_address,omitempty"`
	DiscoveredAt int64   `json:"discovered_at"` // unix ms
}

// ToCandidate validates the message and converts it.
func (m *CandidateMessage) ToCandidate() (domain.Candidate, error) {
	if err := ValidateAddress(m.Address); err != nil {
		return domain.Candidate{}, fmt.Errorf("address: %w", err)
	}
	venue := domain.Venue(m.Venue)
	if !venue.IsValid() {
		return domain.Candidate{}, fmt.Errorf("unknown venue %q", m.Venue)
	}
	if m.LiquidityUSD < 0 {
		return domain.Candidate{}, fmt.Errorf("negative liquidity %f", m.LiquidityUSD)
	}
	for _, addr := range []string{m.Deployer, m.PoolCreator, m.PoolAddress} {
		if addr == "" {
			continue
		}
		if err := ValidateAddress(addr); err != nil {
			return domain.Candidate{}, fmt.Errorf("related address %s: %w", addr, err)
		}
	}

	discovered := time.Now()
	if m.DiscoveredAt > 0 {
		discovered = time.UnixMilli(m.DiscoveredAt)
	}

	return domain.Candidate{
		Address:      m.Address,
		Symbol:       m.Symbol,
		Name:         m.Name,
		LiquidityUSD: m.LiquidityUSD,
		RiskScore:    m.RiskScore,
		CanBuy:       m.CanBuy,
		CanSell:      m.CanSell,
		IsTradeable:  m.IsTradeable,
		Venue:        venue,
		Deployer:     m.Deployer,
		PoolCreator:  m.PoolCreator,
		PoolAddress:  m.PoolAddress,
		DiscoveredAt: discovered,
	}, nil
}

// ValidateAddress checks that s is a base58-encoded 32-byte public key.
func ValidateAddress(s string) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("invalid base58: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	return nil
}
