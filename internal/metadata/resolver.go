// Package metadata resolves authoritative token metadata from on-chain accounts.
package metadata

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/solana"
)

// Metaplex Token Metadata program ID
const MetaplexProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

// SPL Token Mint account size
const mintAccountSize = 82

// Resolver fetches mint scale and Metaplex name/symbol over RPC.
type Resolver struct {
	rpc    solana.RPCClient
	logger *logrus.Entry
}

// NewResolver creates a metadata resolver.
func NewResolver(rpc solana.RPCClient, logger *logrus.Entry) *Resolver {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{rpc: rpc, logger: logger.WithField("component", "metadata")}
}

// Fetch returns token metadata for mint. A missing Metaplex account is not an
// error; Name and Symbol stay empty.
func (r *Resolver) Fetch(ctx context.Context, mint string) (*domain.TokenMetadata, error) {
	meta := &domain.TokenMetadata{Mint: mint}

	mintInfo, err := r.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("get mint account info: %w", err)
	}
	if mintInfo == nil {
		return nil, fmt.Errorf("%w: mint account %s not found", domain.ErrDecimalsUnavailable, mint)
	}
	if err := parseMintData(mintInfo.Data, meta); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecimalsUnavailable, err)
	}

	pda, err := MetadataAddress(mint)
	if err != nil {
		r.logger.WithError(err).WithField("mint", mint).Debug("metadata PDA derivation failed")
		return meta, nil
	}
	metaInfo, err := r.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		r.logger.WithError(err).WithField("mint", mint).Warn("metaplex account fetch failed")
		return meta, nil
	}
	if metaInfo != nil {
		parseMetaplexData(metaInfo.Data, meta)
	}
	return meta, nil
}

// Decimals returns the mint scale from the mint account.
func (r *Resolver) Decimals(ctx context.Context, mint string) (int, error) {
	info, err := r.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("get mint account info: %w", err)
	}
	if info == nil {
		return 0, fmt.Errorf("%w: mint account %s not found", domain.ErrDecimalsUnavailable, mint)
	}
	var meta domain.TokenMetadata
	if err := parseMintData(info.Data, &meta); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrDecimalsUnavailable, err)
	}
	return meta.Decimals, nil
}

// Reconcile returns symbol and name for c, preferring on-chain metadata over
// placeholders from the feed. Falls back to the feed values on any failure.
func (r *Resolver) Reconcile(ctx context.Context, c domain.Candidate) (symbol, name string) {
	symbol, name = c.Symbol, c.Name
	if !c.HasPlaceholderIdentity() {
		return symbol, name
	}

	meta, err := r.Fetch(ctx, c.Address)
	if err != nil {
		r.logger.WithError(err).WithField("mint", c.Address).Warn("metadata reconciliation failed, keeping feed identity")
		return symbol, name
	}
	if meta.Symbol != "" {
		symbol = meta.Symbol
	}
	if meta.Name != "" {
		name = meta.Name
	}
	return symbol, name
}

// MetadataAddress derives the Metaplex metadata PDA for mint.
// Seeds: ["metadata", metaplex_program_id, mint]
func MetadataAddress(mint string) (string, error) {
	mintBytes, err := solana.DecodePublicKey(mint)
	if err != nil {
		return "", err
	}
	programBytes, err := solana.DecodePublicKey(MetaplexProgramID)
	if err != nil {
		return "", err
	}
	pda, _, err := solana.FindProgramAddress([][]byte{
		[]byte("metadata"),
		programBytes,
		mintBytes,
	}, MetaplexProgramID)
	return pda, err
}

// parseMintData parses SPL Token Mint account data.
// SPL Token Mint layout (82 bytes):
// - mintAuthority: Option<Pubkey> (36 bytes: 4 + 32)
// - supply: u64 (8 bytes)
// - decimals: u8 (1 byte)
// - isInitialized: bool (1 byte)
// - freezeAuthority: Option<Pubkey> (36 bytes: 4 + 32)
func parseMintData(data string, meta *domain.TokenMetadata) error {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("decode mint data: %w", err)
	}
	if len(decoded) < mintAccountSize {
		return fmt.Errorf("mint data too short: %d", len(decoded))
	}
	if decoded[45] != 1 {
		return fmt.Errorf("mint not initialized")
	}

	supply := binary.LittleEndian.Uint64(decoded[36:44])
	meta.Decimals = int(decoded[44])
	meta.Supply, _ = decimal.NewFromUint64(supply).Shift(int32(-meta.Decimals)).Float64()
	return nil
}

// parseMetaplexData parses name and symbol from a Metaplex Metadata account.
// Layout: key u8 (4 = MetadataV1) | updateAuthority 32 | mint 32 |
// name borsh string | symbol borsh string | uri borsh string | ...
func parseMetaplexData(data string, meta *domain.TokenMetadata) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil || len(decoded) < 69 || decoded[0] != 4 {
		return
	}

	offset := 65
	name, offset, ok := readBorshString(decoded, offset, 100)
	if !ok {
		return
	}
	meta.Name = name

	symbol, _, ok := readBorshString(decoded, offset, 20)
	if !ok {
		return
	}
	meta.Symbol = symbol
}

func readBorshString(b []byte, offset, maxLen int) (string, int, bool) {
	if offset+4 > len(b) {
		return "", offset, false
	}
	n := int(binary.LittleEndian.Uint32(b[offset:]))
	offset += 4
	if n > maxLen || offset+n > len(b) {
		return "", offset, false
	}
	s := strings.TrimSpace(strings.TrimRight(string(b[offset:offset+n]), "\x00"))
	return s, offset + n, true
}
