package domain

// TokenMetadata is authoritative on-chain token metadata.
type TokenMetadata struct {
	Mint     string
	Name     string  // empty if no Metaplex metadata account
	Symbol   string  // empty if no Metaplex metadata account
	Decimals int     // mint scale
	Supply   float64 // human units
}
