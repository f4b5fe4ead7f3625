package execution

import (
	"context"
	"errors"
	"fmt"

	"solana-entry-gate/internal/domain"
	"solana-entry-gate/internal/solana"
)

// resolveDecimals asks the router's token metadata, then the mint account.
func (m *Machine) resolveDecimals(ctx context.Context, mint string) (int, error) {
	d, err := m.router.TokenDecimals(ctx, mint)
	if err == nil {
		return d, nil
	}
	routerErr := err

	if m.decimals != nil {
		d, err := m.decimals.Decimals(ctx, mint)
		if err == nil {
			return d, nil
		}
		return 0, fmt.Errorf("%w: router: %v; mint account: %v", domain.ErrDecimalsUnavailable, routerErr, err)
	}
	if errors.Is(routerErr, domain.ErrDecimalsUnavailable) {
		return 0, routerErr
	}
	return 0, fmt.Errorf("%w: %v", domain.ErrDecimalsUnavailable, routerErr)
}

// decimalsFromTx reads the mint scale from any token balance entry of mint.
func decimalsFromTx(tx *solana.Transaction, mint string) (int, bool) {
	if tx == nil || tx.Meta == nil {
		return 0, false
	}
	for _, set := range [][]solana.TokenBalance{tx.Meta.PostTokenBalances, tx.Meta.PreTokenBalances} {
		for _, b := range set {
			if b.Mint == mint {
				return b.UITokenAmount.Decimals, true
			}
		}
	}
	return 0, false
}
