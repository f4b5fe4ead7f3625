package orchestrator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-entry-gate/internal/domain"
)

// ValidatePrerequisites checks that a signer is connected and the wallet holds
// the buy amount plus the fee reserve.
func (o *Orchestrator) ValidatePrerequisites(ctx context.Context, cfg domain.ExecutionConfig) error {
	if o.executor == nil || o.executor.Wallet() == "" {
		return fmt.Errorf("%w: signer not connected", domain.ErrPrerequisite)
	}
	if !cfg.BuyAmountSOL.IsPositive() {
		return fmt.Errorf("%w: buy amount %s SOL", domain.ErrPrerequisite, cfg.BuyAmountSOL)
	}
	if o.balances == nil {
		return nil
	}

	wallet := o.executor.Wallet()
	lamports, err := o.balances.GetBalance(ctx, wallet)
	if err != nil {
		return fmt.Errorf("%w: balance of %s unavailable: %v", domain.ErrPrerequisite, wallet, err)
	}
	have := decimal.NewFromUint64(lamports).Shift(-domain.SOLDecimals)
	need := cfg.BuyAmountSOL.Add(o.feeReserve)
	if have.LessThan(need) {
		return fmt.Errorf("%w: wallet holds %s SOL, needs %s (buy %s + reserve %s)",
			domain.ErrPrerequisite, have, need, cfg.BuyAmountSOL, o.feeReserve)
	}
	return nil
}
