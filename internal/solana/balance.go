package solana

import (
	"github.com/shopspring/decimal"
)

// TokenDelta is the change of one owner's balance of one mint within a transaction.
type TokenDelta struct {
	Raw      decimal.Decimal // post - pre, smallest units
	Decimals int
	Found    bool // owner held or received the mint in this transaction
}

// Human returns the delta in human units.
func (d TokenDelta) Human() decimal.Decimal {
	return d.Raw.Shift(int32(-d.Decimals))
}

// TokenDelta sums post minus pre token balances of mint owned by owner.
func (tx *Transaction) TokenDelta(owner, mint string) TokenDelta {
	var out TokenDelta
	if tx == nil || tx.Meta == nil {
		return out
	}

	sum := func(balances []TokenBalance) decimal.Decimal {
		total := decimal.Zero
		for _, b := range balances {
			if b.Owner != owner || b.Mint != mint {
				continue
			}
			out.Found = true
			out.Decimals = b.UITokenAmount.Decimals
			amt, err := decimal.NewFromString(b.UITokenAmount.Amount)
			if err != nil {
				continue
			}
			total = total.Add(amt)
		}
		return total
	}

	pre := sum(tx.Meta.PreTokenBalances)
	post := sum(tx.Meta.PostTokenBalances)
	out.Raw = post.Sub(pre)
	return out
}

// LamportDelta returns post minus pre lamports for account. The second value is
// false if the account is not among the transaction's static keys.
func (tx *Transaction) LamportDelta(account string) (int64, bool) {
	if tx == nil || tx.Meta == nil || tx.Message == nil {
		return 0, false
	}
	for i, key := range tx.Message.AccountKeys {
		if key != account {
			continue
		}
		if i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
			return 0, false
		}
		return int64(tx.Meta.PostBalances[i]) - int64(tx.Meta.PreBalances[i]), true
	}
	return 0, false
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports int64) decimal.Decimal {
	return decimal.NewFromInt(lamports).Shift(-9)
}
