package domain

import "github.com/shopspring/decimal"

// Balances is the money state of one wallet. Every mutator returns a new
// value and never yields a negative bucket.
type Balances struct {
	Balance           decimal.Decimal `json:"balance"`
	Earnings          decimal.Decimal `json:"earnings_balance"`
	Locked            decimal.Decimal `json:"locked_balance"`
	PendingWithdrawal decimal.Decimal `json:"pending_withdrawal_balance"`
}

// Available is balance + earnings - locked - pending withdrawal, floored at zero.
func (b Balances) Available() decimal.Decimal {
	v := b.Balance.Add(b.Earnings).Sub(b.Locked).Sub(b.PendingWithdrawal)
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Total is balance + earnings.
func (b Balances) Total() decimal.Decimal {
	return b.Balance.Add(b.Earnings)
}

func (b Balances) Validate() error {
	if b.Balance.IsNegative() || b.Earnings.IsNegative() || b.Locked.IsNegative() || b.PendingWithdrawal.IsNegative() {
		return ErrNegativeBalance
	}
	return nil
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Credit adds amount to earnings when toEarnings is set, otherwise to balance.
func (b Balances) Credit(amount decimal.Decimal, toEarnings bool) (Balances, error) {
	if err := validAmount(amount); err != nil {
		return b, err
	}
	if toEarnings {
		b.Earnings = b.Earnings.Add(amount)
	} else {
		b.Balance = b.Balance.Add(amount)
	}
	return b, nil
}

// Debit removes free funds, earnings first.
func (b Balances) Debit(amount decimal.Decimal) (Balances, error) {
	if err := validAmount(amount); err != nil {
		return b, err
	}
	if b.Available().LessThan(amount) {
		return b, ErrInsufficientBalance
	}
	return b.deduct(amount)
}

func (b Balances) Lock(amount decimal.Decimal) (Balances, error) {
	if err := validAmount(amount); err != nil {
		return b, err
	}
	if b.Available().LessThan(amount) {
		return b, ErrInsufficientBalance
	}
	b.Locked = b.Locked.Add(amount)
	return b, nil
}

func (b Balances) Unlock(amount decimal.Decimal) (Balances, error) {
	if err := validAmount(amount); err != nil {
		return b, err
	}
	if b.Locked.LessThan(amount) {
		return b, ErrInsufficientLockedBalance
	}
	b.Locked = b.Locked.Sub(amount)
	return b, nil
}

// SettleLocked turns a reservation into a permanent deduction.
func (b Balances) SettleLocked(amount decimal.Decimal) (Balances, error) {
	if err := validAmount(amount); err != nil {
		return b, err
	}
	if b.Locked.LessThan(amount) {
		return b, ErrInsufficientLockedBalance
	}
	b.Locked = b.Locked.Sub(amount)
	return b.deduct(amount)
}

func (b Balances) HoldForWithdrawal(amount decimal.Decimal) (Balances, error) {
	if err := validAmount(amount); err != nil {
		return b, err
	}
	if b.Available().LessThan(amount) {
		return b, ErrInsufficientBalance
	}
	b.PendingWithdrawal = b.PendingWithdrawal.Add(amount)
	return b, nil
}

func (b Balances) ReleaseWithdrawal(amount decimal.Decimal) (Balances, error) {
	if err := validAmount(amount); err != nil {
		return b, err
	}
	if b.PendingWithdrawal.LessThan(amount) {
		return b, ErrInsufficientPendingWithdrawalBalance
	}
	b.PendingWithdrawal = b.PendingWithdrawal.Sub(amount)
	return b, nil
}

// CompleteWithdrawal clears the reservation and deducts the funds, earnings first.
func (b Balances) CompleteWithdrawal(amount decimal.Decimal) (Balances, error) {
	if err := validAmount(amount); err != nil {
		return b, err
	}
	if b.PendingWithdrawal.LessThan(amount) {
		return b, ErrInsufficientPendingWithdrawalBalance
	}
	b.PendingWithdrawal = b.PendingWithdrawal.Sub(amount)
	return b.deduct(amount)
}

func (b Balances) deduct(amount decimal.Decimal) (Balances, error) {
	if b.Total().LessThan(amount) {
		return b, ErrInsufficientBalance
	}
	fromEarnings := decimal.Min(b.Earnings, amount)
	b.Earnings = b.Earnings.Sub(fromEarnings)
	b.Balance = b.Balance.Sub(amount.Sub(fromEarnings))
	return b, b.Validate()
}
