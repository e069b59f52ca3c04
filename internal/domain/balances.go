package domain

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Balances is a sparse per-account balance map. Missing accounts read as zero.
type Balances map[Account]decimal.Decimal

func NewBalances() Balances {
	return Balances{CashAccount(): decimal.Zero}
}

func (b Balances) Get(account Account) decimal.Decimal {
	if v, ok := b[account]; ok {
		return v
	}
	return decimal.Zero
}

func (b Balances) Add(account Account, delta decimal.Decimal) {
	b[account] = b.Get(account).Add(delta)
}

func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Accounts returns every key in a stable order: cash, banks by ref, cards by ref.
func (b Balances) Accounts() []Account {
	accounts := make([]Account, 0, len(b))
	for account := range b {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accountLess(accounts[i], accounts[j])
	})
	return accounts
}

// Equal treats absent accounts as zero on both sides.
func (b Balances) Equal(other Balances) bool {
	for account, v := range b {
		if !v.Equal(other.Get(account)) {
			return false
		}
	}
	for account, v := range other {
		if !v.Equal(b.Get(account)) {
			return false
		}
	}
	return true
}

// Snapshot renders the map in the persisted snapshot shape.
func (b Balances) Snapshot(day civil.Date) BalanceSnapshot {
	snap := BalanceSnapshot{
		Date:         day,
		CashBalance:  b.Get(CashAccount()),
		BankBalances: []AccountBalance{},
		CardBalances: []AccountBalance{},
	}
	for _, account := range b.Accounts() {
		entry := AccountBalance{AccountRef: account.Ref, Balance: b[account]}
		switch account.Kind {
		case AccountBank:
			snap.BankBalances = append(snap.BankBalances, entry)
		case AccountCard:
			snap.CardBalances = append(snap.CardBalances, entry)
		}
	}
	return snap
}

func BalancesFromSnapshot(snap BalanceSnapshot) Balances {
	b := NewBalances()
	b[CashAccount()] = snap.CashBalance
	for _, entry := range snap.BankBalances {
		b.Add(BankAccount(entry.AccountRef), entry.Balance)
	}
	for _, entry := range snap.CardBalances {
		b.Add(CardAccount(entry.AccountRef), entry.Balance)
	}
	return b
}

func accountLess(a Account, b Account) bool {
	if a.Kind != b.Kind {
		return kindRank(a.Kind) < kindRank(b.Kind)
	}
	return a.Ref < b.Ref
}

func kindRank(kind AccountKind) int {
	switch kind {
	case AccountCash:
		return 0
	case AccountBank:
		return 1
	}
	return 2
}
