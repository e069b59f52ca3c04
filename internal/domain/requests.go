package domain

import "github.com/shopspring/decimal"

// TransactionRequest appends one raw ledger entry. Date is YYYY-MM-DD and optional.
type TransactionRequest struct {
	Date        string          `json:"date,omitempty"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentType PaymentType     `json:"payment_type"`
	AccountRef  string          `json:"account_ref,omitempty"`
	Source      Source          `json:"source"`
	SourceID    string          `json:"source_id,omitempty"`
	Note        string          `json:"note,omitempty"`
}

type PaymentRequest struct {
	PaymentType PaymentType     `json:"payment_type"`
	AccountRef  string          `json:"account_ref,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date,omitempty"`
}

type SaleCreateRequest struct {
	InvoiceNo string           `json:"invoice_no"`
	Customer  string           `json:"customer,omitempty"`
	Total     decimal.Decimal  `json:"total"`
	Date      string           `json:"date,omitempty"`
	Payments  []PaymentRequest `json:"payments"`
}

type PurchaseCreateRequest struct {
	Reference string           `json:"reference"`
	Supplier  string           `json:"supplier,omitempty"`
	Total     decimal.Decimal  `json:"total"`
	Date      string           `json:"date,omitempty"`
	Payments  []PaymentRequest `json:"payments"`
}

type ExpenseCreateRequest struct {
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentType PaymentType     `json:"payment_type"`
	AccountRef  string          `json:"account_ref,omitempty"`
	Date        string          `json:"date,omitempty"`
}

type OpeningBalanceRequest struct {
	Date         string           `json:"date"`
	CashBalance  decimal.Decimal  `json:"cash_balance"`
	BankBalances []AccountBalance `json:"bank_balances"`
	CardBalances []AccountBalance `json:"card_balances"`
}

type OpeningBalanceResponse struct {
	Opening  BalanceSnapshot `json:"opening"`
	Explicit bool            `json:"explicit"`
}

// BalanceAdjustRequest adds money to (or, with IsExpense, takes it from) one account on
// a day outside any sale, purchase or expense.
type BalanceAdjustRequest struct {
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentType PaymentType     `json:"payment_type"`
	AccountRef  string          `json:"account_ref,omitempty"`
	IsExpense   bool            `json:"is_expense"`
	Note        string          `json:"note,omitempty"`
}

type BalanceAdjustResponse struct {
	Transaction BalanceTransaction `json:"transaction"`
	Closing     BalanceSnapshot    `json:"closing"`
}

type RecomputeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}
