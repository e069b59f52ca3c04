package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

type PaymentType string

const (
	PaymentCash         PaymentType = "cash"
	PaymentBankTransfer PaymentType = "bank_transfer"
	PaymentCard         PaymentType = "card"
)

type Source string

const (
	SourceSale              Source = "sale"
	SourceSalePayment       Source = "sale_payment"
	SourcePurchase          Source = "purchase"
	SourcePurchasePayment   Source = "purchase_payment"
	SourceExpense           Source = "expense"
	SourceAddOpeningBalance Source = "add_opening_balance"
	SourceOpeningBalance    Source = "opening_balance"
	SourceSaleRefund        Source = "sale_refund"
	SourcePurchaseRefund    Source = "purchase_refund"
)

// IsBusiness reports whether entries of this source are backed by sale, purchase or
// expense payment line items.
func (s Source) IsBusiness() bool {
	switch s {
	case SourceSale, SourceSalePayment, SourcePurchase, SourcePurchasePayment, SourceExpense:
		return true
	}
	return false
}

var ErrInvalidAccount = errors.New("invalid account")

type AccountKind string

const (
	AccountCash AccountKind = "cash"
	AccountBank AccountKind = "bank"
	AccountCard AccountKind = "card"
)

// Account identifies the unit a balance is tracked against. Ref is empty for cash
// and names the bank account or card otherwise.
type Account struct {
	Kind AccountKind `json:"kind"`
	Ref  string      `json:"ref,omitempty"`
}

func CashAccount() Account           { return Account{Kind: AccountCash} }
func BankAccount(ref string) Account { return Account{Kind: AccountBank, Ref: ref} }
func CardAccount(ref string) Account { return Account{Kind: AccountCard, Ref: ref} }

// AccountFor maps a payment instrument and its reference onto an Account.
func AccountFor(paymentType PaymentType, ref string) (Account, error) {
	ref = strings.TrimSpace(ref)
	var account Account
	switch paymentType {
	case PaymentCash:
		account = CashAccount()
		if ref != "" {
			return Account{}, fmt.Errorf("%w: cash does not take an account reference", ErrInvalidAccount)
		}
	case PaymentBankTransfer:
		account = BankAccount(ref)
	case PaymentCard:
		account = CardAccount(ref)
	default:
		return Account{}, fmt.Errorf("%w: unknown payment type %q", ErrInvalidAccount, paymentType)
	}
	if err := account.Validate(); err != nil {
		return Account{}, err
	}
	return account, nil
}

func (a Account) Validate() error {
	switch a.Kind {
	case AccountCash:
		if a.Ref != "" {
			return fmt.Errorf("%w: cash does not take an account reference", ErrInvalidAccount)
		}
	case AccountBank, AccountCard:
		if strings.TrimSpace(a.Ref) == "" {
			return fmt.Errorf("%w: %s account reference required", ErrInvalidAccount, a.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown account kind %q", ErrInvalidAccount, a.Kind)
	}
	return nil
}

func (a Account) PaymentType() PaymentType {
	switch a.Kind {
	case AccountBank:
		return PaymentBankTransfer
	case AccountCard:
		return PaymentCard
	}
	return PaymentCash
}

func (a Account) String() string {
	if a.Kind == AccountCash {
		return string(AccountCash)
	}
	return string(a.Kind) + ":" + a.Ref
}

// BalanceTransaction is one append-only cash, bank or card movement.
type BalanceTransaction struct {
	ID             string           `json:"id"`
	Date           *civil.Date      `json:"date,omitempty"`
	AttributedDate civil.Date       `json:"attributed_date"`
	CreatedAt      time.Time        `json:"created_at"`
	Type           TransactionType  `json:"type"`
	Amount         decimal.Decimal  `json:"amount"`
	PaymentType    PaymentType      `json:"payment_type"`
	AccountRef     string           `json:"account_ref,omitempty"`
	Source         Source           `json:"source"`
	SourceID       string           `json:"source_id,omitempty"`
	BeforeBalance  *decimal.Decimal `json:"before_balance,omitempty"`
	AfterBalance   *decimal.Decimal `json:"after_balance,omitempty"`
	ChangeAmount   *decimal.Decimal `json:"change_amount,omitempty"`
	Note           string           `json:"note,omitempty"`
}

func (t BalanceTransaction) Account() (Account, error) {
	return AccountFor(t.PaymentType, t.AccountRef)
}

// Delta is the signed effect of the entry on its account.
func (t BalanceTransaction) Delta() decimal.Decimal {
	if t.Type == TransactionExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (t BalanceTransaction) Validate() error {
	if t.Type != TransactionIncome && t.Type != TransactionExpense {
		return fmt.Errorf("unknown transaction type %q", t.Type)
	}
	if t.Amount.IsNegative() {
		return errors.New("amount must not be negative")
	}
	if strings.TrimSpace(string(t.Source)) == "" {
		return errors.New("source is required")
	}
	if t.Date != nil && !t.Date.IsValid() {
		return fmt.Errorf("invalid date %s", t.Date)
	}
	if _, err := t.Account(); err != nil {
		return err
	}
	// A seed carried by an explicit opening row records a zero change.
	carriedSeed := t.Source == SourceOpeningBalance && t.ChangeAmount != nil && t.ChangeAmount.IsZero()
	if t.ChangeAmount != nil && !carriedSeed && !t.ChangeAmount.Equal(t.Delta()) {
		return fmt.Errorf("change amount %s does not match %s of %s", t.ChangeAmount, t.Type, t.Amount)
	}
	if t.BeforeBalance != nil && t.AfterBalance != nil && t.ChangeAmount != nil {
		if !t.BeforeBalance.Add(*t.ChangeAmount).Equal(*t.AfterBalance) {
			return fmt.Errorf("after balance %s != before %s + change %s", t.AfterBalance, t.BeforeBalance, t.ChangeAmount)
		}
	}
	return nil
}

type AccountBalance struct {
	AccountRef string          `json:"account_ref"`
	Balance    decimal.Decimal `json:"balance"`
}

// BalanceSnapshot is the shape of both opening and closing balance rows.
type BalanceSnapshot struct {
	Date         civil.Date       `json:"date"`
	CashBalance  decimal.Decimal  `json:"cash_balance"`
	BankBalances []AccountBalance `json:"bank_balances"`
	CardBalances []AccountBalance `json:"card_balances"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (s BalanceSnapshot) Clone() BalanceSnapshot {
	out := s
	out.BankBalances = append([]AccountBalance{}, s.BankBalances...)
	out.CardBalances = append([]AccountBalance{}, s.CardBalances...)
	return out
}

// Equal compares balances only; timestamps are ignored.
func (s BalanceSnapshot) Equal(other BalanceSnapshot) bool {
	return s.Date == other.Date && BalancesFromSnapshot(s).Equal(BalancesFromSnapshot(other))
}

type PaymentLine struct {
	ID          string          `json:"id"`
	PaymentType PaymentType     `json:"payment_type"`
	Amount      decimal.Decimal `json:"amount"`
	AccountRef  string          `json:"account_ref,omitempty"`
	Date        *civil.Date     `json:"date,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`

	// AttributedDate is the day the payment counts toward, fixed when it is recorded.
	AttributedDate civil.Date `json:"attributed_date"`
}

const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
)

type Sale struct {
	ID        string          `json:"id"`
	InvoiceNo string          `json:"invoice_no"`
	Customer  string          `json:"customer,omitempty"`
	Total     decimal.Decimal `json:"total"`
	Date      *civil.Date     `json:"date,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Payments  []PaymentLine   `json:"payments"`

	AttributedDate civil.Date `json:"attributed_date"`
}

func (s Sale) Paid() decimal.Decimal        { return sumPayments(s.Payments) }
func (s Sale) PaymentStatus() string        { return paymentStatus(s.Total, s.Paid()) }
func (s Sale) Outstanding() decimal.Decimal { return s.Total.Sub(s.Paid()) }

type Purchase struct {
	ID        string          `json:"id"`
	Reference string          `json:"reference"`
	Supplier  string          `json:"supplier,omitempty"`
	Total     decimal.Decimal `json:"total"`
	Date      *civil.Date     `json:"date,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Payments  []PaymentLine   `json:"payments"`

	AttributedDate civil.Date `json:"attributed_date"`
}

func (p Purchase) Paid() decimal.Decimal        { return sumPayments(p.Payments) }
func (p Purchase) PaymentStatus() string        { return paymentStatus(p.Total, p.Paid()) }
func (p Purchase) Outstanding() decimal.Decimal { return p.Total.Sub(p.Paid()) }

type Expense struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentType PaymentType     `json:"payment_type"`
	AccountRef  string          `json:"account_ref,omitempty"`
	Date        *civil.Date     `json:"date,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`

	AttributedDate civil.Date `json:"attributed_date"`
}

func sumPayments(lines []PaymentLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount)
	}
	return total
}

func paymentStatus(total decimal.Decimal, paid decimal.Decimal) string {
	switch {
	case paid.IsZero():
		return PaymentStatusUnpaid
	case paid.LessThan(total):
		return PaymentStatusPartial
	}
	return PaymentStatusPaid
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}
