package report

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"kasirinaja/backoffice/internal/domain"
)

// CSV renders a daily report as section,key,value rows followed by the timeline.
func CSV(rep Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "date", rep.Date.String()},
		{"summary", "opening_explicit", strconv.FormatBool(rep.OpeningExplicit)},
		{"summary", "stale", strconv.FormatBool(rep.Stale)},
		{"summary", "carry_forward_drift", strconv.FormatBool(rep.CarryForwardDrift)},
		{"summary", "transactions", strconv.Itoa(rep.Totals.Transactions)},
		{"summary", "income", rep.Totals.Income.StringFixed(2)},
		{"summary", "expense", rep.Totals.Expense.StringFixed(2)},
		{"summary", "net", rep.Totals.Net.StringFixed(2)},
		{"summary", "sales_recorded", rep.Totals.SalesRecorded.StringFixed(2)},
		{"summary", "purchases_recorded", rep.Totals.PurchasesRecorded.StringFixed(2)},
		{"summary", "expenses_recorded", rep.Totals.ExpensesRecorded.StringFixed(2)},
	}
	rows = append(rows, snapshotRows("opening", rep.Opening)...)
	rows = append(rows, snapshotRows("closing", rep.Closing)...)
	rows = append(rows, amountRows("category", rep.Totals.ByCategory)...)
	rows = append(rows, amountRows("instrument", rep.Totals.ByInstrument)...)
	rows = append(rows, amountRows("account", rep.Totals.ByAccount)...)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}

	timelineRows := [][]string{{"timeline", "id", "at", "type", "source", "account", "amount", "before", "after", "excluded"}}
	for _, entry := range rep.Timeline {
		timelineRows = append(timelineRows, []string{
			"timeline",
			entry.ID,
			entry.At.UTC().Format("2006-01-02T15:04:05Z"),
			string(entry.Type),
			string(entry.Source),
			entry.Account,
			entry.Amount.StringFixed(2),
			entry.Before.StringFixed(2),
			entry.After.StringFixed(2),
			strconv.FormatBool(entry.Excluded),
		})
	}
	if err := w.WriteAll(timelineRows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func snapshotRows(section string, snap domain.BalanceSnapshot) [][]string {
	rows := [][]string{{section, "cash", snap.CashBalance.StringFixed(2)}}
	for _, bank := range snap.BankBalances {
		rows = append(rows, []string{section, "bank:" + bank.AccountRef, bank.Balance.StringFixed(2)})
	}
	for _, card := range snap.CardBalances {
		rows = append(rows, []string{section, "card:" + card.AccountRef, card.Balance.StringFixed(2)})
	}
	return rows
}

func amountRows[K ~string](section string, amounts map[K]decimal.Decimal) [][]string {
	keys := make([]string, 0, len(amounts))
	for k := range amounts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{section, k, amounts[K(k)].StringFixed(2)})
	}
	return rows
}
