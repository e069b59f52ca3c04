package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/ledger"
	"kasirinaja/backoffice/internal/report"
	"kasirinaja/backoffice/internal/service"
)

// opener connects to the configured backends. The returned close func releases them.
type opener func(ctx context.Context) (*service.Service, func() error, error)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Maintain the shop's daily cash, bank and card balances",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newClosingCmd(open),
		newRecomputeCmd(open),
		newReportCmd(open),
		newOpeningCmd(open),
		newReconcileCmd(open),
	)
	return root
}

// withService runs fn as the admin operator and releases the backends afterwards.
func withService(cmd *cobra.Command, open opener, fn func(ctx context.Context, svc *service.Service) error) (err error) {
	ctx := service.WithActor(cmd.Context(), operator)
	svc, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, svc)
}

func printJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func newClosingCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "closing",
		Short:   "Show the closing balance of a day, computing it when missing",
		Example: `  ledgerctl closing --date 2024-03-01`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, _ := cmd.Flags().GetString("date")
			return withService(cmd, open, func(ctx context.Context, svc *service.Service) error {
				closing, err := svc.GetClosingBalance(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(cmd, closing)
			})
		},
	}
	cmd.Flags().String("date", "", "day in YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newRecomputeCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recompute",
		Short:   "Recompute and persist closing balances for a range of days",
		Example: `  ledgerctl recompute --from 2024-03-01 --to 2024-03-31`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			return withService(cmd, open, func(ctx context.Context, svc *service.Service) error {
				outcomes, err := svc.RecomputeClosingBalances(ctx, domain.RecomputeRequest{From: from, To: to})
				if len(outcomes) > 0 {
					if perr := printJSON(cmd, outcomes); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().String("from", "", "first day in YYYY-MM-DD")
	cmd.Flags().String("to", "", "last day in YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newReportCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build daily or range reports",
	}

	daily := &cobra.Command{
		Use:     "daily",
		Short:   "Build the report for one day",
		Example: `  ledgerctl report daily --date 2024-03-01 --format csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, _ := cmd.Flags().GetString("date")
			format, _ := cmd.Flags().GetString("format")
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "json" && format != "csv" {
				return fmt.Errorf("unsupported format %q", format)
			}
			return withService(cmd, open, func(ctx context.Context, svc *service.Service) error {
				rep, err := svc.GetDailyReport(ctx, date)
				if err != nil {
					return err
				}
				if format == "csv" {
					body, err := report.CSV(rep)
					if err != nil {
						return err
					}
					_, err = cmd.OutOrStdout().Write(body)
					return err
				}
				return printJSON(cmd, rep)
			})
		},
	}
	daily.Flags().String("date", "", "day in YYYY-MM-DD")
	daily.Flags().String("format", "json", "json or csv")
	_ = daily.MarkFlagRequired("date")

	rangeCmd := &cobra.Command{
		Use:     "range",
		Short:   "Build the report for an inclusive range of days",
		Example: `  ledgerctl report range --start 2024-03-01 --end 2024-03-07`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			return withService(cmd, open, func(ctx context.Context, svc *service.Service) error {
				rep, err := svc.GetRangeReport(ctx, start, end)
				if err != nil {
					return err
				}
				return printJSON(cmd, rep)
			})
		},
	}
	rangeCmd.Flags().String("start", "", "first day in YYYY-MM-DD")
	rangeCmd.Flags().String("end", "", "last day in YYYY-MM-DD")
	_ = rangeCmd.MarkFlagRequired("start")
	_ = rangeCmd.MarkFlagRequired("end")

	cmd.AddCommand(daily, rangeCmd)
	return cmd
}

func newOpeningCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opening",
		Short: "Read or set a day's opening balance",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the explicit or carried-forward opening balance of a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, _ := cmd.Flags().GetString("date")
			return withService(cmd, open, func(ctx context.Context, svc *service.Service) error {
				resp, err := svc.GetOpeningBalance(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
	get.Flags().String("date", "", "day in YYYY-MM-DD")
	_ = get.MarkFlagRequired("date")

	set := &cobra.Command{
		Use:     "set",
		Short:   "Set an explicit opening balance for a day",
		Example: `  ledgerctl opening set --date 2024-03-01 --cash 1000000 --bank BCA-01=2500000 --card EDC-1=0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, _ := cmd.Flags().GetString("date")
			cashRaw, _ := cmd.Flags().GetString("cash")
			bankRaw, _ := cmd.Flags().GetStringArray("bank")
			cardRaw, _ := cmd.Flags().GetStringArray("card")

			cash, err := decimal.NewFromString(cashRaw)
			if err != nil {
				return fmt.Errorf("%w: cash %q", ledger.ErrInvalidAmount, cashRaw)
			}
			banks, err := parseAccountBalances(bankRaw)
			if err != nil {
				return err
			}
			cards, err := parseAccountBalances(cardRaw)
			if err != nil {
				return err
			}

			return withService(cmd, open, func(ctx context.Context, svc *service.Service) error {
				opening, err := svc.SetOpeningBalance(ctx, domain.OpeningBalanceRequest{
					Date:         date,
					CashBalance:  cash,
					BankBalances: banks,
					CardBalances: cards,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, opening)
			})
		},
	}
	set.Flags().String("date", "", "day in YYYY-MM-DD")
	set.Flags().String("cash", "0", "cash drawer amount")
	set.Flags().StringArray("bank", nil, "bank account as REF=AMOUNT, repeatable")
	set.Flags().StringArray("card", nil, "card terminal as REF=AMOUNT, repeatable")
	_ = set.MarkFlagRequired("date")

	cmd.AddCommand(get, set)
	return cmd
}

func newReconcileCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare a day's ledger movement with its sales, purchases and expenses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, _ := cmd.Flags().GetString("date")
			return withService(cmd, open, func(ctx context.Context, svc *service.Service) error {
				result, err := svc.ReconcileDay(ctx, date)
				if err != nil && !errors.Is(err, ledger.ErrBalanceInconsistency) {
					return err
				}
				if perr := printJSON(cmd, result); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	cmd.Flags().String("date", "", "day in YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

// parseAccountBalances reads REF=AMOUNT pairs.
func parseAccountBalances(raw []string) ([]domain.AccountBalance, error) {
	out := make([]domain.AccountBalance, 0, len(raw))
	for _, item := range raw {
		ref, amount, ok := strings.Cut(item, "=")
		ref = strings.TrimSpace(ref)
		if !ok || ref == "" {
			return nil, fmt.Errorf("%w: expected REF=AMOUNT, got %q", domain.ErrInvalidAccount, item)
		}
		value, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("%w: %s amount %q", ledger.ErrInvalidAmount, ref, amount)
		}
		out = append(out, domain.AccountBalance{AccountRef: ref, Balance: value})
	}
	return out, nil
}
