package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"library-ledger/library"
)

func newIssueCmd(a *app) *cobra.Command {
	var days int
	var cmd *cobra.Command
	cmd = &cobra.Command{
		Use:   "issue <book-id> <member-id>",
		Short: "Lend a copy of a book to a member",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
			bookID, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			memberID, err := parseID("member", args[1])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = mgr.DefaultLoanDays()
			}
			iss, err := mgr.IssueBook(ctx, bookID, memberID, days)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Issue %d (ref %s) created, due %s.\n", iss.ID, iss.Ref, formatDate(iss.DueAt))
			return nil
		}),
	}
	cmd.Flags().IntVar(&days, "days", 0, "loan period in days (default from config)")
	return cmd
}

func newReturnCmd(a *app) *cobra.Command {
	var withFine bool
	cmd := &cobra.Command{
		Use:   "return <issue-id|ref>",
		Short: "Close a loan and put the copy back on the shelf",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
			iss, err := mgr.GetIssue(ctx, args[0])
			if err != nil {
				return err
			}
			var out *library.ReturnOutcome
			if withFine {
				out, err = mgr.ReturnBookWithFine(ctx, iss.ID)
			} else {
				out, err = mgr.ReturnBook(ctx, iss.ID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Issue %d returned on %s (due %s).\n", out.IssueID, formatDate(out.ReturnedAt), formatDate(out.DueAt))
			switch {
			case out.FineID != 0:
				fmt.Fprintf(a.out, "%d day(s) overdue, fine %s recorded.\n", out.OverdueDays, formatAmount(out.FineAmount))
			case !withFine && out.ReturnedAt.After(out.DueAt):
				fmt.Fprintln(a.out, "Returned late; no fine recorded.")
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&withFine, "fine", false, "record the overdue fine in the same transaction")
	return cmd
}

func newLoansCmd(a *app) *cobra.Command {
	var overdueOnly bool
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List open loans, soonest due first",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, _ []string) error {
			list := mgr.ActiveIssues
			if overdueOnly {
				list = mgr.OverdueIssues
			}
			issues, err := list(ctx)
			if err != nil {
				return err
			}
			return a.render(issues, func() {
				if len(issues) == 0 {
					fmt.Fprintln(a.out, "No open loans.")
					return
				}
				rows := make([][]string, 0, len(issues))
				for _, iss := range issues {
					rows = append(rows, []string{
						strconv.FormatInt(iss.IssueID, 10),
						iss.BookTitle,
						iss.MemberName,
						formatDate(iss.IssuedAt),
						formatDate(iss.DueAt),
						yesNo(iss.Overdue),
					})
				}
				printTable(a.out, []string{"Issue", "Title", "Member", "Issued", "Due", "Overdue"}, rows)
			})
		}),
	}
	cmd.Flags().BoolVar(&overdueOnly, "overdue", false, "only list overdue loans")
	return cmd
}

func newFineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fine",
		Short: "Record and inspect overdue fines",
	}

	var issueFilter int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded fines",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, _ []string) error {
			fines, err := mgr.ListFines(ctx, issueFilter)
			if err != nil {
				return err
			}
			return a.render(fines, func() {
				if len(fines) == 0 {
					fmt.Fprintln(a.out, "No fines recorded.")
					return
				}
				rows := make([][]string, 0, len(fines))
				for _, f := range fines {
					rows = append(rows, []string{
						strconv.FormatInt(f.ID, 10),
						strconv.FormatInt(f.IssueID, 10),
						formatAmount(f.Amount),
						formatDate(f.PaidAt),
						f.Status,
					})
				}
				printTable(a.out, []string{"ID", "Issue", "Amount", "Paid", "Status"}, rows)
			})
		}),
	}
	list.Flags().Int64Var(&issueFilter, "issue", 0, "only fines for this issue")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "record <issue-id> <amount>",
			Short: "Record a paid fine, e.g. 'fine record 7 1.50'",
			Args:  cobra.ExactArgs(2),
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
				issueID, err := parseID("issue", args[0])
				if err != nil {
					return err
				}
				amount, err := parseAmount(args[1])
				if err != nil {
					return err
				}
				id, err := mgr.RecordFine(ctx, issueID, amount)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Fine %d of %s recorded against issue %d.\n", id, formatAmount(amount), issueID)
				return nil
			}),
		},
		list,
		&cobra.Command{
			Use:   "quote <issue-id|ref>",
			Short: "Price an open loan as if it were returned now",
			Args:  cobra.ExactArgs(1),
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
				iss, err := mgr.GetIssue(ctx, args[0])
				if err != nil {
					return err
				}
				days, amount, err := mgr.QuoteFine(ctx, iss.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Issue %d: %d chargeable day(s), fine %s.\n", iss.ID, days, formatAmount(amount))
				return nil
			}),
		},
	)
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard counters",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, _ []string) error {
			s, err := mgr.Stats(ctx)
			if err != nil {
				return err
			}
			return a.render(s, func() {
				fmt.Fprintf(a.out, "Books:         %d titles, %d copies (%d on the shelf)\n", s.TotalBooks, s.TotalCopies, s.AvailableCopies)
				fmt.Fprintf(a.out, "Members:       %d\n", s.TotalMembers)
				fmt.Fprintf(a.out, "Active issues: %d\n", s.ActiveIssues)
				fmt.Fprintf(a.out, "  Overdue:     %d\n", s.Overdue)
				fmt.Fprintf(a.out, "  On time:     %d\n", s.OnTime)
			})
		}),
	}
}

// formatAmount renders minor units as a decimal amount.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// parseAmount reads a non-negative decimal amount with at most two fraction
// digits and returns it in minor units.
func parseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if (whole == "" && !hasFrac) || (hasFrac && frac == "") || len(frac) > 2 {
		return 0, invalidArgument("invalid amount: %q", s)
	}
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseUint(whole, 10, 32)
	if err != nil {
		return 0, invalidArgument("invalid amount: %q", s)
	}
	var cents uint64
	if frac != "" {
		if cents, err = strconv.ParseUint(frac, 10, 8); err != nil {
			return 0, invalidArgument("invalid amount: %q", s)
		}
		if len(frac) == 1 {
			cents *= 10
		}
	}
	return int64(units*100 + cents), nil
}
