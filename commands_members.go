package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"library-ledger/library"
)

func newMemberCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage library members",
	}
	cmd.AddCommand(
		newMemberAddCmd(a),
		&cobra.Command{
			Use:   "list",
			Short: "List every member",
			Args:  cobra.NoArgs,
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, _ []string) error {
				members, err := mgr.ListMembers(ctx)
				if err != nil {
					return err
				}
				return printMembers(a, members, "No members registered.")
			}),
		},
		&cobra.Command{
			Use:   "search <term>",
			Short: "Find members by name, email or phone",
			Args:  cobra.MinimumNArgs(1),
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
				members, err := mgr.SearchMembers(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printMembers(a, members, "No matching members found.")
			}),
		},
		&cobra.Command{
			Use:   "active [term]",
			Short: "List members who may borrow",
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
				members, err := mgr.ActiveMembers(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printMembers(a, members, "No active members.")
			}),
		},
		&cobra.Command{
			Use:   "show <member-id>",
			Short: "Show a member and their open loans",
			Args:  cobra.ExactArgs(1),
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
				id, err := parseID("member", args[0])
				if err != nil {
					return err
				}
				m, err := mgr.GetMember(ctx, id)
				if err != nil {
					return err
				}
				issues, err := mgr.MemberIssues(ctx, id)
				if err != nil {
					return err
				}
				view := struct {
					*library.Member
					Loans []library.MemberIssue `json:"loans"`
				}{m, issues}
				return a.render(view, func() {
					fmt.Fprintf(a.out, "ID:       %d\n", m.ID)
					fmt.Fprintf(a.out, "Name:     %s\n", m.Name)
					fmt.Fprintf(a.out, "Email:    %s\n", m.Email)
					fmt.Fprintf(a.out, "Phone:    %s\n", m.Phone)
					fmt.Fprintf(a.out, "Address:  %s\n", m.Address)
					fmt.Fprintf(a.out, "Joined:   %s\n", formatDate(m.JoinedAt))
					fmt.Fprintf(a.out, "Status:   %s\n", m.Status)
					fmt.Fprintln(a.out)
					memberIssuesTable(a, issues)
				})
			}),
		},
		&cobra.Command{
			Use:   "loans <member-id>",
			Short: "List a member's open loans",
			Args:  cobra.ExactArgs(1),
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
				id, err := parseID("member", args[0])
				if err != nil {
					return err
				}
				issues, err := mgr.MemberIssues(ctx, id)
				if err != nil {
					return err
				}
				return a.render(issues, func() { memberIssuesTable(a, issues) })
			}),
		},
		&cobra.Command{
			Use:   "delete <member-id>",
			Short: "Delete a member with no open loans",
			Args:  cobra.ExactArgs(1),
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
				id, err := parseID("member", args[0])
				if err != nil {
					return err
				}
				if err := mgr.DeleteMember(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Member %d deleted.\n", id)
				return nil
			}),
		},
		&cobra.Command{
			Use:       "status <member-id> <Active|Inactive>",
			Short:     "Set a member's status",
			Args:      cobra.ExactArgs(2),
			ValidArgs: []string{library.MemberActive, library.MemberInactive},
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
				id, err := parseID("member", args[0])
				if err != nil {
					return err
				}
				if err := mgr.UpdateMemberStatus(ctx, id, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Member %d is now %s.\n", id, args[1])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "toggle <member-id>",
			Short: "Flip a member between Active and Inactive",
			Args:  cobra.ExactArgs(1),
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
				id, err := parseID("member", args[0])
				if err != nil {
					return err
				}
				status, err := mgr.ToggleMemberStatus(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Member %d is now %s.\n", id, status)
				return nil
			}),
		},
	)
	return cmd
}

func newMemberAddCmd(a *app) *cobra.Command {
	var nm library.NewMember
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, _ []string) error {
			if !library.ValidEmail(nm.Email) {
				return invalidArgument("invalid email address: %q", nm.Email)
			}
			id, err := mgr.AddMember(ctx, nm)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Member added with ID: %d\n", id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&nm.Name, "name", "", "member name")
	cmd.Flags().StringVar(&nm.Email, "email", "", "email address, unique across members")
	cmd.Flags().StringVar(&nm.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&nm.Address, "address", "", "postal address")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func printMembers(a *app, members []library.Member, empty string) error {
	return a.render(members, func() {
		if len(members) == 0 {
			fmt.Fprintln(a.out, empty)
			return
		}
		rows := make([][]string, 0, len(members))
		for _, m := range members {
			rows = append(rows, []string{strconv.FormatInt(m.ID, 10), m.Name, m.Email, m.Phone, m.Status})
		}
		printTable(a.out, []string{"ID", "Name", "Email", "Phone", "Status"}, rows)
	})
}

func memberIssuesTable(a *app, issues []library.MemberIssue) {
	if len(issues) == 0 {
		fmt.Fprintln(a.out, "No books currently issued.")
		return
	}
	rows := make([][]string, 0, len(issues))
	for _, iss := range issues {
		rows = append(rows, []string{
			strconv.FormatInt(iss.IssueID, 10),
			iss.BookTitle,
			formatDate(iss.IssuedAt),
			formatDate(iss.DueAt),
			yesNo(iss.Overdue),
		})
	}
	printTable(a.out, []string{"Issue", "Title", "Issued", "Due", "Overdue"}, rows)
}
