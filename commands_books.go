package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"library-ledger/library"
)

func newBookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the catalog",
	}
	cmd.AddCommand(
		newBookAddCmd(a),
		&cobra.Command{
			Use:   "list",
			Short: "List every book",
			Args:  cobra.NoArgs,
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, _ []string) error {
				books, err := mgr.ListBooks(ctx)
				if err != nil {
					return err
				}
				return printBooks(a, books, "No books in library.")
			}),
		},
		&cobra.Command{
			Use:   "search <term>",
			Short: "Find books by title, author or ISBN",
			Args:  cobra.MinimumNArgs(1),
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
				books, err := mgr.SearchBooks(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printBooks(a, books, "No matching books found.")
			}),
		},
		&cobra.Command{
			Use:   "available [term]",
			Short: "List books with a copy on the shelf",
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
				books, err := mgr.AvailableBooks(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printBooks(a, books, "No books available.")
			}),
		},
		&cobra.Command{
			Use:   "show <book-id>",
			Short: "Show one book",
			Args:  cobra.ExactArgs(1),
			RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, args []string) error {
				id, err := parseID("book", args[0])
				if err != nil {
					return err
				}
				b, err := mgr.GetBook(ctx, id)
				if err != nil {
					return err
				}
				return a.render(b, func() {
					fmt.Fprintf(a.out, "ID:         %d\n", b.ID)
					fmt.Fprintf(a.out, "Title:      %s\n", b.Title)
					fmt.Fprintf(a.out, "Author:     %s\n", b.Author)
					fmt.Fprintf(a.out, "Publisher:  %s\n", b.Publisher)
					fmt.Fprintf(a.out, "ISBN:       %s\n", b.ISBN)
					fmt.Fprintf(a.out, "Copies:     %d available of %d (%d on loan)\n", b.AvailableCopies, b.TotalCopies, b.OnLoan())
					fmt.Fprintf(a.out, "Added:      %s\n", formatDate(b.AddedAt))
				})
			}),
		},
	)
	return cmd
}

func newBookAddCmd(a *app) *cobra.Command {
	var nb library.NewBook
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Catalog a title",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, mgr *library.LibraryManager, _ []string) error {
			id, err := mgr.AddBook(ctx, nb)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Book added with ID: %d\n", id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&nb.Title, "title", "", "book title")
	cmd.Flags().StringVar(&nb.Author, "author", "", "book author")
	cmd.Flags().StringVar(&nb.Publisher, "publisher", "", "publisher")
	cmd.Flags().StringVar(&nb.ISBN, "isbn", "", "ISBN, unique across the catalog")
	cmd.Flags().IntVar(&nb.Copies, "copies", 1, "number of copies")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func printBooks(a *app, books []library.Book, empty string) error {
	return a.render(books, func() {
		if len(books) == 0 {
			fmt.Fprintln(a.out, empty)
			return
		}
		rows := make([][]string, 0, len(books))
		for _, b := range books {
			rows = append(rows, []string{
				strconv.FormatInt(b.ID, 10),
				b.Title,
				b.Author,
				b.ISBN,
				fmt.Sprintf("%d/%d", b.AvailableCopies, b.TotalCopies),
			})
		}
		printTable(a.out, []string{"ID", "Title", "Author", "ISBN", "Available"}, rows)
	})
}
