package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"library-ledger/internal/config"
	"library-ledger/library"
)

func newImportCmd(out, errOut io.Writer) *cobra.Command {
	var (
		configPath string
		dbPath     string
		fresh      bool
	)
	cmd := &cobra.Command{
		Use:          "import_books <file.csv|->",
		Short:        "Bulk-load the catalog from a CSV of title,author,publisher,isbn,copies",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.Database.Path = dbPath
			}

			if fresh {
				fmt.Fprintln(out, "Cleaning up existing database files...")
				for _, suffix := range []string{"", "-shm", "-wal"} {
					file := cfg.Database.Path + suffix
					if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
						fmt.Fprintf(out, "Warning: Could not remove %s: %v\n", file, err)
					}
				}
			}

			manager, err := library.NewLibraryManager(cfg.Database.Path, library.WithLogger(cfg.Logger(errOut)))
			if err != nil {
				return fmt.Errorf("creating database: %w", err)
			}
			defer manager.Close()

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			fmt.Fprintf(out, "Importing books from %s...\n", args[0])
			sum, err := importBooks(cmd.Context(), manager, in, out)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\nImport complete!\n")
			fmt.Fprintf(out, "Successfully imported: %d books\n", sum.Imported)
			fmt.Fprintf(out, "Duplicates skipped: %d\n", sum.Duplicates)
			fmt.Fprintf(out, "Errors: %d\n", sum.Errors)

			if sum.Imported > 0 {
				books, err := manager.ListBooks(cmd.Context())
				if err != nil {
					return fmt.Errorf("retrieving books: %w", err)
				}
				fmt.Fprintln(out, "\nCatalog:")
				fmt.Fprintf(out, "%-5s %-30s %-25s %-7s %-17s\n", "ID", "Title", "Author", "Avail", "ISBN")
				fmt.Fprintln(out, strings.Repeat("-", 88))
				for i := range books {
					fmt.Fprintln(out, library.PrettyBook(&books[i]))
				}
			}
			if sum.Errors > 0 {
				return fmt.Errorf("%d row(s) failed to import", sum.Errors)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides database.path)")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "delete the existing database before importing")
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newImportCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
