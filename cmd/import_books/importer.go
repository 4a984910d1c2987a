package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"library-ledger/library"
)

// summary counts the outcome of every data row.
type summary struct {
	Imported   int
	Duplicates int
	Errors     int
}

// bookAdder is the part of the ledger the importer needs.
type bookAdder interface {
	AddBook(ctx context.Context, nb library.NewBook) (int64, error)
}

// importBooks adds one book per CSV row. A leading header row is skipped.
// Row failures are reported and counted; only a malformed CSV stream or a
// storage failure stops the import.
func importBooks(ctx context.Context, ledger bookAdder, r io.Reader, out io.Writer) (summary, error) {
	var sum summary
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	for first := true; ; first = false {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		if err != nil {
			return sum, fmt.Errorf("read csv: %w", err)
		}
		if first && strings.EqualFold(strings.TrimSpace(rec[0]), "title") {
			continue
		}
		// Comments and blank lines never reach us, so count lines from the reader.
		line, _ := cr.FieldPos(0)

		nb, err := parseRow(rec)
		if err != nil {
			fmt.Fprintf(out, "Line %d: ERROR - %v\n", line, err)
			sum.Errors++
			continue
		}

		fmt.Fprintf(out, "Importing: %s by %s... ", nb.Title, nb.Author)
		id, err := ledger.AddBook(ctx, nb)
		switch {
		case err == nil:
			fmt.Fprintf(out, "SUCCESS (ID: %d)\n", id)
			sum.Imported++
		case errors.Is(err, library.ErrDuplicateKey):
			fmt.Fprintf(out, "DUPLICATE - isbn %s already cataloged\n", nb.ISBN)
			sum.Duplicates++
		case library.IsExpected(err):
			fmt.Fprintf(out, "ERROR - %v\n", err)
			sum.Errors++
		default:
			fmt.Fprintln(out, "FAILED")
			return sum, err
		}
	}
}

func parseRow(rec []string) (library.NewBook, error) {
	if len(rec) < 2 {
		return library.NewBook{}, fmt.Errorf("want at least title,author; got %d field(s)", len(rec))
	}
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	nb := library.NewBook{
		Title:     field(0),
		Author:    field(1),
		Publisher: field(2),
		ISBN:      field(3),
		Copies:    1,
	}
	if c := field(4); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil {
			return library.NewBook{}, fmt.Errorf("copies %q is not a number", c)
		}
		nb.Copies = n
	}
	return nb, nil
}
