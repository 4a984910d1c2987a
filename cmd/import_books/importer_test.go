package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-ledger/library"
)

const catalogCSV = `title,author,publisher,isbn,copies
Dune,Frank Herbert,Chilton,9780441013593,2
"The Fellowship of the Ring",J.R.R. Tolkien,Allen & Unwin,9780261102354,
# comment lines are ignored
Dune again,Frank Herbert,,9780441013593,1
Broken,,,,
Bad copies,Someone,,,many
Zero,Someone,,,0
`

func tempManager(t *testing.T) *library.LibraryManager {
	t.Helper()
	mgr, err := library.NewLibraryManager(filepath.Join(t.TempDir(), "lib.db"))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestImportBooks(t *testing.T) {
	mgr := tempManager(t)
	ctx := context.Background()
	var out bytes.Buffer

	sum, err := importBooks(ctx, mgr, strings.NewReader(catalogCSV), &out)
	require.NoError(t, err)
	assert.Equal(t, summary{Imported: 2, Duplicates: 1, Errors: 3}, sum)
	assert.Contains(t, out.String(), "Importing: Dune by Frank Herbert... SUCCESS (ID: 1)")
	assert.Contains(t, out.String(), "DUPLICATE - isbn 9780441013593 already cataloged")
	assert.Contains(t, out.String(), `copies "many" is not a number`)

	books, err := mgr.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, 2, books[0].TotalCopies)
	assert.Equal(t, "Allen & Unwin", books[1].Publisher)
	assert.Equal(t, 1, books[1].TotalCopies, "blank copies defaults to one")
}

func TestImportBooksReportsFileLines(t *testing.T) {
	mgr := tempManager(t)
	var out bytes.Buffer

	sum, err := importBooks(context.Background(), mgr, strings.NewReader(catalogCSV), &out)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Errors)
	assert.Contains(t, out.String(), "Line 7: ERROR - copies \"many\" is not a number")

	out.Reset()
	input := "title,author\n\n# shelf A\nEmma,Jane Austen\n\n# shelf B\nLonely\n"
	_, err = importBooks(context.Background(), mgr, strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Line 7: ERROR - want at least title,author; got 1 field(s)")
}

func TestImportBooksWithoutHeader(t *testing.T) {
	mgr := tempManager(t)
	var out bytes.Buffer

	sum, err := importBooks(context.Background(), mgr, strings.NewReader("Emma,Jane Austen\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Imported)
}

func TestImportBooksMalformedCSV(t *testing.T) {
	mgr := tempManager(t)
	var out bytes.Buffer

	_, err := importBooks(context.Background(), mgr, strings.NewReader("title,author\n\"unterminated,x\n"), &out)
	assert.Error(t, err)
}

type failingLedger struct{}

func (failingLedger) AddBook(context.Context, library.NewBook) (int64, error) {
	return 0, &library.Error{Code: library.CodeStorageFailure, Op: "add book", Err: errors.New("disk I/O error")}
}

func TestImportBooksStopsOnStorageFailure(t *testing.T) {
	var out bytes.Buffer
	sum, err := importBooks(context.Background(), failingLedger{}, strings.NewReader("A,B\nC,D\n"), &out)
	require.ErrorIs(t, err, library.ErrStorageFailure)
	assert.Equal(t, summary{}, sum)
	assert.Equal(t, 1, strings.Count(out.String(), "Importing:"))
}

func TestImportCommand(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "books.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Dune,Herbert,,111,2\nEmma,Austen\n"), 0o644))
	dbPath := filepath.Join(dir, "lib.db")

	var out, logs bytes.Buffer
	cmd := newImportCmd(&out, &logs)
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "libraryctl.yaml"), "--db", dbPath, "--fresh", csvPath})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "Successfully imported: 2 books")
	assert.Contains(t, out.String(), "Catalog:")

	mgr, err := library.NewLibraryManager(dbPath)
	require.NoError(t, err)
	defer mgr.Close()
	books, err := mgr.ListBooks(context.Background())
	require.NoError(t, err)
	assert.Len(t, books, 2)
}
