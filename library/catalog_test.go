package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBookAssignsIncreasingIDs(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	first := addBook(t, db, "First", 1)
	second := addBook(t, db, "Second", 3)
	assert.Greater(t, second, first)

	books, err := db.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, first, books[0].ID)
	assert.Equal(t, second, books[1].ID)
	assert.Equal(t, 3, books[1].TotalCopies)
	assert.Equal(t, 3, books[1].AvailableCopies)
	assert.Equal(t, 0, books[1].OnLoan())
}

func TestAddBookValidation(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   NewBook
	}{
		{"zero copies", NewBook{Title: "T", Author: "A", Copies: 0}},
		{"negative copies", NewBook{Title: "T", Author: "A", Copies: -2}},
		{"blank title", NewBook{Title: "  ", Author: "A", Copies: 1}},
		{"blank author", NewBook{Title: "T", Copies: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.AddBook(ctx, tt.in)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	books, err := db.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestAddBookDuplicateISBN(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	_, err := db.AddBook(ctx, NewBook{Title: "Dune", Author: "Herbert", ISBN: "111", Copies: 2})
	require.NoError(t, err)

	_, err = db.AddBook(ctx, NewBook{Title: "Dune Messiah", Author: "Herbert", ISBN: "111", Copies: 1})
	require.ErrorIs(t, err, ErrDuplicateKey)
	assert.Equal(t, CodeDuplicateKey, CodeOf(err))
	assert.True(t, IsExpected(err))

	books, err := db.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1, "a rejected insert must not leave a row behind")
}

func TestBooksWithoutISBNDoNotCollide(t *testing.T) {
	db := tempDB(t)
	addBook(t, db, "Untitled", 1)
	addBook(t, db, "Untitled", 1)

	books, err := db.ListBooks(context.Background())
	require.NoError(t, err)
	assert.Len(t, books, 2)
	assert.Empty(t, books[0].ISBN)
}

func TestGetBookNotFound(t *testing.T) {
	db := tempDB(t)
	_, err := db.GetBook(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchBooks(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	_, err := db.AddBook(ctx, NewBook{Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", Copies: 1})
	require.NoError(t, err)
	_, err = db.AddBook(ctx, NewBook{Title: "Ärger im Paradies", Author: "Unbekannt", Copies: 1})
	require.NoError(t, err)
	_, err = db.AddBook(ctx, NewBook{Title: "100% Pure", Author: "Someone", Copies: 1})
	require.NoError(t, err)

	tests := []struct {
		term string
		want []string
	}{
		{"dune", []string{"Dune"}},
		{"HERBERT", []string{"Dune"}},
		{"0441", []string{"Dune"}},
		{"äRGER", []string{"Ärger im Paradies"}},
		{"%", []string{"100% Pure"}},
		{"_", nil},
		{"missing", nil},
		{"", []string{"Dune", "Ärger im Paradies", "100% Pure"}},
		{"   ", []string{"Dune", "Ärger im Paradies", "100% Pure"}},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			books, err := db.SearchBooks(ctx, tt.term)
			require.NoError(t, err)
			var titles []string
			for _, b := range books {
				titles = append(titles, b.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestAvailableBooksSkipsExhaustedTitles(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	gone := addBook(t, db, "Gone", 1)
	addBook(t, db, "Shelved", 1)
	member := addMember(t, db, "ann")

	_, err := db.IssueBook(ctx, gone, member, 14)
	require.NoError(t, err)

	books, err := db.AvailableBooks(ctx, "")
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Shelved", books[0].Title)

	books, err = db.AvailableBooks(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestAddMember(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	id, err := db.AddMember(ctx, NewMember{Name: "Ann Lee", Email: " Ann@Example.org ", Phone: "555-0100"})
	require.NoError(t, err)

	m, err := db.GetMember(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.org", m.Email)
	assert.Equal(t, MemberActive, m.Status)
	assert.Empty(t, m.Address)
	assert.WithinDuration(t, time.Now(), m.JoinedAt, time.Minute)

	_, err = db.AddMember(ctx, NewMember{Name: "Other Ann", Email: "ANN@example.org"})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	_, err = db.AddMember(ctx, NewMember{Name: "", Email: "x@example.org"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = db.AddMember(ctx, NewMember{Name: "No Mail"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	members, err := db.ListMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestSearchMembers(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	_, err := db.AddMember(ctx, NewMember{Name: "Zoë Ortiz", Email: "zoe@example.org", Phone: "555-0199"})
	require.NoError(t, err)
	addMember(t, db, "bob")

	found, err := db.SearchMembers(ctx, "ZOË")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Zoë Ortiz", found[0].Name)

	found, err = db.SearchMembers(ctx, "0199")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = db.SearchMembers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestDeleteMember(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	bookID := addBook(t, db, "Book", 2)
	borrower := addMember(t, db, "borrower")
	former := addMember(t, db, "former")

	_, err := db.IssueBook(ctx, bookID, borrower, 14)
	require.NoError(t, err)
	done, err := db.IssueBook(ctx, bookID, former, 14)
	require.NoError(t, err)
	_, err = db.ReturnBook(ctx, done.ID)
	require.NoError(t, err)

	err = db.DeleteMember(ctx, borrower)
	require.ErrorIs(t, err, ErrPreconditionFailed)
	_, err = db.GetMember(ctx, borrower)
	assert.NoError(t, err, "member with an open loan must remain")

	require.NoError(t, db.DeleteMember(ctx, former))
	_, err = db.GetMember(ctx, former)
	assert.ErrorIs(t, err, ErrNotFound)

	// The returned loan survives as history.
	iss, err := db.GetIssueByID(ctx, done.ID)
	require.NoError(t, err)
	assert.False(t, iss.MemberID.Valid)
	assert.Equal(t, IssueReturned, iss.Status)

	assert.ErrorIs(t, db.DeleteMember(ctx, 999), ErrNotFound)
}

func TestUpdateMemberStatus(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	id := addMember(t, db, "ann")

	require.NoError(t, db.UpdateMemberStatus(ctx, id, MemberInactive))
	m, err := db.GetMember(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, MemberInactive, m.Status)

	assert.ErrorIs(t, db.UpdateMemberStatus(ctx, id, "Suspended"), ErrInvalidArgument)
	assert.ErrorIs(t, db.UpdateMemberStatus(ctx, 999, MemberActive), ErrNotFound)

	active, err := db.ActiveMembers(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestToggleMemberStatus(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	id := addMember(t, db, "ann")

	status, err := db.ToggleMemberStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, MemberInactive, status)

	status, err = db.ToggleMemberStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, MemberActive, status)

	_, err = db.ToggleMemberStatus(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidEmail(t *testing.T) {
	tests := map[string]bool{
		"ann@example.org": true,
		" a@b.c ":         true,
		"ann@localhost":   false,
		"@example.org":    false,
		"ann.example.org": false,
		"ann@":            false,
		"":                false,
	}
	for in, want := range tests {
		assert.Equal(t, want, ValidEmail(in), in)
	}
}
