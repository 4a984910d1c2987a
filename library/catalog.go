package library

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

func bookSelect() *goqu.SelectDataset {
	return dialect.From("books").Prepared(true).Select(
		"id", "title", "author",
		goqu.COALESCE(goqu.C("publisher"), "").As("publisher"),
		goqu.COALESCE(goqu.C("isbn"), "").As("isbn"),
		"total_copies", "available_copies", "added_at",
	)
}

// AddBook catalogs a title with all of its copies available.
func (d *Database) AddBook(ctx context.Context, nb NewBook) (int64, error) {
	const op = "add book"
	title := strings.TrimSpace(nb.Title)
	author := strings.TrimSpace(nb.Author)
	isbn := strings.TrimSpace(nb.ISBN)
	publisher := strings.TrimSpace(nb.Publisher)

	if title == "" || author == "" {
		return 0, newError(CodeInvalidArgument, op, "title and author are required")
	}
	if nb.Copies <= 0 {
		return 0, newError(CodeInvalidArgument, op, "copies must be > 0, got %d", nb.Copies)
	}

	const q = `
	INSERT INTO books (title, author, publisher, isbn, total_copies, available_copies, added_at, search_key)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var id int64
	err := d.runInTx(ctx, op, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q,
			title, author, nullIfEmpty(publisher), nullIfEmpty(isbn),
			nb.Copies, nb.Copies, d.now(), searchKey(title, author, isbn),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if errors.Is(err, ErrDuplicateKey) {
		return 0, &Error{Code: CodeDuplicateKey, Op: op, Message: "isbn " + isbn + " is already cataloged", Err: err}
	}
	return id, err
}

// GetBook fetches a single book.
func (d *Database) GetBook(ctx context.Context, id int64) (*Book, error) {
	var books []Book
	if err := d.selectAll(ctx, "get book", &books, bookSelect().Where(goqu.C("id").Eq(id))); err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, newError(CodeNotFound, "get book", "book %d does not exist", id)
	}
	return &books[0], nil
}

// ListBooks returns every book ordered by id.
func (d *Database) ListBooks(ctx context.Context) ([]Book, error) {
	return d.SearchBooks(ctx, "")
}

// SearchBooks matches term against title, author and isbn, ignoring case.
// A blank term returns every book.
func (d *Database) SearchBooks(ctx context.Context, term string) ([]Book, error) {
	ds := bookSelect().Order(goqu.C("id").Asc())
	if where := matchTerm("search_key", term); where != nil {
		ds = ds.Where(where)
	}
	books := []Book{}
	if err := d.selectAll(ctx, "search books", &books, ds); err != nil {
		return nil, err
	}
	return books, nil
}

// AvailableBooks is SearchBooks limited to titles with a copy on the shelf.
func (d *Database) AvailableBooks(ctx context.Context, term string) ([]Book, error) {
	ds := bookSelect().Where(goqu.C("available_copies").Gt(0)).Order(goqu.C("id").Asc())
	if where := matchTerm("search_key", term); where != nil {
		ds = ds.Where(where)
	}
	books := []Book{}
	if err := d.selectAll(ctx, "available books", &books, ds); err != nil {
		return nil, err
	}
	return books, nil
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

func memberSelect() *goqu.SelectDataset {
	return dialect.From("members").Prepared(true).Select(
		"id", "name", "email",
		goqu.COALESCE(goqu.C("phone"), "").As("phone"),
		goqu.COALESCE(goqu.C("address"), "").As("address"),
		"joined_at", "status",
	)
}

// AddMember registers a member. Emails are stored lower-cased and are
// unique regardless of case.
func (d *Database) AddMember(ctx context.Context, nm NewMember) (int64, error) {
	const op = "add member"
	name := strings.TrimSpace(nm.Name)
	email := strings.ToLower(strings.TrimSpace(nm.Email))
	phone := strings.TrimSpace(nm.Phone)
	address := strings.TrimSpace(nm.Address)

	if name == "" || email == "" {
		return 0, newError(CodeInvalidArgument, op, "name and email are required")
	}

	const q = `
	INSERT INTO members (name, email, phone, address, joined_at, status, search_key)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	var id int64
	err := d.runInTx(ctx, op, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q,
			name, email, nullIfEmpty(phone), nullIfEmpty(address),
			d.now(), MemberActive, searchKey(name, email, phone),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if errors.Is(err, ErrDuplicateKey) {
		return 0, &Error{Code: CodeDuplicateKey, Op: op, Message: "email " + email + " is already registered", Err: err}
	}
	return id, err
}

// GetMember fetches a single member.
func (d *Database) GetMember(ctx context.Context, id int64) (*Member, error) {
	var members []Member
	if err := d.selectAll(ctx, "get member", &members, memberSelect().Where(goqu.C("id").Eq(id))); err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, newError(CodeNotFound, "get member", "member %d does not exist", id)
	}
	return &members[0], nil
}

// ListMembers returns every member ordered by id.
func (d *Database) ListMembers(ctx context.Context) ([]Member, error) {
	return d.SearchMembers(ctx, "")
}

// SearchMembers matches term against name, email and phone, ignoring case.
// A blank term returns every member.
func (d *Database) SearchMembers(ctx context.Context, term string) ([]Member, error) {
	ds := memberSelect().Order(goqu.C("id").Asc())
	if where := matchTerm("search_key", term); where != nil {
		ds = ds.Where(where)
	}
	members := []Member{}
	if err := d.selectAll(ctx, "search members", &members, ds); err != nil {
		return nil, err
	}
	return members, nil
}

// ActiveMembers is SearchMembers limited to members who may borrow.
func (d *Database) ActiveMembers(ctx context.Context, term string) ([]Member, error) {
	ds := memberSelect().Where(goqu.C("status").Eq(MemberActive)).Order(goqu.C("id").Asc())
	if where := matchTerm("search_key", term); where != nil {
		ds = ds.Where(where)
	}
	members := []Member{}
	if err := d.selectAll(ctx, "active members", &members, ds); err != nil {
		return nil, err
	}
	return members, nil
}

// DeleteMember removes a member with no open loans. The open-loan check and
// the delete share one transaction, so no loan can be issued in between.
func (d *Database) DeleteMember(ctx context.Context, id int64) error {
	const op = "delete member"
	return d.runInTx(ctx, op, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM members WHERE id=?)`, id); err != nil {
			return err
		}
		if !exists {
			return newError(CodeNotFound, op, "member %d does not exist", id)
		}

		var open int
		if err := tx.GetContext(ctx, &open, `SELECT COUNT(*) FROM issues WHERE member_id=? AND status=?`, id, IssueIssued); err != nil {
			return err
		}
		if open > 0 {
			return newError(CodePreconditionFailed, op, "member %d has %d book(s) still issued", id, open)
		}

		_, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id=?`, id)
		return err
	})
}

// UpdateMemberStatus overwrites a member's status.
func (d *Database) UpdateMemberStatus(ctx context.Context, id int64, status string) error {
	const op = "update member status"
	if status != MemberActive && status != MemberInactive {
		return newError(CodeInvalidArgument, op, "status must be %s or %s, got %q", MemberActive, MemberInactive, status)
	}
	return d.runInTx(ctx, op, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE members SET status=? WHERE id=?`, status, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return newError(CodeNotFound, op, "member %d does not exist", id)
		}
		return nil
	})
}

// ToggleMemberStatus flips Active and Inactive and returns the new status.
func (d *Database) ToggleMemberStatus(ctx context.Context, id int64) (string, error) {
	const op = "toggle member status"
	var next string
	err := d.runInTx(ctx, op, func(tx *sqlx.Tx) error {
		var current string
		err := tx.GetContext(ctx, &current, `SELECT status FROM members WHERE id=?`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return newError(CodeNotFound, op, "member %d does not exist", id)
		}
		if err != nil {
			return err
		}
		next = MemberInactive
		if current == MemberInactive {
			next = MemberActive
		}
		_, err = tx.ExecContext(ctx, `UPDATE members SET status=? WHERE id=?`, next, id)
		return err
	})
	return next, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
