package library

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

const issueColumns = `id, ref, book_id, member_id, issued_at, due_at, returned_at, status`

// IssueBook lends one copy of bookID to memberID for loanDays days.
//
// The availability check, the decrement and the insert run in one immediate
// transaction; the decrement is also conditional on a copy being left, so
// available_copies can never go below zero.
func (d *Database) IssueBook(ctx context.Context, bookID, memberID int64, loanDays int) (*Issue, error) {
	const op = "issue book"
	if loanDays <= 0 {
		return nil, newError(CodeInvalidArgument, op, "loan days must be > 0, got %d", loanDays)
	}

	now := d.now()
	ref, err := newRef(now)
	if err != nil {
		return nil, classify(op, err)
	}
	issue := &Issue{
		Ref:      ref,
		BookID:   bookID,
		MemberID: sql.NullInt64{Int64: memberID, Valid: true},
		IssuedAt: now,
		DueAt:    now.AddDate(0, 0, loanDays),
		Status:   IssueIssued,
	}

	err = d.runInTx(ctx, op, func(tx *sqlx.Tx) error {
		var available int
		err := tx.GetContext(ctx, &available, `SELECT available_copies FROM books WHERE id=?`, bookID)
		if errors.Is(err, sql.ErrNoRows) {
			return newError(CodeUnavailable, op, "book %d does not exist", bookID)
		}
		if err != nil {
			return err
		}
		if available <= 0 {
			return newError(CodeUnavailable, op, "no copies of book %d are available", bookID)
		}

		var status string
		err = tx.GetContext(ctx, &status, `SELECT status FROM members WHERE id=?`, memberID)
		if errors.Is(err, sql.ErrNoRows) {
			return newError(CodeNotFound, op, "member %d does not exist", memberID)
		}
		if err != nil {
			return err
		}
		if status != MemberActive {
			return newError(CodePreconditionFailed, op, "member %d is %s", memberID, status)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE books SET available_copies = available_copies - 1 WHERE id=? AND available_copies > 0`, bookID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return newError(CodeUnavailable, op, "no copies of book %d are available", bookID)
		}

		res, err = tx.ExecContext(ctx,
			`INSERT INTO issues (ref, book_id, member_id, issued_at, due_at, status) VALUES (?, ?, ?, ?, ?, ?)`,
			issue.Ref, issue.BookID, memberID, issue.IssuedAt, issue.DueAt, issue.Status)
		if err != nil {
			return err
		}
		issue.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// ReturnBook closes an issued loan and puts the copy back on the shelf.
func (d *Database) ReturnBook(ctx context.Context, issueID int64) (*ReturnOutcome, error) {
	return d.returnIssue(ctx, "return book", issueID, nil)
}

// ReturnBookWithFine closes the loan and, in the same transaction, records
// the fine policy charges when the return is late.
func (d *Database) ReturnBookWithFine(ctx context.Context, issueID int64, policy FinePolicy) (*ReturnOutcome, error) {
	return d.returnIssue(ctx, "return book", issueID, &policy)
}

func (d *Database) returnIssue(ctx context.Context, op string, issueID int64, policy *FinePolicy) (*ReturnOutcome, error) {
	now := d.now()
	var out ReturnOutcome

	err := d.runInTx(ctx, op, func(tx *sqlx.Tx) error {
		var iss Issue
		err := tx.GetContext(ctx, &iss, `SELECT `+issueColumns+` FROM issues WHERE id=?`, issueID)
		if errors.Is(err, sql.ErrNoRows) {
			return newError(CodeNotFound, op, "issue %d does not exist", issueID)
		}
		if err != nil {
			return err
		}
		if iss.Status != IssueIssued {
			return newError(CodeInvalidState, op, "issue %d is already %s", issueID, iss.Status)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE issues SET returned_at=?, status=? WHERE id=? AND status=?`,
			now, IssueReturned, issueID, IssueIssued)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return newError(CodeInvalidState, op, "issue %d is no longer issued", issueID)
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE books SET available_copies = available_copies + 1 WHERE id=? AND available_copies < total_copies`,
			iss.BookID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return newError(CodeInvalidState, op, "copy accounting for book %d is inconsistent", iss.BookID)
		}

		out = ReturnOutcome{
			IssueID:    iss.ID,
			BookID:     iss.BookID,
			MemberID:   iss.MemberID.Int64,
			DueAt:      iss.DueAt,
			ReturnedAt: now,
		}
		if policy == nil {
			return nil
		}

		out.OverdueDays, out.FineAmount = policy.Assess(iss.DueAt, now)
		if out.FineAmount <= 0 {
			return nil
		}
		out.FineID, err = insertFine(ctx, tx, issueID, out.FineAmount, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordFine records a paid fine against an existing issue. An issue carries
// at most one fine; a second call fails with DuplicateKey.
func (d *Database) RecordFine(ctx context.Context, issueID int64, amount int64) (int64, error) {
	const op = "record fine"
	if amount < 0 {
		return 0, newError(CodeInvalidArgument, op, "amount must be >= 0, got %d", amount)
	}

	var id int64
	err := d.runInTx(ctx, op, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM issues WHERE id=?)`, issueID); err != nil {
			return err
		}
		if !exists {
			return newError(CodeNotFound, op, "issue %d does not exist", issueID)
		}
		var err error
		id, err = insertFine(ctx, tx, issueID, amount, d.now())
		return err
	})
	if errors.Is(err, ErrDuplicateKey) {
		return 0, &Error{Code: CodeDuplicateKey, Op: op, Message: "a fine is already recorded for this issue", Err: err}
	}
	return id, err
}

func insertFine(ctx context.Context, tx *sqlx.Tx, issueID, amount int64, paidAt time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO fines (issue_id, amount, paid_at, status) VALUES (?, ?, ?, ?)`,
		issueID, amount, paidAt, FinePaid)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// QuoteFine prices an open loan as if it were returned now. Nothing is
// written.
func (d *Database) QuoteFine(ctx context.Context, issueID int64, policy FinePolicy) (days int, amount int64, err error) {
	iss, err := d.GetIssueByID(ctx, issueID)
	if err != nil {
		return 0, 0, err
	}
	if iss.Status != IssueIssued {
		return 0, 0, newError(CodeInvalidState, "quote fine", "issue %d is already %s", issueID, iss.Status)
	}
	days, amount = policy.Assess(iss.DueAt, d.now())
	return days, amount, nil
}
