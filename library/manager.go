package library

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LibraryManager is a thin façade over the Database, keeping CLI code simple.
// It carries the configured loan policy and logs every mutating operation.
type LibraryManager struct {
	db       *Database
	log      *slog.Logger
	policy   FinePolicy
	loanDays int
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(dbPath string, opts ...Option) (*LibraryManager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	db, err := NewDatabase(dbPath, opts...)
	if err != nil {
		o.logger.Error("open ledger", "path", dbPath, "err", err)
		return nil, err
	}
	o.logger.Debug("ledger opened", "path", dbPath, "schema_version", schemaVersion())
	return &LibraryManager{db: db, log: o.logger, policy: o.policy, loanDays: o.loanDays}, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// DefaultLoanDays is the configured loan period.
func (lm *LibraryManager) DefaultLoanDays() int { return lm.loanDays }

// FinePolicy is the configured overdue policy.
func (lm *LibraryManager) FinePolicy() FinePolicy { return lm.policy }

// logResult reports a mutating operation: Info on success, Warn for the
// failures a caller is expected to handle, Error for storage failures.
func (lm *LibraryManager) logResult(op string, err error, attrs ...any) {
	if err == nil {
		lm.log.Info(op, attrs...)
		return
	}
	attrs = append(attrs, "code", string(CodeOf(err)), "err", err)
	if IsExpected(err) {
		lm.log.Warn(op+" rejected", attrs...)
		return
	}
	lm.log.Error(op+" failed", attrs...)
}

// logRead only reports storage failures; reads that miss are routine.
func (lm *LibraryManager) logRead(op string, err error, attrs ...any) {
	if err != nil && !IsExpected(err) {
		lm.log.Error(op+" failed", append(attrs, "err", err)...)
	}
}

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(ctx context.Context, nb NewBook) (int64, error) {
	id, err := lm.db.AddBook(ctx, nb)
	lm.logResult("book added", err, "book_id", id, "title", nb.Title, "isbn", nb.ISBN, "copies", nb.Copies)
	return id, err
}

func (lm *LibraryManager) GetBook(ctx context.Context, id int64) (*Book, error) {
	b, err := lm.db.GetBook(ctx, id)
	lm.logRead("get book", err, "book_id", id)
	return b, err
}

func (lm *LibraryManager) ListBooks(ctx context.Context) ([]Book, error) {
	books, err := lm.db.ListBooks(ctx)
	lm.logRead("list books", err)
	return books, err
}

func (lm *LibraryManager) SearchBooks(ctx context.Context, term string) ([]Book, error) {
	books, err := lm.db.SearchBooks(ctx, term)
	lm.logRead("search books", err, "term", term)
	return books, err
}

func (lm *LibraryManager) AvailableBooks(ctx context.Context, term string) ([]Book, error) {
	books, err := lm.db.AvailableBooks(ctx, term)
	lm.logRead("available books", err, "term", term)
	return books, err
}

// ------------------ Member helpers ------------------

func (lm *LibraryManager) AddMember(ctx context.Context, nm NewMember) (int64, error) {
	id, err := lm.db.AddMember(ctx, nm)
	lm.logResult("member added", err, "member_id", id, "email", nm.Email)
	return id, err
}

func (lm *LibraryManager) GetMember(ctx context.Context, id int64) (*Member, error) {
	m, err := lm.db.GetMember(ctx, id)
	lm.logRead("get member", err, "member_id", id)
	return m, err
}

func (lm *LibraryManager) ListMembers(ctx context.Context) ([]Member, error) {
	members, err := lm.db.ListMembers(ctx)
	lm.logRead("list members", err)
	return members, err
}

func (lm *LibraryManager) SearchMembers(ctx context.Context, term string) ([]Member, error) {
	members, err := lm.db.SearchMembers(ctx, term)
	lm.logRead("search members", err, "term", term)
	return members, err
}

func (lm *LibraryManager) ActiveMembers(ctx context.Context, term string) ([]Member, error) {
	members, err := lm.db.ActiveMembers(ctx, term)
	lm.logRead("active members", err, "term", term)
	return members, err
}

func (lm *LibraryManager) DeleteMember(ctx context.Context, id int64) error {
	err := lm.db.DeleteMember(ctx, id)
	lm.logResult("member deleted", err, "member_id", id)
	return err
}

func (lm *LibraryManager) UpdateMemberStatus(ctx context.Context, id int64, status string) error {
	err := lm.db.UpdateMemberStatus(ctx, id, status)
	lm.logResult("member status updated", err, "member_id", id, "status", status)
	return err
}

func (lm *LibraryManager) ToggleMemberStatus(ctx context.Context, id int64) (string, error) {
	status, err := lm.db.ToggleMemberStatus(ctx, id)
	lm.logResult("member status toggled", err, "member_id", id, "status", status)
	return status, err
}

// ------------------ Circulation ------------------

// IssueBook lends a copy for loanDays days. Callers without a period of their
// own pass DefaultLoanDays.
func (lm *LibraryManager) IssueBook(ctx context.Context, bookID, memberID int64, loanDays int) (*Issue, error) {
	iss, err := lm.db.IssueBook(ctx, bookID, memberID, loanDays)
	attrs := []any{"book_id", bookID, "member_id", memberID, "loan_days", loanDays}
	if iss != nil {
		attrs = append(attrs, "issue_id", iss.ID, "ref", iss.Ref, "due", iss.DueAt.Format(time.DateOnly))
	}
	lm.logResult("book issued", err, attrs...)
	return iss, err
}

func (lm *LibraryManager) ReturnBook(ctx context.Context, issueID int64) (*ReturnOutcome, error) {
	out, err := lm.db.ReturnBook(ctx, issueID)
	lm.logResult("book returned", err, returnAttrs(issueID, out)...)
	return out, err
}

// ReturnBookWithFine returns the book and records the fine the configured
// policy charges, in one transaction.
func (lm *LibraryManager) ReturnBookWithFine(ctx context.Context, issueID int64) (*ReturnOutcome, error) {
	out, err := lm.db.ReturnBookWithFine(ctx, issueID, lm.policy)
	lm.logResult("book returned", err, returnAttrs(issueID, out)...)
	return out, err
}

func returnAttrs(issueID int64, out *ReturnOutcome) []any {
	attrs := []any{"issue_id", issueID}
	if out != nil {
		attrs = append(attrs, "book_id", out.BookID, "member_id", out.MemberID,
			"overdue_days", out.OverdueDays, "fine", out.FineAmount)
	}
	return attrs
}

func (lm *LibraryManager) RecordFine(ctx context.Context, issueID, amount int64) (int64, error) {
	id, err := lm.db.RecordFine(ctx, issueID, amount)
	lm.logResult("fine recorded", err, "fine_id", id, "issue_id", issueID, "amount", amount)
	return id, err
}

// QuoteFine prices an open loan under the configured policy.
func (lm *LibraryManager) QuoteFine(ctx context.Context, issueID int64) (days int, amount int64, err error) {
	days, amount, err = lm.db.QuoteFine(ctx, issueID, lm.policy)
	lm.logRead("quote fine", err, "issue_id", issueID)
	return days, amount, err
}

func (lm *LibraryManager) ListFines(ctx context.Context, issueID int64) ([]Fine, error) {
	fines, err := lm.db.ListFines(ctx, issueID)
	lm.logRead("list fines", err, "issue_id", issueID)
	return fines, err
}

// ------------------ Reports ------------------

func (lm *LibraryManager) GetIssue(ctx context.Context, key string) (*Issue, error) {
	iss, err := lm.db.GetIssue(ctx, key)
	lm.logRead("get issue", err, "key", key)
	return iss, err
}

func (lm *LibraryManager) ActiveIssues(ctx context.Context) ([]ActiveIssue, error) {
	issues, err := lm.db.ActiveIssues(ctx)
	lm.logRead("active issues", err)
	return issues, err
}

func (lm *LibraryManager) OverdueIssues(ctx context.Context) ([]ActiveIssue, error) {
	issues, err := lm.db.OverdueIssues(ctx)
	lm.logRead("overdue issues", err)
	return issues, err
}

func (lm *LibraryManager) MemberIssues(ctx context.Context, memberID int64) ([]MemberIssue, error) {
	issues, err := lm.db.MemberIssues(ctx, memberID)
	lm.logRead("member issues", err, "member_id", memberID)
	return issues, err
}

func (lm *LibraryManager) Stats(ctx context.Context) (*Stats, error) {
	s, err := lm.db.Stats(ctx)
	lm.logRead("stats", err)
	return s, err
}

// ------------------ Utilities ------------------

// PrettyBook formats a book for lists.
func PrettyBook(b *Book) string {
	return fmt.Sprintf("%-5d %-30s %-25s %3d/%-3d %-17s", b.ID, b.Title, b.Author, b.AvailableCopies, b.TotalCopies, b.ISBN)
}
