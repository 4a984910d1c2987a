package library

import (
	"context"
	"strconv"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
)

func issueSelect() *goqu.SelectDataset {
	return dialect.From("issues").Prepared(true).Select(
		"id", "ref", "book_id", "member_id", "issued_at", "due_at", "returned_at", "status",
	)
}

// GetIssueByID fetches a single loan record.
func (d *Database) GetIssueByID(ctx context.Context, id int64) (*Issue, error) {
	return d.getIssue(ctx, goqu.C("id").Eq(id), strconv.FormatInt(id, 10))
}

// GetIssue fetches a loan by numeric id or by its ULID reference.
func (d *Database) GetIssue(ctx context.Context, key string) (*Issue, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, newError(CodeInvalidArgument, "get issue", "id or ref is required")
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		return d.GetIssueByID(ctx, id)
	}
	ref, err := ulid.ParseStrict(key)
	if err != nil {
		return nil, newError(CodeInvalidArgument, "get issue", "%q is neither an issue id nor a ref", key)
	}
	return d.getIssue(ctx, goqu.C("ref").Eq(ref.String()), key)
}

func (d *Database) getIssue(ctx context.Context, where exp.Expression, key string) (*Issue, error) {
	var issues []Issue
	if err := d.selectAll(ctx, "get issue", &issues, issueSelect().Where(where)); err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, newError(CodeNotFound, "get issue", "issue %s does not exist", key)
	}
	return &issues[0], nil
}

func activeIssueSelect() *goqu.SelectDataset {
	return dialect.From(goqu.T("issues").As("i")).Prepared(true).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("i.book_id")))).
		Join(goqu.T("members").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("i.member_id")))).
		Select(
			goqu.I("i.id").As("issue_id"),
			goqu.I("i.ref").As("ref"),
			goqu.I("b.title").As("book_title"),
			goqu.I("m.name").As("member_name"),
			goqu.I("i.issued_at").As("issued_at"),
			goqu.I("i.due_at").As("due_at"),
			goqu.I("i.status").As("status"),
		).
		Where(goqu.I("i.status").Eq(IssueIssued)).
		Order(goqu.I("i.due_at").Asc(), goqu.I("i.id").Asc())
}

// ActiveIssues lists every issued loan with its book and member, soonest due
// first. Overdue is derived from the clock at read time.
func (d *Database) ActiveIssues(ctx context.Context) ([]ActiveIssue, error) {
	issues := []ActiveIssue{}
	if err := d.selectAll(ctx, "active issues", &issues, activeIssueSelect()); err != nil {
		return nil, err
	}
	now := d.now()
	for i := range issues {
		issues[i].Overdue = IsOverdue(issues[i].DueAt, now)
	}
	return issues, nil
}

// OverdueIssues is the overdue subset of ActiveIssues.
func (d *Database) OverdueIssues(ctx context.Context) ([]ActiveIssue, error) {
	all, err := d.ActiveIssues(ctx)
	if err != nil {
		return nil, err
	}
	overdue := []ActiveIssue{}
	for _, iss := range all {
		if iss.Overdue {
			overdue = append(overdue, iss)
		}
	}
	return overdue, nil
}

// MemberIssues lists a member's issued loans, soonest due first.
func (d *Database) MemberIssues(ctx context.Context, memberID int64) ([]MemberIssue, error) {
	ds := dialect.From(goqu.T("issues").As("i")).Prepared(true).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("i.book_id")))).
		Select(
			goqu.I("i.id").As("issue_id"),
			goqu.I("b.title").As("book_title"),
			goqu.I("i.issued_at").As("issued_at"),
			goqu.I("i.due_at").As("due_at"),
		).
		Where(
			goqu.I("i.member_id").Eq(memberID),
			goqu.I("i.status").Eq(IssueIssued),
		).
		Order(goqu.I("i.due_at").Asc(), goqu.I("i.id").Asc())

	issues := []MemberIssue{}
	if err := d.selectAll(ctx, "member issues", &issues, ds); err != nil {
		return nil, err
	}
	now := d.now()
	for i := range issues {
		issues[i].Overdue = IsOverdue(issues[i].DueAt, now)
	}
	return issues, nil
}

// ListFines returns recorded fines, optionally for one issue (issueID > 0).
func (d *Database) ListFines(ctx context.Context, issueID int64) ([]Fine, error) {
	ds := dialect.From("fines").Prepared(true).
		Select("id", "issue_id", "amount", "paid_at", "status").
		Order(goqu.C("id").Asc())
	if issueID > 0 {
		ds = ds.Where(goqu.C("issue_id").Eq(issueID))
	}
	fines := []Fine{}
	if err := d.selectAll(ctx, "list fines", &fines, ds); err != nil {
		return nil, err
	}
	return fines, nil
}

// Stats returns the dashboard counters. All reads share one transaction so the
// counters describe the same moment.
func (d *Database) Stats(ctx context.Context) (*Stats, error) {
	const op = "stats"
	var s Stats

	err := d.runInTx(ctx, op, func(tx *sqlx.Tx) error {
		books := dialect.From("books").Prepared(true).Select(
			goqu.COUNT("*"),
			goqu.COALESCE(goqu.SUM("total_copies"), 0),
			goqu.COALESCE(goqu.SUM("available_copies"), 0),
		)
		if err := scanRow(ctx, tx, op, books, &s.TotalBooks, &s.TotalCopies, &s.AvailableCopies); err != nil {
			return err
		}
		members := dialect.From("members").Prepared(true).Select(goqu.COUNT("*"))
		if err := scanRow(ctx, tx, op, members, &s.TotalMembers); err != nil {
			return err
		}

		var active []ActiveIssue
		if err := selectInto(ctx, tx, op, &active, activeIssueSelect()); err != nil {
			return err
		}
		now := d.now()
		s.ActiveIssues = len(active)
		for _, iss := range active {
			if IsOverdue(iss.DueAt, now) {
				s.Overdue++
			}
		}
		s.OnTime = s.ActiveIssues - s.Overdue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanRow(ctx context.Context, q sqlx.QueryerContext, op string, ds *goqu.SelectDataset, dest ...any) error {
	query, args, err := ds.ToSQL()
	if err != nil {
		return classify(op, err)
	}
	if err := q.QueryRowxContext(ctx, query, args...).Scan(dest...); err != nil {
		return classify(op, err)
	}
	return nil
}
