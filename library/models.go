package library

import (
	"database/sql"
	"time"
)

// Member statuses.
const (
	MemberActive   = "Active"
	MemberInactive = "Inactive"
)

// Issue statuses.
const (
	IssueIssued   = "Issued"
	IssueReturned = "Returned"
)

// FinePaid is the only status a recorded fine currently takes.
const FinePaid = "Paid"

// Book represents a catalog title and its copy accounting.
// AvailableCopies is only ever changed by the loan operations.
type Book struct {
	ID              int64     `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Author          string    `db:"author" json:"author"`
	Publisher       string    `db:"publisher" json:"publisher,omitempty"`
	ISBN            string    `db:"isbn" json:"isbn,omitempty"`
	TotalCopies     int       `db:"total_copies" json:"total_copies"`
	AvailableCopies int       `db:"available_copies" json:"available_copies"`
	AddedAt         time.Time `db:"added_at" json:"added_at"`
}

// OnLoan is the number of copies currently issued.
func (b Book) OnLoan() int { return b.TotalCopies - b.AvailableCopies }

// NewBook carries the fields needed to catalog a title.
type NewBook struct {
	Title     string
	Author    string
	Publisher string
	ISBN      string
	Copies    int
}

// Member represents a registered library member.
type Member struct {
	ID       int64     `db:"id" json:"id"`
	Name     string    `db:"name" json:"name"`
	Email    string    `db:"email" json:"email"`
	Phone    string    `db:"phone" json:"phone,omitempty"`
	Address  string    `db:"address" json:"address,omitempty"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
	Status   string    `db:"status" json:"status"`
}

// NewMember carries the fields needed to register a member.
type NewMember struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// Issue is one loan of one copy to one member.
type Issue struct {
	ID         int64         `db:"id" json:"id"`
	Ref        string        `db:"ref" json:"ref"`
	BookID     int64         `db:"book_id" json:"book_id"`
	MemberID   sql.NullInt64 `db:"member_id" json:"-"`
	IssuedAt   time.Time     `db:"issued_at" json:"issued_at"`
	DueAt      time.Time     `db:"due_at" json:"due_at"`
	ReturnedAt sql.NullTime  `db:"returned_at" json:"-"`
	Status     string        `db:"status" json:"status"`
}

// Fine is a recorded overdue charge. Amounts are in minor currency units.
type Fine struct {
	ID      int64     `db:"id" json:"id"`
	IssueID int64     `db:"issue_id" json:"issue_id"`
	Amount  int64     `db:"amount" json:"amount"`
	PaidAt  time.Time `db:"paid_at" json:"paid_at"`
	Status  string    `db:"status" json:"status"`
}

// ReturnOutcome describes a completed return. FineID is zero when no fine
// was recorded.
type ReturnOutcome struct {
	IssueID     int64
	BookID      int64
	MemberID    int64
	DueAt       time.Time
	ReturnedAt  time.Time
	OverdueDays int
	FineAmount  int64
	FineID      int64
}

// ActiveIssue is a row of the active loans view.
type ActiveIssue struct {
	IssueID    int64     `db:"issue_id" json:"issue_id"`
	Ref        string    `db:"ref" json:"ref"`
	BookTitle  string    `db:"book_title" json:"book_title"`
	MemberName string    `db:"member_name" json:"member_name"`
	IssuedAt   time.Time `db:"issued_at" json:"issued_at"`
	DueAt      time.Time `db:"due_at" json:"due_at"`
	Status     string    `db:"status" json:"status"`
	Overdue    bool      `db:"-" json:"overdue"`
}

// MemberIssue is a row of a single member's open loans.
type MemberIssue struct {
	IssueID   int64     `db:"issue_id" json:"issue_id"`
	BookTitle string    `db:"book_title" json:"book_title"`
	IssuedAt  time.Time `db:"issued_at" json:"issued_at"`
	DueAt     time.Time `db:"due_at" json:"due_at"`
	Overdue   bool      `db:"-" json:"overdue"`
}

// Stats are the dashboard counters.
type Stats struct {
	TotalBooks      int `json:"total_books"`
	TotalCopies     int `json:"total_copies"`
	AvailableCopies int `json:"available_copies"`
	TotalMembers    int `json:"total_members"`
	ActiveIssues    int `json:"active_issues"`
	Overdue         int `json:"overdue"`
	OnTime          int `json:"on_time"`
}
