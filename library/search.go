package library

import (
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"golang.org/x/text/cases"
)

// fold normalises text for case-insensitive matching. SQLite's LIKE only
// folds ASCII, so both the stored key and the term are folded in Go.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// searchKey joins the searchable fields of a row into one folded column.
// The unit separator keeps a match from spanning two fields.
func searchKey(fields ...string) string {
	folded := make([]string, 0, len(fields))
	for _, f := range fields {
		folded = append(folded, fold(f))
	}
	return strings.Join(folded, "\x1f")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// matchTerm returns the WHERE expression for a substring search, or nil for
// a blank term, which matches every row.
func matchTerm(column, term string) exp.Expression {
	t := fold(term)
	if t == "" {
		return nil
	}
	pattern := "%" + likeEscaper.Replace(t) + "%"
	return goqu.L(column+` LIKE ? ESCAPE '\'`, pattern)
}

// ValidEmail applies the caller-side address check: an "@" followed
// somewhere by a ".". The ledger itself only requires a non-empty, unique
// address.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}
