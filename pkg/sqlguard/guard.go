// Package sqlguard validates tenant-authored SQL statements before they reach the database.
//
// Validation is purely lexical. It complements, and does not replace, parameter binding:
// user input never becomes part of the statement text.
package sqlguard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind is the statement class an action is allowed to run.
type Kind string

const (
	Query Kind = "query"
	Exec  Kind = "exec"
)

// DefaultLimit is the row bound appended to unbounded queries.
const DefaultLimit = 100

// ErrSecurityViolation is the sentinel every Violation unwraps to.
var ErrSecurityViolation = errors.New("sql security violation")

// Rule names the check a statement tripped.
type Rule string

const (
	RuleEmpty             Rule = "empty_statement"
	RuleMultipleStatement Rule = "multiple_statements"
	RuleStatementKind     Rule = "statement_kind"
	RuleForbiddenKeyword  Rule = "forbidden_keyword"
	RuleUnknownKind       Rule = "unknown_kind"
)

// Violation reports which rule rejected a statement.
type Violation struct {
	Rule   Rule
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrSecurityViolation, v.Rule, v.Detail)
}

func (v *Violation) Unwrap() error { return ErrSecurityViolation }

var allowedPrefixes = map[Kind][]string{
	Query: {"SELECT", "WITH"},
	Exec:  {"INSERT", "UPDATE", "DELETE"},
}

var denylist = []string{
	"DROP ", "CREATE ", "ALTER ", "TRUNCATE ", "GRANT ", "REVOKE ",
	"EXEC ", "EXECUTE ", "CALL ", "LOAD_FILE", "INTO OUTFILE",
}

// Validate checks sql against the rules for kind. The checks run in a fixed order:
// statement count, leading keyword, keyword denylist.
func Validate(sql string, kind Kind) error {
	prefixes, ok := allowedPrefixes[kind]
	if !ok {
		return &Violation{Rule: RuleUnknownKind, Detail: fmt.Sprintf("%q is not query or exec", kind)}
	}

	stmt := strings.TrimSpace(sql)
	if stmt == "" {
		return &Violation{Rule: RuleEmpty, Detail: "statement is empty"}
	}

	body := strings.TrimSuffix(stmt, ";")
	if strings.Contains(body, ";") {
		return &Violation{Rule: RuleMultipleStatement, Detail: "only one statement is allowed"}
	}

	upper := strings.ToUpper(strings.TrimSpace(body))
	if !hasKeywordPrefix(upper, prefixes) {
		return &Violation{
			Rule:   RuleStatementKind,
			Detail: fmt.Sprintf("%s statements must start with %s", kind, strings.Join(prefixes, ", ")),
		}
	}

	for _, kw := range denylist {
		if strings.Contains(upper, kw) {
			return &Violation{Rule: RuleForbiddenKeyword, Detail: fmt.Sprintf("%q is not allowed", strings.TrimSpace(kw))}
		}
	}
	return nil
}

func hasKeywordPrefix(upper string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}

var (
	limitRe = regexp.MustCompile(`(?i)\bLIMIT\b`)
	fromRe  = regexp.MustCompile(`(?i)\b(FROM|JOIN)\b`)
)

// AutoLimit appends "LIMIT DefaultLimit" to a query that reads from a table without
// bounding its result set. A trailing semicolon is dropped.
func AutoLimit(sql string) string {
	stmt := strings.TrimSuffix(strings.TrimSpace(sql), ";")
	if limitRe.MatchString(stmt) || !fromRe.MatchString(stmt) {
		return stmt
	}
	return fmt.Sprintf("%s LIMIT %d", strings.TrimSpace(stmt), DefaultLimit)
}
