package fastmssql

import "strings"

// returnsRows reports whether a SQL batch could produce a result set. It is
// a conservative token-level heuristic, not a parser: SELECT, WITH, EXEC and
// EXECUTE at the start of any ;-separated statement count, as does a
// standalone "select" token anywhere in a statement (subqueries inside
// INSERT ... SELECT and the like).
//
// False positives are harmless: the row path yields an empty result set for
// statements that return none. A row-returning statement this scan misses is
// routed through the affected-count path and its result set is discarded;
// that is an accepted limitation of not parsing SQL.
func returnsRows(sql string) bool {
	cleaned := strings.ToLower(stripSQLComments(sql))

	for _, stmt := range strings.Split(cleaned, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if hasKeywordPrefix(stmt, "select") || hasKeywordPrefix(stmt, "with") ||
			hasKeywordPrefix(stmt, "exec") || hasKeywordPrefix(stmt, "execute") {
			return true
		}
		for _, tok := range strings.Fields(stmt) {
			if tok == "select" {
				return true
			}
		}
	}
	return false
}

// hasKeywordPrefix reports whether s starts with the keyword followed by a
// token boundary, so "selection" does not match "select".
func hasKeywordPrefix(s, keyword string) bool {
	if !strings.HasPrefix(s, keyword) {
		return false
	}
	if len(s) == len(keyword) {
		return true
	}
	c := s[len(keyword)]
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == '*'
}

// stripSQLComments removes -- line comments and /* */ block comments. Block
// comments are replaced with a single space to preserve token boundaries.
func stripSQLComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	for i := 0; i < len(sql); {
		switch {
		case sql[i] == '-' && i+1 < len(sql) && sql[i+1] == '-':
			i += 2
			for i < len(sql) && sql[i] != '\n' && sql[i] != '\r' {
				i++
			}
		case sql[i] == '/' && i+1 < len(sql) && sql[i+1] == '*':
			i += 2
			for i+1 < len(sql) && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			if i+1 < len(sql) {
				i += 2 // closing */
			} else {
				i = len(sql) // unterminated comment runs to the end
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(sql[i])
			i++
		}
	}
	return b.String()
}
