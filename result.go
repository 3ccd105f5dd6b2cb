package fastmssql

// Result is the outcome of one Execute call: either a materialized result
// set or the number of rows the batch affected, never both.
type Result struct {
	rows     *Rows
	affected uint64
	hasRows  bool
}

func rowsResult(rows *Rows) *Result {
	return &Result{rows: rows, hasRows: true}
}

func affectedResult(count uint64) *Result {
	return &Result{affected: count}
}

// HasRows reports whether the statement was routed through the row-returning
// path. It is true even for an empty result set.
func (r *Result) HasRows() bool { return r.hasRows }

// Rows returns the materialized result set, or nil when the statement only
// reported an affected count.
func (r *Result) Rows() *Rows {
	if !r.hasRows {
		return nil
	}
	return r.rows
}

// HasAffectedCount reports whether the statement was routed through the
// affected-count path.
func (r *Result) HasAffectedCount() bool { return !r.hasRows }

// AffectedCount returns the total number of rows affected across every
// statement of the batch. Zero when the result carries rows instead.
func (r *Result) AffectedCount() uint64 { return r.affected }
