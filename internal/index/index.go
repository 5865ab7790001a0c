package index

// RunIndex is what the archive service needs from the index.
// The service depends on this interface so a nil-able or fake index can be
// swapped in for tests and one-shot CLI runs.
type RunIndex interface {
	RecordRun(run RunRow, cards []CardRow) (string, error)
	ListRuns(canvas string, limit int) ([]RunRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies RunIndex at compile time.
var _ RunIndex = (*DB)(nil)
