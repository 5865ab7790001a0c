package index

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunRow represents a row in the runs table.
type RunRow struct {
	ID        string    `json:"id"`
	Canvas    string    `json:"canvas"`
	Archive   string    `json:"archive"`
	Checksum  string    `json:"checksum"`
	Cards     int       `json:"cards"`
	CreatedAt time.Time `json:"created_at"`
}

// CardRow is one archived card.
type CardRow struct {
	NodeID  string
	Section string
	Text    string
}

// SearchResult represents one search hit.
type SearchResult struct {
	RunID   string `json:"run_id"`
	Canvas  string `json:"canvas"`
	Section string `json:"section"`
	Snippet string `json:"snippet"`
}

// RecordRun stores a run and its cards in one transaction and returns the
// run ID, generating one when run.ID is empty.
func (db *DB) RecordRun(run RunRow, cards []CardRow) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO runs (id, canvas, archive, checksum, cards, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Canvas, run.Archive, run.Checksum, len(cards), run.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("index: insert run: %w", err)
	}

	if len(cards) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO cards (run_id, canvas, section, node_id, text) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return "", fmt.Errorf("index: prepare card insert: %w", err)
		}
		defer stmt.Close()
		for _, c := range cards {
			if _, err := stmt.Exec(run.ID, run.Canvas, c.Section, c.NodeID, c.Text); err != nil {
				return "", fmt.Errorf("index: insert card: %w", err)
			}
			if err := ftsInsert(tx, run.ID, run.Canvas, c.Section, c.Text); err != nil {
				return "", err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("index: commit: %w", err)
	}
	return run.ID, nil
}

// ListRuns returns the most recent runs, newest first. An empty canvas
// lists runs for every canvas.
func (db *DB) ListRuns(canvas string, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, canvas, archive, checksum, cards, created_at FROM runs`
	args := []any{}
	if canvas != "" {
		query += ` WHERE canvas = ?`
		args = append(args, canvas)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.ID, &r.Canvas, &r.Archive, &r.Checksum, &r.Cards, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
