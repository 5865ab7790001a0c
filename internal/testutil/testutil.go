// Package testutil provides shared test helpers for setting up vaults and databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/canvasarchive/internal/index"
	"github.com/starford/canvasarchive/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "canvasarchive-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage provider.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// WriteFile writes content into the vault or fails the test.
func WriteFile(t *testing.T, store storage.Provider, path, content string) {
	t.Helper()
	if err := store.Write(path, []byte(content)); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// BacklogCanvas is a canvas with one "Backlog" group, a card inside it, a card
// outside every group, an unselected card and an edge.
const BacklogCanvas = `{
	"nodes":[
		{"id":"g1","type":"group","x":0,"y":0,"width":100,"height":100,"label":"Backlog"},
		{"id":"c1","type":"text","x":10,"y":10,"width":5,"height":5,"color":"4","text":"first card\nwith two lines"},
		{"id":"c2","type":"text","x":200,"y":200,"width":5,"height":5,"color":"4","text":"stray card"},
		{"id":"k1","type":"text","x":20,"y":20,"width":5,"height":5,"color":"1","text":"keep me"}
	],
	"edges":[{"id":"e1","fromNode":"g1","toNode":"k1"}]
}`
