package database

import (
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if db.Dialect != SQLite {
		t.Errorf("Dialect = %s, want sqlite", db.Dialect)
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT id FROM posts WHERE author_id = ? AND title = ?"

	sqlite := &DB{Dialect: SQLite}
	if got := sqlite.Rebind(q); got != q {
		t.Errorf("sqlite Rebind changed query: %q", got)
	}

	pg := &DB{Dialect: Postgres}
	want := "SELECT id FROM posts WHERE author_id = $1 AND title = $2"
	if got := pg.Rebind(q); got != want {
		t.Errorf("postgres Rebind = %q, want %q", got, want)
	}
}

func TestForeignKeysCascade(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	res, err := db.Exec(`INSERT INTO users (username, mobile, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		"alice", "555-0100", "x", now)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	userID, _ := res.LastInsertId()

	if _, err := db.Exec(`INSERT INTO posts (title, content, author_id, created_at) VALUES (?, ?, ?, ?)`,
		"hello", "world", userID, now); err != nil {
		t.Fatalf("insert post: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO posts (title, content, author_id, created_at) VALUES (?, ?, ?, ?)`,
		"orphan", "nobody", userID+100, now); err == nil {
		t.Fatal("expected foreign key violation for unknown author")
	}

	if _, err := db.Exec(`DELETE FROM users WHERE id = ?`, userID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM posts`).Scan(&count); err != nil {
		t.Fatalf("count posts: %v", err)
	}
	if count != 0 {
		t.Errorf("posts after cascade = %d, want 0", count)
	}
}
