package persistence

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openBatchWriterTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE rows_written (id INTEGER PRIMARY KEY, val TEXT NOT NULL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func TestWriteQueryAutoFlushesAtMaxSize(t *testing.T) {
	db := openBatchWriterTestDB(t)
	bw := NewBatchWriter(db, 3, time.Hour)
	defer bw.Close()

	bw.WriteQuery(`INSERT INTO rows_written (val) VALUES (?)`, "a")
	bw.WriteQuery(`INSERT INTO rows_written (val) VALUES (?)`, "b")
	if bw.Pending() != 2 {
		t.Fatalf("expected 2 buffered ops before hitting maxSize, got %d", bw.Pending())
	}

	bw.WriteQuery(`INSERT INTO rows_written (val) VALUES (?)`, "c")
	if bw.Pending() != 0 {
		t.Fatalf("expected buffer flushed once maxSize reached, got %d pending", bw.Pending())
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rows_written`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows written, got %d", count)
	}
}

func TestBackgroundFlushRunsOnInterval(t *testing.T) {
	db := openBatchWriterTestDB(t)
	bw := NewBatchWriter(db, 100, 10*time.Millisecond)
	defer bw.Close()

	bw.WriteQuery(`INSERT INTO rows_written (val) VALUES (?)`, "x")

	deadline := time.Now().Add(time.Second)
	for bw.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if bw.Pending() != 0 {
		t.Fatal("expected background flush to drain the buffer within the deadline")
	}
}

func TestCloseFlushesRemainingBuffer(t *testing.T) {
	db := openBatchWriterTestDB(t)
	bw := NewBatchWriter(db, 100, time.Hour)

	bw.WriteQuery(`INSERT INTO rows_written (val) VALUES (?)`, "final")
	if err := bw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rows_written`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the buffered op flushed on close, got %d rows", count)
	}
}

func TestFlushRollsBackWholeBatchOnQueryError(t *testing.T) {
	db := openBatchWriterTestDB(t)
	bw := NewBatchWriter(db, 100, time.Hour)
	defer bw.Close()

	bw.WriteQuery(`INSERT INTO rows_written (val) VALUES (?)`, "good")
	bw.WriteQuery(`INSERT INTO nonexistent_table (val) VALUES (?)`, "bad")

	if err := bw.Flush(); err == nil {
		t.Fatal("expected flush to return an error for the bad statement")
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rows_written`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected the whole batch rolled back, got %d rows", count)
	}
}
