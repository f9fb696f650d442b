// Package storage provides SQLite-based local persistence: the verified
// receipt cache, the submission journal and local best scores.
// Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Store manages the SQLite database connection.
type Store struct {
	db *sql.DB
}

// Receipt is one locally-cached purchase receipt.
type Receipt struct {
	ID            int64
	TransactionID string
	ProductID     string
	State         string // "verified" or "rejected"
	CreatedAt     time.Time
}

// Receipt states.
const (
	ReceiptVerified = "verified"
	ReceiptRejected = "rejected"
)

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS receipts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id TEXT NOT NULL UNIQUE,
			product_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_receipts_product ON receipts(product_id, state);

		CREATE TABLE IF NOT EXISTS session_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL UNIQUE,
			mode TEXT NOT NULL,
			score INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS best_scores (
			mode TEXT PRIMARY KEY,
			score INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveReceipt caches the outcome of a verified or rejected transaction.
// Re-saving the same transaction id keeps the first record.
func (s *Store) SaveReceipt(transactionID, productID, state string) error {
	_, err := s.db.Exec(
		`INSERT INTO receipts (transaction_id, product_id, state) VALUES (?, ?, ?)
		 ON CONFLICT(transaction_id) DO NOTHING`,
		transactionID, productID, state,
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save receipt: %w", err)
	}
	return nil
}

// HasTransaction reports whether a transaction id has been seen before.
func (s *Store) HasTransaction(transactionID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM receipts WHERE transaction_id = ?",
		transactionID,
	).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: cannot query transaction: %w", err)
	}
	return true, nil
}

// HasVerifiedReceipt reports whether any verified receipt exists for a
// product. This is the local half of the ownership check.
func (s *Store) HasVerifiedReceipt(productID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM receipts WHERE product_id = ? AND state = ? LIMIT 1",
		productID, ReceiptVerified,
	).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: cannot query receipts: %w", err)
	}
	return true, nil
}

// ReceiptsByProduct returns all cached receipts for a product, newest first.
func (s *Store) ReceiptsByProduct(productID string) ([]Receipt, error) {
	rows, err := s.db.Query(
		`SELECT id, transaction_id, product_id, state, created_at
		 FROM receipts
		 WHERE product_id = ?
		 ORDER BY id DESC`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query receipts: %w", err)
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		var r Receipt
		var createdAt any
		if err := rows.Scan(&r.ID, &r.TransactionID, &r.ProductID, &r.State, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		r.CreatedAt = parseTimestamp(createdAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return out, nil
}

// JournalSubmission records that a granted session id was consumed by a
// submission attempt. Inserting the same session id twice fails, which is the
// point: the journal is a restart-surviving at-most-once guard.
func (s *Store) JournalSubmission(sessionID, mode string, score int, success bool) error {
	_, err := s.db.Exec(
		"INSERT INTO session_journal (session_id, mode, score, success) VALUES (?, ?, ?, ?)",
		sessionID, mode, score, boolToInt(success),
	)
	if err != nil {
		return fmt.Errorf("storage: cannot journal submission: %w", err)
	}
	return nil
}

// SessionSubmitted reports whether a session id already went through
// submission.
func (s *Store) SessionSubmitted(sessionID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM session_journal WHERE session_id = ?",
		sessionID,
	).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: cannot query journal: %w", err)
	}
	return true, nil
}

// SaveBestScore keeps the maximum score seen for a mode.
func (s *Store) SaveBestScore(mode string, score int) error {
	_, err := s.db.Exec(
		`INSERT INTO best_scores (mode, score, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(mode) DO UPDATE SET
			score = MAX(score, excluded.score),
			updated_at = CURRENT_TIMESTAMP`,
		mode, score,
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save best score: %w", err)
	}
	return nil
}

// BestScore returns the locally-known best score for a mode, 0 if none.
func (s *Store) BestScore(mode string) (int, error) {
	var score sql.NullInt64
	err := s.db.QueryRow(
		"SELECT score FROM best_scores WHERE mode = ?",
		mode,
	).Scan(&score)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: cannot query best score: %w", err)
	}
	if !score.Valid {
		return 0, nil
	}
	return int(score.Int64), nil
}

// parseTimestamp handles both time.Time and string datetimes from the driver.
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
