package storage

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// DescriptorStore persists style descriptors keyed by the hash of the
// normalized reference image. Descriptors are plain model text, nothing
// sensitive, so rows are stored unencrypted.
type DescriptorStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDescriptorStore opens (or creates) the SQLite database at dbPath.
func NewDescriptorStore(dbPath string) (*DescriptorStore, error) {
	// WAL mode and a busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &DescriptorStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *DescriptorStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS descriptor_cache (
		image_hash TEXT PRIMARY KEY,
		descriptor TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create descriptor_cache table: %w", err)
	}
	return nil
}

// GetDescriptor retrieves a cached descriptor by image hash.
func (s *DescriptorStore) GetDescriptor(imageHash string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var descriptor string
	err := s.db.QueryRow(
		"SELECT descriptor FROM descriptor_cache WHERE image_hash = ?",
		imageHash,
	).Scan(&descriptor)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query descriptor cache: %w", err)
	}
	return descriptor, true, nil
}

// SetDescriptor stores or replaces a descriptor for an image hash.
func (s *DescriptorStore) SetDescriptor(imageHash, descriptor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO descriptor_cache (image_hash, descriptor)
		VALUES (?, ?)
		ON CONFLICT(image_hash) DO UPDATE SET
			descriptor = excluded.descriptor,
			created_at = CURRENT_TIMESTAMP
	`, imageHash, descriptor)

	if err != nil {
		return fmt.Errorf("failed to cache descriptor: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *DescriptorStore) Close() error {
	return s.db.Close()
}
