// Package sqlite persists the server directory in a local SQLite
// database so authenticated servers survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/jellysync/jellysync/internal/serverdir"
)

type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the directory database in dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "servers.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS servers (
			public_address TEXT PRIMARY KEY,
			server_id      TEXT NOT NULL,
			access_token   TEXT NOT NULL,
			user_id        TEXT NOT NULL,
			user_name      TEXT NOT NULL,
			added_at       DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create servers table: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Add(ctx context.Context, creds serverdir.ServerCredentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (public_address, server_id, access_token, user_id, user_name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (public_address) DO UPDATE SET
			server_id = excluded.server_id,
			access_token = excluded.access_token,
			user_id = excluded.user_id,
			user_name = excluded.user_name
	`, serverdir.NormalizeAddress(creds.PublicAddress), creds.ServerID, creds.AccessToken, creds.UserID, creds.UserName)
	if err != nil {
		return fmt.Errorf("add server: %w", err)
	}
	return nil
}

func (s *Store) GetByAddress(ctx context.Context, address string) (serverdir.ServerCredentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var creds serverdir.ServerCredentials
	err := s.db.QueryRowContext(ctx, `
		SELECT public_address, server_id, access_token, user_id, user_name
		FROM servers WHERE public_address = ?
	`, serverdir.NormalizeAddress(address)).
		Scan(&creds.PublicAddress, &creds.ServerID, &creds.AccessToken, &creds.UserID, &creds.UserName)
	if errors.Is(err, sql.ErrNoRows) {
		return serverdir.ServerCredentials{}, serverdir.ErrNotFound
	}
	if err != nil {
		return serverdir.ServerCredentials{}, fmt.Errorf("get server: %w", err)
	}
	return creds, nil
}

func (s *Store) IndexByAddress(ctx context.Context, address string) (int, error) {
	servers, err := s.List(ctx)
	if err != nil {
		return -1, err
	}
	address = serverdir.NormalizeAddress(address)
	for i, server := range servers {
		if server.PublicAddress == address {
			return i, nil
		}
	}
	return -1, serverdir.ErrNotFound
}

func (s *Store) RemoveByAddress(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE public_address = ?`,
		serverdir.NormalizeAddress(address))
	if err != nil {
		return fmt.Errorf("remove server: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return serverdir.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]serverdir.ServerCredentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT public_address, server_id, access_token, user_id, user_name
		FROM servers ORDER BY added_at, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	var servers []serverdir.ServerCredentials
	for rows.Next() {
		var creds serverdir.ServerCredentials
		if err := rows.Scan(&creds.PublicAddress, &creds.ServerID, &creds.AccessToken, &creds.UserID, &creds.UserName); err != nil {
			return nil, err
		}
		servers = append(servers, creds)
	}
	return servers, rows.Err()
}
