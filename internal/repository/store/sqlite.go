package store

import (
	"database/sql"
	"embed"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/tidecharts/tilecache/pkg/logger"
)

//go:embed migrations
var migrations embed.FS

type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSQLiteStore(path string, l logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		logger: l,
	}

	err = s.runMigrations()
	if err != nil {
		return nil, err
	}

	l.Info("sqlite tile store initialized", "path", path)

	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	goose.SetBaseFS(migrations)

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	err = goose.Up(s.db, "migrations")
	if err != nil {
		return err
	}

	return nil
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) Get(key string) ([]byte, bool, error) {
	query := `SELECT data
	FROM tiles
	WHERE key = ?`

	var data []byte
	err := s.db.QueryRow(query, key).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		s.logger.Error("sqlite store get failed", "key", key, "error", err)
		return nil, false, err
	}

	return data, true, nil
}

func (s *SQLiteStore) Set(key string, data []byte, access time.Time) error {
	query := `INSERT INTO tiles (key, data, size, last_access)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET data = excluded.data, size = excluded.size, last_access = excluded.last_access`

	_, err := s.db.Exec(query, key, data, int64(len(data)), access.UnixNano())
	if err != nil {
		s.logger.Error("sqlite store set failed", "key", key, "error", err)
		return err
	}

	return nil
}

func (s *SQLiteStore) Touch(key string, access time.Time) error {
	_, err := s.db.Exec(`UPDATE tiles SET last_access = ? WHERE key = ?`, access.UnixNano(), key)
	if err != nil {
		s.logger.Error("sqlite store touch failed", "key", key, "error", err)
	}
	return err
}

func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM tiles WHERE key = ?`, key)
	if err != nil {
		s.logger.Error("sqlite store delete failed", "key", key, "error", err)
	}
	return err
}

func (s *SQLiteStore) Entries() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT key, size, last_access FROM tiles ORDER BY last_access ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var access int64
		if err := rows.Scan(&e.Key, &e.Size, &access); err != nil {
			return nil, err
		}
		e.LastAccess = time.Unix(0, access)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM tiles`)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
