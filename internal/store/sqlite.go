package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates the
// schema to the latest version.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	// Sessions are transactions; one connection keeps them serialised.
	db.SetMaxOpenConns(1)
	return &SQLite{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// Not closing m: that would close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.WithField("component", "store").Debugf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Open starts a transaction scoped to namespace.
func (s *SQLite) Open(namespace string, readOnly bool) (Session, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin %s session: %w", namespace, err)
	}
	return &sqliteSession{tx: tx, namespace: namespace, readOnly: readOnly}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteSession struct {
	tx        *sql.Tx
	namespace string
	readOnly  bool
	closed    bool
}

func (s *sqliteSession) get(key string) (string, bool) {
	if s.closed {
		return "", false
	}
	var v string
	err := s.tx.QueryRow(`SELECT value FROM kv WHERE namespace = ? AND key = ?`, s.namespace, key).Scan(&v)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.WithFields(log.Fields{"component": "store", "namespace": s.namespace, "key": key}).
				Warnf("read failed: %v", err)
		}
		return "", false
	}
	return v, true
}

func (s *sqliteSession) GetString(key, def string) string {
	if v, ok := s.get(key); ok {
		return v
	}
	return def
}

func (s *sqliteSession) GetInt(key string, def int) int {
	v, ok := s.get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *sqliteSession) PutString(key, value string) error {
	if err := s.writable(); err != nil {
		return err
	}
	_, err := s.tx.Exec(`
		INSERT INTO kv (namespace, key, value) VALUES (?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		s.namespace, key, value)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.namespace, key, err)
	}
	return nil
}

func (s *sqliteSession) PutInt(key string, value int) error {
	return s.PutString(key, strconv.Itoa(value))
}

func (s *sqliteSession) Clear() error {
	if err := s.writable(); err != nil {
		return err
	}
	if _, err := s.tx.Exec(`DELETE FROM kv WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("clear %s: %w", s.namespace, err)
	}
	return nil
}

// Close commits read-write sessions and rolls back read-only ones.
func (s *sqliteSession) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if s.readOnly {
		return s.tx.Rollback()
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit %s session: %w", s.namespace, err)
	}
	return nil
}

// Abort rolls the session back.
func (s *sqliteSession) Abort() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if err := s.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback %s session: %w", s.namespace, err)
	}
	return nil
}

func (s *sqliteSession) writable() error {
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}
