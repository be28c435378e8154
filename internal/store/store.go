package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible
	// to the requesting teacher.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when registering an email twice.
	ErrDuplicateEmail = errors.New("email already registered")
)

type Store struct {
	db     *sql.DB
	driver Driver
}

// New opens a SQLite database at dbPath. ":memory:" gives a private
// in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

// Open connects to the given backend and ensures the schema exists.
func Open(driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = "rollcall.db"
		}
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/rollcall?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// A single connection keeps ":memory:" databases shared and
		// serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Store) exec(query string, args ...any) (sql.Result, error) {
	return s.db.Exec(s.rebind(query), args...)
}

func (s *Store) query(query string, args ...any) (*sql.Rows, error) {
	return s.db.Query(s.rebind(query), args...)
}

func (s *Store) queryRow(query string, args ...any) *sql.Row {
	return s.db.QueryRow(s.rebind(query), args...)
}

// now returns the current time at the precision both backends keep.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (s *Store) migrate() error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS teachers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS auth_sessions (
	id TEXT PRIMARY KEY,
	teacher_id TEXT NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS classes (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	teacher_id TEXT NOT NULL REFERENCES teachers(id),
	created_at DATETIME NOT NULL,
	cycle_started_at DATETIME
);

CREATE TABLE IF NOT EXISTS students (
	id TEXT PRIMARY KEY,
	class_id TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
	student_number TEXT NOT NULL,
	name TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_students_class ON students(class_id, created_at);

CREATE TABLE IF NOT EXISTS assessments (
	id TEXT PRIMARY KEY,
	student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	class_id TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
	teacher_id TEXT NOT NULL,
	score INTEGER NOT NULL CHECK (score IN (0, 1)),
	date DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_class ON assessments(class_id, date);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS teachers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS auth_sessions (
	id TEXT PRIMARY KEY,
	teacher_id TEXT NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS classes (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	teacher_id TEXT NOT NULL REFERENCES teachers(id),
	created_at TIMESTAMPTZ NOT NULL,
	cycle_started_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS students (
	id TEXT PRIMARY KEY,
	class_id TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
	student_number TEXT NOT NULL,
	name TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_students_class ON students(class_id, created_at);

CREATE TABLE IF NOT EXISTS assessments (
	id TEXT PRIMARY KEY,
	student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	class_id TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
	teacher_id TEXT NOT NULL,
	score INTEGER NOT NULL CHECK (score IN (0, 1)),
	date TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_class ON assessments(class_id, date);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
