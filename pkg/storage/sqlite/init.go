package sqlite

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrCreate       = errors.New("create error")
	ErrUpdate       = errors.New("update error")
	ErrMarshal      = errors.New("marshal error")
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}

	if err := database.Migrate(); err != nil {
		db.Close()

		return nil, err
	}

	return database, nil
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_tables",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS projects (
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL,
						rounds INTEGER NOT NULL,
						local_epochs INTEGER NOT NULL DEFAULT 0,
						batch_size INTEGER NOT NULL DEFAULT 0,
						min_participants INTEGER NOT NULL,
						shape TEXT,
						created_at TIMESTAMP NOT NULL
					)`,
					`CREATE TABLE IF NOT EXISTS sessions (
						id TEXT PRIMARY KEY,
						project_id TEXT NOT NULL,
						round INTEGER NOT NULL DEFAULT 0,
						total_rounds INTEGER NOT NULL,
						status INTEGER NOT NULL DEFAULT 0,
						strategy TEXT,
						voting_phase TEXT,
						reason TEXT,
						created_at TIMESTAMP NOT NULL,
						started_at TIMESTAMP,
						completed_at TIMESTAMP,
						updated_at TIMESTAMP NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_sessions_project_id ON sessions(project_id, created_at)`,
					`CREATE TABLE IF NOT EXISTS round_results (
						session_id TEXT NOT NULL,
						round INTEGER NOT NULL,
						project_id TEXT NOT NULL,
						params BLOB,
						num_participants INTEGER NOT NULL,
						num_samples INTEGER NOT NULL,
						accuracy REAL NOT NULL,
						loss REAL NOT NULL,
						participants TEXT,
						timestamp TIMESTAMP NOT NULL,
						PRIMARY KEY (session_id, round),
						FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
					)`,
					`CREATE TABLE IF NOT EXISTS participants (
						id TEXT PRIMARY KEY,
						project_id TEXT NOT NULL,
						name TEXT NOT NULL,
						total_samples INTEGER NOT NULL DEFAULT 0,
						online INTEGER NOT NULL DEFAULT 0,
						registered_at TIMESTAMP NOT NULL,
						last_seen TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_participants_project_id ON participants(project_id)`,
				},
				Down: []string{
					`DROP INDEX IF EXISTS idx_participants_project_id`,
					`DROP TABLE IF EXISTS participants`,
					`DROP TABLE IF EXISTS round_results`,
					`DROP INDEX IF EXISTS idx_sessions_project_id`,
					`DROP TABLE IF EXISTS sessions`,
					`DROP TABLE IF EXISTS projects`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("database migration error: %w", err)
	}

	return nil
}

// createError maps constraint violations to ErrEntityExists.
func createError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
		return pkgerrors.ErrEntityExists
	}

	return fmt.Errorf("%w: %w", ErrCreate, err)
}

func jsonBytes(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, v)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}
