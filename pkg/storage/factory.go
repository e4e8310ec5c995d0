package storage

import (
	"fmt"
	"io"

	"github.com/absmach/flcoord/pkg/storage/sqlite"
)

type Config struct {
	Type       string `env:"FLCOORD_STORAGE_TYPE" envDefault:"memory"`
	SQLitePath string `env:"FLCOORD_SQLITE_PATH"  envDefault:"./flcoord.db"`
}

type Repositories struct {
	Projects     ProjectRepository
	Sessions     SessionRepository
	Rounds       RoundRepository
	Participants ParticipantRepository
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory backend.
	Closer io.Closer
}

func NewRepositories(cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case "sqlite":
		return newSQLiteRepositories(cfg)
	case "memory":
		return NewMemoryRepositories(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func newSQLiteRepositories(cfg Config) (*Repositories, error) {
	db, err := sqlite.NewDatabase(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Projects:     sqlite.NewProjectRepository(db),
		Sessions:     sqlite.NewSessionRepository(db),
		Rounds:       sqlite.NewRoundRepository(db),
		Participants: sqlite.NewParticipantRepository(db),
		Closer:       db,
	}, nil
}

func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Projects:     newMemoryProjectRepository(NewInMemoryStorage()),
		Sessions:     newMemorySessionRepository(NewInMemoryStorage()),
		Rounds:       newMemoryRoundRepository(NewInMemoryStorage()),
		Participants: newMemoryParticipantRepository(NewInMemoryStorage()),
	}
}
