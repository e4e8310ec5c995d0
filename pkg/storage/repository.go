package storage

import (
	"context"

	"github.com/absmach/flcoord/pkg/fl"
)

type ProjectRepository interface {
	Create(ctx context.Context, p fl.Project) error
	Get(ctx context.Context, id string) (fl.Project, error)
	Update(ctx context.Context, p fl.Project) error
	List(ctx context.Context, offset, limit uint64) ([]fl.Project, uint64, error)
}

type SessionRepository interface {
	Create(ctx context.Context, s fl.Session) error
	Get(ctx context.Context, id string) (fl.Session, error)
	Update(ctx context.Context, s fl.Session) error
	ListByProject(ctx context.Context, projectID string) ([]fl.Session, error)
}

// RoundRepository is append-only: one result per (session, round).
type RoundRepository interface {
	Create(ctx context.Context, r fl.RoundResult) error
	ListBySession(ctx context.Context, sessionID string) ([]fl.RoundResult, error)
}

type ParticipantRepository interface {
	Create(ctx context.Context, p fl.Participant) error
	Get(ctx context.Context, id string) (fl.Participant, error)
	Update(ctx context.Context, p fl.Participant) error
	ListByProject(ctx context.Context, projectID string) ([]fl.Participant, error)
}
