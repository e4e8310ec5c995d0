package storage

import (
	"context"
	"fmt"
	"sort"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
)

const scanPageSize = 1024

// scan walks the values under prefix and keeps the ones match accepts.
func scan[T any](ctx context.Context, s Storage, prefix string, match func(T) bool) ([]T, error) {
	var (
		offset uint64
		out    []T
	)
	for {
		data, total, err := s.List(ctx, prefix, offset, scanPageSize)
		if err != nil {
			return nil, err
		}
		for _, d := range data {
			v, ok := d.(T)
			if !ok {
				return nil, pkgerrors.ErrMalformedEntity
			}
			if match(v) {
				out = append(out, v)
			}
		}
		offset += uint64(len(data))
		if len(data) == 0 || offset >= total {
			break
		}
	}

	return out, nil
}

func get[T any](ctx context.Context, s Storage, key string) (T, error) {
	var zero T
	data, err := s.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	v, ok := data.(T)
	if !ok {
		return zero, pkgerrors.ErrMalformedEntity
	}

	return v, nil
}

type memoryProjectRepo struct {
	storage Storage
}

func newMemoryProjectRepository(s Storage) ProjectRepository {
	return &memoryProjectRepo{storage: s}
}

func (r *memoryProjectRepo) Create(ctx context.Context, p fl.Project) error {
	return r.storage.Create(ctx, p.ID, p)
}

func (r *memoryProjectRepo) Get(ctx context.Context, id string) (fl.Project, error) {
	return get[fl.Project](ctx, r.storage, id)
}

func (r *memoryProjectRepo) Update(ctx context.Context, p fl.Project) error {
	return r.storage.Update(ctx, p.ID, p)
}

func (r *memoryProjectRepo) List(ctx context.Context, offset, limit uint64) ([]fl.Project, uint64, error) {
	data, total, err := r.storage.List(ctx, "", offset, limit)
	if err != nil {
		return nil, 0, err
	}
	projects := make([]fl.Project, len(data))
	for i, d := range data {
		p, ok := d.(fl.Project)
		if !ok {
			return nil, 0, pkgerrors.ErrMalformedEntity
		}
		projects[i] = p
	}

	return projects, total, nil
}

type memorySessionRepo struct {
	storage Storage
}

func newMemorySessionRepository(s Storage) SessionRepository {
	return &memorySessionRepo{storage: s}
}

func (r *memorySessionRepo) Create(ctx context.Context, s fl.Session) error {
	return r.storage.Create(ctx, s.ID, s)
}

func (r *memorySessionRepo) Get(ctx context.Context, id string) (fl.Session, error) {
	return get[fl.Session](ctx, r.storage, id)
}

func (r *memorySessionRepo) Update(ctx context.Context, s fl.Session) error {
	return r.storage.Update(ctx, s.ID, s)
}

func (r *memorySessionRepo) ListByProject(ctx context.Context, projectID string) ([]fl.Session, error) {
	sessions, err := scan(ctx, r.storage, "", func(s fl.Session) bool {
		return projectID == "" || s.ProjectID == projectID
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	return sessions, nil
}

type memoryRoundRepo struct {
	storage Storage
}

func newMemoryRoundRepository(s Storage) RoundRepository {
	return &memoryRoundRepo{storage: s}
}

func roundKey(sessionID string, round uint64) string {
	return fmt.Sprintf("%s/%020d", sessionID, round)
}

func (r *memoryRoundRepo) Create(ctx context.Context, res fl.RoundResult) error {
	if res.SessionID == "" {
		return pkgerrors.ErrEmptyKey
	}
	res.Params = res.Params.Clone()

	return r.storage.Create(ctx, roundKey(res.SessionID, res.Round), res)
}

func (r *memoryRoundRepo) ListBySession(ctx context.Context, sessionID string) ([]fl.RoundResult, error) {
	// Zero-padded round numbers keep key order equal to round order.
	return scan(ctx, r.storage, sessionID+"/", func(fl.RoundResult) bool { return true })
}

type memoryParticipantRepo struct {
	storage Storage
}

func newMemoryParticipantRepository(s Storage) ParticipantRepository {
	return &memoryParticipantRepo{storage: s}
}

func (r *memoryParticipantRepo) Create(ctx context.Context, p fl.Participant) error {
	return r.storage.Create(ctx, p.ID, p)
}

func (r *memoryParticipantRepo) Get(ctx context.Context, id string) (fl.Participant, error) {
	return get[fl.Participant](ctx, r.storage, id)
}

func (r *memoryParticipantRepo) Update(ctx context.Context, p fl.Participant) error {
	return r.storage.Update(ctx, p.ID, p)
}

func (r *memoryParticipantRepo) ListByProject(ctx context.Context, projectID string) ([]fl.Participant, error) {
	return scan(ctx, r.storage, "", func(p fl.Participant) bool {
		return projectID == "" || p.ProjectID == projectID
	})
}
