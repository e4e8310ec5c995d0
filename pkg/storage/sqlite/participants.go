package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
)

const participantColumns = `id, project_id, name, total_samples, online, registered_at, last_seen`

type ParticipantRepository struct {
	db *Database
}

func NewParticipantRepository(db *Database) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

type dbParticipant struct {
	ID           string       `db:"id"`
	ProjectID    string       `db:"project_id"`
	Name         string       `db:"name"`
	TotalSamples uint64       `db:"total_samples"`
	Online       bool         `db:"online"`
	RegisteredAt sql.NullTime `db:"registered_at"`
	LastSeen     sql.NullTime `db:"last_seen"`
}

func (r *ParticipantRepository) Create(ctx context.Context, p fl.Participant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO participants (`+participantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectID, p.Name, p.TotalSamples, p.Online, p.RegisteredAt, nullTime(p.LastSeen),
	)
	if err != nil {
		return createError(err)
	}

	return nil
}

func (r *ParticipantRepository) Get(ctx context.Context, id string) (fl.Participant, error) {
	var dbp dbParticipant
	if err := r.db.GetContext(ctx, &dbp, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Participant{}, pkgerrors.NotFound("participant", id)
		}

		return fl.Participant{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toParticipant(dbp), nil
}

func (r *ParticipantRepository) Update(ctx context.Context, p fl.Participant) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE participants SET project_id = ?, name = ?, total_samples = ?, online = ?, last_seen = ? WHERE id = ?`,
		p.ProjectID, p.Name, p.TotalSamples, p.Online, nullTime(p.LastSeen), p.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	return checkAffected(res)
}

func (r *ParticipantRepository) ListByProject(ctx context.Context, projectID string) ([]fl.Participant, error) {
	var (
		rows []dbParticipant
		err  error
	)
	if projectID == "" {
		err = r.db.SelectContext(ctx, &rows, `SELECT `+participantColumns+` FROM participants ORDER BY id`)
	} else {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT `+participantColumns+` FROM participants WHERE project_id = ? ORDER BY id`, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	participants := make([]fl.Participant, 0, len(rows))
	for _, row := range rows {
		participants = append(participants, toParticipant(row))
	}

	return participants, nil
}

func toParticipant(dbp dbParticipant) fl.Participant {
	p := fl.Participant{
		ID:           dbp.ID,
		ProjectID:    dbp.ProjectID,
		Name:         dbp.Name,
		TotalSamples: dbp.TotalSamples,
		Online:       dbp.Online,
	}
	if dbp.RegisteredAt.Valid {
		p.RegisteredAt = dbp.RegisteredAt.Time
	}
	if dbp.LastSeen.Valid {
		p.LastSeen = dbp.LastSeen.Time
	}

	return p
}
