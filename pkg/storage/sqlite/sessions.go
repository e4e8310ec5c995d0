package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
)

const sessionColumns = `id, project_id, round, total_rounds, status, strategy, voting_phase, reason, created_at, started_at, completed_at, updated_at`

type SessionRepository struct {
	db *Database
}

func NewSessionRepository(db *Database) *SessionRepository {
	return &SessionRepository{db: db}
}

type dbSession struct {
	ID          string         `db:"id"`
	ProjectID   string         `db:"project_id"`
	Round       uint64         `db:"round"`
	TotalRounds uint64         `db:"total_rounds"`
	Status      uint8          `db:"status"`
	Strategy    sql.NullString `db:"strategy"`
	VotingPhase sql.NullString `db:"voting_phase"`
	Reason      sql.NullString `db:"reason"`
	CreatedAt   sql.NullTime   `db:"created_at"`
	StartedAt   sql.NullTime   `db:"started_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
	UpdatedAt   sql.NullTime   `db:"updated_at"`
}

func (r *SessionRepository) Create(ctx context.Context, s fl.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ProjectID, s.Round, s.TotalRounds, uint8(s.Status), string(s.Strategy), s.VotingPhase, s.Reason,
		s.CreatedAt, nullTime(s.StartedAt), nullTime(s.CompletedAt), s.UpdatedAt,
	)
	if err != nil {
		return createError(err)
	}

	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (fl.Session, error) {
	var dbs dbSession
	if err := r.db.GetContext(ctx, &dbs, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Session{}, pkgerrors.NotFound("session", id)
		}

		return fl.Session{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toSession(dbs), nil
}

func (r *SessionRepository) Update(ctx context.Context, s fl.Session) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET round = ?, total_rounds = ?, status = ?, strategy = ?, voting_phase = ?, reason = ?,
			started_at = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		s.Round, s.TotalRounds, uint8(s.Status), string(s.Strategy), s.VotingPhase, s.Reason,
		nullTime(s.StartedAt), nullTime(s.CompletedAt), s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	return checkAffected(res)
}

// ListByProject returns sessions oldest first. An empty projectID lists all.
func (r *SessionRepository) ListByProject(ctx context.Context, projectID string) ([]fl.Session, error) {
	var (
		rows []dbSession
		err  error
	)
	if projectID == "" {
		err = r.db.SelectContext(ctx, &rows, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at, id`)
	} else {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT `+sessionColumns+` FROM sessions WHERE project_id = ? ORDER BY created_at, id`, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	sessions := make([]fl.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, toSession(row))
	}

	return sessions, nil
}

func toSession(dbs dbSession) fl.Session {
	s := fl.Session{
		ID:          dbs.ID,
		ProjectID:   dbs.ProjectID,
		Round:       dbs.Round,
		TotalRounds: dbs.TotalRounds,
		Status:      fl.SessionStatus(dbs.Status),
		Strategy:    fl.Strategy(dbs.Strategy.String),
		VotingPhase: dbs.VotingPhase.String,
		Reason:      dbs.Reason.String,
	}
	if dbs.CreatedAt.Valid {
		s.CreatedAt = dbs.CreatedAt.Time
	}
	if dbs.StartedAt.Valid {
		s.StartedAt = dbs.StartedAt.Time
	}
	if dbs.CompletedAt.Valid {
		s.CompletedAt = dbs.CompletedAt.Time
	}
	if dbs.UpdatedAt.Valid {
		s.UpdatedAt = dbs.UpdatedAt.Time
	}

	return s
}
