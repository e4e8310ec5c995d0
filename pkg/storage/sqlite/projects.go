package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
)

const projectColumns = `id, name, rounds, local_epochs, batch_size, min_participants, shape, created_at`

type ProjectRepository struct {
	db *Database
}

func NewProjectRepository(db *Database) *ProjectRepository {
	return &ProjectRepository{db: db}
}

type dbProject struct {
	ID              string       `db:"id"`
	Name            string       `db:"name"`
	Rounds          uint64       `db:"rounds"`
	LocalEpochs     uint64       `db:"local_epochs"`
	BatchSize       uint64       `db:"batch_size"`
	MinParticipants uint64       `db:"min_participants"`
	Shape           []byte       `db:"shape"`
	CreatedAt       sql.NullTime `db:"created_at"`
}

func (r *ProjectRepository) Create(ctx context.Context, p fl.Project) error {
	shape, err := jsonBytes(p.Shape)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarshal, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Rounds, p.LocalEpochs, p.BatchSize, p.MinParticipants, shape, p.CreatedAt,
	)
	if err != nil {
		return createError(err)
	}

	return nil
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (fl.Project, error) {
	var dbp dbProject
	if err := r.db.GetContext(ctx, &dbp, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Project{}, pkgerrors.NotFound("project", id)
		}

		return fl.Project{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toProject(dbp)
}

func (r *ProjectRepository) Update(ctx context.Context, p fl.Project) error {
	shape, err := jsonBytes(p.Shape)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarshal, err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, rounds = ?, local_epochs = ?, batch_size = ?, min_participants = ?, shape = ? WHERE id = ?`,
		p.Name, p.Rounds, p.LocalEpochs, p.BatchSize, p.MinParticipants, shape, p.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	return checkAffected(res)
}

func (r *ProjectRepository) List(ctx context.Context, offset, limit uint64) ([]fl.Project, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM projects`); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	var rows []dbProject
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+projectColumns+` FROM projects ORDER BY id LIMIT ? OFFSET ?`, limit, offset,
	); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	projects := make([]fl.Project, 0, len(rows))
	for _, row := range rows {
		p, err := toProject(row)
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, p)
	}

	return projects, total, nil
}

func toProject(dbp dbProject) (fl.Project, error) {
	p := fl.Project{
		ID:              dbp.ID,
		Name:            dbp.Name,
		Rounds:          dbp.Rounds,
		LocalEpochs:     dbp.LocalEpochs,
		BatchSize:       dbp.BatchSize,
		MinParticipants: dbp.MinParticipants,
	}
	if err := jsonUnmarshal(dbp.Shape, &p.Shape); err != nil {
		return fl.Project{}, fmt.Errorf("unmarshal error: %w", err)
	}
	if dbp.CreatedAt.Valid {
		p.CreatedAt = dbp.CreatedAt.Time
	}

	return p, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	if n == 0 {
		return pkgerrors.ErrNotFound
	}

	return nil
}
