package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/absmach/flcoord/pkg/fl"
)

const roundColumns = `session_id, round, project_id, params, num_participants, num_samples, accuracy, loss, participants, timestamp`

// RoundRepository stores aggregated parameters as CBOR and per-participant metrics as JSON.
type RoundRepository struct {
	db *Database
}

func NewRoundRepository(db *Database) *RoundRepository {
	return &RoundRepository{db: db}
}

type dbRound struct {
	SessionID       string       `db:"session_id"`
	Round           uint64       `db:"round"`
	ProjectID       string       `db:"project_id"`
	Params          []byte       `db:"params"`
	NumParticipants int          `db:"num_participants"`
	NumSamples      uint64       `db:"num_samples"`
	Accuracy        float64      `db:"accuracy"`
	Loss            float64      `db:"loss"`
	Participants    []byte       `db:"participants"`
	Timestamp       sql.NullTime `db:"timestamp"`
}

func (r *RoundRepository) Create(ctx context.Context, res fl.RoundResult) error {
	var (
		params []byte
		err    error
	)
	if res.Params != nil {
		params, err = fl.EncodeParameters(res.Params)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMarshal, err)
		}
	}
	participants, err := jsonBytes(res.Participants)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarshal, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO round_results (`+roundColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.SessionID, res.Round, res.ProjectID, params, res.NumParticipants, res.NumSamples,
		res.Accuracy, res.Loss, participants, res.Timestamp,
	)
	if err != nil {
		return createError(err)
	}

	return nil
}

func (r *RoundRepository) ListBySession(ctx context.Context, sessionID string) ([]fl.RoundResult, error) {
	var rows []dbRound
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+roundColumns+` FROM round_results WHERE session_id = ? ORDER BY round`, sessionID,
	); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	results := make([]fl.RoundResult, 0, len(rows))
	for _, row := range rows {
		res := fl.RoundResult{
			SessionID:       row.SessionID,
			ProjectID:       row.ProjectID,
			Round:           row.Round,
			NumParticipants: row.NumParticipants,
			NumSamples:      row.NumSamples,
			Accuracy:        row.Accuracy,
			Loss:            row.Loss,
		}
		if len(row.Params) > 0 {
			params, err := fl.DecodeParameters(row.Params)
			if err != nil {
				return nil, err
			}
			res.Params = params
		}
		if err := jsonUnmarshal(row.Participants, &res.Participants); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
		if row.Timestamp.Valid {
			res.Timestamp = row.Timestamp.Time
		}
		results = append(results, res)
	}

	return results, nil
}
