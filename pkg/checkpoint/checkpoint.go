package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/absmach/flcoord/pkg/fl"
)

var (
	ErrCheckpointExists = errors.New("checkpoint version already exists")
	ErrNotFound         = errors.New("checkpoint not found")
	ErrInvalidID        = errors.New("invalid checkpoint id")
)

const idSep = "."

// Checkpoint is an immutable snapshot of the global parameters after a round.
type Checkpoint struct {
	ID        string        `json:"id"                cbor:"1,keyasint"`
	ProjectID string        `json:"project_id"        cbor:"2,keyasint"`
	SessionID string        `json:"session_id"        cbor:"3,keyasint"`
	Version   uint64        `json:"version"           cbor:"4,keyasint"`
	Params    fl.Parameters `json:"params,omitempty"  cbor:"5,keyasint"`
	Accuracy  float64       `json:"accuracy"          cbor:"6,keyasint"`
	Loss      float64       `json:"loss"              cbor:"7,keyasint"`
	CreatedAt time.Time     `json:"created_at"        cbor:"8,keyasint"`
}

// Store persists versioned checkpoints. Save never overwrites an existing
// version and fails with ErrCheckpointExists instead.
type Store interface {
	Save(ctx context.Context, cp Checkpoint) (string, error)
	Load(ctx context.Context, id string) (Checkpoint, error)
	Latest(ctx context.Context, projectID string) (Checkpoint, error)
	List(ctx context.Context, projectID, sessionID string) ([]Checkpoint, error)
}

// NewID derives the checkpoint identifier "<project>.<session>.<version>".
func NewID(projectID, sessionID string, version uint64) string {
	return strings.Join([]string{projectID, sessionID, strconv.FormatUint(version, 10)}, idSep)
}

func ParseID(id string) (projectID, sessionID string, version uint64, err error) {
	parts := strings.Split(id, idSep)
	if len(parts) != 3 {
		return "", "", 0, ErrInvalidID
	}
	if fl.ValidateID(parts[0]) != nil || fl.ValidateID(parts[1]) != nil {
		return "", "", 0, ErrInvalidID
	}
	version, err = strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: %w", ErrInvalidID, err)
	}

	return parts[0], parts[1], version, nil
}

func prepare(cp Checkpoint) (Checkpoint, error) {
	if err := fl.ValidateID(cp.ProjectID); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: project: %w", ErrInvalidID, err)
	}
	if err := fl.ValidateID(cp.SessionID); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: session: %w", ErrInvalidID, err)
	}
	cp.ID = NewID(cp.ProjectID, cp.SessionID, cp.Version)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	return cp, nil
}

// newer orders checkpoints by creation time, then by version.
func newer(a, b Checkpoint) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}

	return a.Version > b.Version
}
