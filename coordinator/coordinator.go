package coordinator

import (
	"context"

	"github.com/absmach/flcoord/pkg/ballot"
	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
)

type Service interface {
	CreateProject(ctx context.Context, p fl.Project) (fl.Project, error)
	GetProject(ctx context.Context, projectID string) (fl.Project, error)
	ListProjects(ctx context.Context, offset, limit uint64) (ProjectPage, error)

	// StartSession opens a voting phase for the project, cancelling any
	// session the project still has in flight.
	StartSession(ctx context.Context, projectID string) (fl.Session, error)
	CancelSession(ctx context.Context, sessionID string) (fl.Session, error)
	// CloseVoting ends the voting window early.
	CloseVoting(ctx context.Context, sessionID string) error
	CastVote(ctx context.Context, projectID, participantID string, strategy fl.Strategy) (ballot.Tally, error)
	GetSessionStatus(ctx context.Context, sessionID string) (SessionStatus, error)
	ListSessions(ctx context.Context, projectID string) ([]fl.Session, error)

	// Participant wire protocol.
	FetchRoundInstructions(ctx context.Context, sessionID string) (fl.RoundInstructions, error)
	SubmitContribution(ctx context.Context, c fl.Contribution) error

	RegisterParticipant(ctx context.Context, p fl.Participant) (fl.Participant, error)
	Heartbeat(ctx context.Context, participantID string) error
	ListParticipants(ctx context.Context, projectID string) ([]fl.Participant, error)

	ListRoundResults(ctx context.Context, sessionID string) ([]fl.RoundResult, error)
	ListCheckpoints(ctx context.Context, sessionID string) ([]checkpoint.Checkpoint, error)
	GetCheckpoint(ctx context.Context, checkpointID string) (checkpoint.Checkpoint, error)
	LatestCheckpoint(ctx context.Context, projectID string) (checkpoint.Checkpoint, error)

	// Subscribe attaches an event observer. Callers must Close it.
	Subscribe(ctx context.Context, projectID string) (*events.Observer, error)

	Shutdown(ctx context.Context) error
}

type SessionStatus struct {
	SessionID   string            `json:"session_id"`
	ProjectID   string            `json:"project_id"`
	Status      fl.SessionStatus  `json:"status"`
	Round       uint64            `json:"round"`
	TotalRounds uint64            `json:"total_rounds"`
	Strategy    fl.Strategy       `json:"strategy,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	VotingPhase string            `json:"voting_phase,omitempty"`
	Tally       map[string]uint64 `json:"tally,omitempty"`
}

type ProjectPage struct {
	Offset   uint64       `json:"offset"`
	Limit    uint64       `json:"limit"`
	Total    uint64       `json:"total"`
	Projects []fl.Project `json:"projects"`
}
