package fl

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type SessionStatus uint8

const (
	Draft SessionStatus = iota
	Voting
	Training
	Completed
	Cancelled
	Failed
)

const (
	DraftStr     = "draft"
	VotingStr    = "voting"
	TrainingStr  = "training"
	CompletedStr = "completed"
	CancelledStr = "cancelled"
	FailedStr    = "failed"
	UnknownStr   = "unknown"
)

func (s SessionStatus) String() string {
	switch s {
	case Draft:
		return DraftStr
	case Voting:
		return VotingStr
	case Training:
		return TrainingStr
	case Completed:
		return CompletedStr
	case Cancelled:
		return CancelledStr
	case Failed:
		return FailedStr
	default:
		return UnknownStr
	}
}

func ParseSessionStatus(s string) (SessionStatus, error) {
	switch strings.ToLower(s) {
	case DraftStr:
		return Draft, nil
	case VotingStr:
		return Voting, nil
	case TrainingStr:
		return Training, nil
	case CompletedStr:
		return Completed, nil
	case CancelledStr:
		return Cancelled, nil
	case FailedStr:
		return Failed, nil
	default:
		return Draft, fmt.Errorf("unknown session status %q", s)
	}
}

func (s SessionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SessionStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	st, err := ParseSessionStatus(str)
	if err != nil {
		return err
	}
	*s = st

	return nil
}

// Terminal statuses are immutable.
func (s SessionStatus) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Active statuses hold the per-project single-flight slot.
func (s SessionStatus) Active() bool {
	return s == Voting || s == Training
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case Draft:
		return next == Voting
	case Voting:
		return next == Training || next == Cancelled || next == Failed
	case Training:
		return next == Completed || next == Cancelled || next == Failed
	default:
		return false
	}
}

const (
	ReasonQuorumNotMet  = "quorum_not_met"
	ReasonCancelled     = "cancelled"
	ReasonSuperseded    = "superseded"
	ReasonShutdown      = "shutdown"
	ReasonInternalError = "internal_error"
)

type Session struct {
	ID          string        `json:"id"                     db:"id"`
	ProjectID   string        `json:"project_id"             db:"project_id"`
	Round       uint64        `json:"round"                  db:"round"`
	TotalRounds uint64        `json:"total_rounds"           db:"total_rounds"`
	Status      SessionStatus `json:"status"                 db:"status"`
	Strategy    Strategy      `json:"strategy,omitempty"     db:"strategy"`
	VotingPhase string        `json:"voting_phase,omitempty" db:"voting_phase"`
	Reason      string        `json:"reason,omitempty"       db:"reason"`
	CreatedAt   time.Time     `json:"created_at"             db:"created_at"`
	StartedAt   time.Time     `json:"started_at"             db:"started_at"`
	CompletedAt time.Time     `json:"completed_at"           db:"completed_at"`
	UpdatedAt   time.Time     `json:"updated_at"             db:"updated_at"`
}

// Transition moves the session into next, stamping the relevant timestamps.
func (s *Session) Transition(next SessionStatus, now time.Time) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	s.UpdatedAt = now
	switch {
	case next == Training:
		s.StartedAt = now
	case next.Terminal():
		s.CompletedAt = now
	}

	return nil
}
