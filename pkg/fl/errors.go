package fl

import "errors"

var (
	ErrNoUpdates               = errors.New("no updates provided for aggregation")
	ErrOverflow                = errors.New("sample count overflow during aggregation")
	ErrQuorumNotMet            = errors.New("quorum not met")
	ErrIncompatibleParameters  = errors.New("incompatible parameters")
	ErrInvalidSampleCount      = errors.New("sample count must be at least 1")
	ErrStaleRound              = errors.New("stale round")
	ErrRoundClosed             = errors.New("round collection window closed")
	ErrDuplicateContribution   = errors.New("participant already contributed to this round")
	ErrNoActiveRound           = errors.New("session has no round in progress")
	ErrStaleVote               = errors.New("stale vote")
	ErrInvalidStrategy         = errors.New("invalid strategy")
	ErrCheckpointWriteFailed   = errors.New("checkpoint write failed")
	ErrParticipantUnreachable  = errors.New("participant unreachable")
	ErrSessionFailed           = errors.New("session failed")
	ErrSessionNotFound         = errors.New("session not found")
	ErrProjectNotFound         = errors.New("project not found")
	ErrUnknownParticipant      = errors.New("unknown participant")
	ErrInvalidTransition       = errors.New("invalid session state transition")
	ErrInvalidProject          = errors.New("invalid project configuration")
	ErrInvalidID               = errors.New("identifier may only contain letters, digits, '-' and '_'")
	ErrParticipantProjectMatch = errors.New("participant is registered to a different project")
	ErrInvalidShape            = errors.New("shape dimensions must not be negative")
	ErrShapeTooLarge           = errors.New("shape exceeds element limit")
)
