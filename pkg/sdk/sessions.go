package sdk

import (
	"encoding/json"
	"net/http"

	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/fl"
)

const sessionsEndpoint = "/sessions"

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

func (sdk *flSDK) StartSession(projectID string) (fl.Session, error) {
	url := sdk.coordinatorURL + projectsEndpoint + "/" + projectID + sessionsEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, nil, http.StatusCreated)
	if err != nil {
		return fl.Session{}, err
	}

	var s fl.Session
	if err := json.Unmarshal(body, &s); err != nil {
		return fl.Session{}, err
	}

	return s, nil
}

func (sdk *flSDK) ListSessions(projectID string) ([]fl.Session, error) {
	res, err := get[struct {
		Sessions []fl.Session `json:"sessions"`
	}](sdk, sdk.coordinatorURL+projectsEndpoint+"/"+projectID+sessionsEndpoint)

	return res.Sessions, err
}

func (sdk *flSDK) SessionStatus(sessionID string) (SessionStatus, error) {
	return get[SessionStatus](sdk, sdk.coordinatorURL+sessionsEndpoint+"/"+sessionID)
}

func (sdk *flSDK) CancelSession(sessionID string) (fl.Session, error) {
	url := sdk.coordinatorURL + sessionsEndpoint + "/" + sessionID + "/cancel"

	body, err := sdk.processRequest(http.MethodPost, url, nil, http.StatusOK)
	if err != nil {
		return fl.Session{}, err
	}

	var s fl.Session
	if err := json.Unmarshal(body, &s); err != nil {
		return fl.Session{}, err
	}

	return s, nil
}

func (sdk *flSDK) CloseVoting(sessionID string) error {
	url := sdk.coordinatorURL + sessionsEndpoint + "/" + sessionID + "/voting/close"

	_, err := sdk.processRequest(http.MethodPost, url, nil, http.StatusAccepted)

	return err
}

func (sdk *flSDK) FetchRoundInstructions(sessionID string) (fl.RoundInstructions, error) {
	return get[fl.RoundInstructions](sdk, sdk.coordinatorURL+sessionsEndpoint+"/"+sessionID+"/instructions")
}

func (sdk *flSDK) SubmitContribution(contribution fl.Contribution) error {
	data, err := fl.MarshalCBOR(contribution)
	if err != nil {
		return err
	}

	url := sdk.coordinatorURL + sessionsEndpoint + "/" + contribution.SessionID + "/contributions"

	_, err = sdk.send(http.MethodPost, url, CTCBOR, data, http.StatusAccepted)

	return err
}

func (sdk *flSDK) ListRoundResults(sessionID string) ([]fl.RoundResult, error) {
	res, err := get[struct {
		Rounds []fl.RoundResult `json:"rounds"`
	}](sdk, sdk.coordinatorURL+sessionsEndpoint+"/"+sessionID+"/rounds")

	return res.Rounds, err
}

func (sdk *flSDK) ListCheckpoints(sessionID string) ([]checkpoint.Checkpoint, error) {
	res, err := get[struct {
		Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
	}](sdk, sdk.coordinatorURL+sessionsEndpoint+"/"+sessionID+"/checkpoints")

	return res.Checkpoints, err
}
