package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/fl"
)

const (
	CTJSON string = "application/json"
	CTCBOR string = "application/cbor"
)

var ErrUnexpectedResponse = errors.New("unexpected response code")

type PageMetadata struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type SDK interface {
	// CreateProject registers a project in the coordinator's catalogue.
	//
	// example:
	//  project := fl.Project{
	//    ID:              "mnist",
	//    Rounds:          3,
	//    MinParticipants: 2,
	//  }
	//  project, _ := sdk.CreateProject(project)
	//  fmt.Println(project)
	CreateProject(project fl.Project) (fl.Project, error)

	// GetProject gets a project by id.
	//
	// example:
	//  project, _ := sdk.GetProject("mnist")
	//  fmt.Println(project)
	GetProject(id string) (fl.Project, error)

	// ListProjects lists projects.
	//
	// example:
	//  page, _ := sdk.ListProjects(0, 10)
	//  fmt.Println(page)
	ListProjects(offset, limit uint64) (ProjectPage, error)

	// StartSession opens a voting phase for the project. Any session still
	// running for the project is cancelled.
	//
	// example:
	//  session, _ := sdk.StartSession("mnist")
	//  fmt.Println(session.ID)
	StartSession(projectID string) (fl.Session, error)

	// ListSessions lists a project's sessions, oldest first.
	ListSessions(projectID string) ([]fl.Session, error)

	// SessionStatus returns the live status of a session, including the
	// running tally while it is voting.
	//
	// example:
	//  status, _ := sdk.SessionStatus("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(status.Round, status.TotalRounds)
	SessionStatus(sessionID string) (SessionStatus, error)

	// CancelSession cancels a voting or training session.
	CancelSession(sessionID string) (fl.Session, error)

	// CloseVoting ends the voting window before it expires.
	CloseVoting(sessionID string) error

	// CastVote records a strategy vote and returns the current tally.
	//
	// example:
	//  tally, _ := sdk.CastVote("mnist", "participant-1", fl.FedProx)
	//  fmt.Println(tally["fedprox"])
	CastVote(projectID, participantID string, strategy fl.Strategy) (map[string]uint64, error)

	// TrainingStatus is the flattened status older dashboards poll.
	TrainingStatus(projectID string) (TrainingStatus, error)

	// RegisterParticipant joins a participant to a project.
	RegisterParticipant(projectID string, participant fl.Participant) (fl.Participant, error)

	// Heartbeat keeps a participant's link alive.
	Heartbeat(participantID string) error

	ListParticipants(projectID string) ([]fl.Participant, error)

	// FetchRoundInstructions returns the in-flight round of a session.
	FetchRoundInstructions(sessionID string) (fl.RoundInstructions, error)

	// SubmitContribution uploads a participant's round result as CBOR.
	//
	// example:
	//  err := sdk.SubmitContribution(fl.Contribution{
	//    SessionID:     ins.SessionID,
	//    Round:         ins.Round,
	//    ParticipantID: "participant-1",
	//    Params:        params,
	//    NumSamples:    600,
	//  })
	SubmitContribution(contribution fl.Contribution) error

	// ListRoundResults returns a session's aggregated rounds in order.
	ListRoundResults(sessionID string) ([]fl.RoundResult, error)

	// ListCheckpoints lists a session's checkpoints without parameters.
	ListCheckpoints(sessionID string) ([]checkpoint.Checkpoint, error)

	// GetCheckpoint downloads a checkpoint including parameters.
	GetCheckpoint(id string) (checkpoint.Checkpoint, error)

	// LatestCheckpoint downloads the project's most recent checkpoint.
	LatestCheckpoint(projectID string) (checkpoint.Checkpoint, error)
}

type flSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &flSDK{
		coordinatorURL: cfg.CoordinatorURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *flSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	return sdk.send(method, reqURL, CTJSON, data, expectedRespCode)
}

func (sdk *flSDK) send(method, reqURL, contentType string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", contentType)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e struct {
			Err string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Err != "" {
			return []byte{}, fmt.Errorf("%w %d: %s", ErrUnexpectedResponse, resp.StatusCode, e.Err)
		}

		return []byte{}, fmt.Errorf("%w: %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	return body, nil
}

func get[T any](sdk *flSDK, url string) (T, error) {
	var v T
	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, err
	}

	return v, nil
}
