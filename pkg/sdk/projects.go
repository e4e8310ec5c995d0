package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/fl"
)

const projectsEndpoint = "/projects"

type ProjectPage struct {
	Offset   uint64       `json:"offset"`
	Limit    uint64       `json:"limit"`
	Total    uint64       `json:"total"`
	Projects []fl.Project `json:"projects"`
}

type TrainingStatus struct {
	IsTraining   bool   `json:"is_training"`
	SessionID    string `json:"session_id,omitempty"`
	Status       string `json:"status,omitempty"`
	CurrentRound uint64 `json:"current_round"`
	TotalRounds  uint64 `json:"total_rounds"`
}

func (sdk *flSDK) CreateProject(project fl.Project) (fl.Project, error) {
	data, err := json.Marshal(project)
	if err != nil {
		return fl.Project{}, err
	}

	url := sdk.coordinatorURL + projectsEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusCreated)
	if err != nil {
		return fl.Project{}, err
	}

	var p fl.Project
	if err := json.Unmarshal(body, &p); err != nil {
		return fl.Project{}, err
	}

	return p, nil
}

func (sdk *flSDK) GetProject(id string) (fl.Project, error) {
	return get[fl.Project](sdk, sdk.coordinatorURL+projectsEndpoint+"/"+id)
}

func (sdk *flSDK) ListProjects(offset, limit uint64) (ProjectPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	query := ""
	if len(queries) > 0 {
		query = "?" + strings.Join(queries, "&")
	}

	return get[ProjectPage](sdk, sdk.coordinatorURL+projectsEndpoint+query)
}

func (sdk *flSDK) TrainingStatus(projectID string) (TrainingStatus, error) {
	return get[TrainingStatus](sdk, sdk.coordinatorURL+projectsEndpoint+"/"+projectID+"/training/status")
}

func (sdk *flSDK) CastVote(projectID, participantID string, strategy fl.Strategy) (map[string]uint64, error) {
	data, err := json.Marshal(map[string]string{
		"participant_id": participantID,
		"strategy":       string(strategy),
	})
	if err != nil {
		return nil, err
	}

	url := sdk.coordinatorURL + projectsEndpoint + "/" + projectID + "/votes"

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var res struct {
		Tally map[string]uint64 `json:"tally"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}

	return res.Tally, nil
}

func (sdk *flSDK) LatestCheckpoint(projectID string) (checkpoint.Checkpoint, error) {
	return get[checkpoint.Checkpoint](sdk, sdk.coordinatorURL+projectsEndpoint+"/"+projectID+"/checkpoints/latest")
}

func (sdk *flSDK) GetCheckpoint(id string) (checkpoint.Checkpoint, error) {
	return get[checkpoint.Checkpoint](sdk, sdk.coordinatorURL+"/checkpoints/"+id)
}
