package sdk

import (
	"encoding/json"
	"net/http"

	"github.com/absmach/flcoord/pkg/fl"
)

func (sdk *flSDK) RegisterParticipant(projectID string, participant fl.Participant) (fl.Participant, error) {
	data, err := json.Marshal(participant)
	if err != nil {
		return fl.Participant{}, err
	}

	url := sdk.coordinatorURL + projectsEndpoint + "/" + projectID + "/participants"

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusOK)
	if err != nil {
		return fl.Participant{}, err
	}

	var p fl.Participant
	if err := json.Unmarshal(body, &p); err != nil {
		return fl.Participant{}, err
	}

	return p, nil
}

func (sdk *flSDK) Heartbeat(participantID string) error {
	url := sdk.coordinatorURL + "/participants/" + participantID + "/heartbeat"

	_, err := sdk.processRequest(http.MethodPost, url, nil, http.StatusAccepted)

	return err
}

func (sdk *flSDK) ListParticipants(projectID string) ([]fl.Participant, error) {
	res, err := get[struct {
		Participants []fl.Participant `json:"participants"`
	}](sdk, sdk.coordinatorURL+projectsEndpoint+"/"+projectID+"/participants")

	return res.Participants, err
}
