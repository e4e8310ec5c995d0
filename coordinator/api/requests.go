package api

import (
	"github.com/absmach/flcoord/pkg/api"
	"github.com/absmach/flcoord/pkg/fl"
	apiutil "github.com/absmach/supermq/api/http/util"
)

type projectReq struct {
	fl.Project `json:",inline"`
}

func (p *projectReq) validate() error {
	if p.ID == "" {
		return apiutil.ErrMissingID
	}

	return p.Validate()
}

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit > api.MaxLimitSize {
		return apiutil.ErrLimitSize
	}

	return nil
}

type voteReq struct {
	projectID     string
	ParticipantID string      `json:"participant_id"`
	Strategy      fl.Strategy `json:"strategy"`
}

func (v *voteReq) validate() error {
	if v.projectID == "" || v.ParticipantID == "" {
		return apiutil.ErrMissingID
	}

	return v.Strategy.Validate()
}

type participantReq struct {
	projectID    string
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	TotalSamples uint64 `json:"total_samples"`
}

func (p *participantReq) validate() error {
	if p.projectID == "" || p.ID == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type contributionReq struct {
	fl.Contribution
}

func (c *contributionReq) validate() error {
	if c.SessionID == "" || c.ParticipantID == "" {
		return apiutil.ErrMissingID
	}
	if !c.Params.Valid() {
		return fl.ErrIncompatibleParameters
	}

	return nil
}
