package api

import (
	"net/http"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*projectRes)(nil)
	_ supermq.Response = (*listProjectsRes)(nil)
	_ supermq.Response = (*sessionRes)(nil)
	_ supermq.Response = (*listSessionsRes)(nil)
	_ supermq.Response = (*statusRes)(nil)
	_ supermq.Response = (*trainingStatusRes)(nil)
	_ supermq.Response = (*tallyRes)(nil)
	_ supermq.Response = (*instructionsRes)(nil)
	_ supermq.Response = (*participantRes)(nil)
	_ supermq.Response = (*listParticipantsRes)(nil)
	_ supermq.Response = (*listRoundsRes)(nil)
	_ supermq.Response = (*checkpointRes)(nil)
	_ supermq.Response = (*listCheckpointsRes)(nil)
	_ supermq.Response = (*acceptedRes)(nil)
)

type projectRes struct {
	fl.Project
	created bool
}

func (p projectRes) Code() int {
	if p.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (p projectRes) Headers() map[string]string {
	if p.created {
		return map[string]string{
			"Location": "/projects/" + p.ID,
		}
	}

	return map[string]string{}
}

func (p projectRes) Empty() bool {
	return false
}

type listProjectsRes struct {
	coordinator.ProjectPage
}

func (l listProjectsRes) Code() int {
	return http.StatusOK
}

func (l listProjectsRes) Headers() map[string]string {
	return map[string]string{}
}

func (l listProjectsRes) Empty() bool {
	return false
}

type sessionRes struct {
	fl.Session
	created bool
}

func (s sessionRes) Code() int {
	if s.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (s sessionRes) Headers() map[string]string {
	if s.created {
		return map[string]string{
			"Location": "/sessions/" + s.ID,
		}
	}

	return map[string]string{}
}

func (s sessionRes) Empty() bool {
	return false
}

type listSessionsRes struct {
	Sessions []fl.Session `json:"sessions"`
}

func (l listSessionsRes) Code() int {
	return http.StatusOK
}

func (l listSessionsRes) Headers() map[string]string {
	return map[string]string{}
}

func (l listSessionsRes) Empty() bool {
	return false
}

type statusRes struct {
	coordinator.SessionStatus
}

func (s statusRes) Code() int {
	return http.StatusOK
}

func (s statusRes) Headers() map[string]string {
	return map[string]string{}
}

func (s statusRes) Empty() bool {
	return false
}

// trainingStatusRes is the shape older dashboards poll for.
type trainingStatusRes struct {
	IsTraining   bool   `json:"is_training"`
	SessionID    string `json:"session_id,omitempty"`
	Status       string `json:"status,omitempty"`
	CurrentRound uint64 `json:"current_round"`
	TotalRounds  uint64 `json:"total_rounds"`
}

func (t trainingStatusRes) Code() int {
	return http.StatusOK
}

func (t trainingStatusRes) Headers() map[string]string {
	return map[string]string{}
}

func (t trainingStatusRes) Empty() bool {
	return false
}

type tallyRes struct {
	ProjectID string            `json:"project_id"`
	Tally     map[string]uint64 `json:"tally"`
}

func (t tallyRes) Code() int {
	return http.StatusOK
}

func (t tallyRes) Headers() map[string]string {
	return map[string]string{}
}

func (t tallyRes) Empty() bool {
	return false
}

type instructionsRes struct {
	fl.RoundInstructions
}

func (i instructionsRes) Code() int {
	return http.StatusOK
}

func (i instructionsRes) Headers() map[string]string {
	return map[string]string{}
}

func (i instructionsRes) Empty() bool {
	return false
}

type participantRes struct {
	fl.Participant
}

func (p participantRes) Code() int {
	return http.StatusOK
}

func (p participantRes) Headers() map[string]string {
	return map[string]string{}
}

func (p participantRes) Empty() bool {
	return false
}

type listParticipantsRes struct {
	Participants []fl.Participant `json:"participants"`
}

func (l listParticipantsRes) Code() int {
	return http.StatusOK
}

func (l listParticipantsRes) Headers() map[string]string {
	return map[string]string{}
}

func (l listParticipantsRes) Empty() bool {
	return false
}

type listRoundsRes struct {
	Rounds []fl.RoundResult `json:"rounds"`
}

func (l listRoundsRes) Code() int {
	return http.StatusOK
}

func (l listRoundsRes) Headers() map[string]string {
	return map[string]string{}
}

func (l listRoundsRes) Empty() bool {
	return false
}

type checkpointRes struct {
	checkpoint.Checkpoint
}

func (c checkpointRes) Code() int {
	return http.StatusOK
}

func (c checkpointRes) Headers() map[string]string {
	return map[string]string{}
}

func (c checkpointRes) Empty() bool {
	return false
}

type listCheckpointsRes struct {
	Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
}

func (l listCheckpointsRes) Code() int {
	return http.StatusOK
}

func (l listCheckpointsRes) Headers() map[string]string {
	return map[string]string{}
}

func (l listCheckpointsRes) Empty() bool {
	return false
}

type acceptedRes struct{}

func (a acceptedRes) Code() int {
	return http.StatusAccepted
}

func (a acceptedRes) Headers() map[string]string {
	return map[string]string{}
}

func (a acceptedRes) Empty() bool {
	return true
}
