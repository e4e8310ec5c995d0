package api

import (
	"context"
	"errors"

	"github.com/absmach/flcoord/coordinator"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func createProjectEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(projectReq)
		if !ok {
			return projectRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return projectRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		p, err := svc.CreateProject(ctx, req.Project)
		if err != nil {
			return projectRes{}, err
		}

		return projectRes{
			Project: p,
			created: true,
		}, nil
	}
}

func getProjectEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return projectRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return projectRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		p, err := svc.GetProject(ctx, req.id)
		if err != nil {
			return projectRes{}, err
		}

		return projectRes{
			Project: p,
		}, nil
	}
}

func listProjectsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listProjectsRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return listProjectsRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListProjects(ctx, req.offset, req.limit)
		if err != nil {
			return listProjectsRes{}, err
		}

		return listProjectsRes{
			ProjectPage: page,
		}, nil
	}
}

func startSessionEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return sessionRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return sessionRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		sess, err := svc.StartSession(ctx, req.id)
		if err != nil {
			return sessionRes{}, err
		}

		return sessionRes{
			Session: sess,
			created: true,
		}, nil
	}
}

func listSessionsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return listSessionsRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return listSessionsRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		sessions, err := svc.ListSessions(ctx, req.id)
		if err != nil {
			return listSessionsRes{}, err
		}

		return listSessionsRes{
			Sessions: sessions,
		}, nil
	}
}

// trainingStatusEndpoint reports the project's most recent non-terminal
// session, or is_training=false when there is none.
func trainingStatusEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return trainingStatusRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return trainingStatusRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		if _, err := svc.GetProject(ctx, req.id); err != nil {
			return trainingStatusRes{}, err
		}
		sessions, err := svc.ListSessions(ctx, req.id)
		if err != nil {
			return trainingStatusRes{}, err
		}

		for i := len(sessions) - 1; i >= 0; i-- {
			s := sessions[i]
			if s.Status.Terminal() {
				continue
			}

			return trainingStatusRes{
				IsTraining:   s.Status == fl.Training,
				SessionID:    s.ID,
				Status:       s.Status.String(),
				CurrentRound: s.Round,
				TotalRounds:  s.TotalRounds,
			}, nil
		}

		return trainingStatusRes{}, nil
	}
}

func castVoteEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(voteReq)
		if !ok {
			return tallyRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return tallyRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		tally, err := svc.CastVote(ctx, req.projectID, req.ParticipantID, req.Strategy)
		if err != nil {
			return tallyRes{}, err
		}

		return tallyRes{
			ProjectID: req.projectID,
			Tally:     tally.Strings(),
		}, nil
	}
}

func registerParticipantEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(participantReq)
		if !ok {
			return participantRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return participantRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		p, err := svc.RegisterParticipant(ctx, fl.Participant{
			ID:           req.ID,
			ProjectID:    req.projectID,
			Name:         req.Name,
			TotalSamples: req.TotalSamples,
		})
		if err != nil {
			return participantRes{}, err
		}

		return participantRes{
			Participant: p,
		}, nil
	}
}

func listParticipantsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return listParticipantsRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return listParticipantsRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		participants, err := svc.ListParticipants(ctx, req.id)
		if err != nil {
			return listParticipantsRes{}, err
		}

		return listParticipantsRes{
			Participants: participants,
		}, nil
	}
}

func heartbeatEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return acceptedRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return acceptedRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.Heartbeat(ctx, req.id); err != nil {
			return acceptedRes{}, err
		}

		return acceptedRes{}, nil
	}
}

func latestCheckpointEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return checkpointRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return checkpointRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		cp, err := svc.LatestCheckpoint(ctx, req.id)
		if err != nil {
			return checkpointRes{}, err
		}

		return checkpointRes{
			Checkpoint: cp,
		}, nil
	}
}

func getSessionStatusEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return statusRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return statusRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		st, err := svc.GetSessionStatus(ctx, req.id)
		if err != nil {
			return statusRes{}, err
		}

		return statusRes{
			SessionStatus: st,
		}, nil
	}
}

func cancelSessionEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return sessionRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return sessionRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		sess, err := svc.CancelSession(ctx, req.id)
		if err != nil {
			return sessionRes{}, err
		}

		return sessionRes{
			Session: sess,
		}, nil
	}
}

func closeVotingEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return acceptedRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return acceptedRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.CloseVoting(ctx, req.id); err != nil {
			return acceptedRes{}, err
		}

		return acceptedRes{}, nil
	}
}

func fetchInstructionsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return instructionsRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return instructionsRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		ins, err := svc.FetchRoundInstructions(ctx, req.id)
		if err != nil {
			return instructionsRes{}, err
		}

		return instructionsRes{
			RoundInstructions: ins,
		}, nil
	}
}

func submitContributionEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(contributionReq)
		if !ok {
			return acceptedRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return acceptedRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.SubmitContribution(ctx, req.Contribution); err != nil {
			return acceptedRes{}, err
		}

		return acceptedRes{}, nil
	}
}

func listRoundsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return listRoundsRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return listRoundsRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		rounds, err := svc.ListRoundResults(ctx, req.id)
		if err != nil {
			return listRoundsRes{}, err
		}

		return listRoundsRes{
			Rounds: rounds,
		}, nil
	}
}

// listCheckpointsEndpoint omits parameters; they are fetched per checkpoint.
func listCheckpointsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return listCheckpointsRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return listCheckpointsRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		cps, err := svc.ListCheckpoints(ctx, req.id)
		if err != nil {
			return listCheckpointsRes{}, err
		}
		for i := range cps {
			cps[i].Params = nil
		}

		return listCheckpointsRes{
			Checkpoints: cps,
		}, nil
	}
}

func getCheckpointEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return checkpointRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidRequest)
		}
		if err := req.validate(); err != nil {
			return checkpointRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		cp, err := svc.GetCheckpoint(ctx, req.id)
		if err != nil {
			return checkpointRes{}, err
		}

		return checkpointRes{
			Checkpoint: cp,
		}, nil
	}
}
