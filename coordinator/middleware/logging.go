package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/ballot"
	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) CreateProject(ctx context.Context, p fl.Project) (resp fl.Project, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("project",
				slog.String("id", p.ID),
				slog.String("name", p.Name),
				slog.Uint64("rounds", p.Rounds),
				slog.Uint64("min_participants", p.MinParticipants),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Create project failed", args...)

			return
		}
		lm.logger.Info("Create project completed successfully", args...)
	}(time.Now())

	return lm.svc.CreateProject(ctx, p)
}

func (lm *loggingMiddleware) GetProject(ctx context.Context, projectID string) (resp fl.Project, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("project",
				slog.String("id", projectID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get project failed", args...)

			return
		}
		lm.logger.Info("Get project completed successfully", args...)
	}(time.Now())

	return lm.svc.GetProject(ctx, projectID)
}

func (lm *loggingMiddleware) ListProjects(ctx context.Context, offset, limit uint64) (resp coordinator.ProjectPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List projects failed", args...)

			return
		}
		lm.logger.Info("List projects completed successfully", args...)
	}(time.Now())

	return lm.svc.ListProjects(ctx, offset, limit)
}

func (lm *loggingMiddleware) StartSession(ctx context.Context, projectID string) (resp fl.Session, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("session",
				slog.String("id", resp.ID),
				slog.String("project_id", projectID),
				slog.String("voting_phase", resp.VotingPhase),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Start session failed", args...)

			return
		}
		lm.logger.Info("Start session completed successfully", args...)
	}(time.Now())

	return lm.svc.StartSession(ctx, projectID)
}

func (lm *loggingMiddleware) CancelSession(ctx context.Context, sessionID string) (resp fl.Session, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("session",
				slog.String("id", sessionID),
				slog.Uint64("round", resp.Round),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Cancel session failed", args...)

			return
		}
		lm.logger.Info("Cancel session completed successfully", args...)
	}(time.Now())

	return lm.svc.CancelSession(ctx, sessionID)
}

func (lm *loggingMiddleware) CloseVoting(ctx context.Context, sessionID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", sessionID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Close voting failed", args...)

			return
		}
		lm.logger.Info("Close voting completed successfully", args...)
	}(time.Now())

	return lm.svc.CloseVoting(ctx, sessionID)
}

func (lm *loggingMiddleware) CastVote(ctx context.Context, projectID, participantID string, strategy fl.Strategy) (resp ballot.Tally, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("vote",
				slog.String("project_id", projectID),
				slog.String("participant_id", participantID),
				slog.String("strategy", string(strategy)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Cast vote failed", args...)

			return
		}
		lm.logger.Info("Cast vote completed successfully", args...)
	}(time.Now())

	return lm.svc.CastVote(ctx, projectID, participantID, strategy)
}

func (lm *loggingMiddleware) GetSessionStatus(ctx context.Context, sessionID string) (resp coordinator.SessionStatus, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", sessionID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get session status failed", args...)

			return
		}
		lm.logger.Debug("Get session status completed successfully", args...)
	}(time.Now())

	return lm.svc.GetSessionStatus(ctx, sessionID)
}

func (lm *loggingMiddleware) ListSessions(ctx context.Context, projectID string) (resp []fl.Session, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("project_id", projectID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List sessions failed", args...)

			return
		}
		lm.logger.Info("List sessions completed successfully", args...)
	}(time.Now())

	return lm.svc.ListSessions(ctx, projectID)
}

// FetchRoundInstructions is polled by participants, so success is logged at debug.
func (lm *loggingMiddleware) FetchRoundInstructions(ctx context.Context, sessionID string) (resp fl.RoundInstructions, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", sessionID),
			slog.Uint64("round", resp.Round),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Debug("Fetch round instructions failed", args...)

			return
		}
		lm.logger.Debug("Fetch round instructions completed successfully", args...)
	}(time.Now())

	return lm.svc.FetchRoundInstructions(ctx, sessionID)
}

func (lm *loggingMiddleware) SubmitContribution(ctx context.Context, c fl.Contribution) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("contribution",
				slog.String("session_id", c.SessionID),
				slog.Uint64("round", c.Round),
				slog.String("participant_id", c.ParticipantID),
				slog.Uint64("num_samples", c.NumSamples),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Submit contribution failed", args...)

			return
		}
		lm.logger.Info("Submit contribution completed successfully", args...)
	}(time.Now())

	return lm.svc.SubmitContribution(ctx, c)
}

func (lm *loggingMiddleware) RegisterParticipant(ctx context.Context, p fl.Participant) (resp fl.Participant, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("participant",
				slog.String("id", p.ID),
				slog.String("project_id", p.ProjectID),
				slog.String("name", resp.Name),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Register participant failed", args...)

			return
		}
		lm.logger.Info("Register participant completed successfully", args...)
	}(time.Now())

	return lm.svc.RegisterParticipant(ctx, p)
}

func (lm *loggingMiddleware) Heartbeat(ctx context.Context, participantID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("participant_id", participantID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Heartbeat failed", args...)

			return
		}
		lm.logger.Debug("Heartbeat completed successfully", args...)
	}(time.Now())

	return lm.svc.Heartbeat(ctx, participantID)
}

func (lm *loggingMiddleware) ListParticipants(ctx context.Context, projectID string) (resp []fl.Participant, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("project_id", projectID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List participants failed", args...)

			return
		}
		lm.logger.Info("List participants completed successfully", args...)
	}(time.Now())

	return lm.svc.ListParticipants(ctx, projectID)
}

func (lm *loggingMiddleware) ListRoundResults(ctx context.Context, sessionID string) (resp []fl.RoundResult, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", sessionID),
			slog.Int("count", len(resp)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List round results failed", args...)

			return
		}
		lm.logger.Info("List round results completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRoundResults(ctx, sessionID)
}

func (lm *loggingMiddleware) ListCheckpoints(ctx context.Context, sessionID string) (resp []checkpoint.Checkpoint, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("session_id", sessionID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List checkpoints failed", args...)

			return
		}
		lm.logger.Info("List checkpoints completed successfully", args...)
	}(time.Now())

	return lm.svc.ListCheckpoints(ctx, sessionID)
}

func (lm *loggingMiddleware) GetCheckpoint(ctx context.Context, checkpointID string) (resp checkpoint.Checkpoint, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("checkpoint_id", checkpointID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get checkpoint failed", args...)

			return
		}
		lm.logger.Info("Get checkpoint completed successfully", args...)
	}(time.Now())

	return lm.svc.GetCheckpoint(ctx, checkpointID)
}

func (lm *loggingMiddleware) LatestCheckpoint(ctx context.Context, projectID string) (resp checkpoint.Checkpoint, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("project_id", projectID),
			slog.String("checkpoint_id", resp.ID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Latest checkpoint failed", args...)

			return
		}
		lm.logger.Info("Latest checkpoint completed successfully", args...)
	}(time.Now())

	return lm.svc.LatestCheckpoint(ctx, projectID)
}

func (lm *loggingMiddleware) Subscribe(ctx context.Context, projectID string) (resp *events.Observer, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("project_id", projectID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Subscribe failed", args...)

			return
		}
		lm.logger.Info("Subscribe completed successfully", args...)
	}(time.Now())

	return lm.svc.Subscribe(ctx, projectID)
}

func (lm *loggingMiddleware) Shutdown(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Shutdown failed", args...)

			return
		}
		lm.logger.Info("Shutdown completed successfully", args...)
	}(time.Now())

	return lm.svc.Shutdown(ctx)
}
