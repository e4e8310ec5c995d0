package middleware

import (
	"context"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/ballot"
	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (tm *tracing) CreateProject(ctx context.Context, p fl.Project) (resp fl.Project, err error) {
	ctx, span := tm.tracer.Start(ctx, "create-project", trace.WithAttributes(
		attribute.String("id", p.ID),
		attribute.String("name", p.Name),
		attribute.Int64("rounds", int64(p.Rounds)),
	))
	defer func() { end(span, err) }()

	return tm.svc.CreateProject(ctx, p)
}

func (tm *tracing) GetProject(ctx context.Context, projectID string) (resp fl.Project, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-project", trace.WithAttributes(
		attribute.String("id", projectID),
	))
	defer func() { end(span, err) }()

	return tm.svc.GetProject(ctx, projectID)
}

func (tm *tracing) ListProjects(ctx context.Context, offset, limit uint64) (resp coordinator.ProjectPage, err error) {
	ctx, span := tm.tracer.Start(ctx, "list-projects", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer func() { end(span, err) }()

	return tm.svc.ListProjects(ctx, offset, limit)
}

func (tm *tracing) StartSession(ctx context.Context, projectID string) (resp fl.Session, err error) {
	ctx, span := tm.tracer.Start(ctx, "start-session", trace.WithAttributes(
		attribute.String("project_id", projectID),
	))
	defer func() { end(span, err) }()

	return tm.svc.StartSession(ctx, projectID)
}

func (tm *tracing) CancelSession(ctx context.Context, sessionID string) (resp fl.Session, err error) {
	ctx, span := tm.tracer.Start(ctx, "cancel-session", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer func() { end(span, err) }()

	return tm.svc.CancelSession(ctx, sessionID)
}

func (tm *tracing) CloseVoting(ctx context.Context, sessionID string) (err error) {
	ctx, span := tm.tracer.Start(ctx, "close-voting", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer func() { end(span, err) }()

	return tm.svc.CloseVoting(ctx, sessionID)
}

func (tm *tracing) CastVote(ctx context.Context, projectID, participantID string, strategy fl.Strategy) (resp ballot.Tally, err error) {
	ctx, span := tm.tracer.Start(ctx, "cast-vote", trace.WithAttributes(
		attribute.String("project_id", projectID),
		attribute.String("participant_id", participantID),
		attribute.String("strategy", string(strategy)),
	))
	defer func() { end(span, err) }()

	return tm.svc.CastVote(ctx, projectID, participantID, strategy)
}

func (tm *tracing) GetSessionStatus(ctx context.Context, sessionID string) (resp coordinator.SessionStatus, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-session-status", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer func() { end(span, err) }()

	return tm.svc.GetSessionStatus(ctx, sessionID)
}

func (tm *tracing) ListSessions(ctx context.Context, projectID string) (resp []fl.Session, err error) {
	ctx, span := tm.tracer.Start(ctx, "list-sessions", trace.WithAttributes(
		attribute.String("project_id", projectID),
	))
	defer func() { end(span, err) }()

	return tm.svc.ListSessions(ctx, projectID)
}

func (tm *tracing) FetchRoundInstructions(ctx context.Context, sessionID string) (resp fl.RoundInstructions, err error) {
	ctx, span := tm.tracer.Start(ctx, "fetch-round-instructions", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	return tm.svc.FetchRoundInstructions(ctx, sessionID)
}

func (tm *tracing) SubmitContribution(ctx context.Context, c fl.Contribution) (err error) {
	ctx, span := tm.tracer.Start(ctx, "submit-contribution", trace.WithAttributes(
		attribute.String("session_id", c.SessionID),
		attribute.Int64("round", int64(c.Round)),
		attribute.String("participant_id", c.ParticipantID),
		attribute.Int64("num_samples", int64(c.NumSamples)),
	))
	defer func() { end(span, err) }()

	return tm.svc.SubmitContribution(ctx, c)
}

func (tm *tracing) RegisterParticipant(ctx context.Context, p fl.Participant) (resp fl.Participant, err error) {
	ctx, span := tm.tracer.Start(ctx, "register-participant", trace.WithAttributes(
		attribute.String("id", p.ID),
		attribute.String("project_id", p.ProjectID),
	))
	defer func() { end(span, err) }()

	return tm.svc.RegisterParticipant(ctx, p)
}

func (tm *tracing) Heartbeat(ctx context.Context, participantID string) (err error) {
	ctx, span := tm.tracer.Start(ctx, "heartbeat", trace.WithAttributes(
		attribute.String("participant_id", participantID),
	))
	defer span.End()

	return tm.svc.Heartbeat(ctx, participantID)
}

func (tm *tracing) ListParticipants(ctx context.Context, projectID string) (resp []fl.Participant, err error) {
	ctx, span := tm.tracer.Start(ctx, "list-participants", trace.WithAttributes(
		attribute.String("project_id", projectID),
	))
	defer func() { end(span, err) }()

	return tm.svc.ListParticipants(ctx, projectID)
}

func (tm *tracing) ListRoundResults(ctx context.Context, sessionID string) (resp []fl.RoundResult, err error) {
	ctx, span := tm.tracer.Start(ctx, "list-round-results", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer func() { end(span, err) }()

	return tm.svc.ListRoundResults(ctx, sessionID)
}

func (tm *tracing) ListCheckpoints(ctx context.Context, sessionID string) (resp []checkpoint.Checkpoint, err error) {
	ctx, span := tm.tracer.Start(ctx, "list-checkpoints", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer func() { end(span, err) }()

	return tm.svc.ListCheckpoints(ctx, sessionID)
}

func (tm *tracing) GetCheckpoint(ctx context.Context, checkpointID string) (resp checkpoint.Checkpoint, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-checkpoint", trace.WithAttributes(
		attribute.String("checkpoint_id", checkpointID),
	))
	defer func() { end(span, err) }()

	return tm.svc.GetCheckpoint(ctx, checkpointID)
}

func (tm *tracing) LatestCheckpoint(ctx context.Context, projectID string) (resp checkpoint.Checkpoint, err error) {
	ctx, span := tm.tracer.Start(ctx, "latest-checkpoint", trace.WithAttributes(
		attribute.String("project_id", projectID),
	))
	defer func() { end(span, err) }()

	return tm.svc.LatestCheckpoint(ctx, projectID)
}

func (tm *tracing) Subscribe(ctx context.Context, projectID string) (resp *events.Observer, err error) {
	ctx, span := tm.tracer.Start(ctx, "subscribe", trace.WithAttributes(
		attribute.String("project_id", projectID),
	))
	defer span.End()

	return tm.svc.Subscribe(ctx, projectID)
}

func (tm *tracing) Shutdown(ctx context.Context) (err error) {
	ctx, span := tm.tracer.Start(ctx, "shutdown")
	defer func() { end(span, err) }()

	return tm.svc.Shutdown(ctx)
}
