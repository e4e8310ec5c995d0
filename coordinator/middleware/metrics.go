package middleware

import (
	"context"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/ballot"
	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) observe(method string, begin time.Time) {
	mm.counter.With("method", method).Add(1)
	mm.latency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mm *metricsMiddleware) CreateProject(ctx context.Context, p fl.Project) (fl.Project, error) {
	defer mm.observe("create-project", time.Now())

	return mm.svc.CreateProject(ctx, p)
}

func (mm *metricsMiddleware) GetProject(ctx context.Context, projectID string) (fl.Project, error) {
	defer mm.observe("get-project", time.Now())

	return mm.svc.GetProject(ctx, projectID)
}

func (mm *metricsMiddleware) ListProjects(ctx context.Context, offset, limit uint64) (coordinator.ProjectPage, error) {
	defer mm.observe("list-projects", time.Now())

	return mm.svc.ListProjects(ctx, offset, limit)
}

func (mm *metricsMiddleware) StartSession(ctx context.Context, projectID string) (fl.Session, error) {
	defer mm.observe("start-session", time.Now())

	return mm.svc.StartSession(ctx, projectID)
}

func (mm *metricsMiddleware) CancelSession(ctx context.Context, sessionID string) (fl.Session, error) {
	defer mm.observe("cancel-session", time.Now())

	return mm.svc.CancelSession(ctx, sessionID)
}

func (mm *metricsMiddleware) CloseVoting(ctx context.Context, sessionID string) error {
	defer mm.observe("close-voting", time.Now())

	return mm.svc.CloseVoting(ctx, sessionID)
}

func (mm *metricsMiddleware) CastVote(ctx context.Context, projectID, participantID string, strategy fl.Strategy) (ballot.Tally, error) {
	defer mm.observe("cast-vote", time.Now())

	return mm.svc.CastVote(ctx, projectID, participantID, strategy)
}

func (mm *metricsMiddleware) GetSessionStatus(ctx context.Context, sessionID string) (coordinator.SessionStatus, error) {
	defer mm.observe("get-session-status", time.Now())

	return mm.svc.GetSessionStatus(ctx, sessionID)
}

func (mm *metricsMiddleware) ListSessions(ctx context.Context, projectID string) ([]fl.Session, error) {
	defer mm.observe("list-sessions", time.Now())

	return mm.svc.ListSessions(ctx, projectID)
}

func (mm *metricsMiddleware) FetchRoundInstructions(ctx context.Context, sessionID string) (fl.RoundInstructions, error) {
	defer mm.observe("fetch-round-instructions", time.Now())

	return mm.svc.FetchRoundInstructions(ctx, sessionID)
}

func (mm *metricsMiddleware) SubmitContribution(ctx context.Context, c fl.Contribution) error {
	defer mm.observe("submit-contribution", time.Now())

	return mm.svc.SubmitContribution(ctx, c)
}

func (mm *metricsMiddleware) RegisterParticipant(ctx context.Context, p fl.Participant) (fl.Participant, error) {
	defer mm.observe("register-participant", time.Now())

	return mm.svc.RegisterParticipant(ctx, p)
}

func (mm *metricsMiddleware) Heartbeat(ctx context.Context, participantID string) error {
	defer mm.observe("heartbeat", time.Now())

	return mm.svc.Heartbeat(ctx, participantID)
}

func (mm *metricsMiddleware) ListParticipants(ctx context.Context, projectID string) ([]fl.Participant, error) {
	defer mm.observe("list-participants", time.Now())

	return mm.svc.ListParticipants(ctx, projectID)
}

func (mm *metricsMiddleware) ListRoundResults(ctx context.Context, sessionID string) ([]fl.RoundResult, error) {
	defer mm.observe("list-round-results", time.Now())

	return mm.svc.ListRoundResults(ctx, sessionID)
}

func (mm *metricsMiddleware) ListCheckpoints(ctx context.Context, sessionID string) ([]checkpoint.Checkpoint, error) {
	defer mm.observe("list-checkpoints", time.Now())

	return mm.svc.ListCheckpoints(ctx, sessionID)
}

func (mm *metricsMiddleware) GetCheckpoint(ctx context.Context, checkpointID string) (checkpoint.Checkpoint, error) {
	defer mm.observe("get-checkpoint", time.Now())

	return mm.svc.GetCheckpoint(ctx, checkpointID)
}

func (mm *metricsMiddleware) LatestCheckpoint(ctx context.Context, projectID string) (checkpoint.Checkpoint, error) {
	defer mm.observe("latest-checkpoint", time.Now())

	return mm.svc.LatestCheckpoint(ctx, projectID)
}

func (mm *metricsMiddleware) Subscribe(ctx context.Context, projectID string) (*events.Observer, error) {
	defer mm.observe("subscribe", time.Now())

	return mm.svc.Subscribe(ctx, projectID)
}

func (mm *metricsMiddleware) Shutdown(ctx context.Context) error {
	defer mm.observe("shutdown", time.Now())

	return mm.svc.Shutdown(ctx)
}
