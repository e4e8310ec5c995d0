package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0x6flab/namegenerator"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/ballot"
	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/link"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/google/uuid"
)

var (
	ErrShuttingDown = errors.New("coordinator is shutting down")

	errCancelled  = errors.New(fl.ReasonCancelled)
	errSuperseded = errors.New(fl.ReasonSuperseded)
	errShutdown   = errors.New(fl.ReasonShutdown)
)

type service struct {
	repos  *storage.Repositories
	store  checkpoint.Store
	ballot *ballot.Ballot
	bus    *events.Bus
	hub    *link.Hub
	cfg    Config
	logger *slog.Logger
	names  namegenerator.NameGenerator

	ctx    context.Context
	cancel context.CancelCauseFunc

	// startMu serialises StartSession so the single-flight check and the
	// cancellation of the previous session happen as one step.
	startMu sync.Mutex
	mu      sync.Mutex
	runners map[string]*runner
	active  map[string]*runner
	closed  bool
	wg      sync.WaitGroup
}

// NewService wires the coordinator. A nil transport leaves instruction
// delivery to participants polling FetchRoundInstructions.
func NewService(repos *storage.Repositories, store checkpoint.Store, bus *events.Bus, transport link.Transport, cfg Config, logger *slog.Logger) Service {
	ctx, cancel := context.WithCancelCause(context.Background())
	svc := &service{
		repos:   repos,
		store:   store,
		ballot:  ballot.New(bus),
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		names:   namegenerator.NewGenerator(),
		ctx:     ctx,
		cancel:  cancel,
		runners: make(map[string]*runner),
		active:  make(map[string]*runner),
	}
	svc.hub = link.NewHub(link.Config{
		OutboxSize: cfg.OutboxSize,
		Liveness:   cfg.LivenessTimeout,
		OnExpire:   svc.markOffline,
	}, transport, logger)

	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		_ = svc.hub.Run(ctx)
	}()

	return svc
}

func (svc *service) CreateProject(ctx context.Context, p fl.Project) (fl.Project, error) {
	if err := p.Validate(); err != nil {
		return fl.Project{}, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := svc.repos.Projects.Create(ctx, p); err != nil {
		return fl.Project{}, err
	}

	return p, nil
}

func (svc *service) GetProject(ctx context.Context, projectID string) (fl.Project, error) {
	p, err := svc.repos.Projects.Get(ctx, projectID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return fl.Project{}, fl.ErrProjectNotFound
	}

	return p, err
}

func (svc *service) ListProjects(ctx context.Context, offset, limit uint64) (ProjectPage, error) {
	projects, total, err := svc.repos.Projects.List(ctx, offset, limit)
	if err != nil {
		return ProjectPage{}, err
	}
	if projects == nil {
		projects = []fl.Project{}
	}

	return ProjectPage{
		Offset:   offset,
		Limit:    limit,
		Total:    total,
		Projects: projects,
	}, nil
}

func (svc *service) StartSession(ctx context.Context, projectID string) (fl.Session, error) {
	project, err := svc.GetProject(ctx, projectID)
	if err != nil {
		return fl.Session{}, err
	}

	svc.startMu.Lock()
	defer svc.startMu.Unlock()

	svc.mu.Lock()
	closed := svc.closed
	prev := svc.active[projectID]
	svc.mu.Unlock()
	if closed {
		return fl.Session{}, ErrShuttingDown
	}
	if prev != nil {
		prev.stop(errSuperseded)
		select {
		case <-prev.done:
		case <-ctx.Done():
			return fl.Session{}, ctx.Err()
		}
	}
	if err := svc.cancelOrphans(ctx, projectID); err != nil {
		return fl.Session{}, err
	}

	now := time.Now().UTC()
	sess := fl.Session{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		TotalRounds: project.Rounds,
		Status:      fl.Draft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := sess.Transition(fl.Voting, now); err != nil {
		return fl.Session{}, err
	}
	sess.VotingPhase = svc.ballot.Open(projectID)
	if err := svc.repos.Sessions.Create(ctx, sess); err != nil {
		return fl.Session{}, err
	}

	r := newRunner(svc, project, sess)
	svc.mu.Lock()
	if svc.closed {
		svc.mu.Unlock()

		return fl.Session{}, ErrShuttingDown
	}
	svc.runners[sess.ID] = r
	svc.active[projectID] = r
	svc.wg.Add(1)
	svc.mu.Unlock()

	svc.bus.Publish(events.Event{
		Type:        events.VotingStarted,
		ProjectID:   projectID,
		SessionID:   sess.ID,
		TotalRounds: sess.TotalRounds,
		VotingPhase: sess.VotingPhase,
	})

	go r.run()

	return sess, nil
}

// cancelOrphans cancels persisted sessions that are non-terminal but have no
// runner, e.g. ones left behind by a previous process.
func (svc *service) cancelOrphans(ctx context.Context, projectID string) error {
	sessions, err := svc.repos.Sessions.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.Status.Terminal() || s.Status == fl.Draft {
			continue
		}
		if err := svc.cancelStored(ctx, s, fl.ReasonSuperseded); err != nil {
			return err
		}
	}

	return nil
}

func (svc *service) cancelStored(ctx context.Context, s fl.Session, reason string) error {
	if err := s.Transition(fl.Cancelled, time.Now().UTC()); err != nil {
		return err
	}
	s.Reason = reason
	if err := svc.repos.Sessions.Update(ctx, s); err != nil {
		return err
	}
	svc.bus.Publish(events.Event{
		Type:      events.SessionCancelled,
		ProjectID: s.ProjectID,
		SessionID: s.ID,
		Round:     s.Round,
		Reason:    reason,
	})

	return nil
}

func (svc *service) CancelSession(ctx context.Context, sessionID string) (fl.Session, error) {
	if r := svc.runner(sessionID); r != nil {
		r.stop(errCancelled)
		select {
		case <-r.done:
		case <-ctx.Done():
			return fl.Session{}, ctx.Err()
		}
		sess := r.snapshot()
		if sess.Status != fl.Cancelled {
			return sess, fmt.Errorf("%w: session already %s", fl.ErrInvalidTransition, sess.Status)
		}

		return sess, nil
	}

	sess, err := svc.session(ctx, sessionID)
	if err != nil {
		return fl.Session{}, err
	}
	if sess.Status.Terminal() {
		return sess, fmt.Errorf("%w: session already %s", fl.ErrInvalidTransition, sess.Status)
	}
	if err := svc.cancelStored(ctx, sess, fl.ReasonCancelled); err != nil {
		return fl.Session{}, err
	}

	return svc.session(ctx, sessionID)
}

func (svc *service) CloseVoting(ctx context.Context, sessionID string) error {
	r := svc.runner(sessionID)
	if r == nil {
		if _, err := svc.session(ctx, sessionID); err != nil {
			return err
		}

		return fmt.Errorf("%w: session is not voting", fl.ErrInvalidTransition)
	}

	return r.closeVoting()
}

func (svc *service) CastVote(_ context.Context, projectID, participantID string, strategy fl.Strategy) (ballot.Tally, error) {
	if err := fl.ValidateID(participantID); err != nil {
		return nil, err
	}

	return svc.ballot.Cast(projectID, participantID, strategy)
}

func (svc *service) GetSessionStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	var sess fl.Session
	if r := svc.runner(sessionID); r != nil {
		sess = r.snapshot()
	} else {
		var err error
		if sess, err = svc.session(ctx, sessionID); err != nil {
			return SessionStatus{}, err
		}
	}

	status := SessionStatus{
		SessionID:   sess.ID,
		ProjectID:   sess.ProjectID,
		Status:      sess.Status,
		Round:       sess.Round,
		TotalRounds: sess.TotalRounds,
		Strategy:    sess.Strategy,
		Reason:      sess.Reason,
		VotingPhase: sess.VotingPhase,
	}
	if sess.Status == fl.Voting {
		if phase, open := svc.ballot.Phase(sess.ProjectID); open && phase == sess.VotingPhase {
			status.Tally = svc.ballot.Tally(sess.ProjectID).Strings()
		}
	}

	return status, nil
}

func (svc *service) ListSessions(ctx context.Context, projectID string) ([]fl.Session, error) {
	sessions, err := svc.repos.Sessions.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i, s := range sessions {
		if r := svc.runner(s.ID); r != nil {
			sessions[i] = r.snapshot()
		}
	}
	if sessions == nil {
		sessions = []fl.Session{}
	}

	return sessions, nil
}

func (svc *service) FetchRoundInstructions(ctx context.Context, sessionID string) (fl.RoundInstructions, error) {
	r := svc.runner(sessionID)
	if r == nil {
		if _, err := svc.session(ctx, sessionID); err != nil {
			return fl.RoundInstructions{}, err
		}

		return fl.RoundInstructions{}, fl.ErrNoActiveRound
	}

	return r.currentInstructions()
}

func (svc *service) SubmitContribution(ctx context.Context, c fl.Contribution) error {
	if c.NumSamples < 1 {
		return fl.ErrInvalidSampleCount
	}

	r := svc.runner(c.SessionID)
	if r == nil {
		if _, err := svc.session(ctx, c.SessionID); err != nil {
			return err
		}

		return fl.ErrStaleRound
	}

	p, err := svc.repos.Participants.Get(ctx, c.ParticipantID)
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		return fl.ErrUnknownParticipant
	case err != nil:
		return err
	case p.ProjectID != r.project.ID:
		return fl.ErrParticipantProjectMatch
	}
	svc.hub.Touch(c.ParticipantID)

	return r.submit(c)
}

func (svc *service) RegisterParticipant(ctx context.Context, p fl.Participant) (fl.Participant, error) {
	if err := fl.ValidateID(p.ID); err != nil {
		return fl.Participant{}, err
	}
	if _, err := svc.GetProject(ctx, p.ProjectID); err != nil {
		return fl.Participant{}, err
	}

	now := time.Now().UTC()
	existing, err := svc.repos.Participants.Get(ctx, p.ID)
	switch {
	case err == nil:
		existing.ProjectID = p.ProjectID
		if p.Name != "" {
			existing.Name = p.Name
		}
		existing.TotalSamples = p.TotalSamples
		existing.Online = true
		existing.LastSeen = now
		if err := svc.repos.Participants.Update(ctx, existing); err != nil {
			return fl.Participant{}, err
		}
		p = existing
	case errors.Is(err, pkgerrors.ErrNotFound):
		if p.Name == "" {
			p.Name = svc.names.Generate()
		}
		p.Online = true
		p.RegisteredAt = now
		p.LastSeen = now
		if err := svc.repos.Participants.Create(ctx, p); err != nil {
			return fl.Participant{}, err
		}
	default:
		return fl.Participant{}, err
	}

	if err := svc.hub.Connect(p.ProjectID, p.ID); err != nil {
		return fl.Participant{}, err
	}
	svc.bus.Publish(events.Event{
		Type:          events.ParticipantRegistered,
		ProjectID:     p.ProjectID,
		ParticipantID: p.ID,
	})

	return p, nil
}

func (svc *service) Heartbeat(ctx context.Context, participantID string) error {
	p, err := svc.repos.Participants.Get(ctx, participantID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return fl.ErrUnknownParticipant
		}

		return err
	}
	if !svc.hub.Touch(participantID) {
		if err := svc.hub.Connect(p.ProjectID, p.ID); err != nil {
			return err
		}
	}
	p.Online = true
	p.LastSeen = time.Now().UTC()

	return svc.repos.Participants.Update(ctx, p)
}

func (svc *service) markOffline(projectID, participantID string) {
	ctx := context.WithoutCancel(svc.ctx)
	p, err := svc.repos.Participants.Get(ctx, participantID)
	if err != nil {
		return
	}
	p.Online = false
	if err := svc.repos.Participants.Update(ctx, p); err != nil {
		svc.logger.Warn("failed to mark participant offline",
			slog.String("project_id", projectID),
			slog.String("participant_id", participantID),
			slog.Any("error", err),
		)
	}
}

func (svc *service) ListParticipants(ctx context.Context, projectID string) ([]fl.Participant, error) {
	participants, err := svc.repos.Participants.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool)
	for _, id := range svc.hub.Active(projectID) {
		live[id] = true
	}
	for i := range participants {
		participants[i].Online = live[participants[i].ID]
	}
	if participants == nil {
		participants = []fl.Participant{}
	}

	return participants, nil
}

func (svc *service) ListRoundResults(ctx context.Context, sessionID string) ([]fl.RoundResult, error) {
	if _, err := svc.session(ctx, sessionID); err != nil {
		return nil, err
	}
	results, err := svc.repos.Rounds.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []fl.RoundResult{}
	}

	return results, nil
}

func (svc *service) ListCheckpoints(ctx context.Context, sessionID string) ([]checkpoint.Checkpoint, error) {
	sess, err := svc.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	cps, err := svc.store.List(ctx, sess.ProjectID, sess.ID)
	if err != nil {
		return nil, err
	}
	if cps == nil {
		cps = []checkpoint.Checkpoint{}
	}

	return cps, nil
}

func (svc *service) GetCheckpoint(ctx context.Context, checkpointID string) (checkpoint.Checkpoint, error) {
	return svc.store.Load(ctx, checkpointID)
}

func (svc *service) LatestCheckpoint(ctx context.Context, projectID string) (checkpoint.Checkpoint, error) {
	return svc.store.Latest(ctx, projectID)
}

func (svc *service) Subscribe(_ context.Context, projectID string) (*events.Observer, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.closed {
		return nil, ErrShuttingDown
	}

	return svc.bus.Subscribe(projectID), nil
}

// Shutdown cancels every running session and waits for their loops to exit.
func (svc *service) Shutdown(ctx context.Context) error {
	svc.mu.Lock()
	svc.closed = true
	svc.mu.Unlock()

	svc.cancel(errShutdown)

	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	svc.hub.Close()
	svc.bus.Close()

	return nil
}

func (svc *service) runner(sessionID string) *runner {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	return svc.runners[sessionID]
}

func (svc *service) release(r *runner) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	delete(svc.runners, r.id)
	if svc.active[r.project.ID] == r {
		delete(svc.active, r.project.ID)
	}
}

func (svc *service) session(ctx context.Context, sessionID string) (fl.Session, error) {
	sess, err := svc.repos.Sessions.Get(ctx, sessionID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return fl.Session{}, fl.ErrSessionNotFound
	}

	return sess, err
}
