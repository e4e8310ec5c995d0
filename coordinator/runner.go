package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
)

// runner owns one session from voting to a terminal state.
type runner struct {
	id      string
	svc     *service
	project fl.Project
	cfg     Config
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	voteOnce sync.Once
	voteDone chan struct{}
	arrived  chan struct{}

	mu           sync.Mutex
	session      fl.Session
	params       fl.Parameters
	inflight     uint64
	accepting    bool
	instructions fl.RoundInstructions
	contribs     map[string]fl.Contribution
}

func newRunner(svc *service, project fl.Project, sess fl.Session) *runner {
	ctx, cancel := context.WithCancelCause(svc.ctx)

	return &runner{
		id:      sess.ID,
		svc:     svc,
		project: project,
		cfg:     svc.cfg,
		logger: svc.logger.With(
			slog.String("session_id", sess.ID),
			slog.String("project_id", project.ID),
		),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		voteDone: make(chan struct{}),
		arrived:  make(chan struct{}, 1),
		session:  sess,
		contribs: make(map[string]fl.Contribution),
	}
}

func (r *runner) stop(cause error) {
	r.cancel(cause)
}

func (r *runner) snapshot() fl.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.session
}

func (r *runner) closeVoting() error {
	r.mu.Lock()
	status := r.session.Status
	r.mu.Unlock()
	if status != fl.Voting {
		return fmt.Errorf("%w: session is %s", fl.ErrInvalidTransition, status)
	}
	r.voteOnce.Do(func() { close(r.voteDone) })

	return nil
}

func (r *runner) run() {
	defer r.svc.wg.Done()
	defer close(r.done)
	defer r.svc.release(r)
	defer r.cancel(nil)

	strategy, err := r.vote()
	if err != nil {
		r.abort(err)

		return
	}
	if err := r.startTraining(strategy); err != nil {
		r.abort(err)

		return
	}

	r.params = r.initialParams()
	failures := 0
	for {
		r.mu.Lock()
		completed := r.session.Round
		r.mu.Unlock()
		if completed >= r.project.Rounds {
			break
		}
		round := completed + 1

		agg, err := r.collect(round)
		switch {
		case r.ctx.Err() != nil:
			r.abort(r.ctx.Err())

			return
		case errors.Is(err, fl.ErrQuorumNotMet):
			failures++
			r.logger.Warn("round missed quorum",
				slog.Uint64("round", round),
				slog.Int("attempt", failures),
				slog.Any("error", err),
			)
			if failures > r.cfg.RetryBudget {
				r.terminate(fl.Failed, fl.ReasonQuorumNotMet)

				return
			}
			r.svc.bus.Publish(events.Event{
				Type:        events.RoundRetry,
				ProjectID:   r.project.ID,
				SessionID:   r.id,
				Round:       round,
				TotalRounds: r.project.Rounds,
				Reason:      fl.ReasonQuorumNotMet,
			})

			continue
		case err != nil:
			r.logger.Error("round aggregation failed", slog.Uint64("round", round), slog.Any("error", err))
			r.terminate(fl.Failed, fl.ReasonInternalError)

			return
		}

		failures = 0
		if !r.complete(round, agg) {
			r.abort(r.ctx.Err())

			return
		}
	}

	r.terminate(fl.Completed, "")
}

// vote waits for the voting window and returns the winning strategy.
func (r *runner) vote() (fl.Strategy, error) {
	timer := time.NewTimer(r.cfg.VotingWindow)
	defer timer.Stop()

	select {
	case <-r.ctx.Done():
		return "", r.ctx.Err()
	case <-timer.C:
	case <-r.voteDone:
	}

	strategy, tally, err := r.svc.ballot.Close(r.project.ID, r.snapshot().VotingPhase)
	if err != nil {
		return "", err
	}
	r.logger.Info("voting closed",
		slog.String("strategy", string(strategy)),
		slog.Any("tally", tally.Strings()),
	)

	return strategy, nil
}

func (r *runner) startTraining(strategy fl.Strategy) error {
	r.mu.Lock()
	if err := r.session.Transition(fl.Training, time.Now().UTC()); err != nil {
		r.mu.Unlock()

		return err
	}
	r.session.Strategy = strategy
	sess := r.session
	r.mu.Unlock()

	r.persist(sess)
	r.svc.bus.Publish(events.Event{
		Type:        events.SessionStarted,
		ProjectID:   r.project.ID,
		SessionID:   r.id,
		TotalRounds: sess.TotalRounds,
		Strategy:    string(strategy),
	})

	return nil
}

// initialParams resumes from the project's latest checkpoint when its shapes
// match the project's descriptor, and starts from zero tensors otherwise.
func (r *runner) initialParams() fl.Parameters {
	base := fl.ZeroParameters(r.project.Shape)
	if len(base) == 0 {
		return nil
	}

	cp, err := r.svc.store.Latest(r.ctx, r.project.ID)
	switch {
	case err == nil && cp.Params.Compatible(base):
		r.logger.Info("resuming from checkpoint", slog.String("checkpoint_id", cp.ID))

		return cp.Params
	case err == nil:
		r.logger.Warn("ignoring checkpoint with mismatched shapes", slog.String("checkpoint_id", cp.ID))
	case !errors.Is(err, checkpoint.ErrNotFound):
		r.logger.Warn("failed to load latest checkpoint", slog.Any("error", err))
	}

	return base
}

// collect broadcasts the round and blocks until quorum plus the grace window,
// the round timeout, or cancellation. Contributions received for a round
// survive a retry of that same round.
func (r *runner) collect(round uint64) (fl.Aggregated, error) {
	quorum := int(r.project.MinParticipants)
	deadline := time.Now().Add(r.cfg.RoundTimeout)

	r.mu.Lock()
	if r.inflight != round {
		r.contribs = make(map[string]fl.Contribution)
	}
	r.inflight = round
	r.accepting = true
	r.instructions = fl.RoundInstructions{
		SessionID:   r.id,
		ProjectID:   r.project.ID,
		Round:       round,
		TotalRounds: r.project.Rounds,
		Params:      r.params.Clone(),
		Hyperparams: fl.HyperparamsFor(r.session.Strategy, r.project, r.cfg.ProximalMu),
		Deadline:    deadline,
	}
	ins := r.instructions
	have := len(r.contribs)
	r.mu.Unlock()

	targets := r.svc.hub.Active(r.project.ID)
	queued := r.svc.hub.Broadcast(targets, ins)
	r.logger.Info("round instructions broadcast",
		slog.Uint64("round", round),
		slog.Int("participants", len(targets)),
		slog.Int("queued", queued),
	)

	timeout := time.NewTimer(r.cfg.RoundTimeout)
	defer timeout.Stop()

	var (
		grace      <-chan time.Time
		graceTimer *time.Timer
	)
	startGrace := func() {
		graceTimer = time.NewTimer(r.cfg.GraceWindow)
		grace = graceTimer.C
	}
	defer func() {
		if graceTimer != nil {
			graceTimer.Stop()
		}
	}()
	if have >= quorum {
		startGrace()
	}

wait:
	for {
		select {
		case <-r.ctx.Done():
			r.closeRound()

			return fl.Aggregated{}, r.ctx.Err()
		case <-timeout.C:
			break wait
		case <-grace:
			break wait
		case <-r.arrived:
			if grace == nil && r.count() >= quorum {
				r.logger.Debug("quorum reached", slog.Uint64("round", round))
				startGrace()
			}
		}
	}

	contribs := r.closeRound()
	agg, excluded, err := fl.Aggregate(contribs, r.params, quorum)
	if len(excluded) > 0 {
		r.mu.Lock()
		for _, ex := range excluded {
			delete(r.contribs, ex.ParticipantID)
		}
		r.mu.Unlock()
	}
	for _, ex := range excluded {
		r.logger.Warn("contribution excluded",
			slog.Uint64("round", round),
			slog.String("participant_id", ex.ParticipantID),
			slog.Any("error", ex.Err),
		)
	}

	return agg, err
}

func (r *runner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.contribs)
}

// closeRound stops accepting contributions and returns the ones collected.
func (r *runner) closeRound() []fl.Contribution {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accepting = false
	contribs := make([]fl.Contribution, 0, len(r.contribs))
	for _, c := range r.contribs {
		contribs = append(contribs, c)
	}

	return contribs
}

// complete records an aggregated round. It reports false if the session was
// cancelled before the result could be recorded.
func (r *runner) complete(round uint64, agg fl.Aggregated) bool {
	if r.ctx.Err() != nil {
		return false
	}

	now := time.Now().UTC()
	ctx := context.WithoutCancel(r.ctx)
	res := fl.RoundResult{
		SessionID:       r.id,
		ProjectID:       r.project.ID,
		Round:           round,
		Params:          agg.Params,
		NumParticipants: agg.NumParticipants,
		NumSamples:      agg.NumSamples,
		Accuracy:        agg.Metrics.Accuracy,
		Loss:            agg.Metrics.Loss,
		Participants:    agg.Participants,
		Timestamp:       now,
	}
	if err := r.svc.repos.Rounds.Create(ctx, res); err != nil {
		r.logger.Error("failed to persist round result", slog.Uint64("round", round), slog.Any("error", err))
	}

	r.mu.Lock()
	r.params = agg.Params
	r.session.Round = round
	r.session.UpdatedAt = now
	r.inflight = 0
	r.contribs = make(map[string]fl.Contribution)
	r.instructions = fl.RoundInstructions{}
	sess := r.session
	r.mu.Unlock()
	r.persist(sess)

	_, err := r.svc.store.Save(ctx, checkpoint.Checkpoint{
		ProjectID: r.project.ID,
		SessionID: r.id,
		Version:   round,
		Params:    agg.Params,
		Accuracy:  agg.Metrics.Accuracy,
		Loss:      agg.Metrics.Loss,
		CreatedAt: now,
	})
	if err != nil {
		r.logger.Warn("checkpoint not saved",
			slog.Uint64("round", round),
			slog.Any("error", fmt.Errorf("%w: %w", fl.ErrCheckpointWriteFailed, err)),
		)
	}

	r.logger.Info("round complete",
		slog.Uint64("round", round),
		slog.Int("participants", agg.NumParticipants),
		slog.Float64("accuracy", agg.Metrics.Accuracy),
		slog.Float64("loss", agg.Metrics.Loss),
	)
	r.svc.bus.Publish(events.Event{
		Type:            events.RoundComplete,
		ProjectID:       r.project.ID,
		SessionID:       r.id,
		Round:           round,
		TotalRounds:     r.project.Rounds,
		Strategy:        string(sess.Strategy),
		Accuracy:        agg.Metrics.Accuracy,
		Loss:            agg.Metrics.Loss,
		NumParticipants: agg.NumParticipants,
	})

	return true
}

// abort ends the session after err. Cancellation maps to Cancelled with the
// cancel cause as reason; anything else fails the session.
func (r *runner) abort(err error) {
	if errors.Is(err, context.Canceled) {
		reason := fl.ReasonCancelled
		if cause := context.Cause(r.ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			reason = cause.Error()
		}
		r.terminate(fl.Cancelled, reason)

		return
	}

	r.logger.Error("session aborted", slog.Any("error", err))
	r.terminate(fl.Failed, fl.ReasonInternalError)
}

func (r *runner) terminate(status fl.SessionStatus, reason string) {
	r.mu.Lock()
	r.accepting = false
	r.inflight = 0
	r.instructions = fl.RoundInstructions{}
	if err := r.session.Transition(status, time.Now().UTC()); err != nil {
		r.mu.Unlock()
		r.logger.Error("invalid terminal transition", slog.Any("error", err))

		return
	}
	r.session.Reason = reason
	sess := r.session
	r.mu.Unlock()

	if sess.VotingPhase != "" {
		_, _, _ = r.svc.ballot.Close(r.project.ID, sess.VotingPhase)
	}
	r.persist(sess)

	ev := events.Event{
		ProjectID:   r.project.ID,
		SessionID:   r.id,
		Round:       sess.Round,
		TotalRounds: sess.TotalRounds,
		Strategy:    string(sess.Strategy),
		Reason:      reason,
	}
	switch status {
	case fl.Completed:
		ev.Type = events.SessionCompleted
	case fl.Cancelled:
		ev.Type = events.SessionCancelled
	default:
		ev.Type = events.SessionFailed
	}
	r.logger.Info("session finished", slog.String("status", status.String()), slog.String("reason", reason))
	r.svc.bus.Publish(ev)
}

func (r *runner) persist(sess fl.Session) {
	if err := r.svc.repos.Sessions.Update(context.WithoutCancel(r.ctx), sess); err != nil {
		r.logger.Error("failed to persist session", slog.Any("error", err))
	}
}

func (r *runner) currentInstructions() (fl.RoundInstructions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.accepting {
		return fl.RoundInstructions{}, fl.ErrNoActiveRound
	}

	return r.instructions, nil
}

func (r *runner) submit(c fl.Contribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.Status != fl.Training {
		return fl.ErrStaleRound
	}
	if r.inflight == 0 || c.Round != r.inflight {
		return fmt.Errorf("%w: got round %d", fl.ErrStaleRound, c.Round)
	}
	if !r.accepting {
		r.logger.Info("late contribution dropped",
			slog.Uint64("round", c.Round),
			slog.String("participant_id", c.ParticipantID),
		)

		return fl.ErrRoundClosed
	}
	if _, ok := r.contribs[c.ParticipantID]; ok {
		return fl.ErrDuplicateContribution
	}

	c.ReceivedAt = time.Now()
	r.contribs[c.ParticipantID] = c
	select {
	case r.arrived <- struct{}{}:
	default:
	}

	return nil
}
