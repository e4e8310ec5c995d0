package coordinator_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

type harness struct {
	svc   coordinator.Service
	repos *storage.Repositories
	store checkpoint.Store
	bus   *events.Bus
}

func testConfig() coordinator.Config {
	cfg := coordinator.DefaultConfig()
	cfg.VotingWindow = 20 * time.Millisecond
	cfg.RoundTimeout = 2 * time.Second
	cfg.GraceWindow = 10 * time.Millisecond
	cfg.RetryBudget = 1

	return cfg
}

func newHarness(t *testing.T, cfg coordinator.Config) harness {
	t.Helper()

	repos := storage.NewMemoryRepositories()
	store := checkpoint.NewMemoryStore()
	bus := events.NewBus(cfg.EventQueueSize, discard.NewCounter(), logger)
	svc := coordinator.NewService(repos, store, bus, nil, cfg, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	return harness{svc: svc, repos: repos, store: store, bus: bus}
}

func (h harness) project(t *testing.T, id string, rounds, quorum uint64, participants ...string) fl.Project {
	t.Helper()
	ctx := context.Background()

	p, err := h.svc.CreateProject(ctx, fl.Project{
		ID:              id,
		Name:            id,
		Rounds:          rounds,
		LocalEpochs:     1,
		BatchSize:       16,
		MinParticipants: quorum,
		Shape:           [][]int{{2}},
	})
	require.NoError(t, err)

	for _, pid := range participants {
		_, err := h.svc.RegisterParticipant(ctx, fl.Participant{ID: pid, ProjectID: id, TotalSamples: 100})
		require.NoError(t, err)
	}

	return p
}

type worker struct {
	id       string
	samples  uint64
	accuracy float64
	values   []float64
}

// drive plays the participant side: it polls for instructions and submits one
// contribution per worker per round until ctx ends.
func drive(ctx context.Context, svc coordinator.Service, sessionID string, workers ...worker) {
	var last uint64
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		ins, err := svc.FetchRoundInstructions(ctx, sessionID)
		if err != nil || ins.Round <= last {
			continue
		}
		for _, w := range workers {
			_ = svc.SubmitContribution(ctx, fl.Contribution{
				SessionID:     sessionID,
				Round:         ins.Round,
				ParticipantID: w.id,
				Params:        fl.Parameters{{Shape: []int{2}, Values: w.values}},
				NumSamples:    w.samples,
				Metrics:       fl.Metrics{Accuracy: w.accuracy, Loss: 1 - w.accuracy},
			})
		}
		last = ins.Round
	}
}

func waitStatus(t *testing.T, svc coordinator.Service, sessionID string, want fl.SessionStatus) coordinator.SessionStatus {
	t.Helper()

	var st coordinator.SessionStatus
	require.Eventually(t, func() bool {
		var err error
		st, err = svc.GetSessionStatus(context.Background(), sessionID)

		return err == nil && st.Status == want
	}, 5*time.Second, 5*time.Millisecond, "session never reached %s", want)

	return st
}

func TestSessionCompletes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.project(t, "mnist", 3, 2, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs, err := h.svc.Subscribe(ctx, "mnist")
	require.NoError(t, err)
	defer obs.Close()

	sess, err := h.svc.StartSession(ctx, "mnist")
	require.NoError(t, err)
	assert.Equal(t, fl.Voting, sess.Status)
	assert.NotEmpty(t, sess.VotingPhase)

	go drive(ctx, h.svc, sess.ID,
		worker{id: "a", samples: 100, accuracy: 0.8, values: []float64{1, 1}},
		worker{id: "b", samples: 300, accuracy: 0.9, values: []float64{5, 5}},
	)

	st := waitStatus(t, h.svc, sess.ID, fl.Completed)
	assert.Equal(t, uint64(3), st.Round)
	assert.Equal(t, fl.FedAvg, st.Strategy)

	results, err := h.svc.ListRoundResults(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, uint64(i+1), res.Round)
		assert.Equal(t, 2, res.NumParticipants)
		assert.InDelta(t, 0.875, res.Accuracy, 1e-9)
		assert.InDeltaSlice(t, []float64{4, 4}, res.Params[0].Values, 1e-9)
	}

	cps, err := h.svc.ListCheckpoints(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, cps, 3)
	latest, err := h.svc.LatestCheckpoint(ctx, "mnist")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), latest.Version)

	var types []events.Type
	rounds := []uint64{}
	for len(types) == 0 || types[len(types)-1] != events.SessionCompleted {
		ev, err := obs.Next(ctx)
		require.NoError(t, err)
		types = append(types, ev.Type)
		if ev.Type == events.RoundComplete {
			rounds = append(rounds, ev.Round)
			assert.InDelta(t, 0.875, ev.Accuracy, 1e-9)
		}
	}
	assert.Equal(t, events.VotingStarted, types[0])
	assert.Contains(t, types, events.SessionStarted)
	assert.Equal(t, []uint64{1, 2, 3}, rounds)
}

func TestQuorumMissFailsSession(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RoundTimeout = 30 * time.Millisecond
	cfg.RetryBudget = 2
	h := newHarness(t, cfg)
	h.project(t, "p", 3, 2, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs, err := h.svc.Subscribe(ctx, "p")
	require.NoError(t, err)
	defer obs.Close()

	sess, err := h.svc.StartSession(ctx, "p")
	require.NoError(t, err)
	go drive(ctx, h.svc, sess.ID, worker{id: "a", samples: 10, accuracy: 0.5, values: []float64{1, 1}})

	st := waitStatus(t, h.svc, sess.ID, fl.Failed)
	assert.Equal(t, fl.ReasonQuorumNotMet, st.Reason)
	assert.Equal(t, uint64(0), st.Round)

	results, err := h.svc.ListRoundResults(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, results)

	retries := 0
	for {
		ev, err := obs.Next(ctx)
		require.NoError(t, err)
		if ev.Type == events.RoundRetry {
			retries++
			assert.Equal(t, uint64(1), ev.Round)
		}
		if ev.Type == events.SessionFailed {
			assert.Equal(t, fl.ReasonQuorumNotMet, ev.Reason)

			break
		}
	}
	assert.Equal(t, cfg.RetryBudget, retries)
}

func TestContributionValidation(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RoundTimeout = 10 * time.Second
	h := newHarness(t, cfg)
	h.project(t, "p", 2, 2, "a", "b")
	h.project(t, "q", 1, 1, "x")
	ctx := context.Background()

	sess, err := h.svc.StartSession(ctx, "p")
	require.NoError(t, err)

	contrib := func(id string, round uint64) fl.Contribution {
		return fl.Contribution{
			SessionID:     sess.ID,
			Round:         round,
			ParticipantID: id,
			Params:        fl.Parameters{{Shape: []int{2}, Values: []float64{1, 2}}},
			NumSamples:    10,
		}
	}

	assert.ErrorIs(t, h.svc.SubmitContribution(ctx, contrib("a", 1)), fl.ErrStaleRound, "voting sessions accept nothing")
	_, err = h.svc.FetchRoundInstructions(ctx, sess.ID)
	assert.ErrorIs(t, err, fl.ErrNoActiveRound)

	require.NoError(t, h.svc.CloseVoting(ctx, sess.ID))
	require.Eventually(t, func() bool {
		ins, err := h.svc.FetchRoundInstructions(ctx, sess.ID)

		return err == nil && ins.Round == 1
	}, time.Second, 2*time.Millisecond)

	cases := []struct {
		desc string
		c    fl.Contribution
		err  error
	}{
		{desc: "previous round", c: contrib("a", 0), err: fl.ErrStaleRound},
		{desc: "next round", c: contrib("a", 2), err: fl.ErrStaleRound},
		{desc: "unknown participant", c: contrib("ghost", 1), err: fl.ErrUnknownParticipant},
		{desc: "participant of another project", c: contrib("x", 1), err: fl.ErrParticipantProjectMatch},
		{desc: "zero samples", c: func() fl.Contribution { c := contrib("a", 1); c.NumSamples = 0; return c }(), err: fl.ErrInvalidSampleCount},
		{desc: "unknown session", c: func() fl.Contribution { c := contrib("a", 1); c.SessionID = "nope"; return c }(), err: fl.ErrSessionNotFound},
		{desc: "first contribution", c: contrib("a", 1)},
		{desc: "duplicate contribution", c: contrib("a", 1), err: fl.ErrDuplicateContribution},
	}
	for _, tc := range cases {
		err := h.svc.SubmitContribution(ctx, tc.c)
		if tc.err == nil {
			assert.NoError(t, err, tc.desc)

			continue
		}
		assert.ErrorIs(t, err, tc.err, tc.desc)
	}

	st, err := h.svc.GetSessionStatus(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.Training, st.Status)
	assert.Equal(t, uint64(0), st.Round)
}

func TestStaleContributionsDoNotAffectAggregation(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RoundTimeout = 10 * time.Second
	h := newHarness(t, cfg)
	h.project(t, "p", 2, 2, "a", "b")
	ctx := context.Background()

	sess, err := h.svc.StartSession(ctx, "p")
	require.NoError(t, err)
	require.NoError(t, h.svc.CloseVoting(ctx, sess.ID))

	contrib := func(id string, round, samples uint64, values ...float64) fl.Contribution {
		return fl.Contribution{
			SessionID:     sess.ID,
			Round:         round,
			ParticipantID: id,
			Params:        fl.Parameters{{Shape: []int{2}, Values: values}},
			NumSamples:    samples,
			Metrics:       fl.Metrics{Accuracy: 0.5, Loss: 0.5},
		}
	}
	awaitRound := func(round uint64) {
		require.Eventually(t, func() bool {
			ins, err := h.svc.FetchRoundInstructions(ctx, sess.ID)

			return err == nil && ins.Round == round
		}, 5*time.Second, 2*time.Millisecond)
	}

	awaitRound(1)
	stale := []fl.Contribution{
		contrib("a", 0, 1000, 1e6, 1e6),
		contrib("a", 2, 1000, -1e6, -1e6),
		contrib("b", 2, 1000, -1e6, -1e6),
	}
	for _, c := range stale {
		assert.ErrorIs(t, h.svc.SubmitContribution(ctx, c), fl.ErrStaleRound)
	}

	for round := uint64(1); round <= 2; round++ {
		awaitRound(round)
		require.NoError(t, h.svc.SubmitContribution(ctx, contrib("a", round, 100, 1, 1)))
		require.NoError(t, h.svc.SubmitContribution(ctx, contrib("b", round, 300, 5, 5)))
	}

	waitStatus(t, h.svc, sess.ID, fl.Completed)
	results, err := h.svc.ListRoundResults(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, 2, res.NumParticipants)
		assert.Equal(t, uint64(400), res.NumSamples)
		assert.InDeltaSlice(t, []float64{4, 4}, res.Params[0].Values, 1e-9)
		ids := []string{}
		for _, pm := range res.Participants {
			ids = append(ids, pm.ParticipantID)
		}
		assert.ElementsMatch(t, []string{"a", "b"}, ids)
	}
}

func TestCancelDuringQuorumWait(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RoundTimeout = time.Minute
	h := newHarness(t, cfg)
	h.project(t, "p", 3, 2, "a", "b")
	ctx := context.Background()

	sess, err := h.svc.StartSession(ctx, "p")
	require.NoError(t, err)
	require.NoError(t, h.svc.CloseVoting(ctx, sess.ID))

	contribute := func(id string, round uint64) {
		require.Eventually(t, func() bool {
			ins, err := h.svc.FetchRoundInstructions(ctx, sess.ID)

			return err == nil && ins.Round == round
		}, 5*time.Second, 2*time.Millisecond)
		require.NoError(t, h.svc.SubmitContribution(ctx, fl.Contribution{
			SessionID:     sess.ID,
			Round:         round,
			ParticipantID: id,
			Params:        fl.Parameters{{Shape: []int{2}, Values: []float64{1, 1}}},
			NumSamples:    10,
		}))
	}
	contribute("a", 1)
	contribute("b", 1)

	// Round 2 only hears from one participant and waits on quorum.
	contribute("a", 2)

	cancelled, err := h.svc.CancelSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.Cancelled, cancelled.Status)
	assert.Equal(t, fl.ReasonCancelled, cancelled.Reason)
	assert.Equal(t, uint64(1), cancelled.Round)

	results, err := h.svc.ListRoundResults(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)

	stored, err := h.repos.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.Cancelled, stored.Status)

	err = h.svc.SubmitContribution(ctx, fl.Contribution{SessionID: sess.ID, Round: 2, ParticipantID: "b", NumSamples: 1})
	assert.ErrorIs(t, err, fl.ErrStaleRound)
	_, err = h.svc.CancelSession(ctx, sess.ID)
	assert.ErrorIs(t, err, fl.ErrInvalidTransition)
}

func TestStartSupersedesActiveSession(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.VotingWindow = time.Minute
	h := newHarness(t, cfg)
	h.project(t, "p", 1, 1, "a")
	ctx := context.Background()

	first, err := h.svc.StartSession(ctx, "p")
	require.NoError(t, err)
	_, err = h.svc.CastVote(ctx, "p", "a", fl.FedProx)
	require.NoError(t, err)

	second, err := h.svc.StartSession(ctx, "p")
	require.NoError(t, err)
	assert.NotEqual(t, first.VotingPhase, second.VotingPhase)

	st, err := h.svc.GetSessionStatus(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.Cancelled, st.Status)
	assert.Equal(t, fl.ReasonSuperseded, st.Reason)

	st, err = h.svc.GetSessionStatus(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.Voting, st.Status)
	assert.Equal(t, map[string]uint64{"fedavg": 0, "fedprox": 0}, st.Tally, "votes from the superseded phase must not carry over")

	sessions, err := h.svc.ListSessions(ctx, "p")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestVotingSelectsStrategy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.VotingWindow = time.Minute
	cfg.RoundTimeout = 10 * time.Second
	h := newHarness(t, cfg)
	h.project(t, "p", 1, 1, "a", "b", "c", "d")
	ctx := context.Background()

	_, err := h.svc.CastVote(ctx, "p", "a", fl.FedProx)
	assert.ErrorIs(t, err, fl.ErrStaleVote, "no voting phase yet")

	sess, err := h.svc.StartSession(ctx, "p")
	require.NoError(t, err)

	_, err = h.svc.CastVote(ctx, "p", "a", "fedsgd")
	assert.ErrorIs(t, err, fl.ErrInvalidStrategy)

	for id, s := range map[string]fl.Strategy{"a": fl.FedAvg, "b": fl.FedProx, "c": fl.FedProx, "d": fl.FedProx} {
		_, err := h.svc.CastVote(ctx, "p", id, s)
		require.NoError(t, err)
	}
	tally, err := h.svc.CastVote(ctx, "p", "a", fl.FedProx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), tally[fl.FedProx])

	require.NoError(t, h.svc.CloseVoting(ctx, sess.ID))

	var ins fl.RoundInstructions
	require.Eventually(t, func() bool {
		ins, err = h.svc.FetchRoundInstructions(ctx, sess.ID)

		return err == nil
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, fl.FedProx, ins.Hyperparams.Strategy)
	assert.InDelta(t, cfg.ProximalMu, ins.Hyperparams.ProximalMu, 1e-12)
	assert.Equal(t, []float64{0, 0}, ins.Params[0].Values)

	_, err = h.svc.CastVote(ctx, "p", "a", fl.FedAvg)
	assert.ErrorIs(t, err, fl.ErrStaleVote, "votes after the window closes are rejected")
	assert.ErrorIs(t, h.svc.CloseVoting(ctx, sess.ID), fl.ErrInvalidTransition)
}

func TestResumeFromCheckpoint(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RoundTimeout = 10 * time.Second
	h := newHarness(t, cfg)
	h.project(t, "p", 1, 1, "a")
	ctx := context.Background()

	_, err := h.store.Save(ctx, checkpoint.Checkpoint{
		ProjectID: "p",
		SessionID: "earlier",
		Version:   4,
		Params:    fl.Parameters{{Shape: []int{2}, Values: []float64{7, 8}}},
	})
	require.NoError(t, err)

	sess, err := h.svc.StartSession(ctx, "p")
	require.NoError(t, err)
	require.NoError(t, h.svc.CloseVoting(ctx, sess.ID))

	var ins fl.RoundInstructions
	require.Eventually(t, func() bool {
		ins, err = h.svc.FetchRoundInstructions(ctx, sess.ID)

		return err == nil
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, []float64{7, 8}, ins.Params[0].Values)
}

func TestParticipants(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.project(t, "p", 1, 1)
	ctx := context.Background()

	_, err := h.svc.RegisterParticipant(ctx, fl.Participant{ID: "a", ProjectID: "missing"})
	assert.ErrorIs(t, err, fl.ErrProjectNotFound)
	_, err = h.svc.RegisterParticipant(ctx, fl.Participant{ID: "bad id", ProjectID: "p"})
	assert.ErrorIs(t, err, fl.ErrInvalidID)

	p, err := h.svc.RegisterParticipant(ctx, fl.Participant{ID: "a", ProjectID: "p", TotalSamples: 50})
	require.NoError(t, err)
	assert.NotEmpty(t, p.Name, "a display name is generated")
	assert.True(t, p.Online)

	again, err := h.svc.RegisterParticipant(ctx, fl.Participant{ID: "a", ProjectID: "p", TotalSamples: 75})
	require.NoError(t, err)
	assert.Equal(t, p.Name, again.Name)
	assert.Equal(t, uint64(75), again.TotalSamples)
	assert.True(t, p.RegisteredAt.Equal(again.RegisteredAt))

	require.NoError(t, h.svc.Heartbeat(ctx, "a"))
	assert.ErrorIs(t, h.svc.Heartbeat(ctx, "ghost"), fl.ErrUnknownParticipant)

	list, err := h.svc.ListParticipants(ctx, "p")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Online)
}

func TestLookupsOfUnknownEntities(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	ctx := context.Background()

	_, err := h.svc.StartSession(ctx, "missing")
	assert.ErrorIs(t, err, fl.ErrProjectNotFound)
	_, err = h.svc.GetSessionStatus(ctx, "missing")
	assert.ErrorIs(t, err, fl.ErrSessionNotFound)
	_, err = h.svc.CancelSession(ctx, "missing")
	assert.ErrorIs(t, err, fl.ErrSessionNotFound)
	_, err = h.svc.ListRoundResults(ctx, "missing")
	assert.ErrorIs(t, err, fl.ErrSessionNotFound)
	_, err = h.svc.FetchRoundInstructions(ctx, "missing")
	assert.ErrorIs(t, err, fl.ErrSessionNotFound)
	_, err = h.svc.GetCheckpoint(ctx, "p.s.1")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	_, err = h.svc.CreateProject(ctx, fl.Project{ID: "p"})
	assert.ErrorIs(t, err, fl.ErrInvalidProject)
}

func TestShutdownCancelsSessions(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.VotingWindow = time.Minute
	h := newHarness(t, cfg)
	h.project(t, "p", 1, 1)
	ctx := context.Background()

	sess, err := h.svc.StartSession(ctx, "p")
	require.NoError(t, err)

	require.NoError(t, h.svc.Shutdown(ctx))

	stored, err := h.repos.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.Cancelled, stored.Status)
	assert.Equal(t, fl.ReasonShutdown, stored.Reason)

	_, err = h.svc.StartSession(ctx, "p")
	assert.True(t, errors.Is(err, coordinator.ErrShuttingDown))
	_, err = h.svc.Subscribe(ctx, "p")
	assert.ErrorIs(t, err, coordinator.ErrShuttingDown)
}
