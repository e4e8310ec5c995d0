package sdk_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/coordinator/api"
	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSDK(t *testing.T) sdk.SDK {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := coordinator.DefaultConfig()
	cfg.VotingWindow = time.Minute
	cfg.RoundTimeout = 10 * time.Second
	cfg.GraceWindow = 10 * time.Millisecond

	svc := coordinator.NewService(
		storage.NewMemoryRepositories(),
		checkpoint.NewMemoryStore(),
		events.NewBus(cfg.EventQueueSize, discard.NewCounter(), logger),
		nil,
		cfg,
		logger,
	)
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "test"))
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	return sdk.NewSDK(sdk.Config{CoordinatorURL: ts.URL})
}

func TestTrainingRun(t *testing.T) {
	t.Parallel()

	client := newSDK(t)

	_, err := client.CreateProject(fl.Project{ID: "mnist", Name: "MNIST", Rounds: 2, MinParticipants: 2, LocalEpochs: 1, BatchSize: 32, Shape: [][]int{{2}}})
	require.NoError(t, err)

	p, err := client.GetProject("mnist")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.Rounds)

	page, err := client.ListProjects(0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), page.Total)

	for _, id := range []string{"a", "b"} {
		part, err := client.RegisterParticipant("mnist", fl.Participant{ID: id, TotalSamples: 100})
		require.NoError(t, err)
		assert.Equal(t, "mnist", part.ProjectID)
		require.NoError(t, client.Heartbeat(id))
	}
	participants, err := client.ListParticipants("mnist")
	require.NoError(t, err)
	assert.Len(t, participants, 2)

	sess, err := client.StartSession("mnist")
	require.NoError(t, err)

	tally, err := client.CastVote("mnist", "a", fl.FedProx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tally["fedprox"])

	st, err := client.SessionStatus(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.Voting, st.Status)

	ts, err := client.TrainingStatus("mnist")
	require.NoError(t, err)
	assert.False(t, ts.IsTraining)
	assert.Equal(t, sess.ID, ts.SessionID)

	require.NoError(t, client.CloseVoting(sess.ID))

	for round := uint64(1); round <= 2; round++ {
		var ins fl.RoundInstructions
		require.Eventually(t, func() bool {
			ins, err = client.FetchRoundInstructions(sess.ID)

			return err == nil && ins.Round == round
		}, 5*time.Second, 5*time.Millisecond)
		assert.Equal(t, fl.FedProx, ins.Hyperparams.Strategy)

		for i, id := range []string{"a", "b"} {
			require.NoError(t, client.SubmitContribution(fl.Contribution{
				SessionID:     sess.ID,
				Round:         round,
				ParticipantID: id,
				Params:        fl.Parameters{{Shape: []int{2}, Values: []float64{float64(i), float64(i)}}},
				NumSamples:    50,
				Metrics:       fl.Metrics{Accuracy: 0.5 + 0.2*float64(i)},
			}))
		}
	}

	require.Eventually(t, func() bool {
		st, err = client.SessionStatus(sess.ID)

		return err == nil && st.Status == fl.Completed
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), st.Round)

	rounds, err := client.ListRoundResults(sess.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.InDelta(t, 0.6, rounds[1].Accuracy, 1e-9)

	cps, err := client.ListCheckpoints(sess.ID)
	require.NoError(t, err)
	require.Len(t, cps, 2)

	latest, err := client.LatestCheckpoint("mnist")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), latest.Version)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, latest.Params[0].Values, 1e-9)

	cp, err := client.GetCheckpoint(cps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cp.Version)

	sessions, err := client.ListSessions("mnist")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, fl.Completed, sessions[0].Status)
}

func TestErrorsSurface(t *testing.T) {
	t.Parallel()

	client := newSDK(t)

	_, err := client.GetProject("missing")
	require.ErrorIs(t, err, sdk.ErrUnexpectedResponse)
	assert.Contains(t, err.Error(), "404")

	_, err = client.StartSession("missing")
	assert.ErrorIs(t, err, sdk.ErrUnexpectedResponse)

	err = client.SubmitContribution(fl.Contribution{SessionID: "nope", ParticipantID: "a", NumSamples: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fl.ErrSessionNotFound.Error())

	_, err = client.CancelSession("nope")
	assert.Error(t, err)
}
