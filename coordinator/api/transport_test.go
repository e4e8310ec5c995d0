package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/coordinator/api"
	"github.com/absmach/flcoord/coordinator/mocks"
	"github.com/absmach/flcoord/pkg/ballot"
	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	jsonType = "application/json"
	cborType = "application/cbor"
)

func newServer(t *testing.T) (*httptest.Server, *mocks.MockService) {
	t.Helper()

	svc := new(mocks.MockService)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "test"))
	t.Cleanup(ts.Close)

	return ts, svc
}

func do(t *testing.T, method, url, contentType string, body io.Reader) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })

	return res
}

func TestCreateProject(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc        string
		contentType string
		body        string
		setup       func(svc *mocks.MockService)
		status      int
	}{
		{
			desc:        "valid project",
			contentType: jsonType,
			body:        `{"id":"mnist","name":"MNIST","rounds":3,"min_participants":2,"shape":[[2,2]]}`,
			setup: func(svc *mocks.MockService) {
				svc.On("CreateProject", mock.Anything, mock.MatchedBy(func(p fl.Project) bool {
					return p.ID == "mnist" && p.Rounds == 3
				})).Return(fl.Project{ID: "mnist", Rounds: 3, MinParticipants: 2}, nil)
			},
			status: http.StatusCreated,
		},
		{
			desc:        "missing rounds",
			contentType: jsonType,
			body:        `{"id":"mnist","min_participants":2}`,
			setup:       func(*mocks.MockService) {},
			status:      http.StatusBadRequest,
		},
		{
			desc:        "wrong content type",
			contentType: "text/plain",
			body:        `{}`,
			setup:       func(*mocks.MockService) {},
			status:      http.StatusUnsupportedMediaType,
		},
		{
			desc:        "malformed body",
			contentType: jsonType,
			body:        `{"id":`,
			setup:       func(*mocks.MockService) {},
			status:      http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			ts, svc := newServer(t)
			tc.setup(svc)

			res := do(t, http.MethodPost, ts.URL+"/projects/", tc.contentType, strings.NewReader(tc.body))
			assert.Equal(t, tc.status, res.StatusCode)
			if tc.status == http.StatusCreated {
				assert.Equal(t, "/projects/mnist", res.Header.Get("Location"))
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestStartSessionAndStatus(t *testing.T) {
	t.Parallel()

	ts, svc := newServer(t)
	svc.On("StartSession", mock.Anything, "mnist").Return(fl.Session{ID: "s1", ProjectID: "mnist", Status: fl.Voting, TotalRounds: 3}, nil)
	svc.On("StartSession", mock.Anything, "ghost").Return(fl.Session{}, fl.ErrProjectNotFound)
	svc.On("GetSessionStatus", mock.Anything, "s1").Return(coordinator.SessionStatus{
		SessionID:   "s1",
		ProjectID:   "mnist",
		Status:      fl.Voting,
		TotalRounds: 3,
		Tally:       map[string]uint64{"fedavg": 1, "fedprox": 0},
	}, nil)

	res := do(t, http.MethodPost, ts.URL+"/projects/mnist/sessions", "", nil)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "/sessions/s1", res.Header.Get("Location"))

	res = do(t, http.MethodPost, ts.URL+"/projects/ghost/sessions", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = do(t, http.MethodGet, ts.URL+"/sessions/s1/", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var st struct {
		Status string            `json:"status"`
		Tally  map[string]uint64 `json:"tally"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&st))
	assert.Equal(t, "voting", st.Status)
	assert.Equal(t, uint64(1), st.Tally["fedavg"])

	svc.AssertExpectations(t)
}

func TestCastVote(t *testing.T) {
	t.Parallel()

	ts, svc := newServer(t)
	svc.On("CastVote", mock.Anything, "mnist", "p1", fl.FedProx).Return(ballot.Tally{fl.FedAvg: 0, fl.FedProx: 1}, nil)
	svc.On("CastVote", mock.Anything, "mnist", "p2", fl.FedAvg).Return(nil, fl.ErrStaleVote)

	res := do(t, http.MethodPost, ts.URL+"/projects/mnist/votes", jsonType, strings.NewReader(`{"participant_id":"p1","strategy":"fedprox"}`))
	require.Equal(t, http.StatusOK, res.StatusCode)
	var tally struct {
		Tally map[string]uint64 `json:"tally"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&tally))
	assert.Equal(t, map[string]uint64{"fedavg": 0, "fedprox": 1}, tally.Tally)

	res = do(t, http.MethodPost, ts.URL+"/projects/mnist/votes", jsonType, strings.NewReader(`{"participant_id":"p2","strategy":"fedavg"}`))
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res = do(t, http.MethodPost, ts.URL+"/projects/mnist/votes", jsonType, strings.NewReader(`{"participant_id":"p3","strategy":"fedsgd"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	svc.AssertExpectations(t)
}

func TestSubmitContribution(t *testing.T) {
	t.Parallel()

	contrib := fl.Contribution{
		Round:         1,
		ParticipantID: "p1",
		Params:        fl.Parameters{{Shape: []int{2}, Values: []float64{0.25, 0.75}}},
		NumSamples:    64,
		Metrics:       fl.Metrics{Accuracy: 0.8, Loss: 0.3},
	}
	matches := mock.MatchedBy(func(c fl.Contribution) bool {
		return c.SessionID == "s1" && c.ParticipantID == "p1" && c.NumSamples == 64 &&
			len(c.Params) == 1 && c.Params[0].Values[1] == 0.75
	})

	jsonBody, err := json.Marshal(contrib)
	require.NoError(t, err)
	cborBody, err := fl.MarshalCBOR(contrib)
	require.NoError(t, err)

	cases := []struct {
		desc        string
		contentType string
		body        []byte
		err         error
		status      int
	}{
		{desc: "json", contentType: jsonType, body: jsonBody, status: http.StatusAccepted},
		{desc: "cbor", contentType: cborType, body: cborBody, status: http.StatusAccepted},
		{desc: "stale round", contentType: jsonType, body: jsonBody, err: fl.ErrStaleRound, status: http.StatusConflict},
		{desc: "late arrival", contentType: cborType, body: cborBody, err: fl.ErrRoundClosed, status: http.StatusConflict},
		{desc: "unknown participant", contentType: jsonType, body: jsonBody, err: fl.ErrUnknownParticipant, status: http.StatusNotFound},
		{desc: "unsupported type", contentType: "text/plain", body: jsonBody, status: http.StatusUnsupportedMediaType},
		{desc: "garbage cbor", contentType: cborType, body: []byte{0xff, 0x00}, status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			ts, svc := newServer(t)
			if tc.status == http.StatusAccepted || tc.err != nil {
				svc.On("SubmitContribution", mock.Anything, matches).Return(tc.err)
			}

			res := do(t, http.MethodPost, ts.URL+"/sessions/s1/contributions", tc.contentType, bytes.NewReader(tc.body))
			assert.Equal(t, tc.status, res.StatusCode)
			svc.AssertExpectations(t)
		})
	}
}

func TestTrainingStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc     string
		sessions []fl.Session
		want     map[string]any
	}{
		{
			desc:     "no sessions",
			sessions: []fl.Session{},
			want:     map[string]any{"is_training": false, "current_round": float64(0), "total_rounds": float64(0)},
		},
		{
			desc: "training session",
			sessions: []fl.Session{
				{ID: "old", Status: fl.Completed, Round: 3, TotalRounds: 3},
				{ID: "s2", Status: fl.Training, Round: 1, TotalRounds: 5},
			},
			want: map[string]any{"is_training": true, "session_id": "s2", "status": "training", "current_round": float64(1), "total_rounds": float64(5)},
		},
		{
			desc: "voting session",
			sessions: []fl.Session{
				{ID: "s3", Status: fl.Voting, TotalRounds: 2},
			},
			want: map[string]any{"is_training": false, "session_id": "s3", "status": "voting", "current_round": float64(0), "total_rounds": float64(2)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			ts, svc := newServer(t)
			svc.On("GetProject", mock.Anything, "mnist").Return(fl.Project{ID: "mnist"}, nil)
			svc.On("ListSessions", mock.Anything, "mnist").Return(tc.sessions, nil)

			res := do(t, http.MethodGet, ts.URL+"/projects/mnist/training/status", "", nil)
			require.Equal(t, http.StatusOK, res.StatusCode)
			var got map[string]any
			require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCheckpoints(t *testing.T) {
	t.Parallel()

	ts, svc := newServer(t)
	cp := checkpoint.Checkpoint{
		ID:        "mnist.s1.2",
		ProjectID: "mnist",
		SessionID: "s1",
		Version:   2,
		Params:    fl.Parameters{{Shape: []int{1}, Values: []float64{3}}},
	}
	svc.On("ListCheckpoints", mock.Anything, "s1").Return([]checkpoint.Checkpoint{cp}, nil)
	svc.On("GetCheckpoint", mock.Anything, "mnist.s1.2").Return(cp, nil)
	svc.On("GetCheckpoint", mock.Anything, "mnist.s1.9").Return(checkpoint.Checkpoint{}, checkpoint.ErrNotFound)

	res := do(t, http.MethodGet, ts.URL+"/sessions/s1/checkpoints", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var list struct {
		Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	require.Len(t, list.Checkpoints, 1)
	assert.Nil(t, list.Checkpoints[0].Params, "listing leaves parameters out")

	res = do(t, http.MethodGet, ts.URL+"/checkpoints/mnist.s1.2", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var got checkpoint.Checkpoint
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.Equal(t, []float64{3}, got.Params[0].Values)

	res = do(t, http.MethodGet, ts.URL+"/checkpoints/mnist.s1.9", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestHeartbeatAndCancel(t *testing.T) {
	t.Parallel()

	ts, svc := newServer(t)
	svc.On("Heartbeat", mock.Anything, "p1").Return(nil)
	svc.On("Heartbeat", mock.Anything, "ghost").Return(fl.ErrUnknownParticipant)
	svc.On("CancelSession", mock.Anything, "s1").Return(fl.Session{ID: "s1", Status: fl.Cancelled, Reason: fl.ReasonCancelled}, nil)
	svc.On("CancelSession", mock.Anything, "s2").Return(fl.Session{ID: "s2", Status: fl.Completed}, fl.ErrInvalidTransition)

	assert.Equal(t, http.StatusAccepted, do(t, http.MethodPost, ts.URL+"/participants/p1/heartbeat", "", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, ts.URL+"/participants/ghost/heartbeat", "", nil).StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/sessions/s1/cancel", "", nil).StatusCode)
	assert.Equal(t, http.StatusConflict, do(t, http.MethodPost, ts.URL+"/sessions/s2/cancel", "", nil).StatusCode)
}
