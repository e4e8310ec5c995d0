package coordinator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/coordinator/mocks"
	"github.com/absmach/flcoord/pkg/ballot"
	"github.com/absmach/flcoord/pkg/fl"
	mqttmocks "github.com/absmach/flcoord/pkg/mqtt/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const baseTopic = "m/dom/c/chan/control/participant"

func TestHandle(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	cases := []struct {
		desc  string
		topic string
		msg   map[string]any
		setup func(svc *mocks.MockService)
		err   error
	}{
		{
			desc:  "register",
			topic: baseTopic + "/register",
			msg:   map[string]any{"participant_id": "p1", "project_id": "mnist", "total_samples": 120},
			setup: func(svc *mocks.MockService) {
				svc.On("RegisterParticipant", mock.Anything, fl.Participant{ID: "p1", ProjectID: "mnist", TotalSamples: 120}).
					Return(fl.Participant{ID: "p1", ProjectID: "mnist"}, nil)
			},
		},
		{
			desc:  "register rejected",
			topic: baseTopic + "/register",
			msg:   map[string]any{"participant_id": "p1", "project_id": "missing"},
			setup: func(svc *mocks.MockService) {
				svc.On("RegisterParticipant", mock.Anything, mock.Anything).Return(fl.Participant{}, fl.ErrProjectNotFound)
			},
			err: fl.ErrProjectNotFound,
		},
		{
			desc:  "heartbeat",
			topic: baseTopic + "/alive",
			msg:   map[string]any{"participant_id": "p1"},
			setup: func(svc *mocks.MockService) {
				svc.On("Heartbeat", mock.Anything, "p1").Return(nil)
			},
		},
		{
			desc:  "heartbeat without id",
			topic: baseTopic + "/alive",
			msg:   map[string]any{},
			setup: func(*mocks.MockService) {},
			err:   errors.New("participant_id is required"),
		},
		{
			desc:  "contribution",
			topic: baseTopic + "/contribution",
			msg: map[string]any{
				"session_id":     "s1",
				"round":          2,
				"participant_id": "p1",
				"num_samples":    40,
				"params":         []any{map[string]any{"shape": []any{2}, "values": []any{0.5, 1.5}}},
				"metrics":        map[string]any{"accuracy": 0.9, "loss": 0.1},
			},
			setup: func(svc *mocks.MockService) {
				svc.On("SubmitContribution", mock.Anything, mock.MatchedBy(func(c fl.Contribution) bool {
					return c.SessionID == "s1" && c.Round == 2 && c.NumSamples == 40 &&
						len(c.Params) == 1 && c.Params[0].Values[1] == 1.5 && c.Metrics.Accuracy == 0.9
				})).Return(nil)
			},
		},
		{
			desc:  "stale contribution",
			topic: baseTopic + "/contribution",
			msg:   map[string]any{"session_id": "s1", "round": 1, "participant_id": "p1", "num_samples": 1},
			setup: func(svc *mocks.MockService) {
				svc.On("SubmitContribution", mock.Anything, mock.Anything).Return(fl.ErrStaleRound)
			},
			err: fl.ErrStaleRound,
		},
		{
			desc:  "vote",
			topic: baseTopic + "/vote",
			msg:   map[string]any{"project_id": "mnist", "participant_id": "p1", "strategy": "fedprox"},
			setup: func(svc *mocks.MockService) {
				svc.On("CastVote", mock.Anything, "mnist", "p1", fl.FedProx).Return(ballot.Tally{fl.FedProx: 1}, nil)
			},
		},
		{
			desc:  "vote failure",
			topic: baseTopic + "/vote",
			msg:   map[string]any{"project_id": "mnist", "participant_id": "p1", "strategy": "fedavg"},
			setup: func(svc *mocks.MockService) {
				svc.On("CastVote", mock.Anything, "mnist", "p1", fl.FedAvg).Return(nil, errBoom)
			},
			err: errBoom,
		},
		{
			desc:  "unrelated topic",
			topic: baseTopic + "/other",
			msg:   map[string]any{"x": 1},
			setup: func(*mocks.MockService) {},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			svc := new(mocks.MockService)
			tc.setup(svc)

			handler := coordinator.Handle(context.Background(), svc, baseTopic, logger)
			err := handler(tc.topic, tc.msg)
			switch {
			case tc.err == nil:
				require.NoError(t, err)
			case errors.Is(err, tc.err):
			default:
				require.Error(t, err)
				assert.Equal(t, tc.err.Error(), err.Error())
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	ps := new(mqttmocks.MockPubSub)
	ps.On("Subscribe", mock.Anything, baseTopic+"/#", mock.Anything).Return(nil)

	err := coordinator.Subscribe(context.Background(), new(mocks.MockService), ps, "dom", "chan", logger)
	require.NoError(t, err)
	ps.AssertExpectations(t)
}
