package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/ballot"
	"github.com/absmach/flcoord/pkg/checkpoint"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
)

var _ coordinator.Service = (*MockService)(nil)

// MockService is a mock implementation of the coordinator.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) CreateProject(ctx context.Context, p fl.Project) (fl.Project, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(fl.Project), args.Error(1)
}

func (m *MockService) GetProject(ctx context.Context, projectID string) (fl.Project, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).(fl.Project), args.Error(1)
}

// ListProjects lists projects with pagination
func (m *MockService) ListProjects(ctx context.Context, offset, limit uint64) (coordinator.ProjectPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(coordinator.ProjectPage), args.Error(1)
}

func (m *MockService) StartSession(ctx context.Context, projectID string) (fl.Session, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).(fl.Session), args.Error(1)
}

func (m *MockService) CancelSession(ctx context.Context, sessionID string) (fl.Session, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(fl.Session), args.Error(1)
}

func (m *MockService) CloseVoting(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// CastVote records a strategy vote
func (m *MockService) CastVote(ctx context.Context, projectID, participantID string, strategy fl.Strategy) (ballot.Tally, error) {
	args := m.Called(ctx, projectID, participantID, strategy)
	tally, _ := args.Get(0).(ballot.Tally)
	return tally, args.Error(1)
}

func (m *MockService) GetSessionStatus(ctx context.Context, sessionID string) (coordinator.SessionStatus, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(coordinator.SessionStatus), args.Error(1)
}

func (m *MockService) ListSessions(ctx context.Context, projectID string) ([]fl.Session, error) {
	args := m.Called(ctx, projectID)
	sessions, _ := args.Get(0).([]fl.Session)
	return sessions, args.Error(1)
}

func (m *MockService) FetchRoundInstructions(ctx context.Context, sessionID string) (fl.RoundInstructions, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(fl.RoundInstructions), args.Error(1)
}

// SubmitContribution submits a participant update
func (m *MockService) SubmitContribution(ctx context.Context, c fl.Contribution) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockService) RegisterParticipant(ctx context.Context, p fl.Participant) (fl.Participant, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(fl.Participant), args.Error(1)
}

func (m *MockService) Heartbeat(ctx context.Context, participantID string) error {
	args := m.Called(ctx, participantID)
	return args.Error(0)
}

func (m *MockService) ListParticipants(ctx context.Context, projectID string) ([]fl.Participant, error) {
	args := m.Called(ctx, projectID)
	participants, _ := args.Get(0).([]fl.Participant)
	return participants, args.Error(1)
}

func (m *MockService) ListRoundResults(ctx context.Context, sessionID string) ([]fl.RoundResult, error) {
	args := m.Called(ctx, sessionID)
	results, _ := args.Get(0).([]fl.RoundResult)
	return results, args.Error(1)
}

func (m *MockService) ListCheckpoints(ctx context.Context, sessionID string) ([]checkpoint.Checkpoint, error) {
	args := m.Called(ctx, sessionID)
	cps, _ := args.Get(0).([]checkpoint.Checkpoint)
	return cps, args.Error(1)
}

func (m *MockService) GetCheckpoint(ctx context.Context, checkpointID string) (checkpoint.Checkpoint, error) {
	args := m.Called(ctx, checkpointID)
	return args.Get(0).(checkpoint.Checkpoint), args.Error(1)
}

func (m *MockService) LatestCheckpoint(ctx context.Context, projectID string) (checkpoint.Checkpoint, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).(checkpoint.Checkpoint), args.Error(1)
}

// Subscribe attaches an event observer
func (m *MockService) Subscribe(ctx context.Context, projectID string) (*events.Observer, error) {
	args := m.Called(ctx, projectID)
	obs, _ := args.Get(0).(*events.Observer)
	return obs, args.Error(1)
}

func (m *MockService) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
