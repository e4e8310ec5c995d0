package testutil

import (
	"time"

	"github.com/absmach/flcoord/pkg/fl"
)

func TestProject(id string) fl.Project {
	return fl.Project{
		ID:              id,
		Name:            "project-" + id,
		Rounds:          3,
		LocalEpochs:     2,
		BatchSize:       32,
		MinParticipants: 2,
		Shape:           [][]int{{2, 2}, {2}},
		CreatedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestSession(id, projectID string) fl.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return fl.Session{
		ID:          id,
		ProjectID:   projectID,
		TotalRounds: 3,
		Status:      fl.Voting,
		VotingPhase: "phase-" + id,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRoundResult(sessionID string, round uint64) fl.RoundResult {
	return fl.RoundResult{
		SessionID: sessionID,
		ProjectID: "proj",
		Round:     round,
		Params: fl.Parameters{
			{Shape: []int{2, 2}, Values: []float64{1, 2, 3, 4}},
			{Shape: []int{2}, Values: []float64{0.5, -0.5}},
		},
		NumParticipants: 2,
		NumSamples:      400,
		Accuracy:        0.875,
		Loss:            0.25,
		Participants: []fl.ParticipantMetrics{
			{ParticipantID: "a", NumSamples: 100, Accuracy: 0.5, Loss: 1},
			{ParticipantID: "b", NumSamples: 300, Accuracy: 1, Loss: 0},
		},
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestParticipant(id, projectID string) fl.Participant {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return fl.Participant{
		ID:           id,
		ProjectID:    projectID,
		Name:         "participant-" + id,
		TotalSamples: 100,
		Online:       true,
		RegisteredAt: now,
		LastSeen:     now,
	}
}
