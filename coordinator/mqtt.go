package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/mqtt"
)

const participantTopicTemplate = "m/%s/c/%s/control/participant"

var errMissingParticipantID = errors.New("participant_id is required")

// Subscribe routes participant control messages on the channel to svc.
func Subscribe(ctx context.Context, svc Service, ps mqtt.PubSub, domainID, channelID string, logger *slog.Logger) error {
	baseTopic := fmt.Sprintf(participantTopicTemplate, domainID, channelID)

	return ps.Subscribe(ctx, baseTopic+"/#", Handle(ctx, svc, baseTopic, logger))
}

func Handle(ctx context.Context, svc Service, baseTopic string, logger *slog.Logger) mqtt.Handler {
	return func(topic string, msg map[string]any) error {
		switch topic {
		case baseTopic + "/register":
			var req struct {
				ParticipantID string `json:"participant_id"`
				ProjectID     string `json:"project_id"`
				Name          string `json:"name"`
				TotalSamples  uint64 `json:"total_samples"`
			}
			if err := decode(msg, &req); err != nil {
				return err
			}
			p, err := svc.RegisterParticipant(ctx, fl.Participant{
				ID:           req.ParticipantID,
				ProjectID:    req.ProjectID,
				Name:         req.Name,
				TotalSamples: req.TotalSamples,
			})
			if err != nil {
				return err
			}
			logger.InfoContext(ctx, "participant registered",
				slog.String("participant_id", p.ID),
				slog.String("project_id", p.ProjectID),
			)
		case baseTopic + "/alive":
			id, _ := msg["participant_id"].(string)
			if id == "" {
				return errMissingParticipantID
			}

			return svc.Heartbeat(ctx, id)
		case baseTopic + "/contribution":
			var c fl.Contribution
			if err := decode(msg, &c); err != nil {
				return err
			}

			return svc.SubmitContribution(ctx, c)
		case baseTopic + "/vote":
			var v struct {
				ProjectID     string      `json:"project_id"`
				ParticipantID string      `json:"participant_id"`
				Strategy      fl.Strategy `json:"strategy"`
			}
			if err := decode(msg, &v); err != nil {
				return err
			}
			_, err := svc.CastVote(ctx, v.ProjectID, v.ParticipantID, v.Strategy)

			return err
		}

		return nil
	}
}

// decode maps an already JSON-decoded payload onto a typed value.
func decode(msg map[string]any, v any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}
