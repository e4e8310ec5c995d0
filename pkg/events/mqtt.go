package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/absmach/flcoord/pkg/mqtt"
)

// Forward relays every event the observer receives to "<baseTopic>/<project>/<type>".
// It returns when ctx ends or the observer is closed.
func Forward(ctx context.Context, o *Observer, ps mqtt.PubSub, baseTopic string, logger *slog.Logger) error {
	for {
		ev, err := o.Next(ctx)
		switch {
		case errors.Is(err, ErrObserverClosed), errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			return err
		}

		topic := fmt.Sprintf("%s/%s/%s", baseTopic, projectSegment(ev.ProjectID), ev.Type)
		if err := ps.Publish(ctx, topic, ev); err != nil {
			logger.Warn("failed to forward event",
				slog.String("topic", topic),
				slog.String("event_type", string(ev.Type)),
				slog.Any("error", err),
			)
		}
	}
}

func projectSegment(projectID string) string {
	if projectID == "" {
		return "_"
	}

	return projectID
}
