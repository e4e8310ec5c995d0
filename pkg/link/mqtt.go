package link

import (
	"context"
	"fmt"

	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/mqtt"
)

const instructionsTopicTemplate = "m/%s/c/%s/control/participants/%s/instructions"

// NewMQTTTransport publishes instructions as JSON on the participant's control topic.
func NewMQTTTransport(ps mqtt.PubSub, domainID, channelID string) Transport {
	return TransportFunc(func(ctx context.Context, participantID string, ins fl.RoundInstructions) error {
		return ps.Publish(ctx, InstructionsTopic(domainID, channelID, participantID), ins)
	})
}

func InstructionsTopic(domainID, channelID, participantID string) string {
	return fmt.Sprintf(instructionsTopicTemplate, domainID, channelID, participantID)
}
